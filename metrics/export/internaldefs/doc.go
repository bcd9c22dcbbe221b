// Package internaldefs holds the shared metric name/help table consumed by
// the exporter packages, so every exporter publishes identical series names.
package internaldefs
