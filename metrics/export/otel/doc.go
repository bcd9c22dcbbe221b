// Package otel bridges the gateway's internal counter snapshot to
// OpenTelemetry observable instruments via a registered callback.
package otel
