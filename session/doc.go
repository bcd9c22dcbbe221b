// Package session provides Redis-backed persistence for cookie-bound browser
// sessions and the compact binary encoding of the session record.
//
// # Binary encoding
//
// Records are stored in Redis as a compact binary format with a leading
// schema version byte. The encoder is append-only: new versions add fields
// but never reinterpret old ones.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Record] model.
// Absence of an auth token in a record is the server-side definition of
// "anonymous"; interpreting that for routing or rendering belongs to the
// gateway and its middleware, not here.
//
// # What this package must NOT do
//
//   - Import authgate or upstream (no upward imports).
//   - Call the upstream identity provider.
//   - Decide authentication policy; it only persists what the gateway wrote.
package session
