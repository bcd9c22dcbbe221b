// Package authgate provides the two-factor login flow for tripwell services:
// a credential exchange against an upstream identity provider, an email OTP
// challenge, and a Redis-backed cookie session that stays consistent with the
// client-held token state.
//
// The package is designed for concurrent server workloads: Gateway methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. The client-side [Machine] serializes one login flow per
// browser tab and coalesces duplicate in-flight requests.
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Gateway], [Machine], [Builder],
// [Config], and value types (LoginResult, State, MetricsSnapshot, etc.).
// Session persistence lives in the session sub-package; upstream identity
// calls live behind the [CredentialVerifier] and [OtpChallenger] interfaces.
//
// # What this package must NOT do
//
//   - Expose Redis clients, session encodings, or upstream wire formats in
//     its public API.
//   - Let an upstream error shape cross the gateway boundary un-normalized
//     (everything maps onto the closed [ErrorKind] taxonomy).
//   - Report success to a caller before the session store write has landed.
//
// # Consistency contract
//
// Whenever a Machine reports IsAuthenticated, the session record for the same
// browser session holds the token last accepted upstream. Divergence is
// permitted only for the duration of one network round trip and must resolve
// or roll back; the Gateway writes the store strictly after the upstream call
// succeeds and strictly before returning success.
package authgate
