// Package middleware exposes HTTP route guards built on the gateway's
// server-side session store.
//
// # Guards
//
//   - [RequireSession] answers 401 for requests whose cookie session holds
//     no token.
//   - [RequireSessionOrRedirect] applies the same check with redirect
//     semantics for server-rendered pages.
//   - [RequireAnonymous] redirects already-authenticated visitors away from
//     login pages.
//
// Each guard reads only the session cookie and the store behind it; the
// client-held machine state is never consulted here. A guard with
// [PolicyOtpVerified] additionally requires a 2FA-complete session, which is
// how application pages stay gated on OTP even though the token itself is
// API-valid from login.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Gateway session lookups. It
// does NOT implement authentication logic itself; all decisions reduce to
// the record the gateway wrote.
package middleware
