// Package upstream provides implementations of the identity-provider
// contract: [Client] speaks HTTP to a remote identity service, and [Local]
// is a self-contained reference implementation (JWT access tokens, Redis-held
// one-time codes) for development and tests.
//
// # Architecture boundaries
//
// Both implementations satisfy authgate.CredentialVerifier and
// authgate.OtpChallenger. Rejections are reported with the authgate sentinel
// errors so the gateway's normalization adapters can classify them; anything
// else is an infrastructure error and classifies as transport.
//
// # What this package must NOT do
//
//   - Touch the session store (sessions belong to the gateway).
//   - Store plaintext one-time codes ([Local] keeps only SHA-256 digests).
//   - Leak remote response bodies into returned errors verbatim.
package upstream
