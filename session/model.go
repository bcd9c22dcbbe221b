package session

// Record defines a public type used by authgate APIs.
//
// Record instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Record struct {
	SessionID string

	// AuthToken is the bearer token last accepted upstream, or empty for an
	// anonymous session.
	AuthToken string

	// OtpVerified reports whether the session completed the second factor.
	// It is cleared whenever AuthToken changes or is removed.
	OtpVerified bool

	Locale string

	CreatedAt int64
	ExpiresAt int64
}

// Authenticated reports whether the record holds a token. This is the sole
// predicate server-rendered route guards consult.
func (r *Record) Authenticated() bool {
	return r != nil && r.AuthToken != ""
}
