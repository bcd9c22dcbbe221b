package authgate

import "context"

// UserProfile is the upstream identity record returned alongside an access
// token on successful credential verification.
type UserProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// VerifiedLogin is returned by [CredentialVerifier.VerifyCredentials]. The
// token is a fully authorized bearer credential from the moment of issuance;
// OTP verification gates application navigation, not API authorization.
type VerifiedLogin struct {
	Token string
	User  UserProfile
}

// CredentialVerifier is the upstream identity provider's credential side.
// Implementations must return [ErrInvalidCredentials] (possibly wrapped) for
// rejected email/password pairs and may return any other error for
// infrastructure failures; the Gateway normalizes both.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, email, password string) (VerifiedLogin, error)

	// RetireToken is the best-effort logout notification. Errors are audited
	// and swallowed by the Gateway, never propagated.
	RetireToken(ctx context.Context, token string) error
}

// OtpChallenger is the upstream identity provider's one-time-code side. Both
// operations are keyed by the bearer token from the just-completed login.
// SendCode must be safe to call repeatedly for the same email (resend).
type OtpChallenger interface {
	SendCode(ctx context.Context, token, email string) error
	VerifyCode(ctx context.Context, token, email, code string) error
}

// LoginResult is the caller-visible outcome of a successful [Gateway.Login].
// SessionID names the cookie-bound session the token was persisted under; the
// HTTP layer echoes it back as a Set-Cookie when it was freshly minted.
type LoginResult struct {
	Token     string
	User      UserProfile
	SessionID string
}

// LogoutResult reports the best-effort parts of a logout. The operation
// itself never fails: a false field means the corresponding side effect was
// skipped or rejected upstream while local sign-out still completed.
type LogoutResult struct {
	TokenRetired   bool
	SessionCleared bool
}
