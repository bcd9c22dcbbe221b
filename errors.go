package authgate

import "errors"

var (
	// ErrEmailRequired is returned when a login attempt carries an empty email.
	ErrEmailRequired = errors.New("email required")
	// ErrPasswordRequired is returned when a login attempt carries an empty password.
	ErrPasswordRequired = errors.New("password required")
	// ErrOtpFormat is returned when a submitted code is not exactly six digits.
	ErrOtpFormat = errors.New("otp must be 6 digits")
	// ErrInvalidCredentials is returned when the upstream verifier rejects email/password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrOtpInvalid is returned when the upstream challenger rejects a code.
	ErrOtpInvalid = errors.New("invalid OTP")
	// ErrOtpUnavailable is returned when the upstream challenger cannot send a code.
	ErrOtpUnavailable = errors.New("otp dispatch unavailable")
	// ErrTransport is returned for network or decode failures at the gateway boundary.
	ErrTransport = errors.New("transport failure")
	// ErrTokenRequired is returned when an operation that needs a bearer token
	// runs before login has produced one.
	ErrTokenRequired = errors.New("access token required")
	// ErrNoSession is returned when a request carries no usable session cookie.
	ErrNoSession = errors.New("no session")
	// ErrOperationInFlight is returned when a submission is re-attempted while
	// the same logical operation is still suspended at the network boundary.
	ErrOperationInFlight = errors.New("operation already in flight")
	// ErrGatewayNotReady is returned when a Gateway is used before Build wired
	// its required dependencies.
	ErrGatewayNotReady = errors.New("gateway not ready")
)

// ErrorKind is the closed classification every error crossing the gateway
// boundary is normalized into. The state machine and the HTTP layer branch on
// kinds, never on upstream error shapes.
type ErrorKind uint8

const (
	// KindNone marks the absence of an error.
	KindNone ErrorKind = iota
	// KindValidation marks client-detected input errors that never reach the network.
	KindValidation
	// KindCredential marks upstream rejection of email/password.
	KindCredential
	// KindOtp marks upstream rejection of a code, or a failure to send one.
	KindOtp
	// KindTransport marks network and decode failures.
	KindTransport
	// KindPrecondition marks operations invoked out of allowed state-machine order.
	KindPrecondition
)

// String describes the string operation and its observable behavior.
//
// String may return an error when input validation, dependency calls, or security checks fail.
// String does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindCredential:
		return "credential"
	case KindOtp:
		return "otp"
	case KindTransport:
		return "transport"
	case KindPrecondition:
		return "precondition"
	default:
		return "unknown"
	}
}

// KindOf classifies an error produced by this package into the closed
// taxonomy. Unrecognized errors classify as KindTransport: by the time an
// error reaches a caller it has passed a gateway normalization adapter, so an
// unknown shape can only have come from I/O.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrEmailRequired),
		errors.Is(err, ErrPasswordRequired),
		errors.Is(err, ErrOtpFormat):
		return KindValidation
	case errors.Is(err, ErrInvalidCredentials):
		return KindCredential
	case errors.Is(err, ErrOtpInvalid), errors.Is(err, ErrOtpUnavailable):
		return KindOtp
	case errors.Is(err, ErrTokenRequired),
		errors.Is(err, ErrNoSession),
		errors.Is(err, ErrOperationInFlight),
		errors.Is(err, ErrGatewayNotReady):
		return KindPrecondition
	default:
		return KindTransport
	}
}

// Message renders the single normalized human-readable string attached to a
// phase for display. Credential, OTP, and transport failures collapse onto
// fixed phrasings so no upstream detail leaks into the UI.
func Message(err error) string {
	switch KindOf(err) {
	case KindNone:
		return ""
	case KindValidation, KindPrecondition:
		return err.Error()
	case KindCredential:
		return "invalid email or password"
	case KindOtp:
		if errors.Is(err, ErrOtpUnavailable) {
			return "could not send a code, try again"
		}
		return "invalid OTP"
	default:
		return "something went wrong, try again"
	}
}
