package authgate

// Phase is the current discrete state of the login flow as seen by the UI.
type Phase uint8

const (
	// PhaseAnonymous is an exported constant or variable used by the authentication gateway.
	PhaseAnonymous Phase = iota
	// PhaseCredentialsSubmitting is an exported constant or variable used by the authentication gateway.
	PhaseCredentialsSubmitting
	// PhaseOtpPending is an exported constant or variable used by the authentication gateway.
	PhaseOtpPending
	// PhaseOtpSubmitting is an exported constant or variable used by the authentication gateway.
	PhaseOtpSubmitting
	// PhaseAuthenticated is an exported constant or variable used by the authentication gateway.
	PhaseAuthenticated
)

// String describes the string operation and its observable behavior.
//
// String may return an error when input validation, dependency calls, or security checks fail.
// String does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p Phase) String() string {
	switch p {
	case PhaseAnonymous:
		return "anonymous"
	case PhaseCredentialsSubmitting:
		return "credentials_submitting"
	case PhaseOtpPending:
		return "otp_pending"
	case PhaseOtpSubmitting:
		return "otp_submitting"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// PendingAuthRequest is the transient record of an in-progress login→OTP
// sequence. It exists only in the client-side state; it is created when
// credentials are accepted and destroyed on success or on returning to login.
type PendingAuthRequest struct {
	Email        string
	OtpRequested bool
	OtpVerified  bool
}

// State is the immutable snapshot the UI renders from. Transitions are
// computed by the pure reducer; all I/O lives in [Machine].
type State struct {
	Phase   Phase
	Token   string
	User    UserProfile
	Pending *PendingAuthRequest

	// OtpSent reveals the resend affordance. It survives verification
	// failures so the user is never stuck unable to request a new code.
	OtpSent bool

	// Err is the error attached to the current phase, already normalized.
	// It never forces a regression past Anonymous or OtpPending.
	Err error
}

// IsAuthenticated reports whether the flow has fully completed. It is the
// in-tab navigation predicate; server-rendered guards consult the session
// store instead.
func (s State) IsAuthenticated() bool {
	return s.Phase == PhaseAuthenticated && s.Token != ""
}

// IsLoading reports whether a credential submission is suspended at the
// network boundary.
func (s State) IsLoading() bool {
	return s.Phase == PhaseCredentialsSubmitting
}

// IsVerifying reports whether an OTP submission is suspended at the network
// boundary.
func (s State) IsVerifying() bool {
	return s.Phase == PhaseOtpSubmitting
}

// ErrorMessage renders the normalized message for the attached error, or ""
// when no error is attached.
func (s State) ErrorMessage() string {
	return Message(s.Err)
}

// ErrorKind classifies the attached error.
func (s State) ErrorKind() ErrorKind {
	return KindOf(s.Err)
}

/*
====================================
EVENTS
====================================

One event per observable outcome. The reducer is total: events that are not
legal in the current phase leave the state unchanged, so a late network
result arriving after a manual transition cannot resurrect a discarded flow.
*/

type machineEvent interface {
	machineEvent()
}

type evCredentialsSubmitted struct{ email string }
type evLoginSucceeded struct {
	token string
	user  UserProfile
}
type evLoginFailed struct{ err error }
type evOtpDispatched struct{}
type evOtpDispatchFailed struct{ err error }
type evOtpSubmitted struct{}
type evOtpAccepted struct{}
type evOtpRejected struct{ err error }
type evBackToLogin struct{}
type evLoggedOut struct{}
type evErrorCleared struct{}
type evErrorAttached struct{ err error }

func (evCredentialsSubmitted) machineEvent() {}
func (evLoginSucceeded) machineEvent()       {}
func (evLoginFailed) machineEvent()          {}
func (evOtpDispatched) machineEvent()        {}
func (evOtpDispatchFailed) machineEvent()    {}
func (evOtpSubmitted) machineEvent()         {}
func (evOtpAccepted) machineEvent()          {}
func (evOtpRejected) machineEvent()          {}
func (evBackToLogin) machineEvent()          {}
func (evLoggedOut) machineEvent()            {}
func (evErrorCleared) machineEvent()         {}
func (evErrorAttached) machineEvent()        {}

// reduce computes the next state for an event. Pure: no I/O, no clock, no
// mutation of the input (Pending is copied before modification).
func reduce(s State, ev machineEvent) State {
	switch ev := ev.(type) {
	case evCredentialsSubmitted:
		if s.Phase != PhaseAnonymous {
			return s
		}
		s.Phase = PhaseCredentialsSubmitting
		s.Pending = &PendingAuthRequest{Email: ev.email}
		s.OtpSent = false
		s.Err = nil
		return s

	case evLoginSucceeded:
		if s.Phase != PhaseCredentialsSubmitting {
			return s
		}
		s.Phase = PhaseOtpPending
		s.Token = ev.token
		s.User = ev.user
		s.Err = nil
		return s

	case evLoginFailed:
		if s.Phase != PhaseCredentialsSubmitting {
			return s
		}
		return State{Phase: PhaseAnonymous, Err: ev.err}

	case evOtpDispatched:
		if s.Pending == nil {
			return s
		}
		s.Pending = &PendingAuthRequest{Email: s.Pending.Email, OtpRequested: true}
		s.OtpSent = true
		return s

	case evOtpDispatchFailed:
		// Error attaches to the current phase; no phase regression.
		if s.Pending == nil {
			return s
		}
		s.Err = ev.err
		return s

	case evOtpSubmitted:
		if s.Phase != PhaseOtpPending {
			return s
		}
		s.Phase = PhaseOtpSubmitting
		s.Err = nil
		return s

	case evOtpAccepted:
		if s.Phase != PhaseOtpSubmitting {
			return s
		}
		s.Phase = PhaseAuthenticated
		s.Pending = nil
		s.OtpSent = false
		s.Err = nil
		return s

	case evOtpRejected:
		if s.Phase != PhaseOtpSubmitting {
			return s
		}
		s.Phase = PhaseOtpPending
		s.Err = ev.err
		return s

	case evBackToLogin:
		if s.Phase != PhaseOtpPending {
			return s
		}
		return State{Phase: PhaseAnonymous}

	case evLoggedOut:
		return State{Phase: PhaseAnonymous}

	case evErrorCleared:
		s.Err = nil
		return s

	case evErrorAttached:
		s.Err = ev.err
		return s

	default:
		return s
	}
}
