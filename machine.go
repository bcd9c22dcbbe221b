package authgate

import (
	"context"
	"sync"
)

// Backend is the request/response boundary the Machine drives. *Gateway
// satisfies it in-process; tests substitute recording stubs.
type Backend interface {
	Login(ctx context.Context, sessionID, email, password string) (*LoginResult, error)
	RequestOtp(ctx context.Context, token, email string) error
	VerifyOtp(ctx context.Context, sessionID, token, email, code string) error
	Logout(ctx context.Context, sessionID, token string) *LogoutResult
}

var _ Backend = (*Gateway)(nil)

// Machine is the client-resident authentication state machine for one browser
// tab. It owns a [State] snapshot, applies pure reducer transitions, and
// performs backend calls between them. All methods are safe for concurrent
// use; duplicate in-flight submissions of the same logical operation are
// rejected locally and resend requests are coalesced to at most one dispatch.
type Machine struct {
	mu        sync.Mutex
	state     State
	backend   Backend
	sessionID string

	// otpInFlight gates OTP dispatch: the automatic send after login and a
	// manual resend must coalesce to one upstream call per pending request.
	otpInFlight bool
}

// NewMachine describes the newmachine operation and its observable behavior.
//
// NewMachine may return an error when input validation, dependency calls, or security checks fail.
// NewMachine does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMachine(backend Backend, sessionID string) *Machine {
	return &Machine{
		backend:   backend,
		sessionID: sessionID,
		state:     State{Phase: PhaseAnonymous},
	}
}

// State returns a snapshot safe to read concurrently with transitions.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.state
	if m.state.Pending != nil {
		pending := *m.state.Pending
		out.Pending = &pending
	}
	return out
}

// SessionID returns the cookie-bound session this tab is associated with.
// Login can replace it when the server mints a fresh session.
func (m *Machine) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

func (m *Machine) apply(ev machineEvent) {
	m.state = reduce(m.state, ev)
}

// SubmitCredentials is the named compound transition: credential exchange
// followed by the automatic OTP dispatch. The dispatch is a dependent call
// sequenced strictly after the token is available, and it runs through the
// same coalescing gate as a manual resend. Validation failures attach locally
// and never contact the backend; a failed login lands back in Anonymous with
// the normalized error attached.
func (m *Machine) SubmitCredentials(ctx context.Context, email, password string) error {
	if validationErr := validateCredentials(email, password); validationErr != nil {
		m.mu.Lock()
		m.apply(evErrorAttached{err: validationErr})
		m.mu.Unlock()
		return validationErr
	}

	m.mu.Lock()
	if m.state.Phase == PhaseCredentialsSubmitting {
		m.mu.Unlock()
		return ErrOperationInFlight
	}
	if m.state.Phase != PhaseAnonymous {
		m.mu.Unlock()
		return ErrOperationInFlight
	}
	m.apply(evCredentialsSubmitted{email: email})
	sessionID := m.sessionID
	m.mu.Unlock()

	result, err := m.backend.Login(ctx, sessionID, email, password)

	m.mu.Lock()
	if err != nil {
		m.apply(evLoginFailed{err: err})
		m.mu.Unlock()
		return err
	}
	m.sessionID = result.SessionID
	m.apply(evLoginSucceeded{token: result.Token, user: result.User})
	m.mu.Unlock()

	// Dependent call: the token exists before the dispatch starts. A send
	// failure attaches to OtpPending without regressing the phase; the user
	// can retry from the resend affordance.
	_ = m.RequestOtp(ctx)
	return nil
}

// RequestOtp dispatches (or re-dispatches) the one-time code for the pending
// request. Concurrent invocations coalesce: while one dispatch is suspended
// at the network boundary, further calls return immediately without a second
// upstream call. The flag resets on completion, success or failure, so a
// resend is always possible afterwards.
func (m *Machine) RequestOtp(ctx context.Context) error {
	m.mu.Lock()
	if m.state.Pending == nil || m.state.Token == "" {
		m.mu.Unlock()
		return ErrTokenRequired
	}
	if m.otpInFlight {
		m.mu.Unlock()
		return nil
	}
	m.otpInFlight = true
	token := m.state.Token
	email := m.state.Pending.Email
	m.mu.Unlock()

	err := m.backend.RequestOtp(ctx, token, email)

	m.mu.Lock()
	m.otpInFlight = false
	if err != nil {
		m.apply(evOtpDispatchFailed{err: err})
		m.mu.Unlock()
		return err
	}
	m.apply(evOtpDispatched{})
	m.mu.Unlock()
	return nil
}

// SubmitOtp verifies the submitted code. Codes that are not exactly six
// digits are rejected locally with no network call; success transitions to
// Authenticated after the backend has re-asserted the token into the session
// store, so both stores agree before the UI is told.
func (m *Machine) SubmitOtp(ctx context.Context, code string) error {
	m.mu.Lock()
	if m.state.Phase == PhaseOtpSubmitting {
		m.mu.Unlock()
		return ErrOperationInFlight
	}
	if m.state.Phase != PhaseOtpPending {
		m.mu.Unlock()
		return ErrOperationInFlight
	}
	if !otpPattern.MatchString(code) {
		m.apply(evErrorAttached{err: ErrOtpFormat})
		m.mu.Unlock()
		return ErrOtpFormat
	}
	if m.state.Token == "" {
		m.apply(evErrorAttached{err: ErrTokenRequired})
		m.mu.Unlock()
		return ErrTokenRequired
	}

	m.apply(evOtpSubmitted{})
	sessionID := m.sessionID
	token := m.state.Token
	email := m.state.Pending.Email
	m.mu.Unlock()

	err := m.backend.VerifyOtp(ctx, sessionID, token, email, code)

	m.mu.Lock()
	if err != nil {
		m.apply(evOtpRejected{err: err})
		m.mu.Unlock()
		return err
	}
	m.apply(evOtpAccepted{})
	m.mu.Unlock()
	return nil
}

// BackToLogin abandons the OTP step and discards the pending request. An
// already-dispatched code is not recalled; only the client's waiting state is
// abandoned.
func (m *Machine) BackToLogin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apply(evBackToLogin{})
}

// Logout clears the client-held token, then informs the backend on a
// best-effort basis. The local transition happens first and unconditionally:
// a failed upstream call never blocks sign-out, and no error reaches the
// caller.
func (m *Machine) Logout(ctx context.Context) {
	m.mu.Lock()
	sessionID := m.sessionID
	token := m.state.Token
	m.apply(evLoggedOut{})
	m.mu.Unlock()

	if m.backend != nil {
		_ = m.backend.Logout(ctx, sessionID, token)
	}
}

// ClearError drops the attached error without changing phase. The UI calls it
// whenever the user edits an input after a failure so stale messages are not
// shown against new input.
func (m *Machine) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apply(evErrorCleared{})
}

func validateCredentials(email, password string) error {
	if email == "" {
		return ErrEmailRequired
	}
	if password == "" {
		return ErrPasswordRequired
	}
	return nil
}
