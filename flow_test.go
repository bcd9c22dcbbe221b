package authgate_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authgate "github.com/tripwell/authgate"
	"github.com/tripwell/authgate/middleware"
	"github.com/tripwell/authgate/upstream"
)

// codeCapture collects the plaintext codes the local provider would have
// delivered out of band.
type codeCapture struct {
	mu    sync.Mutex
	codes []string
}

func (c *codeCapture) deliver(email, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes = append(c.codes, code)
}

func (c *codeCapture) last(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.codes) == 0 {
		t.Fatal("no code was delivered")
	}
	return c.codes[len(c.codes)-1]
}

func (c *codeCapture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.codes)
}

func newFlow(t *testing.T) (*authgate.Gateway, *authgate.Machine, *codeCapture) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := upstream.DefaultLocalConfig()
	cfg.SigningKey = []byte("flow-test-signing-key")
	provider, err := upstream.NewLocal(cfg, client)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	provider.Seed(upstream.LocalUser{
		Profile:  authgate.UserProfile{ID: "u1", Email: "alice@example.com", Name: "Alice"},
		Password: "correct-horse",
	})

	capture := &codeCapture{}
	provider.Deliver = capture.deliver

	gw, err := authgate.New().
		WithRedis(client).
		WithVerifier(provider).
		WithChallenger(provider).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(gw.Close)

	return gw, authgate.NewMachine(gw, ""), capture
}

func TestFullLoginFlow(t *testing.T) {
	gw, m, capture := newFlow(t)
	ctx := context.Background()

	if err := m.SubmitCredentials(ctx, "alice@example.com", "correct-horse"); err != nil {
		t.Fatalf("SubmitCredentials failed: %v", err)
	}

	state := m.State()
	if state.Phase != authgate.PhaseOtpPending {
		t.Fatalf("expected otp_pending, got %v", state.Phase)
	}
	if state.IsAuthenticated() {
		t.Fatal("expected not authenticated before OTP")
	}
	if capture.count() != 1 {
		t.Fatalf("expected exactly one code delivered, got %d", capture.count())
	}

	// The token is persisted but the session is not yet 2FA-complete.
	record, err := gw.Session(ctx, m.SessionID())
	if err != nil {
		t.Fatalf("Session lookup failed: %v", err)
	}
	if record.AuthToken != state.Token {
		t.Fatal("session token diverged from client token after login")
	}
	if record.OtpVerified {
		t.Fatal("session must not be 2FA-complete before verification")
	}

	// A wrong code is rejected without consuming the challenge.
	wrong := "000000"
	if wrong == capture.last(t) {
		wrong = "000001"
	}
	if err := m.SubmitOtp(ctx, wrong); !errors.Is(err, authgate.ErrOtpInvalid) {
		t.Fatalf("expected ErrOtpInvalid, got %v", err)
	}
	if m.State().Phase != authgate.PhaseOtpPending {
		t.Fatalf("expected otp_pending after rejection, got %v", m.State().Phase)
	}

	// The delivered code completes the flow and both stores agree.
	if err := m.SubmitOtp(ctx, capture.last(t)); err != nil {
		t.Fatalf("SubmitOtp failed: %v", err)
	}
	if !m.State().IsAuthenticated() {
		t.Fatal("expected authenticated after correct code")
	}
	record, err = gw.Session(ctx, m.SessionID())
	if err != nil {
		t.Fatalf("Session lookup failed: %v", err)
	}
	if !record.OtpVerified || record.AuthToken != m.State().Token {
		t.Fatalf("expected 2FA-complete session with matching token, got %+v", record)
	}

	// A code is single-use.
	if err := gw.VerifyOtp(ctx, m.SessionID(), record.AuthToken, "alice@example.com", capture.last(t)); !errors.Is(err, authgate.ErrOtpInvalid) {
		t.Fatalf("expected replayed code rejected, got %v", err)
	}
}

func TestFullLogoutRetiresTokenAndGuards(t *testing.T) {
	gw, m, capture := newFlow(t)
	ctx := context.Background()

	if err := m.SubmitCredentials(ctx, "alice@example.com", "correct-horse"); err != nil {
		t.Fatalf("SubmitCredentials failed: %v", err)
	}
	if err := m.SubmitOtp(ctx, capture.last(t)); err != nil {
		t.Fatalf("SubmitOtp failed: %v", err)
	}
	sessionID := m.SessionID()
	token := m.State().Token

	guard := middleware.RequireSession(gw, middleware.PolicyOtpVerified)
	protected := guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/app", nil)
	req.AddCookie(&http.Cookie{Name: gw.CookieName(), Value: sessionID})
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected the guard to admit a 2FA-complete session, got %d", rec.Code)
	}

	m.Logout(ctx)
	if m.State().Phase != authgate.PhaseAnonymous {
		t.Fatalf("expected anonymous after logout, got %v", m.State().Phase)
	}

	// The session record is anonymous again and the guard now rejects it.
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}

	// The retired token can no longer drive the OTP side.
	err := gw.RequestOtp(ctx, token, "alice@example.com")
	if !errors.Is(err, authgate.ErrTokenRequired) {
		t.Fatalf("expected retired token rejected, got %v", err)
	}
}

func TestResendDeliversFreshCode(t *testing.T) {
	_, m, capture := newFlow(t)
	ctx := context.Background()

	if err := m.SubmitCredentials(ctx, "alice@example.com", "correct-horse"); err != nil {
		t.Fatalf("SubmitCredentials failed: %v", err)
	}
	first := capture.last(t)

	if err := m.RequestOtp(ctx); err != nil {
		t.Fatalf("resend failed: %v", err)
	}
	if capture.count() != 2 {
		t.Fatalf("expected two deliveries, got %d", capture.count())
	}

	// The earlier code is superseded; only the latest verifies.
	if first != capture.last(t) {
		if err := m.SubmitOtp(ctx, first); !errors.Is(err, authgate.ErrOtpInvalid) {
			t.Fatalf("expected superseded code rejected, got %v", err)
		}
	}
	if err := m.SubmitOtp(ctx, capture.last(t)); err != nil {
		t.Fatalf("latest code should verify: %v", err)
	}
	if !m.State().IsAuthenticated() {
		t.Fatal("expected authenticated after latest code")
	}
}
