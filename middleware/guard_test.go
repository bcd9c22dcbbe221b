package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authgate "github.com/tripwell/authgate"
	"github.com/tripwell/authgate/middleware"
)

type fixedVerifier struct{}

func (fixedVerifier) VerifyCredentials(ctx context.Context, email, password string) (authgate.VerifiedLogin, error) {
	return authgate.VerifiedLogin{Token: "tok", User: authgate.UserProfile{ID: "u1", Email: email}}, nil
}

func (fixedVerifier) RetireToken(ctx context.Context, token string) error { return nil }

type fixedChallenger struct{}

func (fixedChallenger) SendCode(ctx context.Context, token, email string) error { return nil }

func (fixedChallenger) VerifyCode(ctx context.Context, token, email, code string) error { return nil }

// seededGateway returns a gateway plus three session IDs: anonymous,
// token-only (mid-flow), and 2FA-complete.
func seededGateway(t *testing.T) (gw *authgate.Gateway, anonymous, midFlow, complete string) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	gw, err := authgate.New().
		WithRedis(client).
		WithVerifier(fixedVerifier{}).
		WithChallenger(fixedChallenger{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(gw.Close)

	ctx := context.Background()

	anonymous, err = gw.SetLocale(ctx, "", "en")
	if err != nil {
		t.Fatalf("minting anonymous session failed: %v", err)
	}

	mid, err := gw.Login(ctx, "", "mid@x.com", "pw")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	midFlow = mid.SessionID

	done, err := gw.Login(ctx, "", "done@x.com", "pw")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := gw.VerifyOtp(ctx, done.SessionID, done.Token, "done@x.com", "123456"); err != nil {
		t.Fatalf("VerifyOtp failed: %v", err)
	}
	complete = done.SessionID

	return gw, anonymous, midFlow, complete
}

func get(handler http.Handler, cookieName, sessionID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/app", nil)
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: sessionID})
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func okHandler(t *testing.T, wantSession bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := middleware.SessionFromContext(r.Context()); ok != wantSession {
			t.Errorf("SessionFromContext presence = %v, want %v", ok, wantSession)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireSessionPolicies(t *testing.T) {
	gw, anonymous, midFlow, complete := seededGateway(t)

	tokenGuard := middleware.RequireSession(gw, middleware.PolicyToken)(okHandler(t, true))
	verifiedGuard := middleware.RequireSession(gw, middleware.PolicyOtpVerified)(okHandler(t, true))

	cases := []struct {
		name      string
		handler   http.Handler
		sessionID string
		want      int
	}{
		{"no cookie token policy", tokenGuard, "", http.StatusUnauthorized},
		{"unknown session", tokenGuard, "does-not-exist", http.StatusUnauthorized},
		{"anonymous session", tokenGuard, anonymous, http.StatusUnauthorized},
		{"mid-flow admitted by token policy", tokenGuard, midFlow, http.StatusOK},
		{"complete admitted by token policy", tokenGuard, complete, http.StatusOK},
		{"mid-flow rejected by verified policy", verifiedGuard, midFlow, http.StatusUnauthorized},
		{"complete admitted by verified policy", verifiedGuard, complete, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := get(tc.handler, gw.CookieName(), tc.sessionID)
			if rec.Code != tc.want {
				t.Fatalf("got %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestRequireSessionOrRedirect(t *testing.T) {
	gw, _, midFlow, complete := seededGateway(t)

	guard := middleware.RequireSessionOrRedirect(gw, middleware.PolicyOtpVerified, "/login")(okHandler(t, true))

	rec := get(guard, gw.CookieName(), midFlow)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Fatalf("expected redirect to /login, got %q", loc)
	}

	rec = get(guard, gw.CookieName(), complete)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for 2FA-complete session, got %d", rec.Code)
	}
}

func TestRequireAnonymous(t *testing.T) {
	gw, _, midFlow, complete := seededGateway(t)

	guard := middleware.RequireAnonymous(gw, "/app")(okHandler(t, false))

	// No cookie: the login page renders.
	rec := get(guard, gw.CookieName(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without cookie, got %d", rec.Code)
	}

	// Mid-flow sessions may still see the login page.
	rec = get(guard, gw.CookieName(), midFlow)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 mid-flow, got %d", rec.Code)
	}

	// 2FA-complete visitors are bounced to the app.
	rec = get(guard, gw.CookieName(), complete)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/app" {
		t.Fatalf("expected redirect to /app, got %q", loc)
	}
}
