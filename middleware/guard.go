package middleware

import (
	"context"
	"net/http"

	authgate "github.com/tripwell/authgate"
	"github.com/tripwell/authgate/session"
)

// Policy selects how much of the login flow a guarded route requires.
type Policy uint8

const (
	// PolicyToken admits any session holding an access token, verified or not.
	PolicyToken Policy = iota
	// PolicyOtpVerified admits only sessions that completed the second factor.
	PolicyOtpVerified
)

type sessionContextKey struct{}

// SessionFromContext returns the record a guard injected for the request.
func SessionFromContext(ctx context.Context) (*session.Record, bool) {
	record, ok := ctx.Value(sessionContextKey{}).(*session.Record)
	return record, ok
}

// RequireSession rejects requests without a qualifying session with 401. The
// admitted record is injected into the request context.
func RequireSession(gw *authgate.Gateway, policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			record, ok := lookup(gw, r, policy)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, record)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSessionOrRedirect is [RequireSession] with redirect semantics for
// server-rendered pages: anonymous visitors are sent to loginURL.
func RequireSessionOrRedirect(gw *authgate.Gateway, policy Policy, loginURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			record, ok := lookup(gw, r, policy)
			if !ok {
				http.Redirect(w, r, loginURL, http.StatusSeeOther)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, record)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAnonymous redirects visitors who already hold a 2FA-complete session
// away from login pages to appURL. Sessions mid-flow (token present, OTP not
// yet verified) are treated as anonymous so the user can finish or restart
// the flow.
func RequireAnonymous(gw *authgate.Gateway, appURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := lookup(gw, r, PolicyOtpVerified); ok {
				http.Redirect(w, r, appURL, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func lookup(gw *authgate.Gateway, r *http.Request, policy Policy) (*session.Record, bool) {
	if gw == nil {
		return nil, false
	}

	cookie, err := r.Cookie(gw.CookieName())
	if err != nil || cookie.Value == "" {
		return nil, false
	}

	record, err := gw.Session(r.Context(), cookie.Value)
	if err != nil || !record.Authenticated() {
		return nil, false
	}
	if policy == PolicyOtpVerified && !record.OtpVerified {
		return nil, false
	}
	return record, true
}
