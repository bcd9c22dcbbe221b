package authgate

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"
)

// Handler returns the HTTP surface of the gateway:
//
//	POST /auth/login       — form-encoded email/password, mints the session cookie
//	POST /auth/request-otp — bearer token, JSON {"email"}
//	POST /auth/verify-otp  — bearer token, JSON {"otp","email"}, re-asserts the cookie
//	POST /auth/logout      — cookie-driven, always clears the cookie
//	POST /locale           — form-encoded locale, stored in the same session record
//
// Every response is the tagged envelope {"success":true,"data":...} or
// {"success":false,"error":...,"kind":...}; transport-level failures inside
// handlers are converted, never leaked as panics or raw messages.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", g.handleLogin)
	mux.HandleFunc("POST /auth/request-otp", g.handleRequestOtp)
	mux.HandleFunc("POST /auth/verify-otp", g.handleVerifyOtp)
	mux.HandleFunc("POST /auth/logout", g.handleLogout)
	mux.HandleFunc("POST /locale", g.handleLocale)
	return mux
}

func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, ErrEmailRequired)
		return
	}

	ctx := requestContext(r)
	result, err := g.Login(ctx, g.cookieSessionID(r), r.PostFormValue("email"), r.PostFormValue("password"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	g.setSessionCookie(w, r, result.SessionID)
	writeData(w, http.StatusOK, map[string]any{
		"user":  result.User,
		"token": result.Token,
	})
}

func (g *Gateway) handleRequestOtp(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrTokenRequired)
		return
	}

	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ErrEmailRequired)
		return
	}

	if err := g.RequestOtp(requestContext(r), token, body.Email); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (g *Gateway) handleVerifyOtp(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrTokenRequired)
		return
	}

	var body struct {
		Otp   string `json:"otp"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ErrOtpFormat)
		return
	}

	sessionID := g.cookieSessionID(r)
	if sessionID == "" {
		writeError(w, http.StatusUnauthorized, ErrNoSession)
		return
	}

	if err := g.VerifyOtp(requestContext(r), sessionID, token, body.Email, body.Otp); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	// The cookie now certifies a 2FA-complete session.
	g.setSessionCookie(w, r, sessionID)
	writeData(w, http.StatusOK, nil)
}

func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	sessionID := g.cookieSessionID(r)

	var token string
	if sessionID != "" {
		if record, err := g.Session(ctx, sessionID); err == nil {
			token = record.AuthToken
		}
	}

	result := g.Logout(ctx, sessionID, token)

	// Local sign-out must hold unconditionally: the cookie is cleared and the
	// response is a success no matter what the upstream said.
	g.clearSessionCookie(w, r)
	writeData(w, http.StatusOK, map[string]any{
		"upstream": result.TokenRetired,
	})
}

func (g *Gateway) handleLocale(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("locale required"))
		return
	}

	sessionID, err := g.SetLocale(requestContext(r), g.cookieSessionID(r), r.PostFormValue("locale"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	g.setSessionCookie(w, r, sessionID)
	writeData(w, http.StatusOK, nil)
}

/*
====================================
ENVELOPE + STATUS MAPPING
====================================
*/

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{"success": true}
	if data != nil {
		body["data"] = data
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   Message(err),
		"kind":    KindOf(err).String(),
	})
}

func statusFor(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindCredential, KindOtp:
		return http.StatusUnauthorized
	case KindPrecondition:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

/*
====================================
COOKIE + REQUEST HELPERS
====================================
*/

func (g *Gateway) cookieSessionID(r *http.Request) string {
	cookie, err := r.Cookie(g.config.Cookie.Name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (g *Gateway) setSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.config.Cookie.Name,
		Value:    sessionID,
		Path:     g.config.Cookie.Path,
		Domain:   g.config.Cookie.Domain,
		MaxAge:   int(g.config.Session.TTL / time.Second),
		HttpOnly: true,
		Secure:   g.config.Cookie.Secure || r.TLS != nil,
		SameSite: g.config.Cookie.SameSite,
	})
}

func (g *Gateway) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.config.Cookie.Name,
		Value:    "",
		Path:     g.config.Cookie.Path,
		Domain:   g.config.Cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.config.Cookie.Secure || r.TLS != nil,
		SameSite: g.config.Cookie.SameSite,
	})
}

func requestContext(r *http.Request) context.Context {
	ctx := r.Context()

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ctx = WithClientIP(ctx, host)
	ctx = WithUserAgent(ctx, r.UserAgent())

	return ctx
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
