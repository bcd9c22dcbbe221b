package authgate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tripwell/authgate/session"
)

var otpPattern = regexp.MustCompile(`^[0-9]{6}$`)

// Gateway defines a public type used by authgate APIs.
//
// Gateway instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Gateway struct {
	config     Config
	sessions   *session.Store
	verifier   CredentialVerifier
	challenger OtpChallenger
	audit      *auditDispatcher
	metrics    *Metrics
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gateway) Close() {
	if g == nil {
		return
	}
	if g.audit != nil {
		g.audit.Close()
	}
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gateway) MetricsSnapshot() MetricsSnapshot {
	if g == nil || g.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return g.metrics.Snapshot()
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gateway) AuditDropped() uint64 {
	if g == nil || g.audit == nil {
		return 0
	}
	return g.audit.Dropped()
}

// Session exposes the server-side record for a session ID. Route guards use
// it as the sole source of truth for server-rendered navigation decisions.
func (g *Gateway) Session(ctx context.Context, sessionID string) (*session.Record, error) {
	if g == nil || g.sessions == nil {
		return nil, ErrGatewayNotReady
	}
	record, err := g.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, mapSessionError(err)
	}
	return record, nil
}

// CookieName describes the cookiename operation and its observable behavior.
//
// CookieName may return an error when input validation, dependency calls, or security checks fail.
// CookieName does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gateway) CookieName() string {
	return g.config.Cookie.Name
}

// Login exchanges credentials for an access token. The token is written into
// the session store strictly after the upstream call succeeds and strictly
// before this method returns, so a caller-visible success always has a
// matching server-side session. An empty sessionID (or a dead one) mints a
// fresh session; the returned SessionID names the record that was written.
func (g *Gateway) Login(ctx context.Context, sessionID, email, password string) (*LoginResult, error) {
	if g == nil || g.verifier == nil || g.sessions == nil {
		return nil, ErrGatewayNotReady
	}
	if email = strings.TrimSpace(email); email == "" {
		return nil, ErrEmailRequired
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}

	callCtx, cancel := context.WithTimeout(ctx, g.config.Upstream.LoginTimeout)
	defer cancel()

	verified, err := g.verifier.VerifyCredentials(callCtx, email, password)
	if err != nil {
		mapped := normalizeVerifierError(err)
		g.metricInc(MetricLoginFailure)
		if KindOf(mapped) == KindTransport {
			g.metricInc(MetricTransportFailure)
		}
		g.emitAudit(ctx, AuditEvent{
			EventType: auditEventLoginFailure,
			Email:     email,
			SessionID: sessionID,
			Error:     mapped.Error(),
		})
		return nil, mapped
	}

	record, minted, err := g.sessions.Ensure(ctx, sessionID)
	if err != nil {
		// Upstream accepted the credentials but the session write failed.
		// Report transport so the caller retries; nothing was persisted.
		g.metricInc(MetricLoginFailure)
		g.emitAudit(ctx, AuditEvent{
			EventType: auditEventLoginFailure,
			Email:     email,
			Error:     "session write failed",
		})
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if minted {
		g.metricInc(MetricSessionCreated)
	}

	if err := g.sessions.SetToken(ctx, record.SessionID, verified.Token, false); err != nil {
		g.metricInc(MetricLoginFailure)
		g.emitAudit(ctx, AuditEvent{
			EventType: auditEventLoginFailure,
			Email:     email,
			SessionID: record.SessionID,
			Error:     "session write failed",
		})
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	g.metricInc(MetricLoginSuccess)
	g.emitAudit(ctx, AuditEvent{
		EventType: auditEventLoginSuccess,
		Email:     email,
		SessionID: record.SessionID,
		Success:   true,
	})

	return &LoginResult{
		Token:     verified.Token,
		User:      verified.User,
		SessionID: record.SessionID,
	}, nil
}

// RequestOtp asks the upstream challenger to send a code for email, keyed by
// the bearer token from the just-completed login. It is side-effect-free with
// respect to the session store and safe to call repeatedly (resend).
func (g *Gateway) RequestOtp(ctx context.Context, token, email string) error {
	if g == nil || g.challenger == nil {
		return ErrGatewayNotReady
	}
	if token == "" {
		return ErrTokenRequired
	}
	if email = strings.TrimSpace(email); email == "" {
		return ErrEmailRequired
	}

	callCtx, cancel := context.WithTimeout(ctx, g.config.Upstream.OtpTimeout)
	defer cancel()

	if err := g.challenger.SendCode(callCtx, token, email); err != nil {
		mapped := normalizeChallengerSendError(err)
		g.metricInc(MetricOtpSendFailure)
		if KindOf(mapped) == KindTransport {
			g.metricInc(MetricTransportFailure)
		}
		g.emitAudit(ctx, AuditEvent{
			EventType: auditEventOtpSendFailure,
			Email:     email,
			Error:     mapped.Error(),
		})
		return mapped
	}

	g.metricInc(MetricOtpSent)
	g.emitAudit(ctx, AuditEvent{
		EventType: auditEventOtpSent,
		Email:     email,
		Success:   true,
	})
	return nil
}

// VerifyOtp checks the submitted code upstream and, on success, re-asserts
// the token into the session store with the OTP-verified flag set. The store
// is untouched on failure. Codes that are not exactly six digits are rejected
// locally; a missing token is a precondition failure, not a network call.
func (g *Gateway) VerifyOtp(ctx context.Context, sessionID, token, email, code string) error {
	if g == nil || g.challenger == nil || g.sessions == nil {
		return ErrGatewayNotReady
	}
	if token == "" {
		return ErrTokenRequired
	}
	if !otpPattern.MatchString(code) {
		return ErrOtpFormat
	}
	if email = strings.TrimSpace(email); email == "" {
		return ErrEmailRequired
	}

	callCtx, cancel := context.WithTimeout(ctx, g.config.Upstream.OtpTimeout)
	defer cancel()

	if err := g.challenger.VerifyCode(callCtx, token, email, code); err != nil {
		mapped := normalizeChallengerVerifyError(err)
		g.metricInc(MetricOtpVerifyFailure)
		if KindOf(mapped) == KindTransport {
			g.metricInc(MetricTransportFailure)
		}
		g.emitAudit(ctx, AuditEvent{
			EventType: auditEventOtpVerifyFailure,
			Email:     email,
			SessionID: sessionID,
			Error:     mapped.Error(),
		})
		return mapped
	}

	if err := g.sessions.SetToken(ctx, sessionID, token, true); err != nil {
		mapped := mapSessionError(err)
		g.metricInc(MetricOtpVerifyFailure)
		g.emitAudit(ctx, AuditEvent{
			EventType: auditEventOtpVerifyFailure,
			Email:     email,
			SessionID: sessionID,
			Error:     "session write failed",
		})
		return mapped
	}

	g.metricInc(MetricOtpVerifySuccess)
	g.emitAudit(ctx, AuditEvent{
		EventType: auditEventOtpVerifySuccess,
		Email:     email,
		SessionID: sessionID,
		Success:   true,
	})
	return nil
}

// Logout retires the token upstream on a best-effort basis and unsets the
// session store's token. The caller-visible contract never fails: upstream
// and store errors are audited and swallowed so "I am now signed out" holds
// unconditionally.
func (g *Gateway) Logout(ctx context.Context, sessionID, token string) *LogoutResult {
	result := &LogoutResult{}
	if g == nil {
		return result
	}

	if token != "" && g.verifier != nil {
		callCtx, cancel := context.WithTimeout(ctx, g.config.Upstream.LogoutBudget)
		err := g.verifier.RetireToken(callCtx, token)
		cancel()
		if err != nil {
			g.metricInc(MetricLogoutUpstreamFailure)
			g.emitAudit(ctx, AuditEvent{
				EventType: auditEventLogoutUpstreamFailed,
				SessionID: sessionID,
				Error:     err.Error(),
			})
		} else {
			result.TokenRetired = true
		}
	}

	if g.sessions != nil && sessionID != "" {
		if err := g.sessions.ClearToken(ctx, sessionID); err != nil {
			g.emitAudit(ctx, AuditEvent{
				EventType: auditEventLogoutUpstreamFailed,
				SessionID: sessionID,
				Error:     "session clear failed: " + err.Error(),
			})
		} else {
			result.SessionCleared = true
			g.metricInc(MetricSessionCleared)
		}
	}

	g.metricInc(MetricLogout)
	g.emitAudit(ctx, AuditEvent{
		EventType: auditEventLogout,
		SessionID: sessionID,
		Success:   true,
	})
	return result
}

// SetLocale stores a language preference in the session record. Unrelated to
// authentication state; it shares the store only because the preference must
// survive page loads the same way the session does.
func (g *Gateway) SetLocale(ctx context.Context, sessionID, locale string) (string, error) {
	if g == nil || g.sessions == nil {
		return "", ErrGatewayNotReady
	}
	if !localeAllowed(g.config.Locale, locale) {
		locale = g.config.Locale.Default
	}

	record, _, err := g.sessions.Ensure(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if err := g.sessions.SetLocale(ctx, record.SessionID, locale); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}

	g.emitAudit(ctx, AuditEvent{
		EventType: auditEventLocaleChanged,
		SessionID: record.SessionID,
		Success:   true,
		Metadata:  map[string]string{"locale": locale},
	})
	return record.SessionID, nil
}

func (g *Gateway) metricInc(id MetricID) {
	if g == nil {
		return
	}
	g.metrics.Inc(id)
}

func (g *Gateway) emitAudit(ctx context.Context, event AuditEvent) {
	if g == nil || g.audit == nil {
		return
	}
	g.audit.emit(ctx, event)
}

/*
====================================
ERROR NORMALIZATION ADAPTERS
====================================

One adapter per external error source. Everything that is not a recognized
rejection becomes a transport failure; raw upstream errors never cross the
gateway boundary.
*/

func normalizeVerifierError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return ErrInvalidCredentials
	default:
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
}

func normalizeChallengerSendError(err error) error {
	switch {
	case errors.Is(err, ErrOtpUnavailable):
		return ErrOtpUnavailable
	case errors.Is(err, ErrTokenRequired):
		return ErrTokenRequired
	default:
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
}

func normalizeChallengerVerifyError(err error) error {
	switch {
	case errors.Is(err, ErrOtpInvalid):
		return ErrOtpInvalid
	case errors.Is(err, ErrTokenRequired):
		return ErrTokenRequired
	default:
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
}

func mapSessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, session.ErrCorrupt):
		return ErrNoSession
	default:
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
}
