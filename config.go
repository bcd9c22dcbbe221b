package authgate

import (
	"errors"
	"net/http"
	"time"
)

// OtpLength is the required length of a submitted one-time code. Codes of any
// other length are rejected locally and never reach the network.
const OtpLength = 6

// Config defines a public type used by authgate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Session  SessionConfig
	Cookie   CookieConfig
	Upstream UpstreamConfig
	Locale   LocaleConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by authgate APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	RedisPrefix string
	TTL         time.Duration
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig defines a public type used by authgate APIs.
//
// CookieConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	SameSite http.SameSite

	// Secure forces the Secure attribute. When false the HTTP layer still
	// sets Secure on TLS requests.
	Secure bool
}

/*
====================================
UPSTREAM CONFIG
====================================
*/

// UpstreamConfig defines a public type used by authgate APIs.
//
// UpstreamConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type UpstreamConfig struct {
	LoginTimeout time.Duration
	OtpTimeout   time.Duration

	// LogoutBudget caps the best-effort token retirement call. Logout never
	// waits longer than this before completing locally.
	LogoutBudget time.Duration
}

/*
====================================
LOCALE CONFIG
====================================
*/

// LocaleConfig defines a public type used by authgate APIs.
//
// LocaleConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LocaleConfig struct {
	Default string
	Allowed []string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig defines a public type used by authgate APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by authgate APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig may return an error when input validation, dependency calls, or security checks fail.
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix: "ag",
			TTL:         24 * time.Hour,
		},
		Cookie: CookieConfig{
			Name:     "tw_session",
			Path:     "/",
			SameSite: http.SameSiteLaxMode,
		},
		Upstream: UpstreamConfig{
			LoginTimeout: 10 * time.Second,
			OtpTimeout:   10 * time.Second,
			LogoutBudget: 2 * time.Second,
		},
		Locale: LocaleConfig{
			Default: "en",
			Allowed: []string{"en", "es", "fr"},
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Locale.Allowed != nil {
		out.Locale.Allowed = make([]string, len(cfg.Locale.Allowed))
		copy(out.Locale.Allowed, cfg.Locale.Allowed)
	}
	return out
}

func validateConfig(cfg Config) error {
	if cfg.Session.RedisPrefix == "" {
		return errors.New("session redis prefix must not be empty")
	}
	if cfg.Session.TTL < time.Minute {
		return errors.New("session TTL must be at least one minute")
	}
	if cfg.Cookie.Name == "" {
		return errors.New("cookie name must not be empty")
	}
	if cfg.Upstream.LoginTimeout <= 0 || cfg.Upstream.OtpTimeout <= 0 {
		return errors.New("upstream timeouts must be positive")
	}
	if cfg.Upstream.LogoutBudget <= 0 {
		return errors.New("logout budget must be positive")
	}
	if cfg.Locale.Default == "" {
		return errors.New("default locale must not be empty")
	}
	return nil
}

func localeAllowed(cfg LocaleConfig, locale string) bool {
	if locale == cfg.Default {
		return true
	}
	for _, l := range cfg.Allowed {
		if l == locale {
			return true
		}
	}
	return false
}
