package upstream

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	authgate "github.com/tripwell/authgate"
	"github.com/tripwell/authgate/internal"
)

// LocalConfig defines a public type used by authgate APIs.
//
// LocalConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LocalConfig struct {
	SigningKey   []byte
	Issuer       string
	TokenTTL     time.Duration
	ChallengeTTL time.Duration
	MaxAttempts  int
}

// DefaultLocalConfig describes the defaultlocalconfig operation and its observable behavior.
//
// DefaultLocalConfig may return an error when input validation, dependency calls, or security checks fail.
// DefaultLocalConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		Issuer:       "authgate-local",
		TokenTTL:     time.Hour,
		ChallengeTTL: 5 * time.Minute,
		MaxAttempts:  5,
	}
}

// LocalUser seeds the reference verifier's user table.
type LocalUser struct {
	Profile  authgate.UserProfile
	Password string
}

// Local is a self-contained identity provider: credentials against a seeded
// table, HS256 JWT access tokens, and Redis-held one-time codes. It exists
// for development and tests; production deployments point the gateway at a
// remote [Client] instead.
type Local struct {
	cfg   LocalConfig
	codes *challengeStore

	mu      sync.RWMutex
	users   map[string]LocalUser
	retired map[string]struct{}

	// Deliver is the out-of-band channel hook, called with the email and the
	// plaintext code after a successful send. Leave nil to discard codes
	// (tests capture them here).
	Deliver func(email, code string)
}

// NewLocal describes the newlocal operation and its observable behavior.
//
// NewLocal may return an error when input validation, dependency calls, or security checks fail.
// NewLocal does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewLocal(cfg LocalConfig, client redis.UniversalClient) (*Local, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("signing key is required")
	}
	if cfg.TokenTTL <= 0 || cfg.ChallengeTTL <= 0 {
		return nil, errors.New("token and challenge TTLs must be positive")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if client == nil {
		return nil, errors.New("redis client is required")
	}

	return &Local{
		cfg:     cfg,
		codes:   newChallengeStore(client),
		users:   make(map[string]LocalUser),
		retired: make(map[string]struct{}),
	}, nil
}

// Seed registers (or replaces) a user record.
func (l *Local) Seed(user LocalUser) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users[strings.ToLower(user.Profile.Email)] = user
}

// VerifyCredentials describes the verifycredentials operation and its observable behavior.
//
// VerifyCredentials may return an error when input validation, dependency calls, or security checks fail.
// VerifyCredentials does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (l *Local) VerifyCredentials(ctx context.Context, email, password string) (authgate.VerifiedLogin, error) {
	l.mu.RLock()
	user, ok := l.users[strings.ToLower(email)]
	l.mu.RUnlock()

	if !ok {
		return authgate.VerifiedLogin{}, authgate.ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(user.Password), []byte(password)) != 1 {
		return authgate.VerifiedLogin{}, authgate.ErrInvalidCredentials
	}

	token, err := l.mintToken(user.Profile)
	if err != nil {
		return authgate.VerifiedLogin{}, fmt.Errorf("mint token: %w", err)
	}
	return authgate.VerifiedLogin{Token: token, User: user.Profile}, nil
}

// RetireToken describes the retiretoken operation and its observable behavior.
//
// RetireToken may return an error when input validation, dependency calls, or security checks fail.
// RetireToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (l *Local) RetireToken(ctx context.Context, token string) error {
	if _, err := l.parseToken(token); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.retired[token] = struct{}{}
	return nil
}

// SendCode describes the sendcode operation and its observable behavior.
//
// SendCode may return an error when input validation, dependency calls, or security checks fail.
// SendCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (l *Local) SendCode(ctx context.Context, token, email string) error {
	claims, err := l.liveClaims(token)
	if err != nil {
		return authgate.ErrTokenRequired
	}
	if !strings.EqualFold(claims.Email, email) {
		return authgate.ErrTokenRequired
	}

	code, err := internal.NewOTP(authgate.OtpLength)
	if err != nil {
		return fmt.Errorf("%w: %v", authgate.ErrOtpUnavailable, err)
	}

	record := &otpChallenge{
		CodeHash:  sha256.Sum256([]byte(code)),
		ExpiresAt: time.Now().Add(l.cfg.ChallengeTTL).Unix(),
	}
	if err := l.codes.Save(ctx, strings.ToLower(email), record, l.cfg.ChallengeTTL); err != nil {
		return fmt.Errorf("%w: %v", authgate.ErrOtpUnavailable, err)
	}

	if l.Deliver != nil {
		l.Deliver(email, code)
	}
	return nil
}

// VerifyCode describes the verifycode operation and its observable behavior.
//
// VerifyCode may return an error when input validation, dependency calls, or security checks fail.
// VerifyCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (l *Local) VerifyCode(ctx context.Context, token, email, code string) error {
	claims, err := l.liveClaims(token)
	if err != nil {
		return authgate.ErrTokenRequired
	}
	if !strings.EqualFold(claims.Email, email) {
		return authgate.ErrTokenRequired
	}

	key := strings.ToLower(email)
	record, err := l.codes.Get(ctx, key)
	if err != nil {
		switch {
		case errors.Is(err, errChallengeNotFound), errors.Is(err, errChallengeExpired):
			return authgate.ErrOtpInvalid
		default:
			return err
		}
	}

	hash := sha256.Sum256([]byte(code))
	if subtle.ConstantTimeCompare(record.CodeHash[:], hash[:]) != 1 {
		if _, ferr := l.codes.RecordFailure(ctx, key, l.cfg.MaxAttempts); ferr != nil &&
			!errors.Is(ferr, errChallengeNotFound) && !errors.Is(ferr, errChallengeExpired) {
			return ferr
		}
		return authgate.ErrOtpInvalid
	}

	// One code, one success.
	if err := l.codes.Delete(ctx, key); err != nil {
		return err
	}
	return nil
}

type localClaims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func (l *Local) mintToken(profile authgate.UserProfile) (string, error) {
	now := time.Now()
	claims := localClaims{
		Email: profile.Email,
		Name:  profile.Name,
		Role:  profile.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profile.ID,
			Issuer:    l.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(l.cfg.TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.cfg.SigningKey)
}

func (l *Local) parseToken(token string) (*localClaims, error) {
	claims := &localClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return l.cfg.SigningKey, nil
	}, jwt.WithIssuer(l.cfg.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (l *Local) liveClaims(token string) (*localClaims, error) {
	claims, err := l.parseToken(token)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	_, dead := l.retired[token]
	l.mu.RUnlock()
	if dead {
		return nil, errors.New("token retired")
	}
	return claims, nil
}
