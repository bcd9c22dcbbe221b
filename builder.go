package authgate

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/tripwell/authgate/session"
)

// Builder defines a public type used by authgate APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	verifier   CredentialVerifier
	challenger OtpChallenger
	auditSink  AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithVerifier describes the withverifier operation and its observable behavior.
//
// WithVerifier may return an error when input validation, dependency calls, or security checks fail.
// WithVerifier does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithVerifier(v CredentialVerifier) *Builder {
	b.verifier = v
	return b
}

// WithChallenger describes the withchallenger operation and its observable behavior.
//
// WithChallenger may return an error when input validation, dependency calls, or security checks fail.
// WithChallenger does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithChallenger(c OtpChallenger) *Builder {
	b.challenger = c
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Gateway, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if err := validateConfig(b.config); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.verifier == nil {
		return nil, errors.New("credential verifier is required")
	}
	if b.challenger == nil {
		return nil, errors.New("otp challenger is required")
	}

	b.built = true

	return &Gateway{
		config:     b.config,
		sessions:   session.NewStore(b.redis, b.config.Session.RedisPrefix, b.config.Session.TTL),
		verifier:   b.verifier,
		challenger: b.challenger,
		audit:      newAuditDispatcher(b.config.Audit, b.auditSink),
		metrics:    NewMetrics(b.config.Metrics),
	}, nil
}
