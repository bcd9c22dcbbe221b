package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tripwell/authgate/internal"
)

// ErrSessionNotFound is returned when no record exists for a session ID.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExpired is returned when a record exists but is past its expiry.
var ErrSessionExpired = errors.New("session expired")

// ErrRedisUnavailable is returned when the backing store cannot be reached.
var ErrRedisUnavailable = errors.New("redis unavailable")

const minTTL = time.Second

// Store persists session records in Redis under prefix:sessionID keys. All
// mutations are read-modify-write on a single key; Redis's single-threaded
// command execution makes each individual write atomic, which is all the
// gateway requires (one browser tab is a single writer).
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore describes the newstore operation and its observable behavior.
//
// NewStore may return an error when input validation, dependency calls, or security checks fail.
// NewStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewStore(client redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if ttl < minTTL {
		ttl = minTTL
	}
	return &Store{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// Create mints a fresh anonymous record under a new opaque session ID and
// persists it.
func (s *Store) Create(ctx context.Context) (*Record, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record := &Record{
		SessionID: sid.String(),
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	}

	if err := s.save(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Get loads the record for sessionID. Expired records are deleted on read and
// reported as [ErrSessionExpired].
func (s *Store) Get(ctx context.Context, sessionID string) (*Record, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	if _, err := internal.ParseSessionID(sessionID); err != nil {
		return nil, ErrSessionNotFound
	}

	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	record, err := Decode(data)
	if err != nil {
		return nil, err
	}
	record.SessionID = sessionID

	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(sessionID)).Result()
		return nil, ErrSessionExpired
	}
	return record, nil
}

// Ensure returns the live record for sessionID, or a freshly created one when
// the ID is empty, unknown, or expired. The second return reports whether a
// new session was minted (and therefore a new cookie must be issued).
func (s *Store) Ensure(ctx context.Context, sessionID string) (*Record, bool, error) {
	if sessionID != "" {
		record, err := s.Get(ctx, sessionID)
		switch {
		case err == nil:
			return record, false, nil
		case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExpired), errors.Is(err, ErrCorrupt):
			// fall through to mint
		default:
			return nil, false, err
		}
	}

	record, err := s.Create(ctx)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// SetToken writes the access token (and its OTP-verified flag) into the
// record for sessionID. This is the write that makes a session count as
// authenticated for server-side route guarding.
func (s *Store) SetToken(ctx context.Context, sessionID, token string, otpVerified bool) error {
	return s.update(ctx, sessionID, func(r *Record) {
		r.AuthToken = token
		r.OtpVerified = otpVerified
	})
}

// ClearToken removes the access token from the record for sessionID, turning
// it back into an anonymous session. Clearing an already-anonymous or missing
// session is not an error.
func (s *Store) ClearToken(ctx context.Context, sessionID string) error {
	err := s.update(ctx, sessionID, func(r *Record) {
		r.AuthToken = ""
		r.OtpVerified = false
	})
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired) {
		return nil
	}
	return err
}

// SetLocale describes the setlocale operation and its observable behavior.
//
// SetLocale may return an error when input validation, dependency calls, or security checks fail.
// SetLocale does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) SetLocale(ctx context.Context, sessionID, locale string) error {
	return s.update(ctx, sessionID, func(r *Record) {
		r.Locale = locale
	})
}

// Delete removes the record for sessionID. Deleting a missing session is a
// no-op.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) update(ctx context.Context, sessionID string, mutate func(*Record)) error {
	record, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	mutate(record)
	return s.save(ctx, record)
}

func (s *Store) save(ctx context.Context, record *Record) error {
	encoded, err := Encode(record)
	if err != nil {
		return err
	}

	ttl := time.Until(time.Unix(record.ExpiresAt, 0))
	if ttl < minTTL {
		ttl = minTTL
	}

	if err := s.redis.Set(ctx, s.key(record.SessionID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
