package upstream

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	challengeKeyPrefix     = "otpc"
	challengeRecordVersion = 1
)

var (
	errChallengeNotFound = errors.New("otp challenge not found")
	errChallengeExpired  = errors.New("otp challenge expired")
	errChallengeBackend  = errors.New("otp challenge backend unavailable")
)

// otpChallenge is the pending-code record for one email address. Only the
// code digest is persisted.
type otpChallenge struct {
	CodeHash  [sha256.Size]byte
	ExpiresAt int64
	Attempts  uint16
}

type challengeStore struct {
	redis redis.UniversalClient
}

func newChallengeStore(client redis.UniversalClient) *challengeStore {
	return &challengeStore{redis: client}
}

func (s *challengeStore) key(email string) string {
	return challengeKeyPrefix + ":" + email
}

// Save overwrites any pending challenge for email. A resend therefore always
// invalidates the previous code.
func (s *challengeStore) Save(ctx context.Context, email string, record *otpChallenge, ttl time.Duration) error {
	encoded, err := encodeChallenge(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(email), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return nil
}

func (s *challengeStore) Get(ctx context.Context, email string) (*otpChallenge, error) {
	data, err := s.redis.Get(ctx, s.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", errChallengeBackend, err)
	}

	record, err := decodeChallenge(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(email)).Result()
		return nil, errChallengeExpired
	}
	return record, nil
}

func (s *challengeStore) Delete(ctx context.Context, email string) error {
	if err := s.redis.Del(ctx, s.key(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return nil
}

// RecordFailure bumps the attempt counter under a WATCH transaction and
// deletes the challenge once maxAttempts is reached. Returns true when the
// challenge was consumed by exhaustion.
func (s *challengeStore) RecordFailure(ctx context.Context, email string, maxAttempts int) (bool, error) {
	const maxRetries = 4
	key := s.key(email)

	for i := 0; i < maxRetries; i++ {
		var exceeded bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeChallenge(data)
			if err != nil {
				return err
			}

			record.Attempts++
			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeExpired
			}
			if int(record.Attempts) >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			updated, err := encodeChallenge(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, errChallengeNotFound
			}
			if errors.Is(err, errChallengeExpired) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", errChallengeBackend, err)
		}
		return exceeded, nil
	}

	return false, errChallengeNotFound
}

func encodeChallenge(record *otpChallenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersion)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeChallenge(data []byte) (*otpChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil || version != challengeRecordVersion {
		return nil, errors.New("otp challenge record corrupt")
	}

	record := &otpChallenge{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, errors.New("otp challenge record corrupt")
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, errors.New("otp challenge record corrupt")
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil || reader.Len() != 0 {
		return nil, errors.New("otp challenge record corrupt")
	}

	return record, nil
}
