package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// SessionID is the opaque 16-byte identifier delivered to browsers via the
// session cookie.
type SessionID [16]byte

// NewSessionID describes the newsessionid operation and its observable behavior.
//
// NewSessionID may return an error when input validation, dependency calls, or security checks fail.
// NewSessionID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

// Bytes describes the bytes operation and its observable behavior.
//
// Bytes may return an error when input validation, dependency calls, or security checks fail.
// Bytes does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s SessionID) Bytes() []byte {
	return s[:]
}

// String describes the string operation and its observable behavior.
//
// String may return an error when input validation, dependency calls, or security checks fail.
// String does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// ParseSessionID describes the parsesessionid operation and its observable behavior.
//
// ParseSessionID may return an error when input validation, dependency calls, or security checks fail.
// ParseSessionID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

// NewOTP describes the newotp operation and its observable behavior.
//
// NewOTP may return an error when input validation, dependency calls, or security checks fail.
// NewOTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}
