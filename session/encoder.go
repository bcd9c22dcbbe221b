package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const recordFormatVersionCurrent = 1

const flagOtpVerified = 0x01

// ErrCorrupt is returned when a stored blob cannot be decoded.
var ErrCorrupt = errors.New("session record corrupt")

// Encode describes the encode operation and its observable behavior.
//
// Encode may return an error when input validation, dependency calls, or security checks fail.
// Encode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordFormatVersionCurrent)

	if err := writeShortString(&buf, r.AuthToken, "auth token"); err != nil {
		return nil, err
	}
	if err := writeShortString(&buf, r.Locale, "locale"); err != nil {
		return nil, err
	}

	var flags byte
	if r.OtpVerified {
		flags |= flagOtpVerified
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode describes the decode operation and its observable behavior.
//
// Decode may return an error when input validation, dependency calls, or security checks fail.
// Decode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorrupt
	}
	if version != recordFormatVersionCurrent {
		return nil, ErrCorrupt
	}

	r := &Record{}

	if r.AuthToken, err = readShortString(reader); err != nil {
		return nil, ErrCorrupt
	}
	if r.Locale, err = readShortString(reader); err != nil {
		return nil, ErrCorrupt
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorrupt
	}
	r.OtpVerified = flags&flagOtpVerified != 0

	if err := binary.Read(reader, binary.BigEndian, &r.CreatedAt); err != nil {
		return nil, ErrCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &r.ExpiresAt); err != nil {
		return nil, ErrCorrupt
	}
	if reader.Len() != 0 {
		return nil, ErrCorrupt
	}

	return r, nil
}

func writeShortString(buf *bytes.Buffer, s, field string) error {
	// Two length bytes: access tokens are routinely longer than 255 bytes.
	if len(s) > 65535 {
		return errors.New(field + " too long")
	}
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(s)))
	buf.Write(length[:])
	buf.WriteString(s)
	return nil
}

func readShortString(reader *bytes.Reader) (string, error) {
	var lengthBytes [2]byte
	if _, err := io.ReadFull(reader, lengthBytes[:]); err != nil {
		return "", err
	}
	length := binary.BigEndian.Uint16(lengthBytes[:])
	if length == 0 {
		return "", nil
	}
	out := make([]byte, length)
	if _, err := io.ReadFull(reader, out); err != nil {
		return "", err
	}
	return string(out), nil
}
