package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

// SessionID is a 128-bit random session identifier.
type SessionID [16]byte

const (
	seriesSize     = 16
	tokenValueSize = 32
)

// NewSessionID returns a random identifier from crypto/rand.
func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// ParseSessionID decodes a textual identifier produced by String.
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

// NewSeries returns a random remember-me series identifier.
func NewSeries() (string, error) {
	return randomString(seriesSize)
}

// NewTokenValue returns a random remember-me token value.
func NewTokenValue() (string, error) {
	return randomString(tokenValueSize)
}

// HashTokenValue returns the digest persisted in place of a token value.
func HashTokenValue(value string) [32]byte {
	return sha256.Sum256([]byte(value))
}

// NewChallengeCode returns a uniformly distributed decimal code.
func NewChallengeCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid challenge code digits")
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
	return b.String(), nil
}

func randomString(size int) (string, error) {
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
