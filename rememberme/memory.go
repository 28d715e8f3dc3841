package rememberme

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/MrEthical07/formauth/internal"
)

type memoryRecord struct {
	username string
	digest   [32]byte
	lastUsed time.Time
}

// MemoryStore keeps series in process memory. It is intended for tests and
// single-instance deployments.
type MemoryStore struct {
	mu       sync.Mutex
	series   map[string]*memoryRecord
	validity time.Duration
	now      func() time.Time
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore(validity time.Duration) *MemoryStore {
	return &MemoryStore{
		series:   make(map[string]*memoryRecord),
		validity: validity,
		now:      time.Now,
	}
}

// Issue starts a new series for username.
func (m *MemoryStore) Issue(_ context.Context, username string) (Token, error) {
	tok, err := newToken(username, m.now())
	if err != nil {
		return Token{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[tok.Series] = &memoryRecord{
		username: username,
		digest:   internal.HashTokenValue(tok.TokenValue),
		lastUsed: tok.LastUsedAt,
	}
	return tok, nil
}

// ValidateAndRotate checks tokenValue against series and replaces it.
// A mismatch on a known series revokes every series of its user and
// returns [ErrTokenTheft].
func (m *MemoryStore) ValidateAndRotate(_ context.Context, series, tokenValue string) (Token, error) {
	nextValue, err := internal.NewTokenValue()
	if err != nil {
		return Token{}, err
	}
	provided := internal.HashTokenValue(tokenValue)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.series[series]
	if !ok {
		return Token{}, ErrTokenNotFound
	}
	if expired(rec.lastUsed, now, m.validity) {
		delete(m.series, series)
		return Token{Series: series, Username: rec.username}, ErrTokenExpired
	}
	if subtle.ConstantTimeCompare(rec.digest[:], provided[:]) != 1 {
		m.revokeUserLocked(rec.username)
		return Token{Series: series, Username: rec.username}, ErrTokenTheft
	}

	rec.digest = internal.HashTokenValue(nextValue)
	rec.lastUsed = now
	return Token{
		Series:     series,
		TokenValue: nextValue,
		Username:   rec.username,
		LastUsedAt: now,
	}, nil
}

// Revoke deletes series. Unknown series are ignored.
func (m *MemoryStore) Revoke(_ context.Context, series string) error {
	m.mu.Lock()
	delete(m.series, series)
	m.mu.Unlock()
	return nil
}

// RevokeAllForUser deletes every series of username.
func (m *MemoryStore) RevokeAllForUser(_ context.Context, username string) error {
	m.mu.Lock()
	m.revokeUserLocked(username)
	m.mu.Unlock()
	return nil
}

// Reap drops every expired series and returns how many were removed.
func (m *MemoryStore) Reap(_ context.Context) (int64, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for series, rec := range m.series {
		if expired(rec.lastUsed, now, m.validity) {
			delete(m.series, series)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) revokeUserLocked(username string) {
	for series, rec := range m.series {
		if rec.username == username {
			delete(m.series, series)
		}
	}
}
