package credentials

import (
	"context"
	"strings"
	"sync"

	"github.com/MrEthical07/formauth"
)

// Memory is an in-process credential store, used by the development
// server and tests.
type Memory struct {
	mu    sync.RWMutex
	users map[string]formauth.User
}

// NewMemory returns a store seeded with users.
func NewMemory(users ...formauth.User) *Memory {
	m := &Memory{users: make(map[string]formauth.User, len(users))}
	for _, u := range users {
		m.Put(u)
	}
	return m
}

// Put inserts or replaces a user.
func (m *Memory) Put(u formauth.User) {
	u.Authorities = append([]string(nil), u.Authorities...)

	m.mu.Lock()
	m.users[strings.ToLower(u.Username)] = u
	m.mu.Unlock()
}

// FindByUsername matches usernames case-insensitively.
func (m *Memory) FindByUsername(_ context.Context, username string) (formauth.User, error) {
	m.mu.RLock()
	u, ok := m.users[strings.ToLower(username)]
	m.mu.RUnlock()

	if !ok {
		return formauth.User{}, formauth.ErrUserNotFound
	}
	u.Authorities = append([]string(nil), u.Authorities...)
	return u, nil
}

// UpdatePasswordHash replaces the stored hash of username.
func (m *Memory) UpdatePasswordHash(_ context.Context, username, hash string) error {
	key := strings.ToLower(username)

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[key]
	if !ok {
		return formauth.ErrUserNotFound
	}
	u.PasswordHash = hash
	m.users[key] = u
	return nil
}

// SetEnabled flips the enabled flag of username.
func (m *Memory) SetEnabled(username string, enabled bool) error {
	key := strings.ToLower(username)

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[key]
	if !ok {
		return formauth.ErrUserNotFound
	}
	u.Enabled = enabled
	m.users[key] = u
	return nil
}
