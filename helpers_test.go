package formauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/formauth/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

// stubUsers is an in-memory CredentialStore that counts lookups.
type stubUsers struct {
	mu      sync.Mutex
	users   map[string]User
	err     error
	lookups int
	updates map[string]string
}

func newStubUsers(users ...User) *stubUsers {
	s := &stubUsers{
		users:   make(map[string]User, len(users)),
		updates: make(map[string]string),
	}
	for _, u := range users {
		s.users[u.Username] = u
	}
	return s
}

func (s *stubUsers) FindByUsername(_ context.Context, username string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lookups++
	if s.err != nil {
		return User{}, s.err
	}
	u, ok := s.users[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *stubUsers) UpdatePasswordHash(_ context.Context, username, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	s.users[username] = u
	s.updates[username] = hash
	return nil
}

func (s *stubUsers) set(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Username] = u
}

func (s *stubUsers) lookupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

func (s *stubUsers) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

var errBackendDown = errors.New("connection refused")

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.BcryptCost = 4
	cfg.Session.SlidingExpiration = false
	cfg.Metrics.Enabled = true
	return cfg
}

func activeUser(t testing.TB, username, raw string, authorities ...string) User {
	t.Helper()

	hasher, err := NewPasswordHasher(testConfig().Password)
	if err != nil {
		t.Fatalf("NewPasswordHasher: %v", err)
	}
	hash, err := hasher.Hash(raw)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	return User{
		Username:              username,
		PasswordHash:          hash,
		Authorities:           authorities,
		AccountNonExpired:     true,
		AccountNonLocked:      true,
		CredentialsNonExpired: true,
		Enabled:               true,
	}
}

func legacyBcryptUser(t *testing.T, username, raw string) User {
	t.Helper()

	bc, err := password.NewBcrypt(4, 0)
	if err != nil {
		t.Fatalf("NewBcrypt: %v", err)
	}
	hash, err := bc.Hash(raw)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	u := activeUser(t, username, raw)
	u.PasswordHash = hash
	return u
}

type testEngine struct {
	*Engine
	mr    *miniredis.Miniredis
	rdb   *redis.Client
	users *stubUsers
}

func newTestEngine(t testing.TB, cfg Config, users *stubUsers, opts ...func(*Builder)) *testEngine {
	t.Helper()

	mr, rdb := newTestRedis(t)
	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(users)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{Engine: engine, mr: mr, rdb: rdb, users: users}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
