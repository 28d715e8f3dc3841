package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/formauth"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd()
	for _, path := range [][]string{
		{"serve"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "steps"},
		{"migrate", "force"},
		{"migrate", "version"},
		{"hash-password"},
		{"user", "create"},
		{"user", "set-password"},
		{"user", "enable"},
		{"user", "disable"},
		{"loadtest"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestHashPassword(t *testing.T) {
	hasher, err := formauth.NewPasswordHasher(formauth.DefaultConfig().Password)
	require.NoError(t, err)

	tests := []struct {
		name  string
		stdin string
		args  []string
		algo  string
	}{
		{"argument", "", []string{"hash-password", "s3cret-pass"}, "$argon2id$"},
		{"stdin", "s3cret-pass\n", []string{"hash-password"}, "$argon2id$"},
		{"bcrypt", "s3cret-pass\r\n", []string{"hash-password", "--algorithm", "bcrypt"}, "$2a$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.stdin, tt.args...)
			require.NoError(t, err)

			hash := strings.TrimSpace(out)
			assert.True(t, strings.HasPrefix(hash, tt.algo), hash)

			ok, err := hasher.Verify("s3cret-pass", hash)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestHashPassword_EmptyInput(t *testing.T) {
	_, err := execute(t, "\n", "hash-password")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password is empty")
}

type fakeMigrator struct {
	version uint
	dirty   bool
	calls   []string
	err     error
	closed  bool
}

func (m *fakeMigrator) Up() error {
	m.calls = append(m.calls, "up")
	m.version = 2
	return m.err
}

func (m *fakeMigrator) Down() error {
	m.calls = append(m.calls, "down")
	m.version = 0
	return m.err
}

func (m *fakeMigrator) Steps(n int) error {
	m.calls = append(m.calls, "steps")
	m.version = uint(int(m.version) + n)
	return m.err
}

func (m *fakeMigrator) Version() (uint, bool, error) { return m.version, m.dirty, nil }

func (m *fakeMigrator) Force(v int) error {
	m.calls = append(m.calls, "force")
	m.version = uint(v)
	m.dirty = false
	return m.err
}

func (m *fakeMigrator) Close() error {
	m.closed = true
	return nil
}

func withFakeMigrator(t *testing.T, m *fakeMigrator) *string {
	t.Helper()
	var gotURL string
	prev := openMigrator
	openMigrator = func(databaseURL string) (migrator, error) {
		gotURL = databaseURL
		return m, nil
	}
	t.Cleanup(func() { openMigrator = prev })
	return &gotURL
}

func TestMigrateCommands(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/formauth")

	tests := []struct {
		name  string
		start *fakeMigrator
		args  []string
		calls []string
		out   string
	}{
		{"up", &fakeMigrator{}, []string{"migrate", "up"}, []string{"up"}, "schema version 2\n"},
		{"down", &fakeMigrator{version: 2}, []string{"migrate", "down"}, []string{"down"}, "all migrations rolled back\n"},
		{"steps back", &fakeMigrator{version: 2}, []string{"migrate", "steps", "--", "-1"}, []string{"steps"}, "schema version 1\n"},
		{"force", &fakeMigrator{version: 2, dirty: true}, []string{"migrate", "force", "1"}, []string{"force"}, "schema version 1\n"},
		{"version dirty", &fakeMigrator{version: 2, dirty: true}, []string{"migrate", "version"}, nil, "schema version 2 (dirty)\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotURL := withFakeMigrator(t, tt.start)

			out, err := execute(t, "", tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.out, out)
			assert.Equal(t, tt.calls, tt.start.calls)
			assert.True(t, tt.start.closed)
			assert.Equal(t, "postgres://env/formauth", *gotURL)
		})
	}
}

func TestMigrateCommands_Errors(t *testing.T) {
	t.Run("database url required", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		withFakeMigrator(t, &fakeMigrator{})
		_, err := execute(t, "", "migrate", "up")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database_url")
	})

	t.Run("flag wins over environment", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://env/formauth")
		gotURL := withFakeMigrator(t, &fakeMigrator{})
		_, err := execute(t, "", "migrate", "version", "--database-url", "postgres://flag/formauth")
		require.NoError(t, err)
		assert.Equal(t, "postgres://flag/formauth", *gotURL)
	})

	t.Run("bad steps", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://env/formauth")
		m := &fakeMigrator{}
		withFakeMigrator(t, m)
		_, err := execute(t, "", "migrate", "steps", "many")
		require.Error(t, err)
		assert.Empty(t, m.calls)
	})

	t.Run("migration failure", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://env/formauth")
		m := &fakeMigrator{err: errors.New("dirty database version 2")}
		withFakeMigrator(t, m)
		_, err := execute(t, "", "migrate", "up")
		require.Error(t, err)
		assert.True(t, m.closed)
	})
}

type fakeUserStore struct {
	created  []formauth.User
	enabled  map[string]bool
	hashes   map[string]string
	failWith error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{enabled: map[string]bool{}, hashes: map[string]string{}}
}

func (f *fakeUserStore) Create(_ context.Context, u formauth.User) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.created = append(f.created, u)
	return nil
}

func (f *fakeUserStore) SetEnabled(_ context.Context, username string, enabled bool) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.enabled[username] = enabled
	return nil
}

func (f *fakeUserStore) UpdatePasswordHash(_ context.Context, username, hash string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.hashes[username] = hash
	return nil
}

func withFakeUserStore(t *testing.T, users *fakeUserStore) *bool {
	t.Helper()
	closed := false
	prev := openUserStore
	openUserStore = func(context.Context, string) (userStore, func(), error) {
		return users, func() { closed = true }, nil
	}
	t.Cleanup(func() { openUserStore = prev })
	return &closed
}

func TestUserCreate(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/formauth")
	users := newFakeUserStore()
	closed := withFakeUserStore(t, users)

	out, err := execute(t, "123456\n", "user", "create", "alice", "--authority", "ROLE_USER", "--authority", "ROLE_ADMIN", "--algorithm", "bcrypt")
	require.NoError(t, err)
	assert.Equal(t, "created user alice\n", out)
	assert.True(t, *closed)

	require.Len(t, users.created, 1)
	u := users.created[0]
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, []string{"ROLE_USER", "ROLE_ADMIN"}, u.Authorities)
	assert.True(t, u.Enabled)
	assert.True(t, u.AccountNonLocked)

	hasher, err := formauth.NewPasswordHasher(formauth.DefaultConfig().Password)
	require.NoError(t, err)
	ok, err := hasher.Verify("123456", u.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUserCreate_PasswordTooShort(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/formauth")
	users := newFakeUserStore()
	withFakeUserStore(t, users)

	_, err := execute(t, "123\n", "user", "create", "alice")
	require.Error(t, err)
	assert.Empty(t, users.created)
}

func TestUserSetPasswordAndToggle(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/formauth")
	users := newFakeUserStore()
	withFakeUserStore(t, users)

	out, err := execute(t, "new-password\n", "user", "set-password", "bob", "--algorithm", "bcrypt")
	require.NoError(t, err)
	assert.Equal(t, "password updated for bob\n", out)
	assert.True(t, strings.HasPrefix(users.hashes["bob"], "$2a$"))

	out, err = execute(t, "", "user", "disable", "bob")
	require.NoError(t, err)
	assert.Equal(t, "user bob disabled\n", out)
	assert.False(t, users.enabled["bob"])

	out, err = execute(t, "", "user", "enable", "bob")
	require.NoError(t, err)
	assert.Equal(t, "user bob enabled\n", out)
	assert.True(t, users.enabled["bob"])
}

func TestUserCommands_StoreError(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/formauth")
	users := newFakeUserStore()
	users.failWith = formauth.ErrUserNotFound
	withFakeUserStore(t, users)

	_, err := execute(t, "", "user", "disable", "ghost")
	require.ErrorIs(t, err, formauth.ErrUserNotFound)
}

func TestPercentileAndStats(t *testing.T) {
	samples := make([]time.Duration, 0, 100)
	for i := 100; i >= 1; i-- {
		samples = append(samples, time.Duration(i)*time.Millisecond)
	}

	st := computeStats(2*time.Second, samples, 3)
	assert.Equal(t, 100, st.ops)
	assert.Equal(t, int64(3), st.failures)
	assert.Equal(t, 50*time.Millisecond, st.p50)
	assert.Equal(t, 95*time.Millisecond, st.p95)
	assert.Equal(t, 99*time.Millisecond, st.p99)
	assert.InDelta(t, 50.0, st.opsPerS, 0.001)

	assert.Equal(t, time.Millisecond, percentile(samples, 0))
	assert.Equal(t, 100*time.Millisecond, percentile(samples, 100))
	assert.Zero(t, percentile(nil, 50))
	assert.Equal(t, phaseStats{total: time.Second}, computeStats(time.Second, nil, 0))
}

func TestLoadtest_InProcessRedis(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")

	out, err := execute(t, "", "loadtest", "--sessions", "20", "--concurrency", "4", "--ops", "200")
	require.NoError(t, err)

	assert.Contains(t, out, "using miniredis at")
	assert.Contains(t, out, "seeding 20 sessions and series")
	assert.Contains(t, out, "session-get: ops=200 failures=0")
	assert.Contains(t, out, "remember-me-rotate: ops=200 failures=0")
}

func TestLoadtest_RejectsZeroOps(t *testing.T) {
	_, err := execute(t, "", "loadtest", "--ops", "0")
	require.Error(t, err)
}
