// Package rememberme persists rotating remember-me tokens.
//
// A token is a (series, value) pair. The series is a stable per-device key;
// the value changes on every successful use. Only a SHA-256 digest of the
// value is stored. Presenting a stale value for a live series means the
// cookie was copied: the series and every other series of the same user are
// deleted and [ErrTokenTheft] is returned.
//
// Three stores implement the same contract: [RedisStore] (Lua
// compare-and-swap), [PostgresStore] (row lock in a transaction) and
// [MemoryStore] (mutex). In each, the read-compare-write of one series is
// atomic, so of two concurrent rotations presenting the same value exactly
// one succeeds.
package rememberme
