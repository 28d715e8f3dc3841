package rememberme

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/formauth/internal"
	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusTheft    int64 = 2
	rotateStatusRotated  int64 = 3
	rotateStatusCorrupt  int64 = 4
)

// The series hash holds u (username), d (value digest) and t (last use, unix ms).
const rotateTokenScript = `
local series_key = KEYS[1]
local provided = ARGV[1]
local next_digest = ARGV[2]
local now_ms = tonumber(ARGV[3])
local validity_ms = tonumber(ARGV[4])
local series_prefix = ARGV[5]
local user_prefix = ARGV[6]
local series = ARGV[7]

local rec = redis.call("HMGET", series_key, "u", "d", "t")
local username = rec[1]
if not username then
  return {0}
end

local user_key = user_prefix .. username
local last_used = tonumber(rec[3])
if not rec[2] or not last_used then
  redis.call("DEL", series_key)
  redis.call("SREM", user_key, series)
  return {4, username}
end

if now_ms - last_used > validity_ms then
  redis.call("DEL", series_key)
  redis.call("SREM", user_key, series)
  return {1, username}
end

if rec[2] ~= provided then
  local members = redis.call("SMEMBERS", user_key)
  for _, s in ipairs(members) do
    redis.call("DEL", series_prefix .. s)
  end
  redis.call("DEL", series_key)
  redis.call("DEL", user_key)
  return {2, username}
end

redis.call("HSET", series_key, "d", next_digest, "t", ARGV[3])
redis.call("PEXPIRE", series_key, validity_ms)
redis.call("PEXPIRE", user_key, validity_ms)
return {3, username}
`

var rotateTokenLua = redis.NewScript(rotateTokenScript)

// RedisStore keeps remember-me series in Redis hashes, one per series, with
// a per-user set index. Keys expire after the validity window, and the
// rotation script also checks the window so expiry never depends on Redis
// eviction timing.
type RedisStore struct {
	redis    redis.UniversalClient
	prefix   string
	validity time.Duration
	now      func() time.Time
}

// NewRedisStore creates a [RedisStore]. prefix namespaces all keys.
func NewRedisStore(client redis.UniversalClient, prefix string, validity time.Duration) *RedisStore {
	return &RedisStore{
		redis:    client,
		prefix:   prefix,
		validity: validity,
		now:      time.Now,
	}
}

func (s *RedisStore) seriesPrefix() string { return s.prefix + ":" }
func (s *RedisStore) userPrefix() string   { return s.prefix + "u:" }

func (s *RedisStore) key(series string) string {
	return s.seriesPrefix() + series
}

func (s *RedisStore) userKey(username string) string {
	return s.userPrefix() + username
}

// Issue creates a new series for username.
func (s *RedisStore) Issue(ctx context.Context, username string) (Token, error) {
	tok, err := newToken(username, s.now())
	if err != nil {
		return Token{}, err
	}
	digest := internal.HashTokenValue(tok.TokenValue)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		key := s.key(tok.Series)
		pipe.HSet(ctx, key,
			"u", username,
			"d", digest[:],
			"t", strconv.FormatInt(tok.LastUsedAt.UnixMilli(), 10),
		)
		pipe.PExpire(ctx, key, s.validity)
		pipe.SAdd(ctx, s.userKey(username), tok.Series)
		pipe.PExpire(ctx, s.userKey(username), s.validity)
		return nil
	})
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return tok, nil
}

// ValidateAndRotate checks tokenValue against the stored digest for series
// and, on match, replaces it with a fresh value in the same script call.
func (s *RedisStore) ValidateAndRotate(ctx context.Context, series, tokenValue string) (Token, error) {
	nextValue, err := internal.NewTokenValue()
	if err != nil {
		return Token{}, err
	}
	provided := internal.HashTokenValue(tokenValue)
	next := internal.HashTokenValue(nextValue)
	now := s.now()

	result, err := rotateTokenLua.Run(
		ctx,
		s.redis,
		[]string{s.key(series)},
		provided[:],
		next[:],
		now.UnixMilli(),
		s.validity.Milliseconds(),
		s.seriesPrefix(),
		s.userPrefix(),
		series,
	).Result()
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return Token{}, fmt.Errorf("%w: invalid rotate script response", ErrStoreUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return Token{}, fmt.Errorf("%w: invalid rotate script status", ErrStoreUnavailable)
	}
	username := ""
	if len(parts) > 1 {
		username, _ = parts[1].(string)
	}

	switch code {
	case rotateStatusNotFound:
		return Token{}, ErrTokenNotFound
	case rotateStatusExpired:
		return Token{Series: series, Username: username}, ErrTokenExpired
	case rotateStatusTheft:
		return Token{Series: series, Username: username}, ErrTokenTheft
	case rotateStatusCorrupt:
		return Token{}, errors.Join(ErrTokenNotFound, errors.New("corrupt remember-me record"))
	case rotateStatusRotated:
		return Token{
			Series:     series,
			TokenValue: nextValue,
			Username:   username,
			LastUsedAt: now,
		}, nil
	default:
		return Token{}, fmt.Errorf("%w: unknown rotate script status", ErrStoreUnavailable)
	}
}

// Revoke deletes one series. Unknown series are ignored.
func (s *RedisStore) Revoke(ctx context.Context, series string) error {
	key := s.key(series)
	username, err := s.redis.HGet(ctx, key, "u").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, s.userKey(username), series)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RevokeAllForUser deletes every series of username.
func (s *RedisStore) RevokeAllForUser(ctx context.Context, username string) error {
	userKey := s.userKey(username)
	members, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	keys := make([]string, 0, len(members)+1)
	for _, series := range members {
		keys = append(keys, s.key(series))
	}
	keys = append(keys, userKey)

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func newToken(username string, now time.Time) (Token, error) {
	series, err := internal.NewSeries()
	if err != nil {
		return Token{}, err
	}
	value, err := internal.NewTokenValue()
	if err != nil {
		return Token{}, err
	}
	return Token{
		Series:     series,
		TokenValue: value,
		Username:   username,
		LastUsedAt: now,
	}, nil
}
