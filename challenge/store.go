package challenge

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/formauth/internal"
	"github.com/redis/go-redis/v9"
)

var (
	ErrChallengeMissing  = errors.New("challenge missing or expired")
	ErrChallengeMismatch = errors.New("challenge mismatch")
	ErrRedisUnavailable  = errors.New("redis unavailable")
)

const consumeScript = `
local v = redis.call("GET", KEYS[1])
if v then
  redis.call("DEL", KEYS[1])
end
return v
`

var consumeLua = redis.NewScript(consumeScript)

// Store keeps one pending code digest per session.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	digits int
	ttl    time.Duration
}

// NewStore creates a [Store] issuing codes of the given length.
func NewStore(client redis.UniversalClient, prefix string, digits int, ttl time.Duration) *Store {
	return &Store{redis: client, prefix: prefix, digits: digits, ttl: ttl}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// Issue generates a new code for sessionID, replacing any pending one, and
// returns the plaintext for rendering.
func (s *Store) Issue(ctx context.Context, sessionID string) (string, error) {
	code, err := internal.NewChallengeCode(s.digits)
	if err != nil {
		return "", err
	}
	digest := digestCode(code)
	if err := s.redis.Set(ctx, s.key(sessionID), digest[:], s.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return code, nil
}

// Verify consumes the pending code for sessionID and compares it with
// presented. The pending code is gone after this call regardless of outcome.
func (s *Store) Verify(ctx context.Context, sessionID, presented string) error {
	if sessionID == "" {
		return ErrChallengeMissing
	}

	res, err := consumeLua.Run(ctx, s.redis, []string{s.key(sessionID)}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrChallengeMissing
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	stored, ok := res.(string)
	if !ok {
		return ErrChallengeMissing
	}

	presented = strings.TrimSpace(presented)
	if presented == "" {
		return ErrChallengeMismatch
	}
	got := digestCode(presented)
	if subtle.ConstantTimeCompare([]byte(stored), got[:]) != 1 {
		return ErrChallengeMismatch
	}
	return nil
}

// TTL reports how long issued codes remain valid.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func digestCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}
