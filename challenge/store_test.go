package challenge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newChallengeStoreTest(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewStore(rdb, "fc", 4, time.Minute), mr
}

func TestVerifyMatchConsumes(t *testing.T) {
	s, _ := newChallengeStoreTest(t)
	ctx := context.Background()

	code, err := s.Issue(ctx, "sid")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(code) != 4 {
		t.Fatalf("code length = %d", len(code))
	}
	if err := s.Verify(ctx, "sid", code); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := s.Verify(ctx, "sid", code); !errors.Is(err, ErrChallengeMissing) {
		t.Fatalf("expected single use, got %v", err)
	}
}

func TestVerifyMismatchStillConsumes(t *testing.T) {
	s, _ := newChallengeStoreTest(t)
	ctx := context.Background()

	code, err := s.Issue(ctx, "sid")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	wrong := "0000"
	if code == wrong {
		wrong = "1111"
	}
	if err := s.Verify(ctx, "sid", wrong); !errors.Is(err, ErrChallengeMismatch) {
		t.Fatalf("expected ErrChallengeMismatch, got %v", err)
	}
	if err := s.Verify(ctx, "sid", code); !errors.Is(err, ErrChallengeMissing) {
		t.Fatalf("expected code consumed by failed attempt, got %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	s, mr := newChallengeStoreTest(t)
	ctx := context.Background()

	code, err := s.Issue(ctx, "sid")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	mr.FastForward(61 * time.Second)
	if err := s.Verify(ctx, "sid", code); !errors.Is(err, ErrChallengeMissing) {
		t.Fatalf("expected ErrChallengeMissing, got %v", err)
	}
}

func TestVerifyIsSessionScoped(t *testing.T) {
	s, _ := newChallengeStoreTest(t)
	ctx := context.Background()

	code, err := s.Issue(ctx, "sid-a")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := s.Verify(ctx, "sid-b", code); !errors.Is(err, ErrChallengeMissing) {
		t.Fatalf("expected other session to have no code, got %v", err)
	}
	if err := s.Verify(ctx, "", code); !errors.Is(err, ErrChallengeMissing) {
		t.Fatalf("expected empty session to fail, got %v", err)
	}
}

func TestVerifyRedisDown(t *testing.T) {
	s, mr := newChallengeStoreTest(t)
	mr.Close()
	if err := s.Verify(context.Background(), "sid", "1234"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
