package rememberme

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingReaper struct {
	calls atomic.Int64
	fail  atomic.Bool
}

func (r *countingReaper) Reap(context.Context) (int64, error) {
	r.calls.Add(1)
	if r.fail.Load() {
		return 0, errors.New("connection refused")
	}
	return 1, nil
}

func TestRunReaperTicksUntilCancelled(t *testing.T) {
	r := &countingReaper{}
	r.fail.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunReaper(ctx, r, 5*time.Millisecond, nil)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for r.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("reaper ran %d times, want at least 3 despite failures", r.calls.Load())
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunReaper did not return after cancel")
	}
}

func TestRunReaperPurgesMemoryStore(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := NewMemoryStore(time.Hour)
	s.now = clock.Now

	for _, user := range []string{"bob", "alice"} {
		if _, err := s.Issue(context.Background(), user); err != nil {
			t.Fatalf("Issue: %v", err)
		}
	}
	clock.Advance(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go RunReaper(ctx, s, 5*time.Millisecond, nil)

	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		left := len(s.series)
		s.mu.Unlock()
		if left == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d expired series left after reaping", left)
		}
		time.Sleep(time.Millisecond)
	}
}
