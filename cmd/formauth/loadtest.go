package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/formauth/internal"
	"github.com/MrEthical07/formauth/rememberme"
	"github.com/MrEthical07/formauth/session"
)

// NewLoadtestCmd creates the loadtest subcommand.
func NewLoadtestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure session reads and remember-me rotations against Redis",
		Long: `Seed sessions and remember-me series, then run two timed phases with
concurrent workers: session lookups and remember-me token rotations.
Uses --redis-addr, $REDIS_ADDR, or an in-process Redis when neither is set.`,
		Args: cobra.NoArgs,
		RunE: runLoadtest,
	}
	f := cmd.Flags()
	f.Int("sessions", 10000, "number of sessions and series to seed")
	f.Int("concurrency", 64, "number of concurrent workers")
	f.Int("ops", 50000, "operations per phase")
	return cmd
}

type loadtestOptions struct {
	sessions    int
	concurrency int
	ops         int
}

func runLoadtest(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	var opts loadtestOptions
	opts.sessions, _ = cmd.Flags().GetInt("sessions")
	opts.concurrency, _ = cmd.Flags().GetInt("concurrency")
	opts.ops, _ = cmd.Flags().GetInt("ops")
	if opts.sessions <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
		return oops.Code("INVALID_ARGUMENT").Errorf("sessions, concurrency and ops must be > 0")
	}

	out := cmd.OutOrStdout()
	var client redis.UniversalClient
	if s.RedisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return oops.Code("REDIS_CONNECT_FAILED").With("operation", "start miniredis").Wrap(err)
		}
		defer mr.Close()
		s.RedisAddr = mr.Addr()
		_, _ = fmt.Fprintf(out, "using miniredis at %s\n", s.RedisAddr)
	} else {
		_, _ = fmt.Fprintf(out, "using redis at %s\n", s.RedisAddr)
	}
	client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{s.RedisAddr}})
	defer func() { _ = client.Close() }()

	results, err := loadtest(cmd.Context(), client, s, opts, out)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(out, "---- results ----")
	for _, r := range results {
		printStats(out, r.name, r.stats)
	}
	return nil
}

type phaseResult struct {
	name  string
	stats phaseStats
}

// seriesState holds the latest token value of one series. Workers hold mu
// across a rotation so they never race each other on purpose.
type seriesState struct {
	mu     sync.Mutex
	series string
	value  string
}

func loadtest(ctx context.Context, client redis.UniversalClient, s settings, opts loadtestOptions, out io.Writer) ([]phaseResult, error) {
	cfg := s.Auth
	sessions := session.NewStore(client, cfg.Session.RedisPrefix+"lt", false, false, 0)
	tokens := rememberme.NewRedisStore(client, cfg.RememberMe.RedisPrefix+"lt", time.Hour)

	ids := make([]string, opts.sessions)
	states := make([]*seriesState, opts.sessions)

	_, _ = fmt.Fprintf(out, "seeding %d sessions and series...\n", opts.sessions)
	startSeed := time.Now()
	now := time.Now()
	for i := range ids {
		sid, err := internal.NewSessionID()
		if err != nil {
			return nil, err
		}
		id := sid.String()
		username := fmt.Sprintf("user-%d", i)
		err = sessions.Save(ctx, &session.Session{
			SessionID:       id,
			Username:        username,
			Authorities:     []string{"ROLE_USER"},
			AuthenticatedAt: now.Unix(),
			CreatedAt:       now.Unix(),
			ExpiresAt:       now.Add(24 * time.Hour).Unix(),
		}, 24*time.Hour)
		if err != nil {
			return nil, oops.Code("LOADTEST_SEED_FAILED").With("operation", "save session").Wrap(err)
		}
		ids[i] = id

		tok, err := tokens.Issue(ctx, username)
		if err != nil {
			return nil, oops.Code("LOADTEST_SEED_FAILED").With("operation", "issue series").Wrap(err)
		}
		states[i] = &seriesState{series: tok.Series, value: tok.TokenValue}
	}
	_, _ = fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	get := runPhase(opts, func(r *rand.Rand) error {
		_, err := sessions.Get(ctx, ids[r.IntN(len(ids))])
		return err
	})
	rotate := runPhase(opts, func(r *rand.Rand) error {
		st := states[r.IntN(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		tok, err := tokens.ValidateAndRotate(ctx, st.series, st.value)
		if err != nil {
			return err
		}
		st.value = tok.TokenValue
		return nil
	})

	return []phaseResult{
		{name: "session-get", stats: get},
		{name: "remember-me-rotate", stats: rotate},
	}, nil
}

func runPhase(opts loadtestOptions, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    atomic.Int64
		failures  atomic.Int64
		latencies = make([]time.Duration, 0, opts.ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < opts.concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(worker)*7919))
			for {
				if cursor.Add(1) > int64(opts.ops) {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					failures.Add(1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures.Load())
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(w io.Writer, name string, s phaseStats) {
	_, _ = fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
