package rememberme

import (
	"context"
	"log/slog"
	"time"
)

// Reaper is implemented by stores that keep expired series until they are
// purged. The Redis store relies on key expiry and has no reaper.
type Reaper interface {
	Reap(ctx context.Context) (int64, error)
}

var (
	_ Reaper = (*MemoryStore)(nil)
	_ Reaper = (*PostgresStore)(nil)
)

// RunReaper purges expired series every interval until ctx is done. A
// failed pass is logged and retried on the next tick.
func RunReaper(ctx context.Context, r Reaper, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Reap(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.WarnContext(ctx, "remember-me reap failed", "operation", "remember_me_reap", "error", err)
				continue
			}
			if n > 0 {
				logger.DebugContext(ctx, "remember-me series reaped", "operation", "remember_me_reap", "count", n)
			}
		}
	}
}
