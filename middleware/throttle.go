package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrEthical07/formauth"
)

const throttleIdleTTL = 10 * time.Minute

type addressLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// AddressThrottle is a token bucket per client address. Idle buckets are
// swept on access.
type AddressThrottle struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	limiters  map[string]*addressLimiter
	lastSweep time.Time
	now       func() time.Time
}

// NewAddressThrottle allows each client address perSecond requests with
// the given burst.
func NewAddressThrottle(perSecond float64, burst int) *AddressThrottle {
	if burst < 1 {
		burst = 1
	}
	return &AddressThrottle{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*addressLimiter),
		now:      time.Now,
	}
}

// Allow consumes one token for addr.
func (t *AddressThrottle) Allow(addr string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if now.Sub(t.lastSweep) > throttleIdleTTL {
		for k, l := range t.limiters {
			if now.Sub(l.lastAccess) > throttleIdleTTL {
				delete(t.limiters, k)
			}
		}
		t.lastSweep = now
	}

	l, ok := t.limiters[addr]
	if !ok {
		l = &addressLimiter{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.limiters[addr] = l
	}
	l.lastAccess = now
	return l.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header. The address comes from [formauth.ClientIPFromContext], so
// [ClientIP] must run first.
func (t *AddressThrottle) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	retryAfter := 1
	if t.limit > 0 {
		retryAfter = int(math.Ceil(1 / float64(t.limit)))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := formauth.ClientIPFromContext(r.Context())
			if !t.Allow(addr) {
				logger.WarnContext(r.Context(), "rate limit exceeded",
					"path", r.URL.Path,
					"client_ip", addr,
				)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				WriteError(w, http.StatusTooManyRequests, formauth.RateLimited.String(), "Too many requests, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
