package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddressThrottle_PerAddressBuckets(t *testing.T) {
	th := NewAddressThrottle(1, 2)
	now := time.Unix(1_700_000_000, 0)
	th.now = func() time.Time { return now }

	assert.True(t, th.Allow("10.0.0.1"))
	assert.True(t, th.Allow("10.0.0.1"))
	assert.False(t, th.Allow("10.0.0.1"))
	assert.True(t, th.Allow("10.0.0.2"), "other addresses have their own bucket")

	now = now.Add(time.Second)
	assert.True(t, th.Allow("10.0.0.1"))
}

func TestAddressThrottle_SweepsIdleBuckets(t *testing.T) {
	th := NewAddressThrottle(1, 1)
	now := time.Unix(1_700_000_000, 0)
	th.now = func() time.Time { return now }

	th.Allow("10.0.0.1")
	now = now.Add(throttleIdleTTL + time.Minute)
	th.Allow("10.0.0.2")

	th.mu.Lock()
	defer th.mu.Unlock()
	assert.NotContains(t, th.limiters, "10.0.0.1")
	assert.Contains(t, th.limiters, "10.0.0.2")
}

func TestAddressThrottle_Middleware(t *testing.T) {
	th := NewAddressThrottle(0.5, 1)
	h := ClientIP(th.Middleware(nil)(noContent))

	serve := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/code/image", nil)
		req.RemoteAddr = "198.51.100.7:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, serve().Code)
	rec := serve()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"code":"rate_limited"`)
}
