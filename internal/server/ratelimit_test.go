package server

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// steppedClock is a manual time source for limiter tests.
type steppedClock struct {
	t time.Time
}

func (c *steppedClock) now() time.Time { return c.t }

func (c *steppedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func limiterWithClock(perSecond float64, burst int) (*ClientLimiter, *steppedClock) {
	clock := &steppedClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	l := NewClientLimiter(perSecond, burst)
	l.now = clock.now
	l.swept = clock.now()
	return l, clock
}

func TestClientLimiter_Burst(t *testing.T) {
	l, _ := limiterWithClock(1, 3)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"), "burst exhausted")
	assert.EqualValues(t, 1, l.Rejected())
}

func TestClientLimiter_Refill(t *testing.T) {
	l, clock := limiterWithClock(2, 1)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	clock.advance(250 * time.Millisecond)
	assert.False(t, l.Allow("a"), "half a token is not enough")

	clock.advance(250 * time.Millisecond)
	assert.True(t, l.Allow("a"))
}

func TestClientLimiter_RefillCapsAtBurst(t *testing.T) {
	l, clock := limiterWithClock(10, 2)

	clock.advance(time.Hour)
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestClientLimiter_SeparateBuckets(t *testing.T) {
	l, _ := limiterWithClock(0.001, 1)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "other clients keep their own bucket")

	assert.Equal(t, 2, l.Clients())
	assert.EqualValues(t, 1, l.Rejected())
}

func TestClientLimiter_SweepsIdleBuckets(t *testing.T) {
	l, clock := limiterWithClock(1, 1)

	l.Allow("10.0.0.1")
	clock.advance(bucketIdleTTL - time.Minute)
	l.Allow("10.0.0.2")
	assert.Equal(t, 2, l.Clients())

	clock.advance(bucketSweepEvery + time.Minute)
	l.Allow("10.0.0.2")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.buckets, "10.0.0.1")
	assert.Contains(t, l.buckets, "10.0.0.2")
}

func TestClientLimiter_Concurrent(t *testing.T) {
	l := NewClientLimiter(0.001, 50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func TestLimitByClient(t *testing.T) {
	handler := LimitByClient(NewClientLimiter(0.001, 1))(okHandler())

	first := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set("X-Real-IP", "192.0.2.10")
	handler.ServeHTTP(first, req)
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))

	other := httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set("X-Real-IP", "192.0.2.11")
	handler.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestServer_RateLimitWired(t *testing.T) {
	srv := New(Config{RateLimit: 0.001, RateBurst: 1}, newFakeModel(highRisk), nil)

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
