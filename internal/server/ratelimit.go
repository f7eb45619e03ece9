package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Idle buckets are dropped after bucketIdleTTL, checked at most every
// bucketSweepEvery.
const (
	bucketSweepEvery = 5 * time.Minute
	bucketIdleTTL    = 10 * time.Minute
)

// tokenBucket refills at perSecond up to capacity. It is not safe for
// concurrent use; ClientLimiter serializes access.
type tokenBucket struct {
	touched   time.Time
	perSecond float64
	capacity  float64
	tokens    float64
}

func newTokenBucket(perSecond float64, capacity int, now time.Time) *tokenBucket {
	return &tokenBucket{
		touched:   now,
		perSecond: perSecond,
		capacity:  float64(capacity),
		tokens:    float64(capacity),
	}
}

// take refills for the time since the last call and spends one token.
func (b *tokenBucket) take(now time.Time) bool {
	b.tokens = min(b.capacity, b.tokens+now.Sub(b.touched).Seconds()*b.perSecond)
	b.touched = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// ClientLimiter throttles intake traffic per client address so one device
// cannot exhaust consultation codes or model capacity.
type ClientLimiter struct {
	now       func() time.Time
	buckets   map[string]*tokenBucket
	swept     time.Time
	perSecond float64
	burst     int
	rejected  int64
	mu        sync.Mutex
}

// NewClientLimiter allows perSecond requests per client with bursts up to burst.
func NewClientLimiter(perSecond float64, burst int) *ClientLimiter {
	l := &ClientLimiter{
		now:       time.Now,
		buckets:   make(map[string]*tokenBucket),
		perSecond: perSecond,
		burst:     burst,
	}
	l.swept = l.now()
	return l
}

// Allow spends a token from client's bucket.
func (l *ClientLimiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.swept) > bucketSweepEvery {
		for key, b := range l.buckets {
			if now.Sub(b.touched) > bucketIdleTTL {
				delete(l.buckets, key)
			}
		}
		l.swept = now
	}

	b, ok := l.buckets[client]
	if !ok {
		b = newTokenBucket(l.perSecond, l.burst, now)
		l.buckets[client] = b
	}
	if b.take(now) {
		return true
	}
	l.rejected++
	return false
}

// Clients returns the number of tracked client buckets.
func (l *ClientLimiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Rejected returns how many requests have been refused.
func (l *ClientLimiter) Rejected() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rejected
}

// LimitByClient rejects requests over the client's budget with 429. The
// client is X-Real-IP when present, else the connection's remote address.
func LimitByClient(l *ClientLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := r.Header.Get("X-Real-IP")
			if client == "" {
				client = r.RemoteAddr
			}
			if !l.Allow(client) {
				log.Debug().
					Str("client", client).
					Str("path", r.URL.Path).
					Str("request_id", GetRequestID(r.Context())).
					Msg("Rate limited")
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
