package assess

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/thebtf/contraceptiq/internal/apperr"
	"github.com/thebtf/contraceptiq/pkg/models"
)

// DefaultDedupTTL is how long a pending request may be joined before it is
// considered stale.
const DefaultDedupTTL = 30 * time.Second

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// RequestKey derives the deduplication key for an answer set.
// Equal answer sets always yield the same key regardless of map order.
func RequestKey(answers models.PatientAnswers) string {
	sum := sha256.Sum256([]byte(answers.Canonical()))
	return "assessment:" + hex.EncodeToString(sum[:])
}

// call is one in-flight execution shared by every caller with the same key.
type call struct {
	done      chan struct{}
	startedAt time.Time
	err       error
	res       models.RiskAssessment
	waiters   int
}

// Deduplicator collapses concurrent executions for the same key into one.
// At most one entry exists per key; entries older than the TTL are no longer
// joined and are evicted on access or by Sweep.
type Deduplicator struct {
	clock Clock
	calls map[string]*call
	ttl   time.Duration
	mu    sync.Mutex
}

// NewDeduplicator creates a deduplicator. A nil clock uses the system clock.
func NewDeduplicator(ttl time.Duration, clock Clock) *Deduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &Deduplicator{
		clock: clock,
		calls: make(map[string]*call),
		ttl:   ttl,
	}
}

// Do runs fn once for all concurrent callers with the same key. shared is true
// for callers that joined an execution started by someone else.
//
// fn runs detached from the first caller's cancellation so joined callers are
// not failed by it; ctx only bounds how long each caller waits.
func (d *Deduplicator) Do(ctx context.Context, key string, fn func(context.Context) (models.RiskAssessment, error)) (models.RiskAssessment, bool, error) {
	now := d.clock.Now()

	d.mu.Lock()
	if c, ok := d.calls[key]; ok {
		if now.Sub(c.startedAt) < d.ttl {
			c.waiters++
			d.mu.Unlock()
			res, err := d.wait(ctx, c)
			return res, true, err
		}
		delete(d.calls, key)
	}
	c := &call{done: make(chan struct{}), startedAt: now}
	d.calls[key] = c
	d.mu.Unlock()

	go d.run(context.WithoutCancel(ctx), key, c, fn)

	res, err := d.wait(ctx, c)
	return res, false, err
}

func (d *Deduplicator) run(ctx context.Context, key string, c *call, fn func(context.Context) (models.RiskAssessment, error)) {
	c.res, c.err = fn(ctx)

	d.mu.Lock()
	if d.calls[key] == c {
		delete(d.calls, key)
	}
	d.mu.Unlock()

	close(c.done)
}

func (d *Deduplicator) wait(ctx context.Context, c *call) (models.RiskAssessment, error) {
	select {
	case <-c.done:
		return c.res, c.err
	case <-ctx.Done():
		return models.RiskAssessment{}, apperr.New(apperr.KindTimeout, "assess.Deduplicator", "waiting for assessment", ctx.Err())
	}
}

// Sweep evicts entries older than the TTL and returns how many were removed.
// Callers already waiting on an evicted entry still receive its result.
func (d *Deduplicator) Sweep() int {
	now := d.clock.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for key, c := range d.calls {
		if now.Sub(c.startedAt) >= d.ttl {
			delete(d.calls, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of pending entries.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// Waiters returns how many callers joined the pending entry for key.
func (d *Deduplicator) Waiters(key string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.calls[key]; ok {
		return c.waiters
	}
	return 0
}
