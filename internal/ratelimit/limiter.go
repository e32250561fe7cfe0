// Package ratelimit bounds outbound traffic: a token bucket per site plus a
// process-wide cap on concurrent upstream requests. One acquired token
// covers exactly one HTTP attempt; retries acquire again.
package ratelimit

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/wpmcp/wpmcp/internal/errors"
)

// SiteLimiter is the per-site token bucket.
type SiteLimiter struct {
	limiter *rate.Limiter

	// OnWait, when set, fires each time an acquisition has to block.
	// Assign before first use; not synchronized.
	OnWait func()

	granted atomic.Int64
	waited  atomic.Int64
	denied  atomic.Int64
}

// NewSiteLimiter creates a limiter refilling ratePerMinute tokens per minute
// with the given burst capacity.
func NewSiteLimiter(ratePerMinute, burst int) *SiteLimiter {
	if ratePerMinute <= 0 {
		ratePerMinute = 600
	}
	if burst <= 0 {
		burst = 10
	}
	rps := float64(ratePerMinute) / time.Minute.Seconds()
	return &SiteLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Acquire blocks until a token is available or the context ends. The wait is
// implicitly capped by the request deadline carried in ctx.
func (l *SiteLimiter) Acquire(ctx context.Context) error {
	if l.limiter.Allow() {
		l.granted.Add(1)
		return nil
	}
	l.waited.Add(1)
	if l.OnWait != nil {
		l.OnWait()
	}
	if err := l.limiter.Wait(ctx); err != nil {
		l.denied.Add(1)
		return classifyWaitErr(ctx, err)
	}
	l.granted.Add(1)
	return nil
}

func classifyWaitErr(ctx context.Context, err error) error {
	switch {
	case stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		return errors.Wrap(err, errors.KindTimeout, "rate limit wait exceeded deadline")
	case stderrors.Is(ctx.Err(), context.Canceled):
		return errors.Wrap(err, errors.KindCancelled, "rate limit wait cancelled")
	default:
		// rate.Wait also fails when the required wait exceeds the deadline
		// before any sleeping happens.
		return errors.Wrap(err, errors.KindRateLimited, "rate budget exhausted")
	}
}

// Stats is a snapshot of limiter counters.
type Stats struct {
	Granted int64 `json:"granted"`
	Waited  int64 `json:"waited"`
	Denied  int64 `json:"denied"`
}

// Stats returns a point-in-time copy of the counters.
func (l *SiteLimiter) Stats() Stats {
	return Stats{
		Granted: l.granted.Load(),
		Waited:  l.waited.Load(),
		Denied:  l.denied.Load(),
	}
}

// Gate bounds total concurrent outbound requests across all sites.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate creates a gate admitting at most n concurrent requests.
func NewGate(n int64) *Gate {
	if n <= 0 {
		n = 32
	}
	return &Gate{sem: semaphore.NewWeighted(n)}
}

// Enter blocks until a slot is free. The returned release function must be
// called exactly once when the HTTP attempt completes.
func (g *Gate) Enter(ctx context.Context) (func(), error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrap(err, errors.KindTimeout, "concurrency gate wait exceeded deadline")
		}
		return nil, errors.Wrap(err, errors.KindCancelled, "concurrency gate wait cancelled")
	}
	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			g.sem.Release(1)
		}
	}, nil
}
