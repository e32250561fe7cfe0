// Package retry decides whether a failed HTTP attempt is worth repeating
// and how long to wait before it. Mutations only retry when the failure
// provably happened before any bytes reached the server, or when the
// upstream explicitly asked for a retry via Retry-After.
package retry

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wpmcp/wpmcp/internal/clock"
)

// Defaults per the client contract.
const (
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 10 * time.Second
	DefaultMultiplier     = 2.0
	DefaultJitter         = 0.2
)

// Policy classifies failures and produces backoff schedules.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         float64

	clk clock.Clock

	// Counters across all requests using this policy.
	retries   atomic.Int64
	exhausted atomic.Int64
}

// NewPolicy creates a policy allowing maxRetries retries after the first
// attempt.
func NewPolicy(maxRetries int, clk clock.Clock) *Policy {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Policy{
		MaxRetries:     maxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		Multiplier:     DefaultMultiplier,
		Jitter:         DefaultJitter,
		clk:            clk,
	}
}

// Schedule is the per-request backoff state.
type Schedule struct {
	policy  *Policy
	bo      *backoff.ExponentialBackOff
	attempt int
}

// NewSchedule starts a fresh backoff sequence for one logical request.
func (p *Policy) NewSchedule() *Schedule {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialBackoff
	bo.Multiplier = p.Multiplier
	bo.RandomizationFactor = p.Jitter
	bo.MaxInterval = p.MaxBackoff
	bo.MaxElapsedTime = 0 // bounded by attempts and the request deadline
	bo.Reset()
	return &Schedule{policy: p, bo: bo}
}

// Attempts returns the number of attempts consumed so far.
func (s *Schedule) Attempts() int { return s.attempt }

// RecordAttempt marks one HTTP attempt as consumed.
func (s *Schedule) RecordAttempt() { s.attempt++ }

// Exhausted reports whether no retries remain.
func (s *Schedule) Exhausted() bool {
	return s.attempt > s.policy.MaxRetries
}

// Wait sleeps the computed backoff, stretched to retryAfter when the server
// asked for a longer pause. It returns early with the context error on
// cancellation.
func (s *Schedule) Wait(ctx context.Context, retryAfter time.Duration) error {
	d := s.bo.NextBackOff()
	if retryAfter > d {
		d = retryAfter
	}
	s.policy.retries.Add(1)
	return s.policy.clk.Sleep(ctx, d)
}

// Decision says what to do with a finished attempt.
type Decision int

const (
	// Return hands the outcome to the caller as-is.
	Return Decision = iota
	// Retry schedules another attempt.
	Retry
)

// Classify decides whether an attempt outcome warrants a retry.
//
// err is non-nil for transport-level failures; status is the HTTP status of
// a completed exchange. bytesSent reports whether any request body bytes may
// have reached the server, which forbids blind retries of mutations.
func (p *Policy) Classify(idempotent bool, err error, status int, retryAfter time.Duration, bytesSent bool) Decision {
	if err != nil {
		// Connection-level failure. Idempotent operations always retry;
		// mutations only when the request never left the client.
		if idempotent || !bytesSent {
			return Retry
		}
		return Return
	}

	switch {
	case status == http.StatusTooManyRequests && (idempotent || retryAfter > 0):
		return Retry
	case status == http.StatusServiceUnavailable && (idempotent || retryAfter > 0):
		return Retry
	case status >= 500 && idempotent:
		return Retry
	}
	return Return
}

// RecordExhausted notes a request that ran out of retries.
func (p *Policy) RecordExhausted() { p.exhausted.Add(1) }

// Stats is a snapshot of policy counters.
type Stats struct {
	Retries   int64 `json:"retries"`
	Exhausted int64 `json:"exhausted"`
}

// Stats returns a point-in-time copy of the counters.
func (p *Policy) Stats() Stats {
	return Stats{
		Retries:   p.retries.Load(),
		Exhausted: p.exhausted.Load(),
	}
}

// ParseRetryAfter parses a Retry-After header value, either delta-seconds or
// an HTTP date. Zero means absent or unparsable.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
