package httpcache

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wpmcp/wpmcp/internal/cache"
	"github.com/wpmcp/wpmcp/internal/clock"
	"github.com/wpmcp/wpmcp/internal/errors"
	"github.com/wpmcp/wpmcp/internal/request"
	"github.com/wpmcp/wpmcp/internal/wordpress"
)

// Fetcher is the slice of the request manager the wrapper needs.
type Fetcher interface {
	DoParts(ctx context.Context, op *wordpress.Operation, parts *wordpress.RequestParts, extra http.Header) (*request.Response, error)
}

// Result is a fetch outcome with cache provenance.
type Result struct {
	Body       []byte
	StatusCode int
	FromCache  bool
	Retries    int
	Elapsed    time.Duration
	TotalItems int
	TotalPages int
}

// negativeTTL is the lifetime of cached 404s, protecting discovery loops
// from hammering missing resources.
var negativeTTL = wordpress.CacheShort.TTL()

// Wrapper applies cache semantics for one site.
type Wrapper struct {
	siteID  string
	store   *cache.Store
	fetch   Fetcher
	enabled bool
	ttlCap  time.Duration
	clk     clock.Clock
	logger  *zap.Logger

	group singleflight.Group

	flights       atomic.Int64
	joins         atomic.Int64
	revalidations atomic.Int64
}

// New creates a wrapper over a site's store and request manager. A
// non-zero ttlCap bounds every stored entry's lifetime below its
// operation's cache class.
func New(siteID string, store *cache.Store, fetch Fetcher, enabled bool, ttlCap time.Duration, clk clock.Clock, logger *zap.Logger) *Wrapper {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Wrapper{
		siteID:  siteID,
		store:   store,
		fetch:   fetch,
		enabled: enabled,
		ttlCap:  ttlCap,
		clk:     clk,
		logger:  logger.With(zap.String("siteId", siteID)),
	}
}

// Fetch serves an operation, from cache when possible. Concurrent misses on
// the same key share one upstream call.
func (w *Wrapper) Fetch(ctx context.Context, op *wordpress.Operation, params map[string]any) (*Result, error) {
	parts, err := op.Bind(params)
	if err != nil {
		return nil, err
	}

	if !w.enabled || !op.Cacheable() {
		resp, err := w.fetch.DoParts(ctx, op, parts, nil)
		if err != nil {
			return nil, err
		}
		return fromResponse(resp, false), nil
	}

	key := Key(w.siteID, op.Name, params)

	if res, served, err := w.serveFromCache(key); served {
		return res, err
	}

	return w.flight(ctx, key, op, parts)
}

// serveFromCache returns a live entry, reconstructing negative results.
// A corrupt stored body is evicted and reported as a miss so the caller
// refetches upstream once.
func (w *Wrapper) serveFromCache(key string) (*Result, bool, error) {
	e, ok := w.store.Get(key)
	if !ok {
		return nil, false, nil
	}
	if e.StatusCode == http.StatusNotFound {
		return nil, true, errors.New(errors.KindUpstreamClient, "Not Found").WithStatus(http.StatusNotFound)
	}
	if len(e.Body) > 0 && !json.Valid(e.Body) {
		w.store.Delete(key)
		w.logger.Warn("evicted corrupt cache entry",
			zap.String("event", "cache.corruption"), zap.String("key", key))
		return nil, false, nil
	}
	return &Result{
		Body:       e.Body,
		StatusCode: e.StatusCode,
		FromCache:  true,
		TotalItems: headerInt(e.Headers, "X-WP-Total"),
		TotalPages: headerInt(e.Headers, "X-WP-TotalPages"),
	}, true, nil
}

// flight joins or starts the single-flight fetch for key. The leader runs
// on a context detached from its caller, so one joiner cancelling never
// kills the shared upstream call; the group entry is forgotten on failure.
func (w *Wrapper) flight(ctx context.Context, key string, op *wordpress.Operation, parts *wordpress.RequestParts) (*Result, error) {
	detached := context.WithoutCancel(ctx)

	ch := w.group.DoChan(key, func() (any, error) {
		w.flights.Add(1)
		res, err := w.fetchUpstream(detached, key, op, parts)
		if err != nil {
			w.group.Forget(key)
		}
		return res, err
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			w.joins.Add(1)
		}
		return r.Val.(*Result), nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrap(ctx.Err(), errors.KindTimeout, "deadline exceeded while awaiting shared fetch")
		}
		return nil, errors.Wrap(ctx.Err(), errors.KindCancelled, "cancelled while awaiting shared fetch")
	}
}

func (w *Wrapper) fetchUpstream(ctx context.Context, key string, op *wordpress.Operation, parts *wordpress.RequestParts) (*Result, error) {
	// A stale entry still inside the grace window rides along as a
	// validator; a 304 refreshes it in place.
	validators := http.Header{}
	if stale := w.staleEntry(key); stale != nil {
		if stale.ETag != "" {
			validators.Set("If-None-Match", stale.ETag)
		}
		if stale.LastModified != "" {
			validators.Set("If-Modified-Since", stale.LastModified)
		}
	}
	if len(validators) == 0 {
		validators = nil
	}

	resp, err := w.fetch.DoParts(ctx, op, parts, validators)
	if err != nil {
		if e, ok := errors.AsError(err); ok && e.Status == http.StatusNotFound {
			w.store.Set(key, &cache.Entry{StatusCode: http.StatusNotFound}, w.capTTL(negativeTTL))
		}
		return nil, err
	}

	if resp.StatusCode == http.StatusNotModified {
		w.revalidations.Add(1)
		ttl := w.capTTL(op.CacheClass.TTL())
		if w.store.Touch(key, ttl) {
			if res, served, err := w.serveFromCache(key); served {
				return res, err
			}
		}
		// The stale entry vanished under us; refetch without validators.
		resp, err = w.fetch.DoParts(ctx, op, parts, nil)
		if err != nil {
			return nil, err
		}
	}

	if resp.OK() {
		w.storeResponse(key, op, resp)
	}
	return fromResponse(resp, false), nil
}

// staleEntry returns an expired-but-graceful entry carrying validators.
func (w *Wrapper) staleEntry(key string) *cache.Entry {
	e, fresh := w.store.Peek(key)
	if e == nil || fresh {
		return nil
	}
	if e.ETag == "" && e.LastModified == "" {
		return nil
	}
	if w.clk.Now().After(e.StoredAt.Add(e.TTL + e.Grace)) {
		return nil
	}
	return e
}

// capTTL applies the site-configured lifetime bound, when set.
func (w *Wrapper) capTTL(ttl time.Duration) time.Duration {
	if w.ttlCap > 0 && w.ttlCap < ttl {
		return w.ttlCap
	}
	return ttl
}

func (w *Wrapper) storeResponse(key string, op *wordpress.Operation, resp *request.Response) {
	ttl := w.capTTL(op.CacheClass.TTL())
	if ma := maxAge(resp.Headers.Get("Cache-Control")); ma > 0 && ma < ttl {
		ttl = ma
	}
	headers := map[string]string{}
	for _, h := range []string{"X-WP-Total", "X-WP-TotalPages", "Content-Type"} {
		if v := resp.Headers.Get(h); v != "" {
			headers[h] = v
		}
	}
	w.store.Set(key, &cache.Entry{
		Body:         resp.Body,
		Headers:      headers,
		StatusCode:   resp.StatusCode,
		ETag:         resp.Headers.Get("ETag"),
		LastModified: resp.Headers.Get("Last-Modified"),
		Grace:        op.CacheClass.Grace(),
	}, ttl)
}

// Stats is a snapshot of wrapper counters.
type Stats struct {
	Flights       int64 `json:"flights"`
	Joins         int64 `json:"joins"`
	Revalidations int64 `json:"revalidations"`
}

// Stats returns the single-flight counters; store counters live on the
// cache store itself.
func (w *Wrapper) Stats() Stats {
	return Stats{
		Flights:       w.flights.Load(),
		Joins:         w.joins.Load(),
		Revalidations: w.revalidations.Load(),
	}
}

func fromResponse(resp *request.Response, fromCache bool) *Result {
	return &Result{
		Body:       resp.Body,
		StatusCode: resp.StatusCode,
		FromCache:  fromCache,
		Retries:    resp.Retries,
		Elapsed:    resp.Elapsed,
		TotalItems: resp.TotalItems,
		TotalPages: resp.TotalPages,
	}
}

// maxAge extracts max-age from a Cache-Control value, zero when absent.
func maxAge(cc string) time.Duration {
	for _, part := range strings.Split(cc, ",") {
		part = strings.TrimSpace(part)
		if rest, ok := strings.CutPrefix(part, "max-age="); ok {
			if secs, err := strconv.Atoi(rest); err == nil && secs >= 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return 0
}

func headerInt(h map[string]string, name string) int {
	v, ok := h[name]
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}
