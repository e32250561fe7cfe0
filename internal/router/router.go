// Package router is the single entry point for operation execution: it
// resolves the site, resolves the operation, and drives the per-site
// client stack (auth, rate limiting, caching, invalidation) end to end.
package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wpmcp/wpmcp/internal/auth"
	"github.com/wpmcp/wpmcp/internal/cache"
	"github.com/wpmcp/wpmcp/internal/clock"
	"github.com/wpmcp/wpmcp/internal/config"
	"github.com/wpmcp/wpmcp/internal/errors"
	"github.com/wpmcp/wpmcp/internal/httpcache"
	"github.com/wpmcp/wpmcp/internal/invalidation"
	"github.com/wpmcp/wpmcp/internal/metrics"
	"github.com/wpmcp/wpmcp/internal/ratelimit"
	"github.com/wpmcp/wpmcp/internal/request"
	"github.com/wpmcp/wpmcp/internal/retry"
	"github.com/wpmcp/wpmcp/internal/wordpress"
)

// Meta is execution provenance returned alongside every result. The
// pagination totals are pointers so a zero-item list stays
// distinguishable from the upstream omitting the headers.
type Meta struct {
	ExecutionID string `json:"executionId"`
	Site        string `json:"site"`
	Operation   string `json:"operation"`
	FromCache   bool   `json:"fromCache"`
	StatusCode  int    `json:"statusCode"`
	ElapsedMS   int64  `json:"elapsedMillis"`
	Retries     int    `json:"retries"`
	TotalItems  *int   `json:"totalItems,omitempty"`
	TotalPages  *int   `json:"totalPages,omitempty"`
}

// Result is a completed operation.
type Result struct {
	Body json.RawMessage `json:"body"`
	Meta Meta            `json:"meta"`
}

// site bundles the per-site stack.
type site struct {
	cfg     config.SiteConfig
	auth    *auth.Manager
	req     *request.Manager
	store   *cache.Store
	wrapper *httpcache.Wrapper
	inval   *invalidation.Engine
	limiter *ratelimit.SiteLimiter
}

// Router routes operations to sites.
type Router struct {
	sites     map[string]*site
	gate      *ratelimit.Gate
	detector  *wordpress.Detector
	collector *metrics.Collector
	clk       clock.Clock
	logger    *zap.Logger
}

// New builds the full per-site stacks from configuration. The collector
// may be nil when metrics are disabled.
func New(cfg *config.Config, collector *metrics.Collector, clk clock.Clock, logger *zap.Logger) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Router{
		sites:     make(map[string]*site, len(cfg.Sites)),
		gate:      ratelimit.NewGate(cfg.MaxConcurrent),
		detector:  wordpress.NewDetector(time.Hour),
		collector: collector,
		clk:       clk,
		logger:    logger,
	}

	for _, sc := range cfg.Sites {
		s := &site{
			cfg:     sc,
			limiter: ratelimit.NewSiteLimiter(sc.RatePerMinute, sc.Burst),
		}
		if collector != nil {
			siteID := sc.ID
			s.limiter.OnWait = func() { collector.RecordRateWait(siteID) }
		}
		s.auth = auth.NewManager(sc.ID, sc.BaseURL, sc.Auth, nil, clk, logger)
		s.req = request.New(request.Options{
			SiteID:        sc.ID,
			BaseURL:       sc.BaseURL,
			Timeout:       sc.Timeout,
			UploadTimeout: sc.UploadTimeout,
			RetryAttempts: sc.RetryAttempts,
		}, s.auth, s.limiter, r.gate, clk, logger)

		if sc.CacheOn() {
			s.store = cache.New(sc.CacheMaxBytes, clk)
			s.inval = invalidation.New(sc.ID, s.store, logger)
		}
		s.wrapper = httpcache.New(sc.ID, s.store, s.req, sc.CacheOn(), sc.CacheTTL, clk, logger)

		r.sites[sc.ID] = s
	}
	return r, nil
}

// Execute runs one named operation against one site. It is the only way
// callers reach upstream.
func (r *Router) Execute(ctx context.Context, siteID, opName string, params map[string]any) (*Result, error) {
	s, ok := r.sites[siteID]
	if !ok {
		return nil, errors.Newf(errors.KindUnknownSite, "unknown site %q", siteID)
	}
	op, ok := wordpress.Lookup(opName)
	if !ok {
		return nil, errors.Newf(errors.KindUnknownOperation, "unknown operation %q", opName)
	}

	execID := uuid.NewString()
	log := r.logger.With(
		zap.String("executionId", execID),
		zap.String("siteId", siteID),
		zap.String("operation", opName))

	if op.Plugin != "" {
		if err := r.checkPlugin(ctx, s, op); err != nil {
			return nil, err
		}
	}

	start := r.clk.Now()
	res, err := r.dispatch(ctx, s, op, params)
	elapsed := r.clk.Now().Sub(start)

	if err != nil {
		kind := string(errors.KindOf(err))
		log.Warn("operation failed",
			zap.String("event", "op.error"),
			zap.String("kind", kind),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		r.record(siteID, opName, kind, elapsed, nil)
		return nil, err
	}

	meta := Meta{
		ExecutionID: execID,
		Site:        siteID,
		Operation:   opName,
		FromCache:   res.FromCache,
		StatusCode:  res.StatusCode,
		ElapsedMS:   elapsed.Milliseconds(),
		Retries:     res.Retries,
	}
	if res.TotalItems >= 0 {
		n := res.TotalItems
		meta.TotalItems = &n
	}
	if res.TotalPages >= 0 {
		n := res.TotalPages
		meta.TotalPages = &n
	}

	log.Info("operation completed",
		zap.String("event", "op.done"),
		zap.Int("status", res.StatusCode),
		zap.Bool("fromCache", res.FromCache),
		zap.Int("retries", res.Retries),
		zap.Duration("elapsed", elapsed))
	r.record(siteID, opName, "ok", elapsed, res)

	return &Result{Body: res.Body, Meta: meta}, nil
}

// dispatch sends reads through the cache wrapper and mutations straight
// to the request manager, invalidating afterwards.
func (r *Router) dispatch(ctx context.Context, s *site, op *wordpress.Operation, params map[string]any) (*httpcache.Result, error) {
	if !op.IsMutation() {
		return s.wrapper.Fetch(ctx, op, params)
	}

	resp, err := s.req.Do(ctx, op, params)
	if err != nil {
		return nil, err
	}

	if s.inval != nil {
		if ev, ok := invalidation.ExtractEvent(op, params, resp.Body); ok {
			s.inval.Apply(ev)
		}
	}

	return &httpcache.Result{
		Body:       resp.Body,
		StatusCode: resp.StatusCode,
		Retries:    resp.Retries,
		Elapsed:    resp.Elapsed,
		TotalItems: resp.TotalItems,
		TotalPages: resp.TotalPages,
	}, nil
}

// checkPlugin rejects plugin-gated operations when the site does not
// expose the plugin's REST namespace.
func (r *Router) checkPlugin(ctx context.Context, s *site, op *wordpress.Operation) error {
	switch op.Plugin {
	case "seo":
		if r.detector.SEOPlugin(ctx, s.cfg.ID, s.req.Probe) == "" {
			return errors.Newf(errors.KindUnknownOperation,
				"operation %q requires an SEO plugin the site does not have", op.Name)
		}
		return nil
	default:
		return errors.Newf(errors.KindUnknownOperation, "operation %q gated on unknown plugin %q", op.Name, op.Plugin)
	}
}

func (r *Router) record(siteID, opName, outcome string, elapsed time.Duration, res *httpcache.Result) {
	if r.collector == nil {
		return
	}
	if res != nil && res.FromCache {
		r.collector.RecordCacheHit(siteID, opName)
		r.collector.RecordRequest(siteID, opName, "cached", elapsed)
		return
	}
	if res != nil {
		if op, ok := wordpress.Lookup(opName); ok && op.Cacheable() {
			r.collector.RecordCacheMiss(siteID, opName)
		}
		r.collector.RecordRetries(siteID, opName, res.Retries)
	}
	r.collector.RecordRequest(siteID, opName, outcome, elapsed)
	if s, ok := r.sites[siteID]; ok {
		r.collector.SetBreakerState(siteID, s.req.BreakerState())
	}
}

// Sites lists configured site ids, for discovery surfaces.
func (r *Router) Sites() []config.SiteConfig {
	out := make([]config.SiteConfig, 0, len(r.sites))
	for _, s := range r.sites {
		out = append(out, s.cfg)
	}
	return out
}

// Auth returns a site's auth manager, for login and switch flows.
func (r *Router) Auth(siteID string) (*auth.Manager, error) {
	s, ok := r.sites[siteID]
	if !ok {
		return nil, errors.Newf(errors.KindUnknownSite, "unknown site %q", siteID)
	}
	return s.auth, nil
}

// SiteStats is a diagnostics snapshot for one site.
type SiteStats struct {
	Site      string          `json:"site"`
	AuthState string          `json:"authState"`
	Cache     *cache.Stats    `json:"cache,omitempty"`
	Flight    httpcache.Stats `json:"flight"`
	Rate      ratelimit.Stats `json:"rate"`
	Retry     retry.Stats     `json:"retry"`
	Breaker   int             `json:"breakerState"`
}

// Stats snapshots every site's counters.
func (r *Router) Stats() []SiteStats {
	out := make([]SiteStats, 0, len(r.sites))
	for id, s := range r.sites {
		st := SiteStats{
			Site:      id,
			AuthState: s.auth.State().String(),
			Flight:    s.wrapper.Stats(),
			Rate:      s.limiter.Stats(),
			Retry:     s.req.RetryStats(),
			Breaker:   s.req.BreakerState(),
		}
		if s.store != nil {
			cs := s.store.Stats()
			st.Cache = &cs
		}
		out = append(out, st)
	}
	return out
}

// ClearCache empties a site's cache, or every site's when siteID is "".
func (r *Router) ClearCache(siteID string) error {
	if siteID == "" {
		for _, s := range r.sites {
			if s.store != nil {
				s.store.Clear()
			}
		}
		return nil
	}
	s, ok := r.sites[siteID]
	if !ok {
		return errors.Newf(errors.KindUnknownSite, "unknown site %q", siteID)
	}
	if s.store != nil {
		s.store.Clear()
	}
	return nil
}
