// Package request serializes one WordPress REST call: parameter binding,
// auth header injection, rate gating, transport, retries, and response
// classification. A per-site circuit breaker sheds load from a flapping
// upstream before any rate token is spent.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/wpmcp/wpmcp/internal/clock"
	"github.com/wpmcp/wpmcp/internal/errors"
	"github.com/wpmcp/wpmcp/internal/ratelimit"
	"github.com/wpmcp/wpmcp/internal/retry"
	"github.com/wpmcp/wpmcp/internal/wordpress"
)

// Response is one completed upstream exchange.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte

	Retries int
	Elapsed time.Duration

	// Pagination metadata from X-WP-Total / X-WP-TotalPages, -1 when absent.
	TotalItems int
	TotalPages int
}

// OK reports whether the status is a 2xx success.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// AuthProvider is the slice of the auth manager the request path needs.
type AuthProvider interface {
	Headers(ctx context.Context) (http.Header, error)
	Refresh(ctx context.Context) error
}

// Options configures a Manager.
type Options struct {
	SiteID        string
	BaseURL       string
	Timeout       time.Duration
	UploadTimeout time.Duration
	RetryAttempts int
	ChunkSize     int

	// OnUploadProgress, when set, is called as multipart bytes stream out.
	OnUploadProgress func(file string, sent, total int64)
}

// Manager performs HTTP calls for one site.
type Manager struct {
	opts    Options
	hc      *http.Client
	auth    AuthProvider
	limiter *ratelimit.SiteLimiter
	gate    *ratelimit.Gate
	policy  *retry.Policy
	breaker *gobreaker.CircuitBreaker[*Response]
	clk     clock.Clock
	logger  *zap.Logger
}

// New creates a request manager. The transport enables connection reuse
// with a 10 s dial timeout; total time is bounded by the context deadline
// set per call.
func New(opts Options, auth AuthProvider, limiter *ratelimit.SiteLimiter, gate *ratelimit.Gate, clk clock.Clock, logger *zap.Logger) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = 120 * time.Second
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 64 << 10
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	m := &Manager{
		opts:    opts,
		hc:      &http.Client{Transport: transport},
		auth:    auth,
		limiter: limiter,
		gate:    gate,
		policy:  retry.NewPolicy(opts.RetryAttempts, clk),
		clk:     clk,
		logger:  logger.With(zap.String("siteId", opts.SiteID)),
	}
	m.breaker = gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:    opts.SiteID,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Only transport-level trouble counts against the breaker;
			// client errors mean the upstream is alive.
			k := errors.KindOf(err)
			return err == nil || (k != errors.KindTransportError && k != errors.KindUpstreamUnavailable && k != errors.KindTimeout)
		},
	})
	return m
}

// Do binds params against the descriptor and performs the call.
func (m *Manager) Do(ctx context.Context, op *wordpress.Operation, params map[string]any) (*Response, error) {
	parts, err := op.Bind(params)
	if err != nil {
		return nil, err
	}
	return m.DoParts(ctx, op, parts, nil)
}

// DoParts performs the call with pre-bound parts. extra headers (cache
// validators) are added on top of auth headers.
func (m *Manager) DoParts(ctx context.Context, op *wordpress.Operation, parts *wordpress.RequestParts, extra http.Header) (*Response, error) {
	timeout := m.opts.Timeout
	if op.Streamable {
		timeout = m.opts.UploadTimeout
	}
	if _, has := ctx.Deadline(); !has {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := m.clk.Now()
	resp, err := m.breaker.Execute(func() (*Response, error) {
		return m.attemptLoop(ctx, op, parts, extra)
	})
	if err != nil {
		if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errors.New(errors.KindUpstreamUnavailable, "site temporarily unavailable (circuit open)")
		}
		return nil, err
	}
	resp.Elapsed = m.clk.Now().Sub(start)
	return resp, nil
}

// attemptLoop drives attempts under the retry policy and the 401 refresh
// contract: exactly one in-line refresh+retry, a second 401 surfaces
// AuthExpired.
func (m *Manager) attemptLoop(ctx context.Context, op *wordpress.Operation, parts *wordpress.RequestParts, extra http.Header) (*Response, error) {
	schedule := m.policy.NewSchedule()
	refreshed := false

	var lastErr error
	for {
		resp, bytesSent, err := m.attempt(ctx, op, parts, extra)
		schedule.RecordAttempt()

		// Failures before the wire that already carry a terminal kind
		// (invalid params, rate denial, auth trouble) are not transport
		// flakes; retrying them changes nothing.
		if err != nil {
			if k := errors.KindOf(err); k != "" && !errors.IsRetryableKind(k) {
				return nil, err
			}
		}

		if err == nil && resp.StatusCode == http.StatusUnauthorized {
			if refreshed {
				return nil, errors.New(errors.KindAuthExpired, "credentials rejected after refresh").
					WithStatus(resp.StatusCode).WithExcerpt(resp.Body)
			}
			refreshed = true
			if rerr := m.auth.Refresh(ctx); rerr != nil {
				if errors.KindOf(rerr) == errors.KindAuthMethodUnsupported {
					return nil, errors.New(errors.KindAuthExpired, "credentials rejected").
						WithStatus(resp.StatusCode).WithExcerpt(resp.Body)
				}
				return nil, rerr
			}
			// The refresh attempt does not consume a retry.
			continue
		}

		if err == nil && !isRetryableStatus(resp.StatusCode) {
			resp.Retries = schedule.Attempts() - 1
			return m.finish(op, resp)
		}

		// Transient failure: consult the policy.
		var retryAfter time.Duration
		status := 0
		if err == nil {
			status = resp.StatusCode
			retryAfter = retry.ParseRetryAfter(resp.Headers.Get("Retry-After"), m.clk.Now())
		}
		decision := m.policy.Classify(op.Idempotent, err, status, retryAfter, bytesSent)

		if decision != retry.Retry || schedule.Exhausted() {
			if decision == retry.Retry {
				m.policy.RecordExhausted()
			}
			if err != nil {
				return nil, m.classifyTransport(ctx, err)
			}
			resp.Retries = schedule.Attempts() - 1
			return m.finish(op, resp)
		}

		lastErr = err
		if werr := schedule.Wait(ctx, retryAfter); werr != nil {
			if lastErr != nil {
				return nil, m.classifyTransport(ctx, lastErr)
			}
			return nil, errors.Wrap(werr, errors.KindCancelled, "retry backoff interrupted")
		}
		m.logger.Debug("retrying request",
			zap.String("event", "request.retry"),
			zap.String("op", op.Name),
			zap.Int("attempt", schedule.Attempts()),
			zap.Int("status", status))
	}
}

// attempt performs one HTTP exchange. bytesSent reports whether request
// body bytes may have reached the server.
func (m *Manager) attempt(ctx context.Context, op *wordpress.Operation, parts *wordpress.RequestParts, extra http.Header) (*Response, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	authHeaders, err := m.auth.Headers(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := m.limiter.Acquire(ctx); err != nil {
		return nil, false, err
	}
	release, err := m.gate.Enter(ctx)
	if err != nil {
		return nil, false, err
	}
	defer release()

	req, err := m.buildRequest(ctx, op, parts)
	if err != nil {
		return nil, false, err
	}
	for k, vs := range authHeaders {
		req.Header[k] = vs
	}
	for k, vs := range extra {
		req.Header[k] = vs
	}

	httpResp, err := m.hc.Do(req)
	if err != nil {
		return nil, bytesMayHaveBeenSent(err), err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 32<<20))
	if err != nil {
		return nil, true, err
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
		TotalItems: headerInt(httpResp.Header, "X-WP-Total"),
		TotalPages: headerInt(httpResp.Header, "X-WP-TotalPages"),
	}, true, nil
}

func (m *Manager) buildRequest(ctx context.Context, op *wordpress.Operation, parts *wordpress.RequestParts) (*http.Request, error) {
	u := m.opts.BaseURL + parts.Path
	if enc := parts.Query.Encode(); enc != "" {
		u += "?" + enc
	}

	if parts.FilePath != "" {
		return m.buildMultipartRequest(ctx, op, u, parts)
	}

	var body io.Reader
	var contentType string
	if parts.Body != nil {
		raw, err := json.Marshal(parts.Body)
		if err != nil {
			return nil, errors.Wrap(err, errors.KindParamInvalid, "encoding request body")
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, u, body)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindTransportError, "building request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// finish maps terminal statuses to error kinds, decoding nothing: callers
// own interpretation of the JSON body.
func (m *Manager) finish(op *wordpress.Operation, resp *Response) (*Response, error) {
	switch {
	case resp.OK():
		if !op.Streamable && len(resp.Body) > 0 && !json.Valid(resp.Body) {
			return nil, errors.New(errors.KindUpstreamUnavailable, "upstream returned malformed JSON").
				WithStatus(resp.StatusCode)
		}
		return resp, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return resp, errors.New(errors.KindUpstreamRateLimited, "upstream rate limit").
			WithStatus(resp.StatusCode).WithExcerpt(resp.Body)
	case resp.StatusCode >= 500:
		return resp, errors.New(errors.KindUpstreamUnavailable, "upstream failure").
			WithStatus(resp.StatusCode).WithExcerpt(resp.Body)
	case resp.StatusCode == http.StatusNotModified:
		return resp, nil
	default:
		return resp, errors.New(errors.KindUpstreamClient, http.StatusText(resp.StatusCode)).
			WithStatus(resp.StatusCode).WithExcerpt(resp.Body)
	}
}

func (m *Manager) classifyTransport(ctx context.Context, err error) error {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		return errors.Wrap(err, errors.KindTimeout, "request deadline exceeded")
	case stderrors.Is(err, context.Canceled) || stderrors.Is(ctx.Err(), context.Canceled):
		return errors.Wrap(err, errors.KindCancelled, "request cancelled")
	default:
		if k := errors.KindOf(err); k != "" {
			return err
		}
		return errors.Wrap(err, errors.KindTransportError, "transport failure")
	}
}

// isRetryableStatus marks statuses the retry policy may act on. 401 is
// handled by the refresh path before this check.
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// bytesMayHaveBeenSent is conservative: only failures that provably happen
// at dial time guarantee nothing reached the server.
func bytesMayHaveBeenSent(err error) bool {
	var opErr *net.OpError
	if stderrors.As(err, &opErr) && opErr.Op == "dial" {
		return false
	}
	return true
}

// Probe issues a bare authenticated GET against a raw path, for plugin
// detection. It spends a rate token but never retries.
func (m *Manager) Probe(ctx context.Context, path string) (int, error) {
	authHeaders, err := m.auth.Headers(ctx)
	if err != nil {
		return 0, err
	}
	if err := m.limiter.Acquire(ctx); err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.opts.BaseURL+path, nil)
	if err != nil {
		return 0, errors.Wrap(err, errors.KindTransportError, "building probe request")
	}
	for k, vs := range authHeaders {
		req.Header[k] = vs
	}
	resp, err := m.hc.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, errors.KindTransportError, "probe failed")
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return resp.StatusCode, nil
}

// RetryStats exposes the policy counters for diagnostics.
func (m *Manager) RetryStats() retry.Stats {
	return m.policy.Stats()
}

// BreakerState reports the circuit state: 0 closed, 1 open, 2 half-open.
func (m *Manager) BreakerState() int {
	switch m.breaker.State() {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

func headerInt(h http.Header, name string) int {
	v := h.Get(name)
	if v == "" {
		return -1
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}
