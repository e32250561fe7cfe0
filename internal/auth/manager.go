package auth

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wpmcp/wpmcp/internal/clock"
	"github.com/wpmcp/wpmcp/internal/config"
	"github.com/wpmcp/wpmcp/internal/errors"
)

// State is the manager's position in its lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateNeedsLogin
	StateActive
	StateRefreshing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateNeedsLogin:
		return "needs_login"
	case StateActive:
		return "active"
	case StateRefreshing:
		return "refreshing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// refreshWindow is how close to expiry a token may get before a request
// triggers an in-line refresh.
const refreshWindow = 60 * time.Second

// Manager owns one site's credential bundle.
type Manager struct {
	siteID  string
	baseURL string

	mu     sync.Mutex
	bundle Bundle
	state  State

	// Transient OAuth authorization state.
	oauthState   string
	pkceVerifier string

	// terminalRefreshFailure is set by a grant implementation when the
	// failure is unrecoverable (revoked refresh token); doRefresh moves the
	// manager to StateFailed instead of StateNeedsLogin.
	terminalRefreshFailure bool

	refresh singleflight.Group

	hc     *http.Client
	clk    clock.Clock
	logger *zap.Logger
}

// NewManager creates a manager for a site. hc is used for token endpoints
// and validation probes only; regular operations go through the request
// manager, which asks this manager for headers.
func NewManager(siteID, baseURL string, cfg config.AuthConfig, hc *http.Client, clk clock.Clock, logger *zap.Logger) *Manager {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		siteID:  siteID,
		baseURL: baseURL,
		bundle:  BundleFrom(cfg),
		hc:      hc,
		clk:     clk,
		logger:  logger.With(zap.String("siteId", siteID)),
	}
	m.state = m.initialState()
	return m
}

func (m *Manager) initialState() State {
	if m.bundle.static() {
		return StateActive
	}
	return StateNeedsLogin
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Headers returns the authorization header set for one outbound request,
// refreshing the token half first when it is missing or near expiry.
func (m *Manager) Headers(ctx context.Context) (http.Header, error) {
	m.mu.Lock()
	if m.state == StateFailed {
		m.mu.Unlock()
		return nil, errors.New(errors.KindAuthRequired, "credentials permanently failed; switch required")
	}

	if m.bundle.static() {
		h := http.Header{}
		h.Set("Authorization", m.bundle.basicValue())
		m.mu.Unlock()
		return h, nil
	}

	needsRefresh := m.bundle.expiringWithin(m.clk.Now(), refreshWindow)
	canRefresh := m.refreshable()
	token := m.bundle.AccessToken
	m.mu.Unlock()

	if needsRefresh {
		if !canRefresh {
			return nil, errors.New(errors.KindAuthRequired, "no usable credential; authorization not completed")
		}
		if err := m.refreshShared(ctx); err != nil {
			return nil, err
		}
		m.mu.Lock()
		token = m.bundle.AccessToken
		m.mu.Unlock()
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h, nil
}

// refreshable reports whether the current bundle can mint a new access
// token without operator interaction. Caller holds mu.
func (m *Manager) refreshable() bool {
	switch m.bundle.Method {
	case config.AuthJWT:
		return m.bundle.Username != "" && m.bundle.Password != ""
	case config.AuthOAuth:
		// Before CompleteOAuth there is no refresh token to spend.
		return m.bundle.RefreshToken != ""
	default:
		return false
	}
}

// Refresh renews the token half: JWT re-login or OAuth refresh grant.
// Static variants return AuthMethodUnsupported.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.bundle.static() {
		m.mu.Unlock()
		return errors.New(errors.KindAuthMethodUnsupported, "credential method has no refresh")
	}
	if !m.refreshable() {
		m.mu.Unlock()
		return errors.New(errors.KindAuthRequired, "no credential available to refresh with")
	}
	m.mu.Unlock()
	return m.refreshShared(ctx)
}

// refreshShared runs the refresh at most once for all concurrent callers.
func (m *Manager) refreshShared(ctx context.Context) error {
	_, err, _ := m.refresh.Do("refresh", func() (any, error) {
		return nil, m.doRefresh(ctx)
	})
	return err
}

func (m *Manager) doRefresh(ctx context.Context) error {
	m.mu.Lock()
	method := m.bundle.Method
	m.state = StateRefreshing
	m.mu.Unlock()

	var err error
	switch method {
	case config.AuthJWT:
		err = m.jwtLogin(ctx)
	case config.AuthOAuth:
		err = m.oauthRefreshGrant(ctx)
	default:
		err = errors.New(errors.KindAuthMethodUnsupported, "credential method has no refresh")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		if errors.KindOf(err) == errors.KindAuthRefreshFailed && m.terminalRefreshFailure {
			m.state = StateFailed
		} else {
			m.state = StateNeedsLogin
		}
		m.terminalRefreshFailure = false
		return err
	}
	m.state = StateActive
	return nil
}

// Validate probes the authenticated user endpoint with the current headers.
func (m *Manager) Validate(ctx context.Context) (bool, error) {
	h, err := m.Headers(ctx)
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/wp-json/wp/v2/users/me", nil)
	if err != nil {
		return false, errors.Wrap(err, errors.KindTransportError, "building validation request")
	}
	for k, v := range h {
		req.Header[k] = v
	}
	resp, err := m.hc.Do(req)
	if err != nil {
		return false, errors.Wrap(err, errors.KindTransportError, "validation probe failed")
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// Switch validates a replacement credential and atomically installs it. On
// validation failure the previous bundle stays in place.
func (m *Manager) Switch(ctx context.Context, cfg config.AuthConfig) error {
	candidate := NewManager(m.siteID, m.baseURL, cfg, m.hc, m.clk, m.logger)
	ok, err := candidate.Validate(ctx)
	if err != nil {
		return errors.Wrap(err, errors.KindAuthRefreshFailed, "validating replacement credential")
	}
	if !ok {
		return errors.New(errors.KindAuthRequired, "replacement credential rejected by site")
	}

	candidate.mu.Lock()
	newBundle := candidate.bundle
	newState := candidate.state
	candidate.mu.Unlock()

	m.mu.Lock()
	m.bundle = newBundle
	m.state = newState
	m.oauthState = ""
	m.pkceVerifier = ""
	m.mu.Unlock()

	m.logger.Info("auth method switched", zap.String("event", "auth.switch"),
		zap.String("method", string(cfg.Method)))
	return nil
}

// Method returns the active credential method.
func (m *Manager) Method() config.AuthMethod {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bundle.Method
}
