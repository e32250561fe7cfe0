package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wpmcp/wpmcp/internal/errors"
)

const (
	oauthAuthorizePath = "/oauth/authorize"
	oauthTokenPath     = "/oauth/token"
)

type oauthTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Error        string `json:"error"`
}

// StartOAuth builds the authorization URL for the PKCE authorization-code
// flow and stashes the state and verifier for CompleteOAuth.
func (m *Manager) StartOAuth() (authURL, state string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bundle.ClientID == "" || m.bundle.RedirectURI == "" {
		return "", "", errors.New(errors.KindAuthMethodUnsupported, "site is not configured for oauth")
	}

	state, err = randomToken(16)
	if err != nil {
		return "", "", errors.Wrap(err, errors.KindAuthRefreshFailed, "generating oauth state")
	}
	verifier, err := randomToken(32)
	if err != nil {
		return "", "", errors.Wrap(err, errors.KindAuthRefreshFailed, "generating pkce verifier")
	}

	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", m.bundle.ClientID)
	q.Set("redirect_uri", m.bundle.RedirectURI)
	q.Set("state", state)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "S256")
	if m.bundle.Scope != "" {
		q.Set("scope", m.bundle.Scope)
	}

	m.oauthState = state
	m.pkceVerifier = verifier
	m.state = StateNeedsLogin

	return m.baseURL + oauthAuthorizePath + "?" + q.Encode(), state, nil
}

// CompleteOAuth exchanges the authorization code for tokens. The state must
// match the one issued by StartOAuth.
func (m *Manager) CompleteOAuth(ctx context.Context, code, state string) error {
	m.mu.Lock()
	if m.oauthState == "" || state != m.oauthState {
		m.mu.Unlock()
		return errors.New(errors.KindAuthRequired, "oauth state mismatch")
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", m.bundle.ClientID)
	form.Set("client_secret", m.bundle.ClientSecret)
	form.Set("redirect_uri", m.bundle.RedirectURI)
	form.Set("code_verifier", m.pkceVerifier)
	m.oauthState = ""
	m.pkceVerifier = ""
	m.mu.Unlock()

	tok, err := m.tokenRequest(ctx, form)
	if err != nil {
		return err
	}
	m.installTokens(tok)
	m.logger.Info("oauth authorization completed", zap.String("event", "auth.oauth.complete"))
	return nil
}

// oauthRefreshGrant spends the refresh token for a new access token.
func (m *Manager) oauthRefreshGrant(ctx context.Context) error {
	m.mu.Lock()
	refreshToken := m.bundle.RefreshToken
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", m.bundle.ClientID)
	form.Set("client_secret", m.bundle.ClientSecret)
	m.mu.Unlock()

	if refreshToken == "" {
		return errors.New(errors.KindAuthRequired, "no refresh token; authorization not completed")
	}

	tok, err := m.tokenRequest(ctx, form)
	if err != nil {
		if e, ok := errors.AsError(err); ok && e.Status == http.StatusBadRequest && strings.Contains(e.Excerpt, "invalid_grant") {
			// Revoked or expired refresh token: unrecoverable without a new
			// authorization.
			m.mu.Lock()
			m.terminalRefreshFailure = true
			m.mu.Unlock()
		}
		return err
	}
	m.installTokens(tok)
	return nil
}

func (m *Manager) tokenRequest(ctx context.Context, form url.Values) (*oauthTokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+oauthTokenPath,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, errors.KindTransportError, "building token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.hc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindAuthRefreshFailed, "token endpoint unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, errors.KindAuthRefreshFailed, "reading token response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.KindAuthRefreshFailed, "token exchange rejected").
			WithStatus(resp.StatusCode).WithExcerpt(raw)
	}

	var tok oauthTokenResponse
	if err := json.Unmarshal(raw, &tok); err != nil || tok.AccessToken == "" {
		return nil, errors.New(errors.KindAuthRefreshFailed, "token response missing access_token")
	}
	return &tok, nil
}

func (m *Manager) installTokens(tok *oauthTokenResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundle.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		m.bundle.RefreshToken = tok.RefreshToken
	}
	if tok.ExpiresIn > 0 {
		m.bundle.ExpiresAt = m.clk.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	} else {
		m.bundle.ExpiresAt = time.Time{}
	}
	m.state = StateActive
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
