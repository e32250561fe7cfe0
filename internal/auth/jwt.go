package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/wpmcp/wpmcp/internal/errors"
)

const (
	jwtTokenPath    = "/wp-json/jwt-auth/v1/token"
	jwtValidatePath = "/wp-json/jwt-auth/v1/token/validate"

	// jwtFallbackLifetime is assumed when the plugin's token carries no
	// readable exp claim. The plugin default is much longer; a short
	// assumption only costs an extra login.
	jwtFallbackLifetime = time.Hour
)

type jwtLoginResponse struct {
	Token string `json:"token"`
}

// jwtLogin performs the username/password login against the JWT plugin and
// installs the returned token.
func (m *Manager) jwtLogin(ctx context.Context) error {
	m.mu.Lock()
	payload := map[string]string{
		"username": m.bundle.Username,
		"password": m.bundle.Password,
	}
	endpoint := m.baseURL + jwtTokenPath
	m.mu.Unlock()

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, errors.KindTransportError, "building jwt login request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.hc.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.KindAuthRefreshFailed, "jwt login transport failure")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, errors.KindAuthRefreshFailed, "reading jwt login response")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.KindAuthRefreshFailed, "jwt login rejected").
			WithStatus(resp.StatusCode).WithExcerpt(raw)
	}

	var login jwtLoginResponse
	if err := json.Unmarshal(raw, &login); err != nil || login.Token == "" {
		return errors.New(errors.KindAuthRefreshFailed, "jwt login response missing token")
	}

	expires := tokenExpiry(login.Token, m.clk.Now())

	m.mu.Lock()
	m.bundle.AccessToken = login.Token
	m.bundle.ExpiresAt = expires
	m.mu.Unlock()

	m.logger.Debug("jwt token renewed", zap.String("event", "auth.jwt.login"),
		zap.Time("expiresAt", expires))
	return nil
}

// tokenExpiry reads the exp claim from an access token without verifying
// the signature; the server verified it when issuing. Falls back to a fixed
// lifetime when the claim is absent.
func tokenExpiry(token string, now time.Time) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return now.Add(jwtFallbackLifetime)
}

// ValidateToken asks the plugin whether the current JWT is still accepted.
func (m *Manager) ValidateToken(ctx context.Context) (bool, error) {
	m.mu.Lock()
	token := m.bundle.AccessToken
	endpoint := m.baseURL + jwtValidatePath
	m.mu.Unlock()

	if token == "" {
		return false, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return false, errors.Wrap(err, errors.KindTransportError, "building jwt validate request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := m.hc.Do(req)
	if err != nil {
		return false, errors.Wrap(err, errors.KindTransportError, "jwt validate probe failed")
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}
