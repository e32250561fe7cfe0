// Package auth produces request authentication headers for a site and keeps
// the mutable token half of its credential bundle fresh. All state changes
// run under a per-site mutex; refreshes are deduplicated with singleflight.
package auth

import (
	"encoding/base64"
	"time"

	"github.com/wpmcp/wpmcp/internal/config"
)

// Bundle is the tagged credential variant for one site. The static half
// comes from configuration; AccessToken, RefreshToken, and ExpiresAt are the
// mutable token half, owned exclusively by the Manager and never persisted.
type Bundle struct {
	Method config.AuthMethod

	Username    string
	AppPassword string
	Password    string

	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string

	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// BundleFrom builds the initial bundle from site configuration.
func BundleFrom(cfg config.AuthConfig) Bundle {
	return Bundle{
		Method:       cfg.Method,
		Username:     cfg.Username,
		AppPassword:  cfg.AppPassword,
		Password:     cfg.Password,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
		Scope:        cfg.Scope,
	}
}

// static reports whether the variant never needs token maintenance.
func (b *Bundle) static() bool {
	return b.Method == config.AuthAppPassword || b.Method == config.AuthBasic
}

// basicValue renders the Basic authorization value for the static variants.
func (b *Bundle) basicValue() string {
	secret := b.AppPassword
	if b.Method == config.AuthBasic {
		secret = b.Password
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(b.Username+":"+secret))
}

// expiringWithin reports whether the token half expires within d of now.
// A zero ExpiresAt with a token present counts as not expiring.
func (b *Bundle) expiringWithin(now time.Time, d time.Duration) bool {
	if b.AccessToken == "" {
		return true
	}
	if b.ExpiresAt.IsZero() {
		return false
	}
	return b.ExpiresAt.Sub(now) < d
}
