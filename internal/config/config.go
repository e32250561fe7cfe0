// Package config loads and validates the site table the router is built
// from, either from environment variables (single site) or from a
// multi-site YAML/JSON document.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/wpmcp/wpmcp/internal/errors"
)

// AuthMethod selects the credential variant for a site.
type AuthMethod string

const (
	AuthAppPassword AuthMethod = "app-password"
	AuthJWT         AuthMethod = "jwt"
	AuthBasic       AuthMethod = "basic"
	AuthAPIKey      AuthMethod = "api-key" // accepted alias of app-password
	AuthOAuth       AuthMethod = "oauth"
)

// AuthConfig holds the static half of a site's credential bundle. Token
// fields live in the auth manager, never here.
type AuthConfig struct {
	Method      AuthMethod `yaml:"method" json:"method"`
	Username    string     `yaml:"username" json:"username"`
	AppPassword string     `yaml:"app_password" json:"app_password"`
	Password    string     `yaml:"password" json:"password"`

	// OAuth fields.
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri" json:"redirect_uri"`
	Scope        string `yaml:"scope" json:"scope"`
}

// SiteConfig describes one WordPress installation.
type SiteConfig struct {
	ID      string     `yaml:"id" json:"id"`
	Name    string     `yaml:"name" json:"name"`
	BaseURL string     `yaml:"url" json:"url"`
	Auth    AuthConfig `yaml:"auth" json:"auth"`

	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	UploadTimeout time.Duration `yaml:"upload_timeout" json:"upload_timeout"`
	RetryAttempts int           `yaml:"retry_attempts" json:"retry_attempts"`

	// RatePerMinute is the per-site outbound budget; Burst bounds spikes.
	RatePerMinute int `yaml:"rate_per_minute" json:"rate_per_minute"`
	Burst         int `yaml:"burst" json:"burst"`

	CacheEnabled  *bool         `yaml:"cache_enabled" json:"cache_enabled"`
	CacheMaxBytes int64         `yaml:"cache_max_bytes" json:"cache_max_bytes"`
	CacheTTL      time.Duration `yaml:"cache_ttl" json:"cache_ttl"`

	Debug bool `yaml:"debug" json:"debug"`
}

// Config is the root document.
type Config struct {
	Sites []SiteConfig `yaml:"sites" json:"sites"`

	// MaxConcurrent bounds total in-flight upstream requests across sites.
	MaxConcurrent int64 `yaml:"max_concurrent" json:"max_concurrent"`

	// MetricsAddr enables a Prometheus scrape listener when non-empty.
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`

	LogLevel string `yaml:"log_level" json:"log_level"`
	LogFile  string `yaml:"log_file" json:"log_file"`
}

// Defaults applied before validation.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultUploadTimeout = 120 * time.Second
	DefaultRetryAttempts = 3
	DefaultRatePerMinute = 600
	DefaultBurst         = 10
	DefaultCacheMaxBytes = 64 << 20
	DefaultMaxConcurrent = 32
)

// ApplyDefaults fills zero values in place.
func (c *Config) ApplyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	for i := range c.Sites {
		c.Sites[i].applyDefaults()
	}
}

func (s *SiteConfig) applyDefaults() {
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.UploadTimeout <= 0 {
		s.UploadTimeout = DefaultUploadTimeout
	}
	if s.RetryAttempts < 0 {
		s.RetryAttempts = 0
	} else if s.RetryAttempts == 0 {
		s.RetryAttempts = DefaultRetryAttempts
	}
	if s.RatePerMinute <= 0 {
		s.RatePerMinute = DefaultRatePerMinute
	}
	if s.Burst <= 0 {
		s.Burst = DefaultBurst
	}
	if s.CacheMaxBytes <= 0 {
		s.CacheMaxBytes = DefaultCacheMaxBytes
	}
	if s.Auth.Method == "" {
		s.Auth.Method = inferMethod(s.Auth)
	}
	if s.Auth.Method == AuthAPIKey {
		s.Auth.Method = AuthAppPassword
	}
}

// inferMethod picks the credential variant from which fields are populated,
// matching the precedence the environment loader documents.
func inferMethod(a AuthConfig) AuthMethod {
	switch {
	case a.AppPassword != "":
		return AuthAppPassword
	case a.ClientID != "":
		return AuthOAuth
	case a.Password != "":
		return AuthJWT
	default:
		return AuthAppPassword
	}
}

// CacheOn reports whether caching is enabled for the site (default true).
func (s *SiteConfig) CacheOn() bool {
	return s.CacheEnabled == nil || *s.CacheEnabled
}

// Validate checks the whole document. All failures carry ConfigInvalid.
func (c *Config) Validate() error {
	if len(c.Sites) == 0 {
		return errors.New(errors.KindConfigInvalid, "no sites configured")
	}
	seen := make(map[string]bool, len(c.Sites))
	for i := range c.Sites {
		s := &c.Sites[i]
		if s.ID == "" {
			return errors.Newf(errors.KindConfigInvalid, "site %d: missing id", i)
		}
		if seen[s.ID] {
			return errors.Newf(errors.KindConfigInvalid, "duplicate site id %q", s.ID)
		}
		seen[s.ID] = true
		if err := s.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SiteConfig) validate() error {
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Host == "" {
		return errors.Newf(errors.KindConfigInvalid, "site %q: invalid url %q", s.ID, s.BaseURL)
	}
	switch u.Scheme {
	case "https":
	case "http":
		// Plain HTTP only for local development targets.
		if !isLoopbackHost(u.Hostname()) {
			return errors.Newf(errors.KindConfigInvalid, "site %q: http is only allowed for loopback hosts", s.ID)
		}
	default:
		return errors.Newf(errors.KindConfigInvalid, "site %q: unsupported scheme %q", s.ID, u.Scheme)
	}

	switch s.Auth.Method {
	case AuthAppPassword:
		if s.Auth.Username == "" || s.Auth.AppPassword == "" {
			return errors.Newf(errors.KindConfigInvalid, "site %q: app-password auth requires username and app_password", s.ID)
		}
	case AuthBasic:
		if s.Auth.Username == "" || s.Auth.Password == "" {
			return errors.Newf(errors.KindConfigInvalid, "site %q: basic auth requires username and password", s.ID)
		}
	case AuthJWT:
		if s.Auth.Username == "" || s.Auth.Password == "" {
			return errors.Newf(errors.KindConfigInvalid, "site %q: jwt auth requires username and password", s.ID)
		}
	case AuthOAuth:
		if s.Auth.ClientID == "" || s.Auth.ClientSecret == "" || s.Auth.RedirectURI == "" {
			return errors.Newf(errors.KindConfigInvalid, "site %q: oauth requires client_id, client_secret and redirect_uri", s.ID)
		}
	default:
		return errors.Newf(errors.KindConfigInvalid, "site %q: unknown auth method %q", s.ID, s.Auth.Method)
	}
	return nil
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// String implements fmt.Stringer without leaking credentials.
func (a AuthConfig) String() string {
	return fmt.Sprintf("AuthConfig{method=%s user=%s}", a.Method, a.Username)
}
