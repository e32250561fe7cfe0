package config

import (
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/wpmcp/wpmcp/internal/errors"
)

// Loader reads configuration from a document or from the environment.
type Loader struct {
	envPattern *regexp.Regexp
	getenv     func(string) string
}

// NewLoader creates a configuration loader. getenv defaults to os.Getenv
// and is injectable for tests.
func NewLoader() *Loader {
	return &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
		getenv:     os.Getenv,
	}
}

// WithEnv overrides the environment lookup.
func (l *Loader) WithEnv(getenv func(string) string) *Loader {
	l.getenv = getenv
	return l
}

// Load reads and parses a multi-site document. YAML is a superset of JSON,
// so plain JSON site tables parse unchanged.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindConfigInvalid, "failed to read config file")
	}
	return l.Parse(data)
}

// Parse parses a multi-site document from bytes.
func (l *Loader) Parse(data []byte) (*Config, error) {
	expanded := l.expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindConfigInvalid, "failed to parse config document")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv builds a single-site configuration from WORDPRESS_* environment
// variables.
func (l *Loader) FromEnv() (*Config, error) {
	siteURL := l.getenv("WORDPRESS_SITE_URL")
	if siteURL == "" {
		return nil, errors.New(errors.KindConfigInvalid, "WORDPRESS_SITE_URL is not set")
	}

	site := SiteConfig{
		ID:      "default",
		Name:    "default",
		BaseURL: siteURL,
		Auth: AuthConfig{
			Method:       AuthMethod(l.getenv("WORDPRESS_AUTH_METHOD")),
			Username:     l.getenv("WORDPRESS_USERNAME"),
			AppPassword:  l.getenv("WORDPRESS_APP_PASSWORD"),
			Password:     l.getenv("WORDPRESS_PASSWORD"),
			ClientID:     l.getenv("WORDPRESS_OAUTH_CLIENT_ID"),
			ClientSecret: l.getenv("WORDPRESS_OAUTH_CLIENT_SECRET"),
			RedirectURI:  l.getenv("WORDPRESS_OAUTH_REDIRECT_URI"),
			Scope:        l.getenv("WORDPRESS_OAUTH_SCOPE"),
		},
		Debug: l.envBool("DEBUG", false),
	}

	if v := l.getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := parseDurationOrSeconds(v)
		if err != nil {
			return nil, errors.Newf(errors.KindConfigInvalid, "invalid REQUEST_TIMEOUT %q", v)
		}
		site.Timeout = d
	}
	if v := l.getenv("RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, errors.Newf(errors.KindConfigInvalid, "invalid RETRY_ATTEMPTS %q", v)
		}
		site.RetryAttempts = n
	}
	if v := l.getenv("CACHE_TTL"); v != "" {
		d, err := parseDurationOrSeconds(v)
		if err != nil {
			return nil, errors.Newf(errors.KindConfigInvalid, "invalid CACHE_TTL %q", v)
		}
		site.CacheTTL = d
	}
	if v := l.getenv("CACHE_ENABLED"); v != "" {
		b := l.envBool("CACHE_ENABLED", true)
		site.CacheEnabled = &b
	}

	cfg := &Config{
		Sites:       []SiteConfig{site},
		MetricsAddr: l.getenv("METRICS_ADDR"),
		LogLevel:    l.getenv("LOG_LEVEL"),
		LogFile:     l.getenv("LOG_FILE"),
	}
	if cfg.LogLevel == "" && site.Debug {
		cfg.LogLevel = "debug"
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR} references with environment values.
func (l *Loader) expandEnvVars(s string) string {
	return l.envPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := m[2 : len(m)-1]
		return l.getenv(name)
	})
}

func (l *Loader) envBool(name string, def bool) bool {
	v := l.getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// parseDurationOrSeconds accepts either a Go duration ("30s") or a bare
// number of seconds ("30").
func parseDurationOrSeconds(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}
