// Package errors defines the stable error taxonomy surfaced by the core.
// Every error crossing the router boundary carries a Kind from the fixed
// vocabulary below plus a short human message; upstream errors additionally
// carry the HTTP status and a sanitized excerpt of the WordPress response.
package errors

import (
	"errors"
	"fmt"
	"regexp"
)

// Kind identifies a class of failure. The strings are part of the tool-layer
// contract and must not change between releases.
type Kind string

const (
	KindConfigInvalid    Kind = "ConfigInvalid"
	KindUnknownSite      Kind = "UnknownSite"
	KindUnknownOperation Kind = "UnknownOperation"
	KindParamInvalid     Kind = "ParamInvalid"

	KindAuthRequired          Kind = "AuthRequired"
	KindAuthExpired           Kind = "AuthExpired"
	KindAuthRefreshFailed     Kind = "AuthRefreshFailed"
	KindAuthMethodUnsupported Kind = "AuthMethodUnsupported"

	KindRateLimited         Kind = "RateLimited"
	KindUpstreamRateLimited Kind = "UpstreamRateLimited"
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"
	KindUpstreamClient      Kind = "UpstreamClient"

	KindTransportError Kind = "TransportError"
	KindTimeout        Kind = "Timeout"
	KindCancelled      Kind = "Cancelled"

	KindCacheCorruption    Kind = "CacheCorruption"
	KindInvalidationFailed Kind = "InvalidationFailed"
)

// Error is the error type returned by the core.
type Error struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	Status     int    `json:"status,omitempty"`
	Excerpt    string `json:"excerpt,omitempty"`
	underlying error
}

func (e *Error) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.underlying)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.underlying
}

// Is matches errors by Kind so callers can use errors.Is with sentinel
// instances.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an Error with a kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, underlying: err}
}

// WithStatus returns a copy carrying the upstream HTTP status.
func (e *Error) WithStatus(status int) *Error {
	c := *e
	c.Status = status
	return &c
}

// WithExcerpt returns a copy carrying a sanitized excerpt of the upstream
// response body, truncated to excerptLimit.
func (e *Error) WithExcerpt(body []byte) *Error {
	c := *e
	c.Excerpt = Sanitize(string(body))
	return &c
}

const excerptLimit = 512

// secretPattern matches values that must never leave the process: bearer
// tokens, basic credentials, and password/token JSON fields.
var secretPattern = regexp.MustCompile(`(?i)(bearer\s+[a-z0-9._~+/-]+=*|basic\s+[a-z0-9+/]+=*|"(?:password|app_password|token|access_token|refresh_token|client_secret)"\s*:\s*"[^"]*")`)

// Sanitize redacts credential material from an upstream excerpt and bounds
// its length.
func Sanitize(s string) string {
	s = secretPattern.ReplaceAllString(s, "[redacted]")
	if len(s) > excerptLimit {
		s = s[:excerptLimit]
	}
	return s
}

// KindOf extracts the Kind from an error chain, or "" when the error does
// not originate in the core.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// AsError extracts the *Error from a chain, if present.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsRetryableKind reports whether a kind represents a transient condition.
func IsRetryableKind(k Kind) bool {
	switch k {
	case KindTransportError, KindUpstreamUnavailable, KindUpstreamRateLimited:
		return true
	}
	return false
}
