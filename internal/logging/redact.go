package logging

import (
	"net/http"

	"go.uber.org/zap"
)

// Secret field names that must never reach a sink with their value intact.
var secretHeaderNames = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Cookie":              true,
	"Set-Cookie":          true,
}

const redacted = "[redacted]"

// RedactString returns a zap field whose value is replaced by a marker when
// the value is non-empty. Use for passwords, tokens, and client secrets.
func RedactString(key, value string) zap.Field {
	if value == "" {
		return zap.String(key, "")
	}
	return zap.String(key, redacted)
}

// RedactHeaders returns a copy of headers safe for logging: credential
// bearing headers keep their name but lose their value.
func RedactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if secretHeaderNames[http.CanonicalHeaderKey(name)] {
			out[name] = redacted
			continue
		}
		if len(values) > 0 {
			out[name] = values[0]
		}
	}
	return out
}
