// Package httpcache layers HTTP caching semantics over the request manager:
// deterministic keys, single-flight deduplication, conditional revalidation,
// and negative caching.
package httpcache

import (
	"regexp"
	"sort"
	"strings"

	"github.com/wpmcp/wpmcp/internal/wordpress"
)

// Key derives the canonical cache key for an operation invocation:
//
//	site:{siteId}|op:{opName}|p:{sortedParams}
//
// Parameter order never matters and values use the same stable
// serialization as query binding, so semantically identical maps collide.
// The site id only appears in the prefix.
func Key(siteID, opName string, params map[string]any) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("site:")
	b.WriteString(siteID)
	b.WriteString("|op:")
	b.WriteString(opName)
	b.WriteString("|p:")
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(wordpress.FormatValue(params[name]))
	}
	return b.String()
}

// KeyPattern compiles a regexp matching keys of a site: opPattern matches
// the operation segment and paramPattern the parameter segment. Both may be
// ".*". The site prefix is always matched literally, preserving site
// isolation in pattern deletes.
func KeyPattern(siteID, opPattern, paramPattern string) (*regexp.Regexp, error) {
	return regexp.Compile("^site:" + regexp.QuoteMeta(siteID) + `\|op:` + opPattern + `\|p:` + paramPattern + "$")
}

// ParamEquals builds a param-segment pattern requiring name=value as a
// whole pair anywhere in the sorted parameter list.
func ParamEquals(name, value string) string {
	return `(.*&)?` + regexp.QuoteMeta(name) + `=` + regexp.QuoteMeta(value) + `(&.*)?`
}

// ParamContains builds a param-segment pattern requiring value to occur
// inside the named parameter (comma lists).
func ParamContains(name, value string) string {
	return `(.*&)?` + regexp.QuoteMeta(name) + `=[^&]*` + regexp.QuoteMeta(value) + `[^&]*(&.*)?`
}
