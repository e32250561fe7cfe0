package wordpress

import (
	"context"
	"time"

	expirable "github.com/hashicorp/golang-lru/v2/expirable"
)

// ProbeFunc issues an unauthenticated-or-authenticated GET against a raw
// path on a site and returns the HTTP status. Supplied by the router so the
// detector stays free of HTTP plumbing.
type ProbeFunc func(ctx context.Context, path string) (int, error)

// seoNamespaces maps plugin identifiers to the REST namespace index that
// exists when the plugin is active.
var seoNamespaces = []struct {
	name string
	path string
}{
	{"yoast", "/wp-json/yoast/v1"},
	{"rankmath", "/wp-json/rankmath/v1"},
}

// Detector caches best-effort plugin detection per site. Detection failures
// are not cached so a transient outage doesn't pin a wrong answer.
type Detector struct {
	cache *expirable.LRU[string, string]
}

// NewDetector creates a detector whose verdicts live for ttl.
func NewDetector(ttl time.Duration) *Detector {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Detector{
		cache: expirable.NewLRU[string, string](64, nil, ttl),
	}
}

// SEOPlugin returns the detected SEO plugin for a site ("" when none). The
// probe is best-effort: a transport error degrades to "none detected" for
// this call without caching.
func (d *Detector) SEOPlugin(ctx context.Context, siteID string, probe ProbeFunc) string {
	if v, ok := d.cache.Get(siteID); ok {
		return v
	}
	for _, ns := range seoNamespaces {
		status, err := probe(ctx, ns.path)
		if err != nil {
			return ""
		}
		// 401/403 still prove the namespace is routed.
		if status == 200 || status == 401 || status == 403 {
			d.cache.Add(siteID, ns.name)
			return ns.name
		}
	}
	d.cache.Add(siteID, "")
	return ""
}

// Forget drops the cached verdict for a site.
func (d *Detector) Forget(siteID string) {
	d.cache.Remove(siteID)
}
