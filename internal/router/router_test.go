package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wpmcp/wpmcp/internal/clock"
	"github.com/wpmcp/wpmcp/internal/config"
	"github.com/wpmcp/wpmcp/internal/errors"
)

// wpStub is a scripted WordPress REST endpoint.
type wpStub struct {
	mu    sync.Mutex
	calls map[string]int
	seo   bool
}

func newWPStub() *wpStub {
	return &wpStub{calls: map[string]int{}}
}

func (s *wpStub) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

func (s *wpStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls[r.Method+" "+r.URL.Path]++
	s.mu.Unlock()

	switch {
	case strings.HasPrefix(r.URL.Path, "/wp-json/yoast/v1"):
		if !s.seo {
			w.WriteHeader(404)
			return
		}
		fmt.Fprint(w, `{"title":"t","description":"d"}`)
	case strings.HasPrefix(r.URL.Path, "/wp-json/rankmath/v1"):
		w.WriteHeader(404)
	case r.URL.Path == "/wp-json/wp/v2/posts" && r.Method == http.MethodGet:
		w.Header().Set("X-WP-Total", "2")
		w.Header().Set("X-WP-TotalPages", "1")
		fmt.Fprint(w, `[{"id":1},{"id":2}]`)
	case r.URL.Path == "/wp-json/wp/v2/posts" && r.Method == http.MethodPost:
		w.WriteHeader(201)
		fmt.Fprint(w, `{"id":3,"title":{"raw":"new"}}`)
	case r.URL.Path == "/wp-json/wp/v2/posts/1" && r.Method == http.MethodGet:
		fmt.Fprint(w, `{"id":1}`)
	case r.URL.Path == "/wp-json/wp/v2/comments" && r.Method == http.MethodGet:
		w.Header().Set("X-WP-Total", "0")
		w.Header().Set("X-WP-TotalPages", "0")
		fmt.Fprint(w, `[]`)
	default:
		w.WriteHeader(404)
		fmt.Fprint(w, `{"code":"rest_no_route"}`)
	}
}

func testConfig(url string) *config.Config {
	cfg := &config.Config{
		Sites: []config.SiteConfig{{
			ID:      "alpha",
			BaseURL: url,
			Auth: config.AuthConfig{
				Method:      config.AuthAppPassword,
				Username:    "admin",
				AppPassword: "aaaa bbbb cccc dddd",
			},
		}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func newTestRouter(t *testing.T, url string) *Router {
	t.Helper()
	rt, err := New(testConfig(url), nil, clock.NewFake(time.Now()), nil)
	if err != nil {
		t.Fatalf("building router: %v", err)
	}
	return rt
}

func TestExecuteReadCachesSecondCall(t *testing.T) {
	stub := newWPStub()
	srv := httptest.NewServer(stub)
	defer srv.Close()
	rt := newTestRouter(t, srv.URL)

	first, err := rt.Execute(context.Background(), "alpha", "listPosts", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Meta.FromCache {
		t.Errorf("first call served from cache")
	}
	if first.Meta.TotalItems == nil || *first.Meta.TotalItems != 2 || first.Meta.StatusCode != 200 {
		t.Errorf("unexpected meta: %+v", first.Meta)
	}
	if first.Meta.ExecutionID == "" {
		t.Errorf("missing execution id")
	}

	second, err := rt.Execute(context.Background(), "alpha", "listPosts", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Meta.FromCache {
		t.Errorf("second call went upstream")
	}
	if got := stub.count("GET /wp-json/wp/v2/posts"); got != 1 {
		t.Errorf("expected 1 upstream call, got %d", got)
	}
}

func TestSiteCacheTTLBoundsEntryLifetime(t *testing.T) {
	stub := newWPStub()
	srv := httptest.NewServer(stub)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Sites[0].CacheTTL = time.Second
	clk := clock.NewFake(time.Now())
	rt, err := New(cfg, nil, clk, nil)
	if err != nil {
		t.Fatalf("building router: %v", err)
	}

	ctx := context.Background()
	params := map[string]any{"id": float64(1)}
	if _, err := rt.Execute(ctx, "alpha", "getPost", params); err != nil {
		t.Fatal(err)
	}

	clk.Advance(5 * time.Second)
	res, err := rt.Execute(ctx, "alpha", "getPost", params)
	if err != nil {
		t.Fatal(err)
	}
	if res.Meta.FromCache {
		t.Errorf("entry served from cache past the configured ttl")
	}
}

func TestExecuteUnknownSiteAndOperation(t *testing.T) {
	stub := newWPStub()
	srv := httptest.NewServer(stub)
	defer srv.Close()
	rt := newTestRouter(t, srv.URL)

	_, err := rt.Execute(context.Background(), "nope", "listPosts", nil)
	if errors.KindOf(err) != errors.KindUnknownSite {
		t.Errorf("expected UnknownSite, got %v", err)
	}

	_, err = rt.Execute(context.Background(), "alpha", "explodePosts", nil)
	if errors.KindOf(err) != errors.KindUnknownOperation {
		t.Errorf("expected UnknownOperation, got %v", err)
	}
}

func TestMetaDistinguishesZeroTotalsFromAbsent(t *testing.T) {
	stub := newWPStub()
	srv := httptest.NewServer(stub)
	defer srv.Close()
	rt := newTestRouter(t, srv.URL)
	ctx := context.Background()

	// An empty collection reports zero, not nothing.
	empty, err := rt.Execute(ctx, "alpha", "listComments", nil)
	if err != nil {
		t.Fatal(err)
	}
	if empty.Meta.TotalItems == nil || *empty.Meta.TotalItems != 0 {
		t.Errorf("zero total lost: %+v", empty.Meta.TotalItems)
	}
	raw, err := json.Marshal(empty.Meta)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"totalItems":0`) {
		t.Errorf("zero total dropped from encoding: %s", raw)
	}

	// A response without pagination headers carries no totals at all.
	created, err := rt.Execute(ctx, "alpha", "createPost", map[string]any{"title": "x"})
	if err != nil {
		t.Fatal(err)
	}
	if created.Meta.TotalItems != nil || created.Meta.TotalPages != nil {
		t.Errorf("totals fabricated for headerless response: %+v", created.Meta)
	}
}

func TestMutationInvalidatesCachedRead(t *testing.T) {
	stub := newWPStub()
	srv := httptest.NewServer(stub)
	defer srv.Close()
	rt := newTestRouter(t, srv.URL)

	ctx := context.Background()
	if _, err := rt.Execute(ctx, "alpha", "listPosts", nil); err != nil {
		t.Fatal(err)
	}

	res, err := rt.Execute(ctx, "alpha", "createPost", map[string]any{"title": "new"})
	if err != nil {
		t.Fatalf("mutation failed: %v", err)
	}
	if res.Meta.StatusCode != 201 || res.Meta.FromCache {
		t.Errorf("unexpected mutation meta: %+v", res.Meta)
	}

	after, err := rt.Execute(ctx, "alpha", "listPosts", nil)
	if err != nil {
		t.Fatal(err)
	}
	if after.Meta.FromCache {
		t.Errorf("stale list served after mutation")
	}
	if got := stub.count("GET /wp-json/wp/v2/posts"); got != 2 {
		t.Errorf("expected refetch after invalidation, got %d calls", got)
	}
}

func TestPluginGatedOperationRejectedWithoutPlugin(t *testing.T) {
	stub := newWPStub() // seo=false
	srv := httptest.NewServer(stub)
	defer srv.Close()
	rt := newTestRouter(t, srv.URL)

	_, err := rt.Execute(context.Background(), "alpha", "getSEOMetadata", map[string]any{"id": float64(1)})
	if errors.KindOf(err) != errors.KindUnknownOperation {
		t.Errorf("expected UnknownOperation for missing plugin, got %v", err)
	}
}

func TestPluginGatedOperationAllowedWithPlugin(t *testing.T) {
	stub := newWPStub()
	stub.seo = true
	srv := httptest.NewServer(stub)
	defer srv.Close()
	rt := newTestRouter(t, srv.URL)

	res, err := rt.Execute(context.Background(), "alpha", "getSEOMetadata", map[string]any{"id": float64(1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Meta.StatusCode != 200 {
		t.Errorf("unexpected status %d", res.Meta.StatusCode)
	}
}

func TestStatsAndClearCache(t *testing.T) {
	stub := newWPStub()
	srv := httptest.NewServer(stub)
	defer srv.Close()
	rt := newTestRouter(t, srv.URL)

	ctx := context.Background()
	rt.Execute(ctx, "alpha", "listPosts", nil)
	rt.Execute(ctx, "alpha", "listPosts", nil)

	stats := rt.Stats()
	if len(stats) != 1 || stats[0].Site != "alpha" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats[0].Cache == nil || stats[0].Cache.Hits != 1 {
		t.Errorf("cache hit not counted: %+v", stats[0].Cache)
	}
	if stats[0].AuthState == "" {
		t.Errorf("auth state missing")
	}

	if err := rt.ClearCache("alpha"); err != nil {
		t.Fatal(err)
	}
	res, err := rt.Execute(ctx, "alpha", "listPosts", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Meta.FromCache {
		t.Errorf("entry survived ClearCache")
	}

	if err := rt.ClearCache("nope"); errors.KindOf(err) != errors.KindUnknownSite {
		t.Errorf("expected UnknownSite, got %v", err)
	}
}

func TestSitesListsConfiguredSites(t *testing.T) {
	stub := newWPStub()
	srv := httptest.NewServer(stub)
	defer srv.Close()
	rt := newTestRouter(t, srv.URL)

	sites := rt.Sites()
	if len(sites) != 1 || sites[0].ID != "alpha" {
		t.Errorf("unexpected sites: %+v", sites)
	}
}

func TestRouterRejectsInvalidConfig(t *testing.T) {
	_, err := New(&config.Config{}, nil, clock.NewFake(time.Now()), nil)
	if errors.KindOf(err) != errors.KindConfigInvalid {
		t.Errorf("expected ConfigInvalid, got %v", err)
	}
}
