package request

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wpmcp/wpmcp/internal/clock"
	"github.com/wpmcp/wpmcp/internal/errors"
	"github.com/wpmcp/wpmcp/internal/ratelimit"
	"github.com/wpmcp/wpmcp/internal/wordpress"
)

type fakeAuth struct {
	mu        sync.Mutex
	token     string
	refreshes int
	refreshErr error
}

func (f *fakeAuth) Headers(ctx context.Context) (http.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := http.Header{}
	h.Set("Authorization", "Bearer "+f.token)
	return h, nil
}

func (f *fakeAuth) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.refreshes++
	f.token = "refreshed"
	return nil
}

func newTestManager(t *testing.T, baseURL string, retries int, clk clock.Clock, auth *fakeAuth) *Manager {
	t.Helper()
	if auth == nil {
		auth = &fakeAuth{token: "t0"}
	}
	return New(Options{
		SiteID:        "site",
		BaseURL:       baseURL,
		RetryAttempts: retries,
	}, auth, ratelimit.NewSiteLimiter(6000, 100), ratelimit.NewGate(32), clk, nil)
}

func op(t *testing.T, name string) *wordpress.Operation {
	t.Helper()
	o, ok := wordpress.Lookup(name)
	if !ok {
		t.Fatalf("operation %q missing", name)
	}
	return o
}

func TestGetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wp/v2/posts/7" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer t0" {
			t.Errorf("auth header missing: %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("X-WP-Total", "1")
		w.Header().Set("X-WP-TotalPages", "1")
		fmt.Fprint(w, `{"id":7}`)
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL, 3, clock.NewFake(time.Now()), nil)
	resp, err := m.Do(context.Background(), op(t, "getPost"), map[string]any{"id": float64(7)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.OK() || resp.Retries != 0 || resp.TotalItems != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestIdempotentRetriesThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n <= 2 {
			w.WriteHeader(500)
			return
		}
		fmt.Fprint(w, `{"id":7}`)
	}))
	defer srv.Close()

	clk := clock.NewFake(time.Now())
	m := newTestManager(t, srv.URL, 3, clk, nil)
	resp, err := m.Do(context.Background(), op(t, "getPost"), map[string]any{"id": float64(7)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Retries != 2 {
		t.Errorf("expected 2 retries, got %d", resp.Retries)
	}

	slept := clk.Slept()
	if len(slept) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %d", len(slept))
	}
	// Second backoff is roughly double the first.
	if slept[1] < slept[0] {
		t.Errorf("backoff not growing: %v", slept)
	}
}

func TestRetryAfterStretchesBackoff(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(429)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	clk := clock.NewFake(time.Now())
	m := newTestManager(t, srv.URL, 3, clk, nil)
	resp, err := m.Do(context.Background(), op(t, "listPosts"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Retries != 1 {
		t.Errorf("expected 1 retry, got %d", resp.Retries)
	}
	slept := clk.Slept()
	if len(slept) != 1 || slept[0] < 3*time.Second {
		t.Errorf("Retry-After not honored: slept %v", slept)
	}
}

func TestMutationNotRetriedOn500(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(500)
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL, 3, clock.NewFake(time.Now()), nil)
	_, err := m.Do(context.Background(), op(t, "createPost"), map[string]any{"title": "x"})
	if errors.KindOf(err) != errors.KindUpstreamUnavailable {
		t.Fatalf("expected UpstreamUnavailable, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("mutation was retried: %d attempts", attempts)
	}
}

func TestMutationRetriedOn503WithRetryAfter(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(503)
			return
		}
		w.WriteHeader(201)
		fmt.Fprint(w, `{"id":99}`)
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL, 3, clock.NewFake(time.Now()), nil)
	resp, err := m.Do(context.Background(), op(t, "createPost"), map[string]any{"title": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 201 || resp.Retries != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestMutationNotRetriedOnBare429(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(429)
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL, 3, clock.NewFake(time.Now()), nil)
	_, err := m.Do(context.Background(), op(t, "createPost"), map[string]any{"title": "x"})
	if errors.KindOf(err) != errors.KindUpstreamRateLimited {
		t.Fatalf("expected UpstreamRateLimited, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("mutation blindly retried on 429: %d attempts", attempts)
	}
}

func TestMutationRetriedOn429WithRetryAfter(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(429)
			return
		}
		w.WriteHeader(201)
		fmt.Fprint(w, `{"id":99}`)
	}))
	defer srv.Close()

	clk := clock.NewFake(time.Now())
	m := newTestManager(t, srv.URL, 3, clk, nil)
	resp, err := m.Do(context.Background(), op(t, "createPost"), map[string]any{"title": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Retries != 1 {
		t.Errorf("expected 1 retry, got %d", resp.Retries)
	}
	if slept := clk.Slept(); len(slept) != 1 || slept[0] < 2*time.Second {
		t.Errorf("Retry-After not honored: %v", slept)
	}
}

func TestRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL, 2, clock.NewFake(time.Now()), nil)
	_, err := m.Do(context.Background(), op(t, "getPost"), map[string]any{"id": float64(1)})
	if errors.KindOf(err) != errors.KindUpstreamUnavailable {
		t.Fatalf("expected UpstreamUnavailable, got %v", err)
	}
	if st := m.RetryStats(); st.Exhausted != 1 {
		t.Errorf("exhaustion not counted: %+v", st)
	}
}

func Test401RefreshedOnceThenRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer refreshed" {
			w.WriteHeader(401)
			return
		}
		fmt.Fprint(w, `{"id":1}`)
	}))
	defer srv.Close()

	auth := &fakeAuth{token: "stale"}
	m := newTestManager(t, srv.URL, 3, clock.NewFake(time.Now()), auth)
	resp, err := m.Do(context.Background(), op(t, "getPost"), map[string]any{"id": float64(1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.OK() {
		t.Errorf("unexpected status %d", resp.StatusCode)
	}
	if auth.refreshes != 1 {
		t.Errorf("expected exactly 1 refresh, got %d", auth.refreshes)
	}
}

func TestPersistent401SurfacesAuthExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
	}))
	defer srv.Close()

	auth := &fakeAuth{token: "stale"}
	m := newTestManager(t, srv.URL, 3, clock.NewFake(time.Now()), auth)
	_, err := m.Do(context.Background(), op(t, "getPost"), map[string]any{"id": float64(1)})
	if errors.KindOf(err) != errors.KindAuthExpired {
		t.Fatalf("expected AuthExpired, got %v", err)
	}
	if auth.refreshes != 1 {
		t.Errorf("expected exactly 1 refresh before giving up, got %d", auth.refreshes)
	}
}

func TestStaticCredential401IsAuthExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
	}))
	defer srv.Close()

	auth := &fakeAuth{token: "t0", refreshErr: errors.New(errors.KindAuthMethodUnsupported, "no refresh")}
	m := newTestManager(t, srv.URL, 3, clock.NewFake(time.Now()), auth)
	_, err := m.Do(context.Background(), op(t, "getPost"), map[string]any{"id": float64(1)})
	if errors.KindOf(err) != errors.KindAuthExpired {
		t.Errorf("expected AuthExpired for unrefreshable credential, got %v", err)
	}
}

func TestCircuitBreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL, 0, clock.NewFake(time.Now()), nil)
	params := map[string]any{"id": float64(1)}

	for i := 0; i < 5; i++ {
		m.Do(context.Background(), op(t, "getPost"), params)
	}
	if m.BreakerState() != 1 {
		t.Fatalf("breaker should be open after 5 consecutive failures, state=%d", m.BreakerState())
	}

	_, err := m.Do(context.Background(), op(t, "getPost"), params)
	if errors.KindOf(err) != errors.KindUpstreamUnavailable || !strings.Contains(err.Error(), "circuit open") {
		t.Errorf("expected circuit-open rejection, got %v", err)
	}
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
		fmt.Fprint(w, `{"code":"rest_post_invalid_id"}`)
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL, 0, clock.NewFake(time.Now()), nil)
	for i := 0; i < 10; i++ {
		_, err := m.Do(context.Background(), op(t, "getPost"), map[string]any{"id": float64(1)})
		if errors.KindOf(err) != errors.KindUpstreamClient {
			t.Fatalf("expected UpstreamClient, got %v", err)
		}
	}
	if m.BreakerState() != 0 {
		t.Errorf("client errors must not open the breaker, state=%d", m.BreakerState())
	}
}

func TestMalformedJSONRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>maintenance</html>`)
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL, 0, clock.NewFake(time.Now()), nil)
	_, err := m.Do(context.Background(), op(t, "getPost"), map[string]any{"id": float64(1)})
	if errors.KindOf(err) != errors.KindUpstreamUnavailable {
		t.Errorf("expected UpstreamUnavailable for malformed body, got %v", err)
	}
}

func TestParamErrorsNeverReachTheWire(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL, 0, clock.NewFake(time.Now()), nil)
	_, err := m.Do(context.Background(), op(t, "getPost"), map[string]any{})
	if errors.KindOf(err) != errors.KindParamInvalid {
		t.Fatalf("expected ParamInvalid, got %v", err)
	}
	if hits != 0 {
		t.Errorf("invalid request reached the server")
	}
}

func TestMultipartUploadStreams(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	payload := strings.Repeat("x", 200<<10) // larger than one chunk
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parsing multipart: %v", err)
			w.WriteHeader(400)
			return
		}
		if got := r.FormValue("title"); got != "Photo" {
			t.Errorf("scalar field lost: %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("file part missing: %v", err)
			w.WriteHeader(400)
			return
		}
		defer f.Close()
		if hdr.Filename != "photo.jpg" {
			t.Errorf("unexpected filename %q", hdr.Filename)
		}
		w.WriteHeader(201)
		fmt.Fprint(w, `{"id":55}`)
	}))
	defer srv.Close()

	var progressCalls int
	var lastSent, lastTotal int64
	m := New(Options{
		SiteID:        "site",
		BaseURL:       srv.URL,
		RetryAttempts: 0,
		OnUploadProgress: func(file string, sent, total int64) {
			progressCalls++
			lastSent, lastTotal = sent, total
		},
	}, &fakeAuth{token: "t0"}, ratelimit.NewSiteLimiter(600, 10), ratelimit.NewGate(4), clock.NewFake(time.Now()), nil)

	resp, err := m.Do(context.Background(), op(t, "uploadMedia"), map[string]any{
		"file":  path,
		"title": "Photo",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 201 {
		t.Errorf("unexpected status %d", resp.StatusCode)
	}
	if progressCalls < 2 {
		t.Errorf("expected chunked progress callbacks, got %d", progressCalls)
	}
	if lastSent != int64(len(payload)) || lastTotal != int64(len(payload)) {
		t.Errorf("final progress %d/%d, want %d/%d", lastSent, lastTotal, len(payload), len(payload))
	}
}

func TestUploadMissingFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("request must not be sent for a missing file")
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL, 0, clock.NewFake(time.Now()), nil)
	_, err := m.Do(context.Background(), op(t, "uploadMedia"), map[string]any{
		"file": filepath.Join(t.TempDir(), "absent.png"),
	})
	if errors.KindOf(err) != errors.KindParamInvalid {
		t.Errorf("expected ParamInvalid, got %v", err)
	}
}

func TestCancellationSurfacesCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	m := newTestManager(t, srv.URL, 0, clock.NewFake(time.Now()), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := m.Do(ctx, op(t, "getPost"), map[string]any{"id": float64(1)})
	if errors.KindOf(err) != errors.KindCancelled {
		t.Errorf("expected Cancelled, got %v", err)
	}
}
