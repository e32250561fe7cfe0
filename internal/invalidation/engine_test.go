package invalidation

import (
	"testing"
	"time"

	"github.com/wpmcp/wpmcp/internal/cache"
	"github.com/wpmcp/wpmcp/internal/clock"
	"github.com/wpmcp/wpmcp/internal/httpcache"
	"github.com/wpmcp/wpmcp/internal/wordpress"
)

func seed(s *cache.Store, keys ...string) {
	for _, k := range keys {
		s.Set(k, &cache.Entry{Body: []byte("{}"), StatusCode: 200}, time.Hour)
	}
}

func present(t *testing.T, s *cache.Store, key string) bool {
	t.Helper()
	_, ok := s.Get(key)
	return ok
}

func TestPostUpdateInvalidatesItsEntries(t *testing.T) {
	store := cache.New(1<<20, clock.NewFake(time.Now()))
	eng := New("alpha", store, nil)

	hit := []string{
		httpcache.Key("alpha", "getPost", map[string]any{"id": float64(42)}),
		httpcache.Key("alpha", "getPostRevisions", map[string]any{"id": float64(42)}),
		httpcache.Key("alpha", "listPosts", nil),
		httpcache.Key("alpha", "listPosts", map[string]any{"page": float64(2)}),
		httpcache.Key("alpha", "searchSite", map[string]any{"search": "hello"}),
	}
	spared := []string{
		httpcache.Key("alpha", "getPost", map[string]any{"id": float64(7)}),
		httpcache.Key("alpha", "getPage", map[string]any{"id": float64(42)}),
		httpcache.Key("beta", "getPost", map[string]any{"id": float64(42)}),
		httpcache.Key("beta", "listPosts", nil),
	}
	seed(store, hit...)
	seed(store, spared...)

	eng.Apply(Event{Resource: "posts", Op: wordpress.EventUpdate, ID: "42"})

	for _, k := range hit {
		if present(t, store, k) {
			t.Errorf("entry survived invalidation: %s", k)
		}
	}
	for _, k := range spared {
		if !present(t, store, k) {
			t.Errorf("unrelated entry deleted: %s", k)
		}
	}
}

func TestPostMutationCascadesToTerms(t *testing.T) {
	store := cache.New(1<<20, clock.NewFake(time.Now()))
	eng := New("alpha", store, nil)

	catKey := httpcache.Key("alpha", "getCategory", map[string]any{"id": float64(3)})
	catList := httpcache.Key("alpha", "listCategories", nil)
	otherCat := httpcache.Key("alpha", "getCategory", map[string]any{"id": float64(9)})
	seed(store, catKey, catList, otherCat)

	eng.Apply(Event{
		Resource: "posts",
		Op:       wordpress.EventUpdate,
		ID:       "42",
		Related:  map[string][]string{"categories": {"3"}},
	})

	if present(t, store, catKey) {
		t.Errorf("category of the mutated post not invalidated")
	}
	if present(t, store, catList) {
		t.Errorf("category list not invalidated")
	}
	if !present(t, store, otherCat) {
		t.Errorf("unrelated category deleted")
	}
}

func TestTermMutationDropsFilteredPostLists(t *testing.T) {
	store := cache.New(1<<20, clock.NewFake(time.Now()))
	eng := New("alpha", store, nil)

	filtered := httpcache.Key("alpha", "listPosts", map[string]any{"categories": []any{float64(3), float64(5)}})
	unfiltered := httpcache.Key("alpha", "listPosts", map[string]any{"page": float64(1)})
	otherTerm := httpcache.Key("alpha", "listPosts", map[string]any{"categories": []any{float64(8)}})
	seed(store, filtered, unfiltered, otherTerm)

	eng.Apply(Event{Resource: "terms:category", Op: wordpress.EventUpdate, ID: "3"})

	if present(t, store, filtered) {
		t.Errorf("post list filtered by the term survived")
	}
	if !present(t, store, unfiltered) {
		t.Errorf("unfiltered post list deleted by a term mutation")
	}
	if !present(t, store, otherTerm) {
		t.Errorf("list filtered by an unrelated term deleted")
	}
}

func TestCommentCascadesToParentPost(t *testing.T) {
	store := cache.New(1<<20, clock.NewFake(time.Now()))
	eng := New("alpha", store, nil)

	commentKey := httpcache.Key("alpha", "getComment", map[string]any{"id": float64(10)})
	commentList := httpcache.Key("alpha", "listComments", map[string]any{"post": float64(42)})
	postKey := httpcache.Key("alpha", "getPost", map[string]any{"id": float64(42)})
	seed(store, commentKey, commentList, postKey)

	eng.Apply(Event{
		Resource: "comments",
		Op:       wordpress.EventCreate,
		ID:       "10",
		Related:  map[string][]string{"post": {"42"}},
	})

	for _, k := range []string{commentKey, commentList, postKey} {
		if present(t, store, k) {
			t.Errorf("entry survived comment cascade: %s", k)
		}
	}
}

func TestApplicationPasswordCascadesToUser(t *testing.T) {
	store := cache.New(1<<20, clock.NewFake(time.Now()))
	eng := New("alpha", store, nil)

	userKey := httpcache.Key("alpha", "getUser", map[string]any{"id": float64(5)})
	userList := httpcache.Key("alpha", "listUsers", nil)
	seed(store, userKey, userList)

	eng.Apply(Event{
		Resource: "app-passwords",
		Op:       wordpress.EventDelete,
		Related:  map[string][]string{"user_id": {"5"}},
	})

	if present(t, store, userKey) || present(t, store, userList) {
		t.Errorf("owning user entries survived credential mutation")
	}
}

func TestCascadeVisitsEachResourceOnce(t *testing.T) {
	store := cache.New(1<<20, clock.NewFake(time.Now()))
	eng := New("alpha", store, nil)

	// A post related to itself must not loop; Apply terminates and the
	// engine is callable again afterwards.
	eng.Apply(Event{
		Resource: "posts",
		ID:       "1",
		Related:  map[string][]string{"categories": {"1"}, "tags": {"1"}},
	})
	eng.Apply(Event{Resource: "posts", ID: "1"})
}

func TestUnknownResourceIsANoop(t *testing.T) {
	store := cache.New(1<<20, clock.NewFake(time.Now()))
	eng := New("alpha", store, nil)

	key := httpcache.Key("alpha", "getPost", map[string]any{"id": float64(1)})
	seed(store, key)

	eng.Apply(Event{Resource: "widgets", ID: "1"})

	if !present(t, store, key) {
		t.Errorf("unknown resource deleted entries")
	}
}

func TestExtractEventFromParams(t *testing.T) {
	op, _ := wordpress.Lookup("updatePost")
	ev, ok := ExtractEvent(op, map[string]any{
		"id":         float64(42),
		"categories": []any{float64(3)},
	}, []byte(`{"id":42,"categories":[3,5]}`))
	if !ok {
		t.Fatalf("mutation produced no event")
	}
	if ev.Resource != "posts" || ev.ID != "42" {
		t.Errorf("unexpected event: %+v", ev)
	}
	got := ev.Related["categories"]
	if len(got) != 2 || got[0] != "3" || got[1] != "5" {
		t.Errorf("categories not merged from params and body: %v", got)
	}
}

func TestExtractEventFromBody(t *testing.T) {
	op, _ := wordpress.Lookup("createPost")
	ev, ok := ExtractEvent(op, map[string]any{"title": "x"}, []byte(`{"id":99}`))
	if !ok || ev.ID != "99" {
		t.Errorf("id not read from creation body: %+v", ev)
	}
}

func TestExtractEventFromForcedDelete(t *testing.T) {
	op, _ := wordpress.Lookup("deleteComment")
	ev, ok := ExtractEvent(op, map[string]any{"id": float64(10)}, []byte(`{"deleted":true,"previous":{"id":10,"post":42}}`))
	if !ok || ev.ID != "10" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestExtractEventIgnoresReads(t *testing.T) {
	op, _ := wordpress.Lookup("getPost")
	if _, ok := ExtractEvent(op, map[string]any{"id": float64(1)}, nil); ok {
		t.Errorf("read operation produced an invalidation event")
	}
}
