// Package invalidation drops cache entries made stale by mutations.
// Rules are static, cascades are depth-bounded, and failures are logged
// but never surfaced: a mutation that succeeded upstream has succeeded,
// whatever the cache thinks.
package invalidation

import (
	"regexp"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/wpmcp/wpmcp/internal/cache"
	"github.com/wpmcp/wpmcp/internal/httpcache"
	"github.com/wpmcp/wpmcp/internal/wordpress"
)

// maxDepth bounds rule cascades. Three levels covers every chain the
// table produces (comment -> post -> term).
const maxDepth = 3

// Event is one resource mutation to invalidate for.
type Event struct {
	Resource string
	Op       wordpress.Event
	ID       string
	// Related carries ids of adjacent resources keyed by role, e.g.
	// "categories", "tags", "post".
	Related map[string][]string
}

// Engine applies the rule table to one site's store.
type Engine struct {
	siteID string
	store  *cache.Store
	logger *zap.Logger
}

func New(siteID string, store *cache.Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{siteID: siteID, store: store, logger: logger.With(zap.String("siteId", siteID))}
}

// Apply walks the rule table from ev, breadth-first, deleting matching
// entries. Each (resource, id) pair is visited once.
func (e *Engine) Apply(ev Event) {
	if e.store == nil {
		return
	}

	type item struct {
		ev    Event
		depth int
	}
	queue := []item{{ev: ev, depth: 0}}
	visited := map[string]bool{}
	deleted := 0

	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]

		mark := it.ev.Resource + "#" + it.ev.ID
		if visited[mark] {
			continue
		}
		visited[mark] = true

		r, ok := rules[it.ev.Resource]
		if !ok {
			continue
		}

		deleted += e.applyRule(r, it.ev)

		if r.cascade != nil && it.depth < maxDepth-1 {
			for _, next := range r.cascade(it.ev) {
				queue = append(queue, item{ev: next, depth: it.depth + 1})
			}
		}
	}

	e.logger.Debug("cache invalidated",
		zap.String("event", "cache.invalidate"),
		zap.String("resource", ev.Resource),
		zap.String("id", ev.ID),
		zap.Int("entries", deleted))
}

func (e *Engine) applyRule(r rule, ev Event) int {
	n := 0
	if ev.ID != "" {
		for _, op := range r.byID {
			n += e.deletePattern(op, httpcache.ParamEquals("id", ev.ID))
		}
		for op, param := range r.filtered {
			n += e.deletePattern(op, httpcache.ParamContains(param, ev.ID))
		}
	}
	for _, op := range r.lists {
		n += e.deletePattern(op, ".*")
	}
	return n
}

func (e *Engine) deletePattern(opName, paramPattern string) int {
	re, err := httpcache.KeyPattern(e.siteID, regexp.QuoteMeta(opName), paramPattern)
	if err != nil {
		// A bad pattern is a table bug, not a request failure.
		e.logger.Warn("invalid invalidation pattern",
			zap.String("event", "cache.invalidate.error"),
			zap.String("op", opName), zap.Error(err))
		return 0
	}
	return e.store.DeletePattern(re)
}

// ExtractEvent derives the invalidation event for a completed mutation.
// The id comes from the bound parameters when the operation addresses a
// resource directly, otherwise from the response body; related ids are
// gathered from both.
func ExtractEvent(op *wordpress.Operation, params map[string]any, body []byte) (Event, bool) {
	if !op.IsMutation() {
		return Event{}, false
	}

	ev := Event{
		Resource: op.Resource,
		Op:       op.Event,
		Related:  map[string][]string{},
	}

	if v, ok := params["id"]; ok {
		ev.ID = wordpress.FormatValue(v)
	} else if v, ok := params["uuid"]; ok {
		ev.ID = wordpress.FormatValue(v)
	} else if id := bodyID(body); id != "" {
		ev.ID = id
	}

	for _, role := range []string{"categories", "tags"} {
		ev.Related[role] = mergeIDs(params[role], gjson.GetBytes(body, role))
	}
	if v, ok := params["post"]; ok {
		ev.Related["post"] = []string{wordpress.FormatValue(v)}
	} else if p := gjson.GetBytes(body, "post"); p.Exists() {
		ev.Related["post"] = []string{p.String()}
	}
	if v, ok := params["user_id"]; ok {
		ev.Related["user_id"] = []string{wordpress.FormatValue(v)}
	}

	return ev, true
}

// bodyID reads the mutated resource id from a response body. Forced
// deletes wrap the removed object under "previous".
func bodyID(body []byte) string {
	if id := gjson.GetBytes(body, "id"); id.Exists() {
		return id.String()
	}
	if id := gjson.GetBytes(body, "previous.id"); id.Exists() {
		return id.String()
	}
	return ""
}

func mergeIDs(param any, fromBody gjson.Result) []string {
	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}

	if list, ok := param.([]any); ok {
		for _, v := range list {
			add(wordpress.FormatValue(v))
		}
	} else if param != nil {
		add(wordpress.FormatValue(param))
	}
	if fromBody.IsArray() {
		for _, v := range fromBody.Array() {
			add(v.String())
		}
	}
	return out
}
