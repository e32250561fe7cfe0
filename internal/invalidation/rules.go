package invalidation

// rule describes which cached operations a mutation on a resource
// invalidates, and which related resources it cascades to.
type rule struct {
	// byID lists operations whose cache entries carry the mutated id as
	// the "id" parameter. Deleted only when the event has an id.
	byID []string

	// lists names operations whose entries are dropped wholesale; any
	// parameter combination of a list can contain the mutated resource.
	lists []string

	// filtered maps an operation name to the query parameter that links
	// its entries to the mutated id (e.g. comments listed by "post").
	filtered map[string]string

	// cascade produces follow-up events for related resources. Cascades
	// run through the same table, bounded by maxDepth.
	cascade func(ev Event) []Event
}

// rules is the static invalidation table. Keys match Operation.Resource.
var rules = map[string]rule{
	"posts": {
		byID:  []string{"getPost", "getPostRevisions", "getSEOMetadata"},
		lists: []string{"listPosts", "searchSite"},
		cascade: func(ev Event) []Event {
			var out []Event
			for _, id := range ev.Related["categories"] {
				out = append(out, Event{Resource: "terms:category", ID: id})
			}
			for _, id := range ev.Related["tags"] {
				out = append(out, Event{Resource: "terms:tag", ID: id})
			}
			return out
		},
	},
	"pages": {
		byID:  []string{"getPage", "getPageRevisions"},
		lists: []string{"listPages", "searchSite"},
	},
	"media": {
		byID:  []string{"getMedia"},
		lists: []string{"listMedia"},
	},
	"users": {
		byID:  []string{"getUser"},
		lists: []string{"listUsers", "getCurrentUser"},
	},
	"comments": {
		byID:  []string{"getComment"},
		lists: []string{"listComments"},
		cascade: func(ev Event) []Event {
			// Comment counts surface on the parent post.
			for _, id := range ev.Related["post"] {
				return []Event{{Resource: "posts", ID: id}}
			}
			return nil
		},
	},
	"terms:category": {
		byID:     []string{"getCategory"},
		lists:    []string{"listCategories"},
		filtered: map[string]string{"listPosts": "categories"},
	},
	"terms:tag": {
		byID:     []string{"getTag"},
		lists:    []string{"listTags"},
		filtered: map[string]string{"listPosts": "tags"},
	},
	"settings": {
		lists: []string{"getSiteSettings"},
	},
	// Application passwords are never cached; a mutation still refreshes
	// the owning user's view.
	"app-passwords": {
		cascade: func(ev Event) []Event {
			for _, id := range ev.Related["user_id"] {
				return []Event{{Resource: "users", ID: id}}
			}
			return nil
		},
	},
}
