// Package wordpress defines the operation vocabulary: the static table of
// WordPress REST operations the server can perform. Each descriptor fixes
// the method, path template, parameter binding, cache class, and
// invalidation class; the tool layer and the invalidation rules are both
// derived from this table.
package wordpress

import (
	"net/http"
	"time"
)

// CacheClass is the coarse TTL band assigned to a read operation.
type CacheClass int

const (
	CacheNone CacheClass = iota
	CacheShort
	CacheMedium
	CacheLong
	CacheStatic
)

// TTL returns the default TTL for the class.
func (c CacheClass) TTL() time.Duration {
	switch c {
	case CacheShort:
		return 60 * time.Second
	case CacheMedium:
		return 15 * time.Minute
	case CacheLong:
		return 60 * time.Minute
	case CacheStatic:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Grace is the window past expiry during which a stale entry may still be
// revalidated with If-None-Match / If-Modified-Since instead of refetched.
func (c CacheClass) Grace() time.Duration {
	switch c {
	case CacheShort:
		return 30 * time.Second
	case CacheMedium:
		return 5 * time.Minute
	case CacheLong:
		return 15 * time.Minute
	case CacheStatic:
		return time.Hour
	default:
		return 0
	}
}

func (c CacheClass) String() string {
	switch c {
	case CacheShort:
		return "short"
	case CacheMedium:
		return "medium"
	case CacheLong:
		return "long"
	case CacheStatic:
		return "static"
	default:
		return "none"
	}
}

// Binding says where a parameter is placed in the HTTP request.
type Binding int

const (
	BindPath Binding = iota
	BindQuery
	BindBody
	BindFile // multipart file part, value is a local file path
)

// ParamType constrains a parameter value.
type ParamType int

const (
	TypeString ParamType = iota
	TypeInt
	TypeNumber
	TypeBool
	TypeArray // array of scalars, serialized comma-joined in queries
)

// ParamSpec describes one operation parameter.
type ParamSpec struct {
	Name     string
	Binding  Binding
	Type     ParamType
	Required bool

	// Constraints; zero values mean unconstrained.
	MaxLen int
	Min    int64
	Max    int64
	Enum   []string
}

// Event classifies a mutation for the invalidation engine.
type Event string

const (
	EventCreate Event = "create"
	EventUpdate Event = "update"
	EventDelete Event = "delete"
)

// Operation is one entry of the vocabulary.
type Operation struct {
	Name         string
	Summary      string
	Method       string
	PathTemplate string
	Params       []ParamSpec

	// AllowExtra forwards unknown parameters as query arguments instead of
	// rejecting them. Used by list endpoints with large filter surfaces.
	AllowExtra bool

	CacheClass CacheClass

	// Resource and Event drive the invalidation engine for mutations.
	Resource string
	Event    Event

	Idempotent bool
	Streamable bool

	// Plugin names a required plugin surface ("seo"); empty for core
	// endpoints. Operations of an undetected plugin degrade to unsupported.
	Plugin string
}

// IsMutation reports whether the operation changes upstream state.
func (op *Operation) IsMutation() bool {
	return op.Event != ""
}

// Cacheable reports whether responses may be stored.
func (op *Operation) Cacheable() bool {
	return op.Method == http.MethodGet && op.CacheClass != CacheNone
}

var registry = make(map[string]*Operation, 64)

func register(ops ...*Operation) {
	for _, op := range ops {
		if _, dup := registry[op.Name]; dup {
			panic("duplicate operation " + op.Name)
		}
		registry[op.Name] = op
	}
}

// Lookup finds an operation by name.
func Lookup(name string) (*Operation, bool) {
	op, ok := registry[name]
	return op, ok
}

// All returns every registered operation, for tool generation.
func All() []*Operation {
	out := make([]*Operation, 0, len(registry))
	for _, op := range registry {
		out = append(out, op)
	}
	return out
}

// Shared parameter specs.
func idParam() ParamSpec {
	return ParamSpec{Name: "id", Binding: BindPath, Type: TypeInt, Required: true, Min: 1}
}

func listParams() []ParamSpec {
	return []ParamSpec{
		{Name: "page", Binding: BindQuery, Type: TypeInt, Min: 1},
		{Name: "per_page", Binding: BindQuery, Type: TypeInt, Min: 1, Max: 100},
		{Name: "search", Binding: BindQuery, Type: TypeString, MaxLen: 256},
		{Name: "order", Binding: BindQuery, Type: TypeString, Enum: []string{"asc", "desc"}},
		{Name: "orderby", Binding: BindQuery, Type: TypeString, MaxLen: 64},
	}
}

func init() {
	registerPosts()
	registerPages()
	registerMedia()
	registerUsers()
	registerComments()
	registerTaxonomies()
	registerSite()
	registerSEO()
}

func registerPosts() {
	register(
		&Operation{
			Name: "listPosts", Summary: "List posts with optional filters",
			Method: http.MethodGet, PathTemplate: "/wp-json/wp/v2/posts",
			Params: append(listParams(),
				ParamSpec{Name: "status", Binding: BindQuery, Type: TypeString, MaxLen: 64},
				ParamSpec{Name: "categories", Binding: BindQuery, Type: TypeArray},
				ParamSpec{Name: "tags", Binding: BindQuery, Type: TypeArray},
				ParamSpec{Name: "author", Binding: BindQuery, Type: TypeInt, Min: 1},
			),
			AllowExtra: true, CacheClass: CacheShort, Resource: "posts", Idempotent: true,
		},
		&Operation{
			Name: "getPost", Summary: "Fetch a single post by id",
			Method: http.MethodGet, PathTemplate: "/wp-json/wp/v2/posts/{id}",
			Params: []ParamSpec{idParam(),
				{Name: "context", Binding: BindQuery, Type: TypeString, Enum: []string{"view", "embed", "edit"}}},
			CacheClass: CacheMedium, Resource: "posts", Idempotent: true,
		},
		&Operation{
			Name: "createPost", Summary: "Create a post",
			Method: http.MethodPost, PathTemplate: "/wp-json/wp/v2/posts",
			Params: []ParamSpec{
				{Name: "title", Binding: BindBody, Type: TypeString, Required: true, MaxLen: 512},
				{Name: "content", Binding: BindBody, Type: TypeString},
				{Name: "excerpt", Binding: BindBody, Type: TypeString, MaxLen: 2048},
				{Name: "status", Binding: BindBody, Type: TypeString, Enum: []string{"draft", "publish", "pending", "private", "future"}},
				{Name: "categories", Binding: BindBody, Type: TypeArray},
				{Name: "tags", Binding: BindBody, Type: TypeArray},
				{Name: "date", Binding: BindBody, Type: TypeString, MaxLen: 64},
			},
			Resource: "posts", Event: EventCreate,
		},
		&Operation{
			Name: "updatePost", Summary: "Update an existing post",
			Method: http.MethodPost, PathTemplate: "/wp-json/wp/v2/posts/{id}",
			Params: []ParamSpec{idParam(),
				{Name: "title", Binding: BindBody, Type: TypeString, MaxLen: 512},
				{Name: "content", Binding: BindBody, Type: TypeString},
				{Name: "excerpt", Binding: BindBody, Type: TypeString, MaxLen: 2048},
				{Name: "status", Binding: BindBody, Type: TypeString, Enum: []string{"draft", "publish", "pending", "private", "future"}},
				{Name: "categories", Binding: BindBody, Type: TypeArray},
				{Name: "tags", Binding: BindBody, Type: TypeArray},
			},
			Resource: "posts", Event: EventUpdate,
		},
		&Operation{
			Name: "deletePost", Summary: "Delete a post (trash unless force)",
			Method: http.MethodDelete, PathTemplate: "/wp-json/wp/v2/posts/{id}",
			Params: []ParamSpec{idParam(),
				{Name: "force", Binding: BindQuery, Type: TypeBool}},
			Resource: "posts", Event: EventDelete, Idempotent: true,
		},
		&Operation{
			Name: "getPostRevisions", Summary: "List revisions of a post",
			Method: http.MethodGet, PathTemplate: "/wp-json/wp/v2/posts/{id}/revisions",
			Params:     []ParamSpec{idParam()},
			CacheClass: CacheMedium, Resource: "posts", Idempotent: true,
		},
	)
}

func registerPages() {
	register(
		&Operation{
			Name: "listPages", Summary: "List pages",
			Method: http.MethodGet, PathTemplate: "/wp-json/wp/v2/pages",
			Params: append(listParams(),
				ParamSpec{Name: "parent", Binding: BindQuery, Type: TypeInt, Min: 0},
				ParamSpec{Name: "status", Binding: BindQuery, Type: TypeString, MaxLen: 64},
			),
			AllowExtra: true, CacheClass: CacheShort, Resource: "pages", Idempotent: true,
		},
		&Operation{
			Name: "getPage", Summary: "Fetch a single page by id",
			Method: http.MethodGet, PathTemplate: "/wp-json/wp/v2/pages/{id}",
			Params:     []ParamSpec{idParam()},
			CacheClass: CacheMedium, Resource: "pages", Idempotent: true,
		},
		&Operation{
			Name: "createPage", Summary: "Create a page",
			Method: http.MethodPost, PathTemplate: "/wp-json/wp/v2/pages",
			Params: []ParamSpec{
				{Name: "title", Binding: BindBody, Type: TypeString, Required: true, MaxLen: 512},
				{Name: "content", Binding: BindBody, Type: TypeString},
				{Name: "status", Binding: BindBody, Type: TypeString, Enum: []string{"draft", "publish", "pending", "private"}},
				{Name: "parent", Binding: BindBody, Type: TypeInt, Min: 0},
				{Name: "menu_order", Binding: BindBody, Type: TypeInt},
			},
			Resource: "pages", Event: EventCreate,
		},
		&Operation{
			Name: "updatePage", Summary: "Update an existing page",
			Method: http.MethodPost, PathTemplate: "/wp-json/wp/v2/pages/{id}",
			Params: []ParamSpec{idParam(),
				{Name: "title", Binding: BindBody, Type: TypeString, MaxLen: 512},
				{Name: "content", Binding: BindBody, Type: TypeString},
				{Name: "status", Binding: BindBody, Type: TypeString, Enum: []string{"draft", "publish", "pending", "private"}},
				{Name: "parent", Binding: BindBody, Type: TypeInt, Min: 0},
			},
			Resource: "pages", Event: EventUpdate,
		},
		&Operation{
			Name: "deletePage", Summary: "Delete a page",
			Method: http.MethodDelete, PathTemplate: "/wp-json/wp/v2/pages/{id}",
			Params: []ParamSpec{idParam(),
				{Name: "force", Binding: BindQuery, Type: TypeBool}},
			Resource: "pages", Event: EventDelete, Idempotent: true,
		},
		&Operation{
			Name: "getPageRevisions", Summary: "List revisions of a page",
			Method: http.MethodGet, PathTemplate: "/wp-json/wp/v2/pages/{id}/revisions",
			Params:     []ParamSpec{idParam()},
			CacheClass: CacheMedium, Resource: "pages", Idempotent: true,
		},
	)
}

func registerMedia() {
	register(
		&Operation{
			Name: "listMedia", Summary: "List media library items",
			Method: http.MethodGet, PathTemplate: "/wp-json/wp/v2/media",
			Params: append(listParams(),
				ParamSpec{Name: "media_type", Binding: BindQuery, Type: TypeString, Enum: []string{"image", "video", "audio", "application", "text"}},
				ParamSpec{Name: "mime_type", Binding: BindQuery, Type: TypeString, MaxLen: 128},
			),
			AllowExtra: true, CacheClass: CacheShort, Resource: "media", Idempotent: true,
		},
		&Operation{
			Name: "getMedia", Summary: "Fetch one media item",
			Method: http.MethodGet, PathTemplate: "/wp-json/wp/v2/media/{id}",
			Params:     []ParamSpec{idParam()},
			CacheClass: CacheLong, Resource: "media", Idempotent: true,
		},
		&Operation{
			Name: "uploadMedia", Summary: "Upload a file to the media library",
			Method: http.MethodPost, PathTemplate: "/wp-json/wp/v2/media",
			Params: []ParamSpec{
				{Name: "file", Binding: BindFile, Type: TypeString, Required: true, MaxLen: 4096},
				{Name: "title", Binding: BindBody, Type: TypeString, MaxLen: 512},
				{Name: "alt_text", Binding: BindBody, Type: TypeString, MaxLen: 512},
				{Name: "caption", Binding: BindBody, Type: TypeString, MaxLen: 2048},
			},
			Resource: "media", Event: EventCreate, Streamable: true,
		},
		&Operation{
			Name: "updateMedia", Summary: "Update media item metadata",
			Method: http.MethodPost, PathTemplate: "/wp-json/wp/v2/media/{id}",
			Params: []ParamSpec{idParam(),
				{Name: "title", Binding: BindBody, Type: TypeString, MaxLen: 512},
				{Name: "alt_text", Binding: BindBody, Type: TypeString, MaxLen: 512},
				{Name: "caption", Binding: BindBody, Type: TypeString, MaxLen: 2048},
			},
			Resource: "media", Event: EventUpdate,
		},
		&Operation{
			Name: "deleteMedia", Summary: "Delete a media item",
			Method: http.MethodDelete, PathTemplate: "/wp-json/wp/v2/media/{id}",
			Params: []ParamSpec{idParam(),
				{Name: "force", Binding: BindQuery, Type: TypeBool}},
			Resource: "media", Event: EventDelete, Idempotent: true,
		},
	)
}

func registerUsers() {
	register(
		&Operation{
			Name: "listUsers", Summary: "List users",
			Method: http.MethodGet, PathTemplate: "/wp-json/wp/v2/users",
			Params: append(listParams(),
				ParamSpec{Name: "roles", Binding: BindQuery, Type: TypeArray},
			),
			AllowExtra: true, CacheClass: CacheMedium, Resource: "users", Idempotent: true,
		},
		&Operation{
			Name: "getUser", Summary: "Fetch a single user",
			Method: http.MethodGet, PathTemplate: "/wp-json/wp/v2/users/{id}",
			Params:     []ParamSpec{idParam()},
			CacheClass: CacheMedium, Resource: "users", Idempotent: true,
		},
		&Operation{
			Name: "getCurrentUser", Summary: "Fetch the authenticated user",
			Method: http.MethodGet, PathTemplate: "/wp-json/wp/v2/users/me",
			CacheClass: CacheShort, Resource: "users", Idempotent: true,
		},
		&Operation{
			Name: "createUser", Summary: "Create a user",
			Method: http.MethodPost, PathTemplate: "/wp-json/wp/v2/users",
			Params: []ParamSpec{
				{Name: "username", Binding: BindBody, Type: TypeString, Required: true, MaxLen: 64},
				{Name: "email", Binding: BindBody, Type: TypeString, Required: true, MaxLen: 256},
				{Name: "password", Binding: BindBody, Type: TypeString, Required: true, MaxLen: 256},
				{Name: "name", Binding: BindBody, Type: TypeString, MaxLen: 256},
				{Name: "roles", Binding: BindBody, Type: TypeArray},
			},
			Resource: "users", Event: EventCreate,
		},
		&Operation{
			Name: "updateUser", Summary: "Update a user",
			Method: http.MethodPost, PathTemplate: "/wp-json/wp/v2/users/{id}",
			Params: []ParamSpec{idParam(),
				{Name: "email", Binding: BindBody, Type: TypeString, MaxLen: 256},
				{Name: "name", Binding: BindBody, Type: TypeString, MaxLen: 256},
				{Name: "roles", Binding: BindBody, Type: TypeArray},
			},
			Resource: "users", Event: EventUpdate,
		},
		&Operation{
			Name: "deleteUser", Summary: "Delete a user, reassigning content",
			Method: http.MethodDelete, PathTemplate: "/wp-json/wp/v2/users/{id}",
			Params: []ParamSpec{idParam(),
				{Name: "force", Binding: BindQuery, Type: TypeBool},
				{Name: "reassign", Binding: BindQuery, Type: TypeInt, Min: 1}},
			Resource: "users", Event: EventDelete, Idempotent: true,
		},
		&Operation{
			Name: "listApplicationPasswords", Summary: "List application passwords of a user",
			Method: http.MethodGet, PathTemplate: "/wp-json/wp/v2/users/{id}/application-passwords",
			Params:     []ParamSpec{idParam()},
			CacheClass: CacheNone, Resource: "app-passwords", Idempotent: true,
		},
		&Operation{
			Name: "createApplicationPassword", Summary: "Create an application password",
			Method: http.MethodPost, PathTemplate: "/wp-json/wp/v2/users/{id}/application-passwords",
			Params: []ParamSpec{idParam(),
				{Name: "name", Binding: BindBody, Type: TypeString, Required: true, MaxLen: 128}},
			Resource: "app-passwords", Event: EventCreate,
		},
		&Operation{
			Name: "deleteApplicationPassword", Summary: "Revoke an application password",
			Method: http.MethodDelete, PathTemplate: "/wp-json/wp/v2/users/{id}/application-passwords/{uuid}",
			Params: []ParamSpec{idParam(),
				{Name: "uuid", Binding: BindPath, Type: TypeString, Required: true, MaxLen: 64}},
			Resource: "app-passwords", Event: EventDelete, Idempotent: true,
		},
	)
}

func registerComments() {
	register(
		&Operation{
			Name: "listComments", Summary: "List comments, optionally for one post",
			Method: http.MethodGet, PathTemplate: "/wp-json/wp/v2/comments",
			Params: append(listParams(),
				ParamSpec{Name: "post", Binding: BindQuery, Type: TypeInt, Min: 1},
				ParamSpec{Name: "status", Binding: BindQuery, Type: TypeString, MaxLen: 32},
			),
			AllowExtra: true, CacheClass: CacheShort, Resource: "comments", Idempotent: true,
		},
		&Operation{
			Name: "getComment", Summary: "Fetch a single comment",
			Method: http.MethodGet, PathTemplate: "/wp-json/wp/v2/comments/{id}",
			Params:     []ParamSpec{idParam()},
			CacheClass: CacheShort, Resource: "comments", Idempotent: true,
		},
		&Operation{
			Name: "createComment", Summary: "Create a comment on a post",
			Method: http.MethodPost, PathTemplate: "/wp-json/wp/v2/comments",
			Params: []ParamSpec{
				{Name: "post", Binding: BindBody, Type: TypeInt, Required: true, Min: 1},
				{Name: "content", Binding: BindBody, Type: TypeString, Required: true},
				{Name: "parent", Binding: BindBody, Type: TypeInt, Min: 0},
			},
			Resource: "comments", Event: EventCreate,
		},
		&Operation{
			Name: "updateComment", Summary: "Update a comment",
			Method: http.MethodPost, PathTemplate: "/wp-json/wp/v2/comments/{id}",
			Params: []ParamSpec{idParam(),
				{Name: "content", Binding: BindBody, Type: TypeString},
				{Name: "status", Binding: BindBody, Type: TypeString, Enum: []string{"approved", "hold", "spam", "trash"}},
				{Name: "post", Binding: BindBody, Type: TypeInt, Min: 1},
			},
			Resource: "comments", Event: EventUpdate,
		},
		&Operation{
			Name: "deleteComment", Summary: "Delete a comment",
			Method: http.MethodDelete, PathTemplate: "/wp-json/wp/v2/comments/{id}",
			Params: []ParamSpec{idParam(),
				{Name: "force", Binding: BindQuery, Type: TypeBool},
				{Name: "post", Binding: BindQuery, Type: TypeInt, Min: 1}},
			Resource: "comments", Event: EventDelete, Idempotent: true,
		},
	)
}

func registerTaxonomies() {
	terms := []struct {
		taxonomy string
		path     string
		titles   [2]string // singular, plural
	}{
		{"category", "/wp-json/wp/v2/categories", [2]string{"Category", "Categories"}},
		{"tag", "/wp-json/wp/v2/tags", [2]string{"Tag", "Tags"}},
	}
	for _, tx := range terms {
		resource := "terms:" + tx.taxonomy
		register(
			&Operation{
				Name: "list" + tx.titles[1], Summary: "List " + tx.taxonomy + " terms",
				Method: http.MethodGet, PathTemplate: tx.path,
				Params: append(listParams(),
					ParamSpec{Name: "hide_empty", Binding: BindQuery, Type: TypeBool},
					ParamSpec{Name: "post", Binding: BindQuery, Type: TypeInt, Min: 1},
				),
				AllowExtra: true, CacheClass: CacheMedium, Resource: resource, Idempotent: true,
			},
			&Operation{
				Name: "get" + tx.titles[0], Summary: "Fetch one " + tx.taxonomy + " term",
				Method: http.MethodGet, PathTemplate: tx.path + "/{id}",
				Params:     []ParamSpec{idParam()},
				CacheClass: CacheMedium, Resource: resource, Idempotent: true,
			},
			&Operation{
				Name: "create" + tx.titles[0], Summary: "Create a " + tx.taxonomy + " term",
				Method: http.MethodPost, PathTemplate: tx.path,
				Params: []ParamSpec{
					{Name: "name", Binding: BindBody, Type: TypeString, Required: true, MaxLen: 256},
					{Name: "slug", Binding: BindBody, Type: TypeString, MaxLen: 256},
					{Name: "description", Binding: BindBody, Type: TypeString, MaxLen: 2048},
					{Name: "parent", Binding: BindBody, Type: TypeInt, Min: 0},
				},
				Resource: resource, Event: EventCreate,
			},
			&Operation{
				Name: "update" + tx.titles[0], Summary: "Update a " + tx.taxonomy + " term",
				Method: http.MethodPost, PathTemplate: tx.path + "/{id}",
				Params: []ParamSpec{idParam(),
					{Name: "name", Binding: BindBody, Type: TypeString, MaxLen: 256},
					{Name: "slug", Binding: BindBody, Type: TypeString, MaxLen: 256},
					{Name: "description", Binding: BindBody, Type: TypeString, MaxLen: 2048},
				},
				Resource: resource, Event: EventUpdate,
			},
			&Operation{
				Name: "delete" + tx.titles[0], Summary: "Delete a " + tx.taxonomy + " term",
				Method: http.MethodDelete, PathTemplate: tx.path + "/{id}",
				Params: []ParamSpec{idParam(),
					{Name: "force", Binding: BindQuery, Type: TypeBool}},
				Resource: resource, Event: EventDelete, Idempotent: true,
			},
		)
	}
}

func registerSite() {
	register(
		&Operation{
			Name: "getSiteSettings", Summary: "Read site settings",
			Method: http.MethodGet, PathTemplate: "/wp-json/wp/v2/settings",
			CacheClass: CacheLong, Resource: "settings", Idempotent: true,
		},
		&Operation{
			Name: "updateSiteSettings", Summary: "Update site settings",
			Method: http.MethodPost, PathTemplate: "/wp-json/wp/v2/settings",
			Params: []ParamSpec{
				{Name: "title", Binding: BindBody, Type: TypeString, MaxLen: 256},
				{Name: "description", Binding: BindBody, Type: TypeString, MaxLen: 1024},
				{Name: "timezone", Binding: BindBody, Type: TypeString, MaxLen: 64},
				{Name: "language", Binding: BindBody, Type: TypeString, MaxLen: 16},
				{Name: "posts_per_page", Binding: BindBody, Type: TypeInt, Min: 1, Max: 100},
			},
			Resource: "settings", Event: EventUpdate,
		},
		&Operation{
			Name: "searchSite", Summary: "Search across site content",
			Method: http.MethodGet, PathTemplate: "/wp-json/wp/v2/search",
			Params: []ParamSpec{
				{Name: "search", Binding: BindQuery, Type: TypeString, Required: true, MaxLen: 256},
				{Name: "type", Binding: BindQuery, Type: TypeString, Enum: []string{"post", "term", "post-format"}},
				{Name: "subtype", Binding: BindQuery, Type: TypeString, MaxLen: 64},
				{Name: "page", Binding: BindQuery, Type: TypeInt, Min: 1},
				{Name: "per_page", Binding: BindQuery, Type: TypeInt, Min: 1, Max: 100},
			},
			CacheClass: CacheShort, Resource: "search", Idempotent: true,
		},
	)
}

func registerSEO() {
	register(
		&Operation{
			Name: "getSEOMetadata", Summary: "Read SEO metadata of a post",
			Method: http.MethodGet, PathTemplate: "/wp-json/wp/v2/posts/{id}",
			Params: []ParamSpec{idParam(),
				{Name: "context", Binding: BindQuery, Type: TypeString, Enum: []string{"view", "edit"}}},
			CacheClass: CacheMedium, Resource: "posts", Idempotent: true,
			Plugin: "seo",
		},
		&Operation{
			Name: "updateSEOMetadata", Summary: "Write SEO metadata of a post",
			Method: http.MethodPost, PathTemplate: "/wp-json/wp/v2/posts/{id}",
			Params: []ParamSpec{idParam(),
				{Name: "meta_title", Binding: BindBody, Type: TypeString, MaxLen: 256},
				{Name: "meta_description", Binding: BindBody, Type: TypeString, MaxLen: 512},
				{Name: "canonical", Binding: BindBody, Type: TypeString, MaxLen: 1024},
			},
			Resource: "posts", Event: EventUpdate,
			Plugin:   "seo",
		},
	)
}
