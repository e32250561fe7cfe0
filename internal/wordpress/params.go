package wordpress

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/wpmcp/wpmcp/internal/errors"
)

// RequestParts is the typed result of binding a parameter map against an
// operation descriptor. The request manager turns it into an HTTP request.
type RequestParts struct {
	Path  string
	Query url.Values
	Body  map[string]any

	// FilePath and FileField are set for multipart operations; the file is
	// streamed from disk, never buffered.
	FilePath  string
	FileField string
}

// Bind validates params against the descriptor and places each value in its
// path, query, body, or file slot. Unknown parameters are rejected unless
// the operation allows pass-through, in which case they land in the query.
func (op *Operation) Bind(params map[string]any) (*RequestParts, error) {
	parts := &RequestParts{
		Path:  op.PathTemplate,
		Query: url.Values{},
	}

	known := make(map[string]*ParamSpec, len(op.Params))
	for i := range op.Params {
		known[op.Params[i].Name] = &op.Params[i]
	}

	for name := range params {
		if _, ok := known[name]; ok {
			continue
		}
		if !op.AllowExtra {
			return nil, errors.Newf(errors.KindParamInvalid, "%s: unknown parameter %q", op.Name, name)
		}
		parts.Query.Set(name, FormatValue(params[name]))
	}

	for i := range op.Params {
		spec := &op.Params[i]
		raw, present := params[spec.Name]
		if !present {
			if spec.Required {
				return nil, errors.Newf(errors.KindParamInvalid, "%s: missing required parameter %q", op.Name, spec.Name)
			}
			continue
		}
		value, err := spec.coerce(raw)
		if err != nil {
			return nil, errors.Newf(errors.KindParamInvalid, "%s: parameter %q: %v", op.Name, spec.Name, err)
		}

		switch spec.Binding {
		case BindPath:
			placeholder := "{" + spec.Name + "}"
			if !strings.Contains(parts.Path, placeholder) {
				return nil, errors.Newf(errors.KindParamInvalid, "%s: no path slot for %q", op.Name, spec.Name)
			}
			parts.Path = strings.ReplaceAll(parts.Path, placeholder, url.PathEscape(FormatValue(value)))
		case BindQuery:
			parts.Query.Set(spec.Name, FormatValue(value))
		case BindBody:
			if parts.Body == nil {
				parts.Body = make(map[string]any)
			}
			parts.Body[spec.Name] = value
		case BindFile:
			parts.FilePath = FormatValue(value)
			parts.FileField = "file"
		}
	}

	// A leftover placeholder means a path parameter was optional by mistake
	// in the table; treat it as a programming error surfaced as ParamInvalid.
	if strings.Contains(parts.Path, "{") {
		return nil, errors.Newf(errors.KindParamInvalid, "%s: unresolved path template %q", op.Name, parts.Path)
	}
	return parts, nil
}

// coerce checks the raw JSON value against the spec's type and constraints,
// returning a normalized value.
func (s *ParamSpec) coerce(raw any) (any, error) {
	switch s.Type {
	case TypeString:
		v, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		if s.MaxLen > 0 && len(v) > s.MaxLen {
			return nil, fmt.Errorf("longer than %d bytes", s.MaxLen)
		}
		if len(s.Enum) > 0 && !contains(s.Enum, v) {
			return nil, fmt.Errorf("must be one of %s", strings.Join(s.Enum, ", "))
		}
		return v, nil

	case TypeInt:
		n, err := toInt64(raw)
		if err != nil {
			return nil, err
		}
		if s.Min != 0 || s.Max != 0 {
			if n < s.Min {
				return nil, fmt.Errorf("below minimum %d", s.Min)
			}
			if s.Max != 0 && n > s.Max {
				return nil, fmt.Errorf("above maximum %d", s.Max)
			}
		}
		return n, nil

	case TypeNumber:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
		return nil, fmt.Errorf("expected number, got %T", raw)

	case TypeBool:
		v, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", raw)
		}
		return v, nil

	case TypeArray:
		v, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array, got %T", raw)
		}
		return v, nil
	}
	return nil, fmt.Errorf("unsupported parameter type")
}

func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("expected integer, got %v", v)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("expected integer, got %T", raw)
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// FormatValue produces the stable serialization used both for query
// arguments and for cache keys. Integral floats format as integers so
// {"id": 42} and {"id": 42.0} are the same value.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = FormatValue(e)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(x, ",")
	default:
		return fmt.Sprintf("%v", x)
	}
}
