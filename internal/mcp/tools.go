package mcp

import (
	"context"
	"sort"

	"github.com/wpmcp/wpmcp/internal/errors"
	"github.com/wpmcp/wpmcp/internal/wordpress"
)

type toolHandler func(ctx context.Context, s *Server, args map[string]any) (map[string]any, error)

type toolDefinition struct {
	name        string
	description string
	schema      map[string]any
	handler     toolHandler
}

// buildToolRegistry exposes every operation as a tool, plus a few
// management tools. The returned order is stable for tools/list.
func buildToolRegistry() (map[string]toolDefinition, []string) {
	tools := map[string]toolDefinition{}

	for _, op := range wordpress.All() {
		tools[op.Name] = operationTool(op)
	}
	for _, def := range managementTools() {
		tools[def.name] = def
	}

	order := make([]string, 0, len(tools))
	for name := range tools {
		order = append(order, name)
	}
	sort.Strings(order)
	return tools, order
}

func operationTool(op *wordpress.Operation) toolDefinition {
	return toolDefinition{
		name:        op.Name,
		description: op.Summary,
		schema:      operationSchema(op),
		handler: func(ctx context.Context, s *Server, args map[string]any) (map[string]any, error) {
			siteID, params, err := splitSite(args)
			if err != nil {
				return nil, err
			}
			res, err := s.exec.Execute(ctx, siteID, op.Name, params)
			if err != nil {
				return nil, err
			}
			return textResult(map[string]any{
				"data": res.Body,
				"meta": res.Meta,
			}), nil
		},
	}
}

// operationSchema renders a descriptor's parameters as JSON Schema. The
// site argument is injected into every tool.
func operationSchema(op *wordpress.Operation) map[string]any {
	props := map[string]any{
		"site": map[string]any{
			"type":        "string",
			"description": "Configured WordPress site id",
		},
	}
	required := []string{"site"}

	for _, p := range op.Params {
		prop := map[string]any{"type": schemaType(p.Type)}
		if p.Type == wordpress.TypeArray {
			prop["items"] = map[string]any{"type": []string{"string", "integer"}}
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Min != 0 || p.Max != 0 {
			if p.Min != 0 {
				prop["minimum"] = p.Min
			}
			if p.Max != 0 {
				prop["maximum"] = p.Max
			}
		}
		if p.MaxLen > 0 && p.Type == wordpress.TypeString {
			prop["maxLength"] = p.MaxLen
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": op.AllowExtra,
	}
}

func schemaType(t wordpress.ParamType) string {
	switch t {
	case wordpress.TypeInt:
		return "integer"
	case wordpress.TypeNumber:
		return "number"
	case wordpress.TypeBool:
		return "boolean"
	case wordpress.TypeArray:
		return "array"
	default:
		return "string"
	}
}

func managementTools() []toolDefinition {
	return []toolDefinition{
		{
			name:        "listSites",
			description: "List configured WordPress sites",
			schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			handler: func(ctx context.Context, s *Server, args map[string]any) (map[string]any, error) {
				type siteInfo struct {
					ID   string `json:"id"`
					Name string `json:"name,omitempty"`
					URL  string `json:"url"`
				}
				sites := s.exec.Sites()
				out := make([]siteInfo, 0, len(sites))
				for _, sc := range sites {
					out = append(out, siteInfo{ID: sc.ID, Name: sc.Name, URL: sc.BaseURL})
				}
				sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
				return textResult(map[string]any{"sites": out}), nil
			},
		},
		{
			name:        "getClientStats",
			description: "Per-site cache, rate-limit and retry counters",
			schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			handler: func(ctx context.Context, s *Server, args map[string]any) (map[string]any, error) {
				stats := s.exec.Stats()
				sort.Slice(stats, func(i, j int) bool { return stats[i].Site < stats[j].Site })
				return textResult(map[string]any{"stats": stats}), nil
			},
		},
		{
			name:        "clearCache",
			description: "Clear the response cache for one site, or all sites",
			schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"site": map[string]any{
						"type":        "string",
						"description": "Site id; omit to clear every site",
					},
				},
			},
			handler: func(ctx context.Context, s *Server, args map[string]any) (map[string]any, error) {
				siteID, _ := args["site"].(string)
				if err := s.exec.ClearCache(siteID); err != nil {
					return nil, err
				}
				return textResult(map[string]any{"cleared": true}), nil
			},
		},
	}
}

func splitSite(args map[string]any) (string, map[string]any, error) {
	siteID, ok := args["site"].(string)
	if !ok || siteID == "" {
		return "", nil, errors.New(errors.KindParamInvalid, "missing required argument \"site\"")
	}
	params := make(map[string]any, len(args)-1)
	for k, v := range args {
		if k == "site" {
			continue
		}
		params[k] = v
	}
	return siteID, params, nil
}
