package mcp

import (
	"sort"

	"github.com/samsaffron/localagent/internal/toolcall"
)

// CatalogSpecs converts MCP tool specs to catalog entries so the extractor
// can resolve and coerce calls to them. Only scalar JSON schema properties
// become typed arguments.
func CatalogSpecs(specs []ToolSpec) []toolcall.ToolSpec {
	out := make([]toolcall.ToolSpec, 0, len(specs))
	for _, s := range specs {
		entry := toolcall.ToolSpec{
			Name:        s.Name,
			DisplayName: s.Name,
			Description: s.Description,
			Args:        map[string]string{},
		}
		props, _ := s.Schema["properties"].(map[string]any)
		for key, raw := range props {
			prop, _ := raw.(map[string]any)
			switch typ, _ := prop["type"].(string); typ {
			case "string", "integer", "number", "boolean":
				entry.Args[key] = typ
			}
		}
		for _, r := range requiredKeys(s.Schema["required"]) {
			if _, ok := entry.Args[r]; ok {
				entry.Required = append(entry.Required, r)
			}
		}
		sort.Strings(entry.Required)
		out = append(out, entry)
	}
	return out
}

func requiredKeys(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		keys := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				keys = append(keys, s)
			}
		}
		return keys
	}
	return nil
}
