package toolcall

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var reToolName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.:\-]{0,63}$`)

// origin records where a payload was found, from least to most trusted.
type origin int

const (
	// inProse is a payload embedded in a line of prose.
	inProse origin = iota
	// ownLine is a payload that fills its line, or lines, on its own.
	ownLine
	// inMarkup is a payload inside explicit call markup.
	inMarkup
)

// resolveCall turns a raw payload into a Call. Names resolve by alias, then
// type hint, then argument shape. Known tools get canonical names, canonical
// argument keys and coerced argument types, and are rejected when a required
// argument is missing. Unknown names pass through with their arguments
// untouched. Shape matching and nameless payloads are not trusted in prose.
func (c *Catalog) resolveCall(rc rawCall, from origin) (Call, bool) {
	name, known := c.Resolve(rc.name)
	if !known && rc.hint != "" {
		name, known = c.resolveHint(rc.hint)
	}
	if !known && from >= ownLine {
		name, known = c.matchShape(rc.args)
	}
	if known {
		spec, _ := c.Lookup(name)
		args, ok := spec.normalizeArgs(rc)
		if !ok {
			return Call{}, false
		}
		return Call{Name: name, Arguments: args}, true
	}

	if rc.name == "" || !reToolName.MatchString(rc.name) {
		return Call{}, false
	}
	if !rc.explicit && from != inMarkup {
		return Call{}, false
	}
	return Call{Name: rc.name, Arguments: passthroughArgs(rc)}, true
}

// matchShape picks the tool whose shape keys are all present and non-empty,
// preferring the tool that matches the most keys.
func (c *Catalog) matchShape(args gjson.Result) (string, bool) {
	if !args.IsObject() {
		return "", false
	}
	best, bestKeys := "", 0
	for _, t := range c.tools {
		if len(t.Shape) == 0 || len(t.Shape) <= bestKeys {
			continue
		}
		present := make(map[string]bool)
		args.ForEach(func(k, v gjson.Result) bool {
			if !isBlank(v) {
				present[t.canonicalArg(k.String())] = true
			}
			return true
		})
		all := true
		for _, key := range t.Shape {
			if !present[key] {
				all = false
				break
			}
		}
		if all {
			best, bestKeys = t.Name, len(t.Shape)
		}
	}
	return best, best != ""
}

func (t ToolSpec) normalizeArgs(rc rawCall) (json.RawMessage, bool) {
	var out []byte
	switch {
	case rc.args.IsObject():
		out = t.renameArgs(rc.args)
	case rc.argText != "" && t.textArg() != "":
		out = []byte(`{` + quoteJSON(t.textArg()) + `:` + quoteJSON(rc.argText) + `}`)
	default:
		out = []byte(`{}`)
	}

	parsed := gjson.ParseBytes(out)
	for key, typ := range t.Args {
		v := parsed.Get(escapePath(key))
		if !v.Exists() {
			continue
		}
		if coerced, ok := coerce(v, typ); ok {
			if next, err := sjson.SetBytes(out, escapePath(key), coerced); err == nil {
				out = next
			}
		}
	}

	parsed = gjson.ParseBytes(out)
	for _, req := range t.Required {
		if isBlank(parsed.Get(escapePath(req))) {
			return nil, false
		}
	}
	return json.RawMessage(compactJSON(string(out))), true
}

// textArg is the argument that receives a plain-string payload.
func (t ToolSpec) textArg() string {
	if len(t.Required) == 1 {
		return t.Required[0]
	}
	if len(t.Shape) == 1 {
		return t.Shape[0]
	}
	return ""
}

// renameArgs rewrites aliased keys to their canonical names in source order.
// When an alias and its canonical key both appear, the first one wins.
func (t ToolSpec) renameArgs(args gjson.Result) []byte {
	out := []byte{'{'}
	seen := make(map[string]bool)
	args.ForEach(func(k, v gjson.Result) bool {
		key := t.canonicalArg(k.String())
		if seen[key] {
			return true
		}
		seen[key] = true
		if len(out) > 1 {
			out = append(out, ',')
		}
		out = append(out, quoteJSON(key)...)
		out = append(out, ':')
		out = append(out, v.Raw...)
		return true
	})
	return append(out, '}')
}

func coerce(v gjson.Result, typ string) (any, bool) {
	switch strings.ToLower(typ) {
	case "string":
		switch v.Type {
		case gjson.Number:
			return v.Raw, true
		case gjson.True, gjson.False:
			return v.Raw, true
		}
	case "integer":
		switch v.Type {
		case gjson.String:
			if n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64); err == nil {
				return n, true
			}
			if f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64); err == nil && f == float64(int64(f)) {
				return int64(f), true
			}
		case gjson.Number:
			if f := v.Float(); f == float64(int64(f)) && strings.ContainsAny(v.Raw, ".eE") {
				return int64(f), true
			}
		}
	case "number":
		if v.Type == gjson.String {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64); err == nil {
				return f, true
			}
		}
	case "boolean":
		if v.Type == gjson.String {
			switch strings.ToLower(strings.TrimSpace(v.String())) {
			case "true", "yes", "1", "on":
				return true, true
			case "false", "no", "0", "off":
				return false, true
			}
		}
		if v.Type == gjson.Number {
			return v.Float() != 0, true
		}
	}
	return nil, false
}

func passthroughArgs(rc rawCall) json.RawMessage {
	switch {
	case rc.args.IsObject():
		return json.RawMessage(compactJSON(rc.args.Raw))
	case rc.argText != "":
		return json.RawMessage(`{"input":` + quoteJSON(rc.argText) + `}`)
	}
	return json.RawMessage(`{}`)
}

func isBlank(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null:
		return true
	case gjson.String:
		return strings.TrimSpace(v.String()) == ""
	}
	return !v.Exists()
}

// escapePath escapes gjson/sjson path syntax in a literal key.
func escapePath(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
