package toolcall

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtinCatalogYAML []byte

// ToolSpec describes one tool the extractor knows how to normalize.
type ToolSpec struct {
	Name        string            `yaml:"name"`
	DisplayName string            `yaml:"display_name"`
	Description string            `yaml:"description"`
	Kind        []string          `yaml:"kind"`
	Aliases     []string          `yaml:"aliases"`
	Required    []string          `yaml:"required"`
	Shape       []string          `yaml:"shape"`
	Args        map[string]string `yaml:"args"`
	ArgAliases  map[string]string `yaml:"arg_aliases"`
}

type catalogFile struct {
	Tools []ToolSpec `yaml:"tools"`
	Moods []string   `yaml:"moods"`
}

// Catalog is an immutable set of tool specs plus the lookup tables derived
// from them. It is safe for concurrent use.
type Catalog struct {
	tools   []ToolSpec
	index   map[string]int
	exact   map[string]string
	compact map[string]string
	kinds   map[string]string
	moods   map[string]struct{}
	order   []string
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	c, err := ParseCatalog(builtinCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("toolcall: built-in catalog: %v", err))
	}
	return c
})

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	return defaultCatalog()
}

// ParseCatalog builds a catalog from YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return newCatalog(f.Tools, f.Moods)
}

// LoadCatalog returns the built-in catalog extended by the YAML file at path.
// Entries in the file replace built-in tools with the same name; moods are
// added to the built-in set. An empty path returns the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	base := DefaultCatalog()
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	tools := append([]ToolSpec(nil), base.tools...)
	for _, t := range f.Tools {
		if i, ok := base.index[t.Name]; ok {
			tools[i] = t
			continue
		}
		tools = append(tools, t)
	}
	return newCatalog(tools, append(base.Moods(), f.Moods...))
}

// With returns a catalog that also knows extra. Tools already present keep
// their existing entry.
func (c *Catalog) With(extra ...ToolSpec) (*Catalog, error) {
	tools := append([]ToolSpec(nil), c.tools...)
	for _, t := range extra {
		if _, ok := c.index[strings.TrimSpace(t.Name)]; ok {
			continue
		}
		tools = append(tools, t)
	}
	return newCatalog(tools, c.Moods())
}

func newCatalog(tools []ToolSpec, moods []string) (*Catalog, error) {
	c := &Catalog{
		index:   make(map[string]int, len(tools)),
		exact:   make(map[string]string),
		compact: make(map[string]string),
		kinds:   make(map[string]string),
		moods:   make(map[string]struct{}, len(moods)),
	}
	for _, t := range tools {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			return nil, fmt.Errorf("catalog tool without a name")
		}
		if _, dup := c.index[t.Name]; dup {
			return nil, fmt.Errorf("duplicate catalog tool %q", t.Name)
		}
		for _, req := range t.Required {
			if _, ok := t.Args[req]; !ok {
				return nil, fmt.Errorf("tool %s: required argument %q has no type", t.Name, req)
			}
		}
		c.index[t.Name] = len(c.tools)
		c.tools = append(c.tools, t)
		c.order = append(c.order, t.Name)
	}

	// Canonical names win over aliases, and earlier tools win over later ones.
	for _, t := range c.tools {
		c.addAlias(t.Name, t.Name)
	}
	for _, t := range c.tools {
		for _, a := range t.Aliases {
			c.addAlias(a, t.Name)
		}
		for _, k := range t.Kind {
			k = strings.ToLower(strings.TrimSpace(k))
			if _, taken := c.kinds[k]; !taken && k != "" {
				c.kinds[k] = t.Name
			}
		}
	}
	for _, m := range moods {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			c.moods[m] = struct{}{}
		}
	}
	return c, nil
}

func (c *Catalog) addAlias(alias, name string) {
	key := strings.ToLower(strings.TrimSpace(alias))
	if key == "" {
		return
	}
	if _, taken := c.exact[key]; !taken {
		c.exact[key] = name
	}
	if ck := compactKey(alias); ck != "" {
		if _, taken := c.compact[ck]; !taken {
			c.compact[ck] = name
		}
	}
}

// compactKey lowercases s and drops every non-alphanumeric character.
func compactKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Resolve maps a raw tool name to its canonical catalog name, first by exact
// (case-insensitive) alias and then by compact alias.
func (c *Catalog) Resolve(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if name, ok := c.exact[strings.ToLower(raw)]; ok {
		return name, true
	}
	if name, ok := c.compact[compactKey(raw)]; ok {
		return name, true
	}
	return "", false
}

// resolveHint maps a payload "type" value to a tool.
func (c *Catalog) resolveHint(hint string) (string, bool) {
	if name, ok := c.kinds[strings.ToLower(strings.TrimSpace(hint))]; ok {
		return name, true
	}
	return c.Resolve(hint)
}

// Lookup returns the spec for a canonical tool name.
func (c *Catalog) Lookup(name string) (ToolSpec, bool) {
	i, ok := c.index[name]
	if !ok {
		return ToolSpec{}, false
	}
	return c.tools[i], true
}

// Tools returns the catalog entries in declaration order.
func (c *Catalog) Tools() []ToolSpec {
	return append([]ToolSpec(nil), c.tools...)
}

// Names returns the canonical tool names in declaration order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// DisplayName returns the human label for a tool, falling back to its name.
func (c *Catalog) DisplayName(name string) string {
	if t, ok := c.Lookup(name); ok && t.DisplayName != "" {
		return t.DisplayName
	}
	return name
}

// IsMood reports whether v is a known mood value.
func (c *Catalog) IsMood(v string) bool {
	_, ok := c.moods[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// Moods returns the known mood values, sorted.
func (c *Catalog) Moods() []string {
	out := make([]string, 0, len(c.moods))
	for m := range c.moods {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// canonicalArg maps an argument key to the tool's canonical key.
func (t ToolSpec) canonicalArg(key string) string {
	if _, ok := t.Args[key]; ok {
		return key
	}
	lower := strings.ToLower(key)
	if _, ok := t.Args[lower]; ok {
		return lower
	}
	if target, ok := t.ArgAliases[lower]; ok {
		return target
	}
	return key
}
