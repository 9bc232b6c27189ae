package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"github.com/sahilm/fuzzy"

	"github.com/samsaffron/localagent/internal/llm"
)

// Registry manages local tools and implements llm.ToolExecutor.
// A tool is visible to the engine only when it is registered and its name
// matches one of the enabled patterns.
type Registry struct {
	config    ToolConfig
	workspace *Workspace

	mu      sync.RWMutex
	tools   map[string]Tool
	enabled []glob.Glob
}

// NewRegistry creates a registry with every built-in tool registered.
func NewRegistry(cfg ToolConfig) (*Registry, error) {
	cfg = DefaultToolConfig().Merge(cfg)
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs[0]
	}
	ws, err := NewWorkspace(cfg.Workspace, cfg.ReadDirs, cfg.WriteDirs)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}

	r := &Registry{
		config:    cfg,
		workspace: ws,
		tools:     make(map[string]Tool),
	}
	if err := r.SetEnabled(cfg.Enabled); err != nil {
		return nil, err
	}
	r.registerBuiltins()
	return r, nil
}

func (r *Registry) registerBuiltins() {
	client := newHTTPClient(r.config.HTTPTimeout)
	r.Register(NewClockTool(nil))
	r.Register(NewReadFileTool(r.workspace, r.config.MaxBytes))
	r.Register(NewWriteFileTool(r.workspace))
	r.Register(NewListDirTool(r.workspace))
	r.Register(NewFetchTool(client, r.config.MaxBytes))
	r.Register(NewSearchTool(client, r.config.SearchURL))
	r.Register(NewPythonTool(r.config.PythonCommand, r.config.Timeout, r.workspace.Root()))
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// SetEnabled replaces the enabled patterns.
func (r *Registry) SetEnabled(patterns []string) error {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return fmt.Errorf("invalid tool pattern %q: %w", p, err)
		}
		compiled = append(compiled, g)
	}
	r.mu.Lock()
	r.enabled = compiled
	r.mu.Unlock()
	return nil
}

// Workspace returns the directory fs.* tools are confined to.
func (r *Registry) Workspace() *Workspace {
	return r.workspace
}

func (r *Registry) isEnabled(name string) bool {
	for _, g := range r.enabled {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// HasTool reports whether name is registered and enabled.
func (r *Registry) HasTool(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok && r.isEnabled(name)
}

// Names returns the sorted names of all enabled tools.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		if r.isEnabled(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Expand returns the enabled tools matching any of patterns.
// An empty pattern list selects every enabled tool.
func (r *Registry) Expand(patterns []string) ([]string, error) {
	return ExpandPatterns(patterns, r.Names())
}

// Execute runs a tool. Failures are returned as errors; the engine turns
// them into error events.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage, rc llm.RuntimeContext) (map[string]any, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	enabled := ok && r.isEnabled(name)
	r.mu.RUnlock()

	if !enabled {
		msg := fmt.Sprintf("unknown tool: %s", name)
		if s := Suggest(name, r.Names()); len(s) > 0 {
			msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(s, ", "))
		}
		return nil, NewToolError(ErrUnknownTool, msg)
	}

	out, err := tool.Execute(ctx, args, rc)
	if err != nil {
		slog.Debug("tool failed", "tool", name, "call_id", rc.CallID, "error", err)
		return nil, err
	}
	return out, nil
}

// ExpandPatterns filters names by glob patterns, preserving the order of names.
func ExpandPatterns(patterns, names []string) ([]string, error) {
	if len(patterns) == 0 {
		return append([]string(nil), names...), nil
	}
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid tool pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	var out []string
	for _, name := range names {
		for _, g := range globs {
			if g.Match(name) {
				out = append(out, name)
				break
			}
		}
	}
	return out, nil
}

// Suggest returns up to three candidates that fuzzily match name.
func Suggest(name string, candidates []string) []string {
	if name == "" {
		return nil
	}
	matches := fuzzy.Find(name, candidates)
	var out []string
	for _, m := range matches {
		out = append(out, m.Str)
		if len(out) == 3 {
			break
		}
	}
	return out
}

// MultiExecutor dispatches to the first executor that has the tool.
type MultiExecutor []llm.ToolExecutor

// HasTool reports whether any executor has the tool.
func (m MultiExecutor) HasTool(name string) bool {
	for _, e := range m {
		if e != nil && e.HasTool(name) {
			return true
		}
	}
	return false
}

// Execute runs the tool on the first executor that has it.
func (m MultiExecutor) Execute(ctx context.Context, name string, args json.RawMessage, rc llm.RuntimeContext) (map[string]any, error) {
	for _, e := range m {
		if e != nil && e.HasTool(name) {
			return e.Execute(ctx, name, args, rc)
		}
	}
	return nil, NewToolErrorf(ErrUnknownTool, "unknown tool: %s", name)
}
