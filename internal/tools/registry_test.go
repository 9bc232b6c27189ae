package tools

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/samsaffron/localagent/internal/llm"
)

func newTestRegistry(t *testing.T, enabled ...string) *Registry {
	t.Helper()
	r, err := NewRegistry(ToolConfig{Enabled: enabled, Workspace: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRegistry_EnabledPatterns(t *testing.T) {
	r := newTestRegistry(t, "web.*", ClockToolName)

	for _, name := range []string{FetchToolName, SearchToolName, ClockToolName} {
		if !r.HasTool(name) {
			t.Errorf("%s should be enabled", name)
		}
	}
	for _, name := range []string{ReadFileToolName, PythonToolName, "web"} {
		if r.HasTool(name) {
			t.Errorf("%s should not be enabled", name)
		}
	}

	want := []string{ClockToolName, FetchToolName, SearchToolName}
	if got := r.Names(); !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestRegistry_DefaultConfig(t *testing.T) {
	r, err := NewRegistry(ToolConfig{Workspace: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if !r.HasTool(ClockToolName) || !r.HasTool(SearchToolName) {
		t.Errorf("defaults should enable clock and web tools, got %v", r.Names())
	}
	if r.HasTool(WriteFileToolName) {
		t.Error("fs.write_file should be opt-in")
	}
}

func TestRegistry_InvalidPattern(t *testing.T) {
	if _, err := NewRegistry(ToolConfig{Enabled: []string{"web.[a"}, Workspace: t.TempDir()}); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestRegistry_ExecuteUnknownTool(t *testing.T) {
	r := newTestRegistry(t, "*")

	_, err := r.Execute(context.Background(), "clocknow", nil, llm.RuntimeContext{})
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Type != ErrUnknownTool {
		t.Fatalf("expected UNKNOWN_TOOL error, got %v", err)
	}
	if !strings.Contains(toolErr.Message, ClockToolName) {
		t.Errorf("message should suggest %s: %q", ClockToolName, toolErr.Message)
	}
	if toolErr.Kind() != "UNKNOWN_TOOL" {
		t.Errorf("Kind() = %q", toolErr.Kind())
	}
}

func TestRegistry_ExecuteDisabledTool(t *testing.T) {
	r := newTestRegistry(t, ClockToolName)
	if _, err := r.Execute(context.Background(), PythonToolName, json.RawMessage(`{"code":"print(1)"}`), llm.RuntimeContext{}); err == nil {
		t.Fatal("disabled tool should not run")
	}
}

type stubTool struct {
	name string
	out  map[string]any
}

func (s stubTool) Name() string { return s.name }
func (s stubTool) Execute(context.Context, json.RawMessage, llm.RuntimeContext) (map[string]any, error) {
	return s.out, nil
}

func TestRegistry_RegisterCustomTool(t *testing.T) {
	r := newTestRegistry(t, "custom.*")
	r.Register(stubTool{name: "custom.echo", out: map[string]any{"ok": true}})

	out, err := r.Execute(context.Background(), "custom.echo", nil, llm.RuntimeContext{})
	if err != nil {
		t.Fatal(err)
	}
	if out["ok"] != true {
		t.Errorf("out = %v", out)
	}
}

func TestExpandPatterns(t *testing.T) {
	names := []string{ClockToolName, ReadFileToolName, ListDirToolName, FetchToolName}

	tests := []struct {
		patterns []string
		want     []string
	}{
		{nil, names},
		{[]string{"fs.*"}, []string{ReadFileToolName, ListDirToolName}},
		{[]string{"web.fetch", "clock.*"}, []string{ClockToolName, FetchToolName}},
		{[]string{"nothing"}, nil},
	}
	for _, tt := range tests {
		got, err := ExpandPatterns(tt.patterns, names)
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("ExpandPatterns(%v) = %v, want %v", tt.patterns, got, tt.want)
		}
	}
}

func TestSuggest(t *testing.T) {
	got := Suggest("readfile", BuiltinToolNames())
	if len(got) == 0 || got[0] != ReadFileToolName {
		t.Errorf("Suggest = %v", got)
	}
	if Suggest("", BuiltinToolNames()) != nil {
		t.Error("empty name should have no suggestions")
	}
}

func TestMultiExecutor(t *testing.T) {
	a := newTestRegistry(t, ClockToolName)
	b := newTestRegistry(t, "custom.*")
	b.Register(stubTool{name: "custom.echo", out: map[string]any{"from": "b"}})

	m := MultiExecutor{a, nil, b}
	if !m.HasTool(ClockToolName) || !m.HasTool("custom.echo") || m.HasTool(PythonToolName) {
		t.Error("HasTool should consult every executor")
	}
	out, err := m.Execute(context.Background(), "custom.echo", nil, llm.RuntimeContext{})
	if err != nil || out["from"] != "b" {
		t.Errorf("Execute = %v, %v", out, err)
	}
	if _, err := m.Execute(context.Background(), "missing", nil, llm.RuntimeContext{}); err == nil {
		t.Error("expected error for missing tool")
	}
}

func TestParseToolsFlag(t *testing.T) {
	if got := ParseToolsFlag("all"); !slices.Equal(got, []string{"*"}) {
		t.Errorf("all = %v", got)
	}
	if got := ParseToolsFlag(" fs.*, web.fetch ,"); !slices.Equal(got, []string{"fs.*", "web.fetch"}) {
		t.Errorf("list = %v", got)
	}
	if ParseToolsFlag("") != nil {
		t.Error("empty should be nil")
	}
}
