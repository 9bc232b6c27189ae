package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/samsaffron/localagent/internal/llm"
)

func newTestServer() *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "test-server", Version: "test"}, nil)
	server.AddTool(&sdkmcp.Tool{
		Name:        "echo",
		Description: "Echo input",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text":  map[string]any{"type": "string"},
				"times": map[string]any{"type": "integer"},
				"tags":  map[string]any{"type": "array"},
			},
			"required": []any{"text"},
		},
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(req.Params.Arguments, &payload); err != nil {
			return nil, err
		}
		return &sdkmcp.CallToolResult{
			Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "echo:" + payload.Text}},
		}, nil
	})
	server.AddTool(&sdkmcp.Tool{
		Name:        "add",
		Description: "Add two numbers",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
		},
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
		var payload struct{ A, B float64 }
		if err := json.Unmarshal(req.Params.Arguments, &payload); err != nil {
			return nil, err
		}
		return &sdkmcp.CallToolResult{
			Content:           []sdkmcp.Content{&sdkmcp.TextContent{Text: "ok"}},
			StructuredContent: map[string]any{"sum": payload.A + payload.B},
		}, nil
	})
	server.AddTool(&sdkmcp.Tool{
		Name:        "fail",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
		return &sdkmcp.CallToolResult{
			IsError: true,
			Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "disk full"}},
		}, nil
	})
	return server
}

// useInMemoryServers routes every client to its own in-memory test server.
func useInMemoryServers(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	original := transportBuilder
	transportBuilder = func(ctx context.Context, c *Client) (sdkmcp.Transport, error) {
		serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()
		session, err := newTestServer().Connect(ctx, serverTransport, nil)
		if err != nil {
			return nil, err
		}
		t.Cleanup(func() { session.Close() })
		return clientTransport, nil
	}
	t.Cleanup(func() { transportBuilder = original })
}

func startTestManager(t *testing.T) *Manager {
	t.Helper()
	useInMemoryServers(t)
	m := NewManager(map[string]ServerConfig{"notes": {Command: "notes-server"}})
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.StopAll)
	return m
}

func TestManager_AllTools(t *testing.T) {
	m := startTestManager(t)

	var names []string
	for _, tool := range m.AllTools() {
		names = append(names, tool.Name)
	}
	if want := []string{"notes.add", "notes.echo", "notes.fail"}; !slices.Equal(names, want) {
		t.Errorf("AllTools = %v, want %v", names, want)
	}
	if status, err := m.ServerStatus("notes"); status != StatusReady || err != nil {
		t.Errorf("status = %s, %v", status, err)
	}
	if cached := LoadCachedTools("notes"); len(cached) != 3 {
		t.Errorf("cached tools = %v", cached)
	}
}

func TestManager_Execute(t *testing.T) {
	m := startTestManager(t)
	var _ llm.ToolExecutor = m

	if !m.HasTool("notes.echo") || m.HasTool("notes.missing") || m.HasTool("other.echo") || m.HasTool("echo") {
		t.Error("HasTool routing is wrong")
	}

	out, err := m.Execute(context.Background(), "notes.echo", json.RawMessage(`{"text":"hi"}`), llm.RuntimeContext{CallID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	if out["content"] != "echo:hi" {
		t.Errorf("echo output = %v", out)
	}

	out, err = m.Execute(context.Background(), "notes.add", json.RawMessage(`{"a":1,"b":2}`), llm.RuntimeContext{})
	if err != nil {
		t.Fatal(err)
	}
	if out["sum"] != float64(3) {
		t.Errorf("add output = %v", out)
	}

	if _, err := m.Execute(context.Background(), "notes.fail", nil, llm.RuntimeContext{}); err == nil {
		t.Error("expected error result to become an error")
	}
	if _, err := m.Execute(context.Background(), "nope.echo", nil, llm.RuntimeContext{}); err == nil {
		t.Error("expected error for unknown server")
	}
}

func TestManager_StartFailures(t *testing.T) {
	useInMemoryServers(t)
	m := NewManager(map[string]ServerConfig{
		"good":    {Command: "good-server"},
		"bad.one": {Command: "x"},
		"empty":   {},
	})
	defer m.StopAll()

	err := m.Start(context.Background())
	if err == nil {
		t.Fatal("expected start errors")
	}
	if status, _ := m.ServerStatus("good"); status != StatusReady {
		t.Errorf("good server status = %s", status)
	}

	states := m.GetAllStates()
	if len(states) != 3 || states[0].Name != "bad.one" {
		t.Errorf("states = %+v", states)
	}
}

func TestManager_Disable(t *testing.T) {
	m := startTestManager(t)
	if err := m.Disable("notes"); err != nil {
		t.Fatal(err)
	}
	if m.HasTool("notes.echo") {
		t.Error("disabled server still routes tools")
	}
	if len(m.AllTools()) != 0 {
		t.Error("disabled server still lists tools")
	}
}

func TestManager_TransportError(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	original := transportBuilder
	transportBuilder = func(context.Context, *Client) (sdkmcp.Transport, error) {
		return nil, errors.New("no transport")
	}
	defer func() { transportBuilder = original }()

	m := NewManager(map[string]ServerConfig{"x": {Command: "x"}})
	if err := m.Enable(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	if status, err := m.ServerStatus("x"); status != StatusFailed || err == nil {
		t.Errorf("status = %s, %v", status, err)
	}
}

func TestCatalogSpecs(t *testing.T) {
	specs := CatalogSpecs([]ToolSpec{{
		Name:        "notes.echo",
		Description: "Echo input",
		Schema: map[string]any{
			"properties": map[string]any{
				"text":  map[string]any{"type": "string"},
				"times": map[string]any{"type": "integer"},
				"tags":  map[string]any{"type": "array"},
			},
			"required": []any{"text", "tags"},
		},
	}})
	if len(specs) != 1 {
		t.Fatalf("specs = %v", specs)
	}
	s := specs[0]
	if s.Args["text"] != "string" || s.Args["times"] != "integer" {
		t.Errorf("args = %v", s.Args)
	}
	if _, ok := s.Args["tags"]; ok {
		t.Error("array argument should not be typed")
	}
	if !slices.Equal(s.Required, []string{"text"}) {
		t.Errorf("required = %v", s.Required)
	}
}

func TestParseToolName(t *testing.T) {
	server, tool, ok := parseToolName("files.read.all")
	if !ok || server != "files" || tool != "read.all" {
		t.Errorf("parseToolName = %q, %q, %v", server, tool, ok)
	}
	if _, _, ok := parseToolName("plain"); ok {
		t.Error("name without server should not parse")
	}
}
