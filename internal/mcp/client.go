package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tidwall/gjson"
)

// ToolSpec is one tool advertised by a server, before it is namespaced.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// transportBuilder is swapped in tests to connect to in-memory servers.
var transportBuilder = func(ctx context.Context, c *Client) (mcp.Transport, error) {
	if c.config.TransportType() == "http" {
		return httpTransport(c.config), nil
	}
	return stdioTransport(ctx, c.config), nil
}

// Client holds one live server session and the tools it listed on connect.
type Client struct {
	name   string
	config ServerConfig

	mu      sync.RWMutex
	session *mcp.ClientSession
	tools   []ToolSpec
}

func NewClient(name string, config ServerConfig) *Client {
	return &Client{name: name, config: config}
}

func (c *Client) Name() string { return c.name }

// Start connects and lists tools. A server that cannot list its tools is
// treated as failed; the agent has nothing to offer the model from it.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return nil
	}

	transport, err := transportBuilder(ctx, c)
	if err != nil {
		return fmt.Errorf("transport for MCP server %s: %w", c.name, err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "localagent", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connect to MCP server %s: %w", c.name, err)
	}

	var tools []ToolSpec
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			session.Close()
			return fmt.Errorf("list tools from %s: %w", c.name, err)
		}
		tools = append(tools, ToolSpec{
			Name:        tool.Name,
			Description: tool.Description,
			Schema:      asObject(tool.InputSchema),
		})
	}
	c.session = session
	c.tools = tools
	return nil
}

func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	c.tools = nil
	return err
}

func (c *Client) Tools() []ToolSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

// CallTool runs a tool and shapes its result as a tool-result object:
// structured content when the server sends an object, else {"content": text}.
// A result flagged as an error becomes a Go error carrying the text.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (map[string]any, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == nil {
		return nil, fmt.Errorf("MCP server %s is not running", c.name)
	}

	arguments := map[string]any{}
	if len(args) > 0 && !gjson.ParseBytes(args).IsObject() {
		return nil, fmt.Errorf("invalid tool arguments: expected a JSON object")
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return nil, fmt.Errorf("invalid tool arguments: %w", err)
		}
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, fmt.Errorf("call tool %s: %w", name, err)
	}
	text := contentText(result.Content)
	if result.IsError {
		return nil, fmt.Errorf("tool %s returned error: %s", name, text)
	}
	if obj := asObject(result.StructuredContent); len(obj) > 0 {
		return obj, nil
	}
	return map[string]any{"content": text}, nil
}

// stdioTransport starts the server as a subprocess. Configured variables are
// appended to the inherited environment so they win over it.
func stdioTransport(ctx context.Context, cfg ServerConfig) mcp.Transport {
	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for _, k := range slices.Sorted(maps.Keys(cfg.Env)) {
			cmd.Env = append(cmd.Env, k+"="+cfg.Env[k])
		}
	}
	return &mcp.CommandTransport{Command: cmd}
}

func httpTransport(cfg ServerConfig) mcp.Transport {
	t := &mcp.StreamableClientTransport{Endpoint: cfg.URL}
	if len(cfg.Headers) > 0 {
		t.HTTPClient = &http.Client{Transport: headerTransport(cfg.Headers)}
	}
	return t
}

// headerTransport sets the configured headers, expanding $VARS at request time.
type headerTransport map[string]string

func (h headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range h {
		req.Header.Set(k, os.ExpandEnv(v))
	}
	return http.DefaultTransport.RoundTrip(req)
}

// asObject coerces an SDK value (schema or structured content) to a JSON
// object. Anything that is not an object yields an empty map.
func asObject(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	if v == nil {
		return map[string]any{}
	}
	data, err := json.Marshal(v)
	if err != nil || !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return map[string]any{}
	}
	m := map[string]any{}
	_ = json.Unmarshal(data, &m)
	return m
}

func contentText(content []mcp.Content) string {
	var b strings.Builder
	for _, part := range content {
		if text, ok := part.(*mcp.TextContent); ok {
			b.WriteString(text.Text)
			continue
		}
		if data, err := json.Marshal(part); err == nil {
			b.Write(data)
		}
	}
	return b.String()
}
