package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/samsaffron/localagent/internal/llm"
)

// ServerStatus represents the current state of an MCP server.
type ServerStatus string

const (
	StatusStopped ServerStatus = "stopped"
	StatusReady   ServerStatus = "ready"
	StatusFailed  ServerStatus = "failed"
)

// ServerState holds the state of a managed MCP server.
type ServerState struct {
	Name   string
	Status ServerStatus
	Error  error
	Client *Client
}

// Manager handles MCP server lifecycle and exposes their tools to the
// engine as "<server>.<tool>". It implements llm.ToolExecutor.
type Manager struct {
	servers  map[string]ServerConfig
	statuses map[string]*ServerState
	mu       sync.RWMutex
}

// NewManager creates a manager for the configured servers. Nothing is
// started until Start is called.
func NewManager(servers map[string]ServerConfig) *Manager {
	return &Manager{
		servers:  servers,
		statuses: make(map[string]*ServerState),
	}
}

// AvailableServers returns the sorted names of all configured servers.
func (m *Manager) AvailableServers() []string {
	return ServerNames(m.servers)
}

// Start connects to every configured server. A server that fails to start
// is marked failed and skipped; the joined errors are returned.
func (m *Manager) Start(ctx context.Context) error {
	var errs []error
	for _, name := range m.AvailableServers() {
		if err := m.Enable(ctx, name); err != nil {
			slog.Warn("MCP server failed to start", "server", name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Enable starts one MCP server and waits for its tool list.
func (m *Manager) Enable(ctx context.Context, name string) error {
	cfg, ok := m.servers[name]
	if !ok {
		return fmt.Errorf("unknown MCP server: %s", name)
	}
	if err := ValidateServerName(name); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("MCP server %s: %w", name, err)
	}

	m.mu.RLock()
	state, running := m.statuses[name]
	m.mu.RUnlock()
	if running && state.Status == StatusReady {
		return nil
	}

	client := NewClient(name, cfg)
	err := client.Start(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.statuses[name] = &ServerState{Name: name, Status: StatusFailed, Error: err}
		return err
	}
	m.statuses[name] = &ServerState{Name: name, Status: StatusReady, Client: client}
	CacheTools(name, client.Tools())
	return nil
}

// Disable stops an MCP server.
func (m *Manager) Disable(name string) error {
	m.mu.Lock()
	state, ok := m.statuses[name]
	if !ok || state.Client == nil {
		m.mu.Unlock()
		return nil
	}
	client := state.Client
	state.Status = StatusStopped
	state.Error = nil
	state.Client = nil
	m.mu.Unlock()

	return client.Stop()
}

// StopAll stops all running MCP servers.
func (m *Manager) StopAll() {
	m.mu.Lock()
	var clients []*Client
	for _, s := range m.statuses {
		if s.Client != nil {
			clients = append(clients, s.Client)
		}
	}
	m.statuses = make(map[string]*ServerState)
	m.mu.Unlock()

	for _, c := range clients {
		if err := c.Stop(); err != nil {
			slog.Debug("MCP server stop failed", "server", c.Name(), "error", err)
		}
	}
}

// ServerStatus returns the current status of a server.
func (m *Manager) ServerStatus(name string) (ServerStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.statuses[name]
	if !ok {
		return StatusStopped, nil
	}
	return state.Status, state.Error
}

// AllTools returns all tools from all running MCP servers, sorted by name.
// Tool names are prefixed with the server name.
func (m *Manager) AllTools() []ToolSpec {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []ToolSpec
	for name, state := range m.statuses {
		if state.Status != StatusReady || state.Client == nil {
			continue
		}
		for _, tool := range state.Client.Tools() {
			all = append(all, ToolSpec{
				Name:        qualifiedName(name, tool.Name),
				Description: tool.Description,
				Schema:      tool.Schema,
			})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// HasTool reports whether a running server provides the qualified tool name.
func (m *Manager) HasTool(name string) bool {
	tool, client, ok := m.route(name)
	if !ok {
		return false
	}
	for _, t := range client.Tools() {
		if t.Name == tool {
			return true
		}
	}
	return false
}

// Execute routes a tool call to the server named by the prefix of name.
func (m *Manager) Execute(ctx context.Context, name string, args json.RawMessage, rc llm.RuntimeContext) (map[string]any, error) {
	tool, client, ok := m.route(name)
	if !ok {
		return nil, fmt.Errorf("no running MCP server provides %s", name)
	}
	slog.Debug("MCP tool call", "server", client.Name(), "tool", tool, "call_id", rc.CallID)
	return client.CallTool(ctx, tool, args)
}

func (m *Manager) route(name string) (string, *Client, bool) {
	server, tool, ok := parseToolName(name)
	if !ok {
		return "", nil, false
	}
	m.mu.RLock()
	state, found := m.statuses[server]
	m.mu.RUnlock()
	if !found || state.Status != StatusReady || state.Client == nil {
		return "", nil, false
	}
	return tool, state.Client, true
}

func qualifiedName(server, tool string) string {
	return server + "." + tool
}

// parseToolName splits "<server>.<tool>" at the first dot.
func parseToolName(fullName string) (server, tool string, ok bool) {
	server, tool, ok = strings.Cut(fullName, ".")
	if !ok || server == "" || tool == "" {
		return "", "", false
	}
	return server, tool, true
}

// GetAllStates returns the current state of all servers, sorted by name.
func (m *Manager) GetAllStates() []ServerState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]ServerState, 0, len(m.servers))
	for _, name := range ServerNames(m.servers) {
		st := ServerState{Name: name, Status: StatusStopped}
		if s, ok := m.statuses[name]; ok {
			st.Status = s.Status
			st.Error = s.Error
		}
		states = append(states, st)
	}
	return states
}
