package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/samsaffron/localagent/internal/config"
	"github.com/samsaffron/localagent/internal/llm"
	"github.com/samsaffron/localagent/internal/mcp"
	"github.com/samsaffron/localagent/internal/session"
	"github.com/samsaffron/localagent/internal/toolcall"
	"github.com/samsaffron/localagent/internal/tools"
)

// agentRuntime wires the engine to its tools, MCP servers and session store.
type agentRuntime struct {
	cfg      *config.Config
	engine   *llm.Engine
	registry *tools.Registry
	mcp      *mcp.Manager
	store    session.Store
	debug    *llm.DebugLogger
	patterns []string
}

func newAgentRuntime(ctx context.Context, cfg *config.Config, persist bool) (*agentRuntime, error) {
	registry, err := tools.NewRegistry(cfg.Tools)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tools: %w", err)
	}

	manager := mcp.NewManager(cfg.MCP.Servers)
	if len(cfg.MCP.Servers) > 0 {
		// Non-fatal: failed servers are skipped
		if err := manager.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	catalog, err := buildCatalog(cfg.Agent.CatalogPath, manager.AllTools())
	if err != nil {
		manager.StopAll()
		return nil, err
	}

	model := llm.WrapWithRetry(llm.NewOpenAICompatModel(cfg.ModelConfig()), cfg.RetryConfig())
	engine := llm.NewEngine(model, tools.MultiExecutor{registry, manager}, toolcall.NewExtractor(catalog), cfg.EngineConfig())

	sessionCfg := cfg.Sessions
	sessionCfg.Enabled = sessionCfg.Enabled && persist
	store, err := session.NewStore(sessionCfg)
	if err != nil && sessionCfg.Enabled {
		slog.Warn("session storage unavailable, keeping this chat in memory", "error", err)
		store, err = session.NewMemoryStore()
	}
	if err != nil {
		manager.StopAll()
		return nil, fmt.Errorf("open session store: %w", err)
	}

	return &agentRuntime{
		cfg:      cfg,
		engine:   engine,
		registry: registry,
		mcp:      manager,
		store:    session.NewLoggingStore(store, slog.Default()),
		patterns: cfg.Tools.Enabled,
	}, nil
}

// buildCatalog loads the extractor catalog and adds MCP tools to it.
func buildCatalog(path string, mcpTools []mcp.ToolSpec) (*toolcall.Catalog, error) {
	catalog := toolcall.DefaultCatalog()
	if path != "" {
		c, err := toolcall.LoadCatalog(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load tool catalog: %w", err)
		}
		catalog = c
	}
	if len(mcpTools) == 0 {
		return catalog, nil
	}
	merged, err := catalog.With(mcp.CatalogSpecs(mcpTools)...)
	if err != nil {
		return nil, fmt.Errorf("failed to add MCP tools to catalog: %w", err)
	}
	return merged, nil
}

// setPatterns replaces the enabled tool patterns for built-in and MCP tools.
func (rt *agentRuntime) setPatterns(patterns []string) error {
	if err := rt.registry.SetEnabled(patterns); err != nil {
		return err
	}
	rt.patterns = patterns
	return nil
}

// activeTools returns every tool offered to the model: enabled built-ins
// plus MCP tools matching the same patterns.
func (rt *agentRuntime) activeTools() []string {
	active := rt.registry.Names()
	var mcpNames []string
	for _, t := range rt.mcp.AllTools() {
		mcpNames = append(mcpNames, t.Name)
	}
	matched, err := tools.ExpandPatterns(rt.patterns, mcpNames)
	if err != nil {
		slog.Warn("invalid tool pattern", "error", err)
		return active
	}
	for _, name := range matched {
		if !slices.Contains(active, name) {
			active = append(active, name)
		}
	}
	return active
}

// openSession resumes a stored session or creates a new one. resume is a
// session number or ID prefix; "current" selects the last used session.
func (rt *agentRuntime) openSession(ctx context.Context, resume string, keepTools bool) (*session.Session, []llm.Turn, error) {
	if resume == "" {
		cwd, _ := os.Getwd()
		sess := &session.Session{
			Model: rt.cfg.Backend.Model,
			Tier:  rt.cfg.Generation.Tier,
			CWD:   cwd,
			Tools: strings.Join(rt.patterns, ","),
		}
		if err := rt.store.Create(ctx, sess); err != nil {
			// Keep chatting without persistence
			sess.ID = session.NewID()
		}
		return sess, nil, nil
	}

	var sess *session.Session
	var err error
	if resume == "current" {
		sess, err = rt.store.GetCurrent(ctx)
	} else {
		sess, err = rt.store.GetByPrefix(ctx, resume)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		return nil, nil, fmt.Errorf("no session to resume (%s)", resume)
	}

	if !keepTools && sess.Tools != "" {
		if err := rt.setPatterns(tools.ParseToolsFlag(sess.Tools)); err != nil {
			return nil, nil, err
		}
	}
	history, err := session.LoadHistory(ctx, rt.store, sess.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load history: %w", err)
	}
	return sess, history, nil
}

func (rt *agentRuntime) enableDebugLog(sessionID string) {
	if !rt.cfg.Debug.Enabled {
		return
	}
	logger, err := llm.NewDebugLogger(rt.cfg.DebugDir(), sessionID)
	if err != nil {
		slog.Warn("debug log unavailable", "error", err)
		return
	}
	rt.debug = logger
	rt.engine.SetDebugLogger(logger)
	logger.LogSessionStart(rt.engine.Model(), rt.cfg.Generation.Tier, rt.activeTools())
}

func (rt *agentRuntime) Close() {
	rt.mcp.StopAll()
	if rt.debug != nil {
		rt.debug.Close()
	}
	rt.store.Close()
}
