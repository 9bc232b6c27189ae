package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/samsaffron/localagent/internal/llm"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Backend.BaseURL != "http://localhost:8080/v1" {
		t.Errorf("base_url = %q", cfg.Backend.BaseURL)
	}
	if cfg.Agent.MaxRounds != 4 || cfg.Agent.MaxCallsPerRound != 3 {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if cfg.Generation.Tier != "balanced" {
		t.Errorf("tier = %q", cfg.Generation.Tier)
	}
	if !slices.Equal(cfg.Tools.Enabled, []string{"clock.now", "web.*"}) {
		t.Errorf("tools.enabled = %v", cfg.Tools.Enabled)
	}
	if cfg.Tools.Timeout != 10*time.Second {
		t.Errorf("tools.timeout = %v", cfg.Tools.Timeout)
	}
	if !cfg.Sessions.Enabled {
		t.Error("sessions should be enabled by default")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	t.Setenv("MY_KEY", "secret")
	t.Setenv("LOCALAGENT_AGENT_MAX_ROUNDS", "6")
	path := writeConfig(t, `
backend:
  base_url: http://127.0.0.1:11434/v1
  model: qwen3:4b
  api_key: ${MY_KEY}
generation:
  tier: compact
  top_k: 40
tools:
  enabled: ["fs.*", "clock.now"]
  timeout: 30s
mcp:
  servers:
    Notes:
      command: notes-mcp
      args: ["--stdio"]
      env:
        NOTES_TOKEN: abc
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Backend.APIKey != "secret" {
		t.Errorf("api_key = %q, want expanded env var", cfg.Backend.APIKey)
	}
	if cfg.Agent.MaxRounds != 6 {
		t.Errorf("max_rounds = %d, want env override 6", cfg.Agent.MaxRounds)
	}
	if cfg.Generation.Tier != "compact" || cfg.Generation.TopK != 40 {
		t.Errorf("generation = %+v", cfg.Generation)
	}
	if cfg.Tools.Timeout != 30*time.Second {
		t.Errorf("tools.timeout = %v", cfg.Tools.Timeout)
	}
	server, ok := cfg.MCP.Servers["Notes"]
	if !ok {
		t.Fatalf("server name case lost: %v", cfg.MCP.Servers)
	}
	if server.Env["NOTES_TOKEN"] != "abc" || !slices.Equal(server.Args, []string{"--stdio"}) {
		t.Errorf("server = %+v", server)
	}

	ec := cfg.EngineConfig()
	if ec.MaxRounds != 6 || ec.Defaults.TopK != 40 {
		t.Errorf("engine config = %+v", ec)
	}
	if mc := cfg.ModelConfig(); mc.Model != "qwen3:4b" {
		t.Errorf("model config = %+v", mc)
	}
}

func TestGenerationKeysTakeEffect(t *testing.T) {
	t.Setenv("LOCALAGENT_GENERATION_MAX_TOKENS", "200")
	cfg, err := Load(writeConfig(t, "generation:\n  tier: none\n  context_window: 2048\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	p := llm.ResolveParams(llm.GenerationPlan{Tier: cfg.Generation.Tier}, cfg.EngineConfig().Defaults)
	if p.ContextWindow != 2048 || p.MaxTokens != 200 {
		t.Errorf("params = %+v, want window 2048 and max_tokens 200", p)
	}

	cfg, err = Load(writeConfig(t, "generation:\n  tier: balanced\n  context_window: 2048\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	p = llm.ResolveParams(llm.GenerationPlan{Tier: cfg.Generation.Tier}, cfg.EngineConfig().Defaults)
	if p.ContextWindow != 2048 || p.MaxTokens != 640 {
		t.Errorf("params = %+v, want window 2048 and tier max_tokens 640", p)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown tier", "generation:\n  tier: huge\n", "unknown generation.tier"},
		{"zero rounds", "agent:\n  max_rounds: 0\n", "max_rounds"},
		{"bad server", "mcp:\n  servers:\n    broken: {}\n", "mcp.servers.broken"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := &Config{
		Backend:    BackendConfig{Model: "qwen3-8b"},
		Generation: GenerationConfig{Tier: "balanced"},
	}
	cfg.Tools.Enabled = []string{"clock.now"}

	cfg.ApplyOverrides("", "compact", nil)
	if cfg.Backend.Model != "qwen3-8b" || cfg.Generation.Tier != "compact" {
		t.Fatalf("overrides = %+v", cfg)
	}
	cfg.ApplyOverrides("llama3", "", []string{"web.*"})
	if cfg.Backend.Model != "llama3" || !slices.Equal(cfg.Tools.Enabled, []string{"web.*"}) {
		t.Fatalf("overrides = %+v", cfg)
	}
}

func TestSave(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	path, err := Save(cfg)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if !Exists() {
		t.Fatal("config should exist after Save")
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reloading saved config: %v", err)
	}
	if reloaded.Backend.Model != cfg.Backend.Model || !slices.Equal(reloaded.Tools.Enabled, cfg.Tools.Enabled) {
		t.Errorf("reloaded = %+v", reloaded)
	}
	if _, err := Save(cfg); err == nil {
		t.Error("Save should refuse to overwrite")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("LA_TEST", "v")
	for in, want := range map[string]string{"${LA_TEST}": "v", "$LA_TEST": "v", "plain": "plain"} {
		if got := expandEnv(in); got != want {
			t.Errorf("expandEnv(%q) = %q, want %q", in, got, want)
		}
	}
}
