package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/samsaffron/localagent/internal/llm"
	"github.com/samsaffron/localagent/internal/mcp"
	"github.com/samsaffron/localagent/internal/session"
	"github.com/samsaffron/localagent/internal/tools"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// LOCALAGENT_BACKEND_BASE_URL.
const EnvPrefix = "LOCALAGENT"

type Config struct {
	Backend    BackendConfig    `mapstructure:"backend"`
	Generation GenerationConfig `mapstructure:"generation"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Tools      tools.ToolConfig `mapstructure:"tools"`
	MCP        MCPConfig        `mapstructure:"mcp"`
	Sessions   session.Config   `mapstructure:"sessions"`
	Debug      DebugConfig      `mapstructure:"debug"`
}

// BackendConfig configures the local completion server.
type BackendConfig struct {
	BaseURL       string   `mapstructure:"base_url"` // Default: http://localhost:8080/v1
	Model         string   `mapstructure:"model"`
	APIKey        string   `mapstructure:"api_key"` // Optional, most local servers ignore it
	RetryAttempts int      `mapstructure:"retry_attempts"`
	Stop          []string `mapstructure:"stop"`
}

// GenerationConfig holds generation defaults applied below the tier table.
type GenerationConfig struct {
	Tier          string  `mapstructure:"tier"` // compact, balanced, performance, or none to use the values below
	MaxTokens     int     `mapstructure:"max_tokens"`
	ContextWindow int     `mapstructure:"context_window"`
	Temperature   float64 `mapstructure:"temperature"`
	TopP          float64 `mapstructure:"top_p"`
	TopK          int     `mapstructure:"top_k"`
}

// AgentConfig configures the round loop.
type AgentConfig struct {
	MaxRounds        int    `mapstructure:"max_rounds"`
	MaxCallsPerRound int    `mapstructure:"max_calls_per_round"`
	ToolOutputLimit  int    `mapstructure:"tool_output_limit"` // Bytes of tool output fed back to the model
	SystemPrompt     string `mapstructure:"system_prompt"`
	CatalogPath      string `mapstructure:"catalog_path"` // Optional YAML tool catalog replacing the built-in one
}

// MCPConfig lists MCP servers by name.
type MCPConfig struct {
	Servers map[string]mcp.ServerConfig `mapstructure:"servers"`
}

// DebugConfig configures the JSONL debug log.
type DebugConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"` // Override default directory
}

const defaultSystemPrompt = "You are a helpful local assistant. Answer briefly and accurately."

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://localhost:8080/v1")
	v.SetDefault("backend.model", "local")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.retry_attempts", llm.DefaultRetryConfig().MaxAttempts)
	v.SetDefault("generation.tier", "balanced")
	v.SetDefault("generation.max_tokens", 0)
	v.SetDefault("generation.context_window", 0)
	v.SetDefault("generation.temperature", 0.0)
	v.SetDefault("generation.top_p", 0.0)
	v.SetDefault("generation.top_k", 0)
	v.SetDefault("agent.max_rounds", 4)
	v.SetDefault("agent.max_calls_per_round", 3)
	v.SetDefault("agent.tool_output_limit", 4000)
	v.SetDefault("agent.system_prompt", defaultSystemPrompt)
	v.SetDefault("agent.catalog_path", "")

	td := tools.DefaultToolConfig()
	v.SetDefault("tools.enabled", td.Enabled)
	v.SetDefault("tools.workspace", "")
	v.SetDefault("tools.python_command", td.PythonCommand)
	v.SetDefault("tools.timeout", td.Timeout)
	v.SetDefault("tools.http_timeout", td.HTTPTimeout)
	v.SetDefault("tools.search_url", td.SearchURL)
	v.SetDefault("tools.max_bytes", td.MaxBytes)

	sd := session.DefaultConfig()
	v.SetDefault("sessions.enabled", sd.Enabled)
	v.SetDefault("sessions.path", "")
	v.SetDefault("sessions.max_age_days", sd.MaxAgeDays)
	v.SetDefault("sessions.max_count", sd.MaxCount)

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.dir", "")
}

// Load reads config.yaml from the XDG config dir or the working directory.
// A non-empty path selects a specific file instead. A missing default file
// is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		configDir, err := GetConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config dir: %w", err)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if used := v.ConfigFileUsed(); used != "" {
		servers, err := loadMCPServers(used)
		if err != nil {
			return nil, err
		}
		cfg.MCP.Servers = servers
	}

	resolveBackendCredentials(&cfg.Backend)
	cfg.Sessions.Path = expandPath(cfg.Sessions.Path)
	cfg.Debug.Dir = expandPath(cfg.Debug.Dir)
	cfg.Agent.CatalogPath = expandPath(cfg.Agent.CatalogPath)
	cfg.Tools.Workspace = expandPath(cfg.Tools.Workspace)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports configuration values the engine cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if _, ok := llm.LookupTier(c.Generation.Tier); !ok && c.Generation.Tier != "" {
		errs = append(errs, fmt.Errorf("unknown generation.tier %q (want one of %s)",
			c.Generation.Tier, strings.Join(llm.TierNames(), ", ")))
	}
	if c.Agent.MaxRounds < 1 {
		errs = append(errs, fmt.Errorf("agent.max_rounds must be at least 1, got %d", c.Agent.MaxRounds))
	}
	if c.Agent.MaxCallsPerRound < 1 {
		errs = append(errs, fmt.Errorf("agent.max_calls_per_round must be at least 1, got %d", c.Agent.MaxCallsPerRound))
	}
	for name, server := range c.MCP.Servers {
		if err := mcp.ValidateServerName(name); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := server.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("mcp.servers.%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// ApplyOverrides applies command-line overrides. Empty values are ignored.
func (c *Config) ApplyOverrides(model, tier string, toolPatterns []string) {
	if model != "" {
		c.Backend.Model = model
	}
	if tier != "" {
		c.Generation.Tier = tier
	}
	if len(toolPatterns) > 0 {
		c.Tools.Enabled = toolPatterns
	}
}

// ModelConfig returns the completion client configuration.
func (c *Config) ModelConfig() llm.OpenAICompatConfig {
	return llm.OpenAICompatConfig{
		BaseURL: c.Backend.BaseURL,
		Model:   c.Backend.Model,
		APIKey:  c.Backend.APIKey,
		Stop:    c.Backend.Stop,
	}
}

// RetryConfig returns the retry policy for backend calls.
func (c *Config) RetryConfig() llm.RetryConfig {
	rc := llm.DefaultRetryConfig()
	if c.Backend.RetryAttempts > 0 {
		rc.MaxAttempts = c.Backend.RetryAttempts
	}
	return rc
}

// EngineConfig returns the round loop configuration.
func (c *Config) EngineConfig() llm.EngineConfig {
	return llm.EngineConfig{
		SystemPrompt:     c.Agent.SystemPrompt,
		MaxRounds:        c.Agent.MaxRounds,
		MaxCallsPerRound: c.Agent.MaxCallsPerRound,
		ToolOutputLimit:  c.Agent.ToolOutputLimit,
		Defaults: llm.Defaults{
			ContextWindow: c.Generation.ContextWindow,
			MaxTokens:     c.Generation.MaxTokens,
			Temperature:   c.Generation.Temperature,
			TopP:          c.Generation.TopP,
			TopK:          c.Generation.TopK,
		},
	}
}

// DebugDir returns the directory for JSONL debug logs.
func (c *Config) DebugDir() string {
	if c.Debug.Dir != "" {
		return c.Debug.Dir
	}
	return GetDebugDir()
}

// loadMCPServers re-reads mcp.servers with yaml.v3. Viper lowercases map
// keys, which would mangle server names, env var names and headers.
func loadMCPServers(path string) (map[string]mcp.ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var raw struct {
		MCP struct {
			Servers map[string]mcp.ServerConfig `yaml:"servers"`
		} `yaml:"mcp"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse mcp servers: %w", err)
	}
	return raw.MCP.Servers, nil
}

func resolveBackendCredentials(cfg *BackendConfig) {
	cfg.APIKey = expandEnv(cfg.APIKey)
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("LOCALAGENT_API_KEY")
	}
	cfg.BaseURL = expandEnv(cfg.BaseURL)
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		varName := s[2 : len(s)-1]
		return os.Getenv(varName)
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// expandPath expands a leading ~ to the home directory.
func expandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// GetConfigDir returns the XDG config directory for localagent.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "localagent"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "localagent"), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// GetDebugDir returns the XDG data directory for debug logs.
// Uses $XDG_DATA_HOME if set, otherwise ~/.local/share
func GetDebugDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "localagent", "debug")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "localagent-debug")
	}
	return filepath.Join(homeDir, ".local", "share", "localagent", "debug")
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Save writes a starter config file. It refuses to overwrite an existing one.
func Save(cfg *Config) (string, error) {
	path, err := GetConfigPath()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("config already exists: %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`backend:
  base_url: %s
  model: %s
  # api_key: ${LOCALAGENT_API_KEY}

generation:
  tier: %s

agent:
  max_rounds: %d
  max_calls_per_round: %d
  # system_prompt: |
  #   You are a helpful local assistant.

tools:
  enabled: [%s]
  # workspace: ~/notes

# mcp:
#   servers:
#     notes:
#       command: notes-mcp
#       args: ["--stdio"]

sessions:
  enabled: %t
`, cfg.Backend.BaseURL, cfg.Backend.Model, cfg.Generation.Tier,
		cfg.Agent.MaxRounds, cfg.Agent.MaxCallsPerRound,
		quoteList(cfg.Tools.Enabled), cfg.Sessions.Enabled)

	return path, os.WriteFile(path, []byte(content), 0600)
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}
