package tools

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// ToolConfig holds configuration for the local tool system.
type ToolConfig struct {
	Enabled       []string      `mapstructure:"enabled"`        // Tool name patterns, e.g. "fs.*"
	Workspace     string        `mapstructure:"workspace"`      // Root for fs.* tools (default: cwd)
	ReadDirs      []string      `mapstructure:"read_dirs"`      // Extra directories readable by fs.* tools
	WriteDirs     []string      `mapstructure:"write_dirs"`     // Extra directories writable by fs.write_file
	PythonCommand string        `mapstructure:"python_command"` // Interpreter for code.python
	Timeout       time.Duration `mapstructure:"timeout"`        // Default code.python timeout
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`   // web.* request timeout
	SearchURL     string        `mapstructure:"search_url"`     // DuckDuckGo HTML endpoint
	MaxBytes      int64         `mapstructure:"max_bytes"`      // Max bytes returned by a single tool
}

// DefaultToolConfig returns sensible defaults for tool configuration.
func DefaultToolConfig() ToolConfig {
	return ToolConfig{
		Enabled:       []string{ClockToolName, "web.*"},
		ReadDirs:      []string{},
		WriteDirs:     []string{},
		PythonCommand: "python3",
		Timeout:       10 * time.Second,
		HTTPTimeout:   30 * time.Second,
		SearchURL:     "https://html.duckduckgo.com/html/",
		MaxBytes:      50 * 1024,
	}
}

// Merge combines this config with another, with other taking precedence for non-empty values.
func (c ToolConfig) Merge(other ToolConfig) ToolConfig {
	result := c

	if len(other.Enabled) > 0 {
		result.Enabled = other.Enabled
	}
	if other.Workspace != "" {
		result.Workspace = other.Workspace
	}
	if len(other.ReadDirs) > 0 {
		result.ReadDirs = append(result.ReadDirs, other.ReadDirs...)
	}
	if len(other.WriteDirs) > 0 {
		result.WriteDirs = append(result.WriteDirs, other.WriteDirs...)
	}
	if other.PythonCommand != "" {
		result.PythonCommand = other.PythonCommand
	}
	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.HTTPTimeout > 0 {
		result.HTTPTimeout = other.HTTPTimeout
	}
	if other.SearchURL != "" {
		result.SearchURL = other.SearchURL
	}
	if other.MaxBytes > 0 {
		result.MaxBytes = other.MaxBytes
	}

	return result
}

// Validate checks the configuration for errors.
func (c *ToolConfig) Validate() []error {
	var errs []error

	for _, pattern := range c.Enabled {
		if _, err := glob.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("invalid tool pattern %q: %w", pattern, err))
		}
	}

	// Warn for nonexistent directories (may be mounted later)
	for _, dir := range c.ReadDirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			slog.Warn("read_dir does not exist", "dir", dir)
		}
	}
	for _, dir := range c.WriteDirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			slog.Warn("write_dir does not exist", "dir", dir)
		}
	}

	return errs
}

// ParseToolsFlag parses a comma-separated list of tool patterns.
// "all" or "*" enables every tool.
func ParseToolsFlag(value string) []string {
	if value == "" {
		return nil
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "all" || trimmed == "*" {
		return []string{"*"}
	}
	var patterns []string
	for _, p := range strings.Split(value, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}
