package mcp

import (
	"fmt"
	"sort"
	"strings"
)

// ServerConfig represents a configured MCP server (mcp.servers.<name>).
// Supports both stdio transport (Command/Args) and HTTP transport (URL).
type ServerConfig struct {
	// Type discriminator: "stdio" (default if command present) or "http"
	Type string `mapstructure:"type" json:"type,omitempty"`

	// Stdio transport fields
	Command string   `mapstructure:"command" json:"command,omitempty"`
	Args    []string `mapstructure:"args" json:"args,omitempty"`

	// HTTP transport fields
	URL     string            `mapstructure:"url" json:"url,omitempty"`
	Headers map[string]string `mapstructure:"headers" json:"headers,omitempty"`

	// Shared fields
	Env map[string]string `mapstructure:"env" json:"env,omitempty"`
}

// TransportType returns the effective transport type for this server.
func (c *ServerConfig) TransportType() string {
	if c.Type == "http" || c.URL != "" {
		return "http"
	}
	return "stdio"
}

// Validate checks that the server configuration is valid.
func (c *ServerConfig) Validate() error {
	if c.TransportType() == "http" {
		if c.URL == "" {
			return fmt.Errorf("http transport requires url")
		}
		if c.Command != "" {
			return fmt.Errorf("cannot specify both url and command")
		}
		return nil
	}
	if c.Command == "" {
		return fmt.Errorf("stdio transport requires command")
	}
	return nil
}

// ValidateServerName rejects names that cannot prefix a tool name.
func ValidateServerName(name string) error {
	if name == "" {
		return fmt.Errorf("empty MCP server name")
	}
	if strings.ContainsAny(name, ". \t\n") {
		return fmt.Errorf("MCP server name %q must not contain dots or spaces", name)
	}
	return nil
}

// ServerNames returns the sorted server names of servers.
func ServerNames(servers map[string]ServerConfig) []string {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
