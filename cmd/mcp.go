package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/samsaffron/localagent/internal/config"
	"github.com/samsaffron/localagent/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Inspect MCP (Model Context Protocol) servers",
	Long: `Inspect the MCP servers configured under mcp.servers in config.yaml.

Tools from MCP servers are exposed as <server>.<tool> and are enabled
with the same patterns as built-in tools (e.g. --tools 'notes.*').

Examples:
  localagent mcp list                  # list configured servers
  localagent mcp test notes            # start a server and list its tools`,
}

var mcpListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured MCP servers",
	RunE:  mcpList,
}

var mcpTestCmd = &cobra.Command{
	Use:   "test <name>",
	Short: "Test an MCP server connection",
	Long: `Start an MCP server and verify it responds correctly.

This will:
  1. Start the server process (or connect over HTTP)
  2. List available tools and refresh the tool cache
  3. Stop the server

Examples:
  localagent mcp test notes`,
	Args:              cobra.ExactArgs(1),
	RunE:              mcpTest,
	ValidArgsFunction: mcpServerCompletion,
}

var mcpPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file holding MCP servers",
	RunE:  mcpPath,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.AddCommand(mcpListCmd)
	mcpCmd.AddCommand(mcpTestCmd)
	mcpCmd.AddCommand(mcpPathCmd)
}

func mcpList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(cfg.MCP.Servers) == 0 {
		fmt.Fprintln(out, "No MCP servers configured.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Add one under mcp.servers in config.yaml, e.g.:")
		fmt.Fprintln(out, "  mcp:\n    servers:\n      notes:\n        command: notes-mcp")
		return nil
	}

	fmt.Fprintf(out, "Configured MCP servers (%d):\n\n", len(cfg.MCP.Servers))
	for _, name := range mcp.ServerNames(cfg.MCP.Servers) {
		server := cfg.MCP.Servers[name]
		fmt.Fprintf(out, "  %s\n", name)
		fmt.Fprintf(out, "    %s\n", describeServer(server))
		if len(server.Env) > 0 {
			fmt.Fprintf(out, "    env: %d variables\n", len(server.Env))
		}
		if cached := mcp.LoadCachedTools(name); len(cached) > 0 {
			fmt.Fprintf(out, "    tools: %d cached\n", len(cached))
		} else {
			fmt.Fprintln(out, "    tools: not cached (run 'localagent mcp test "+name+"')")
		}
	}
	return nil
}

func describeServer(s mcp.ServerConfig) string {
	if s.TransportType() == "http" {
		return "url: " + s.URL
	}
	return strings.TrimSpace("command: " + s.Command + " " + strings.Join(s.Args, " "))
}

func mcpTest(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	serverCfg, ok := cfg.MCP.Servers[name]
	if !ok {
		return fmt.Errorf("server '%s' not found in config", name)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Testing MCP server '%s'...\n", name)
	fmt.Fprintf(out, "  %s\n\n", describeServer(serverCfg))

	manager := mcp.NewManager(map[string]mcp.ServerConfig{name: serverCfg})
	defer manager.StopAll()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	fmt.Fprint(out, "Starting server...")
	if err := manager.Enable(ctx, name); err != nil {
		fmt.Fprintln(out, " FAILED")
		return fmt.Errorf("start server: %w", err)
	}
	fmt.Fprintln(out, " OK")

	tools := manager.AllTools()
	fmt.Fprintf(out, "\nAvailable tools (%d):\n", len(tools))
	for _, t := range tools {
		fmt.Fprintf(out, "  - %s\n", t.Name)
		if t.Description != "" {
			desc := t.Description
			if r := []rune(desc); len(r) > 60 {
				desc = string(r[:57]) + "..."
			}
			fmt.Fprintf(out, "    %s\n", desc)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Server '%s' is working correctly.\n", name)
	return nil
}

func mcpPath(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		var err error
		path, err = config.GetConfigPath()
		if err != nil {
			return err
		}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (not created yet)\n", path)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func mcpServerCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return filterPrefix(mcp.ServerNames(cfg.MCP.Servers), toComplete), cobra.ShellCompDirectiveNoFileComp
}
