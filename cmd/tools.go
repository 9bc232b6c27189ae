package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/samsaffron/localagent/internal/config"
	"github.com/samsaffron/localagent/internal/mcp"
	"github.com/samsaffron/localagent/internal/toolcall"
	"github.com/samsaffron/localagent/internal/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools the agent can call",
	RunE:  runToolsList,
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in and MCP tools",
	RunE:  runToolsList,
}

var toolsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Fuzzy search tools by name and description",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runToolsSearch,
}

func init() {
	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsSearchCmd)
	rootCmd.AddCommand(toolsCmd)
}

// toolEntry is one row of tool listings.
type toolEntry struct {
	Name        string
	Display     string
	Description string
	Source      string
	Enabled     bool
}

// collectTools gathers built-in tools and cached MCP tools without starting
// any server.
func collectTools(cfg *config.Config) ([]toolEntry, error) {
	registry, err := tools.NewRegistry(cfg.Tools)
	if err != nil {
		return nil, err
	}
	catalog, err := buildCatalog(cfg.Agent.CatalogPath, nil)
	if err != nil {
		return nil, err
	}

	var entries []toolEntry
	for _, name := range tools.BuiltinToolNames() {
		entries = append(entries, catalogEntry(catalog, name, "builtin", registry.HasTool(name)))
	}

	var mcpNames []string
	var mcpSpecs []mcp.ToolSpec
	for _, server := range mcp.ServerNames(cfg.MCP.Servers) {
		for _, t := range mcp.LoadCachedTools(server) {
			t.Name = server + "." + t.Name
			mcpSpecs = append(mcpSpecs, t)
			mcpNames = append(mcpNames, t.Name)
		}
	}
	enabled, err := tools.ExpandPatterns(cfg.Tools.Enabled, mcpNames)
	if err != nil {
		return nil, err
	}
	enabledSet := make(map[string]bool, len(enabled))
	for _, n := range enabled {
		enabledSet[n] = true
	}
	for _, t := range mcpSpecs {
		server, _, _ := strings.Cut(t.Name, ".")
		entries = append(entries, toolEntry{
			Name:        t.Name,
			Display:     t.Name,
			Description: t.Description,
			Source:      "mcp:" + server,
			Enabled:     enabledSet[t.Name],
		})
	}
	return entries, nil
}

func catalogEntry(catalog *toolcall.Catalog, name, source string, enabled bool) toolEntry {
	e := toolEntry{Name: name, Display: catalog.DisplayName(name), Source: source, Enabled: enabled}
	if spec, ok := catalog.Lookup(name); ok {
		e.Description = spec.Description
	}
	return e
}

func runToolsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	entries, err := collectTools(cfg)
	if err != nil {
		return err
	}
	printToolEntries(cmd.OutOrStdout(), entries)
	if len(cfg.MCP.Servers) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("\nMCP tools are read from the cache; run 'localagent mcp test <server>' to refresh."))
	}
	return nil
}

func runToolsSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	entries, err := collectTools(cfg)
	if err != nil {
		return err
	}
	matched := searchTools(entries, strings.Join(args, " "))
	if len(matched) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No tools match '%s'\n", strings.Join(args, " "))
		return nil
	}
	printToolEntries(cmd.OutOrStdout(), matched)
	return nil
}

// searchTools ranks entries by fuzzy match against name and description.
func searchTools(entries []toolEntry, query string) []toolEntry {
	haystack := make([]string, len(entries))
	for i, e := range entries {
		haystack[i] = e.Name + " " + e.Display + " " + e.Description
	}
	matches := fuzzy.Find(query, haystack)
	out := make([]toolEntry, 0, len(matches))
	for _, m := range matches {
		out = append(out, entries[m.Index])
	}
	return out
}

func printToolEntries(w io.Writer, entries []toolEntry) {
	for _, e := range entries {
		mark := okStyle.Render("✓")
		if !e.Enabled {
			mark = mutedStyle.Render("·")
		}
		fmt.Fprintf(w, "%s %-24s %-12s %s\n", mark, e.Name, e.Source, e.Display)
		if e.Description != "" {
			fmt.Fprintf(w, "    %s\n", mutedStyle.Render(e.Description))
		}
	}
}
