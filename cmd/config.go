package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/samsaffron/localagent/internal/config"
	"github.com/samsaffron/localagent/internal/llm"
	"github.com/samsaffron/localagent/internal/mcp"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage localagent configuration",
	Long: `View or edit your localagent configuration.

Examples:
  localagent config                          # show effective config
  localagent config init                     # write a starter config.yaml
  localagent config edit                     # edit in $EDITOR
  localagent config set generation.tier compact
  localagent config get backend.base_url`,
	RunE: configShow, // Default to show
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  configShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	RunE:  configInit,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file in $EDITOR",
	RunE:  configEdit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print configuration file path",
	RunE:  configPath,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value while preserving comments.

Examples:
  localagent config set backend.model qwen2.5-7b-instruct
  localagent config set generation.tier performance
  localagent config set agent.max_rounds 6`,
	Args:              cobra.ExactArgs(2),
	RunE:              configSet,
	ValidArgsFunction: configSetCompletion,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Long: `Get a configuration value from the config file.

Examples:
  localagent config get backend.base_url
  localagent config get generation.tier`,
	Args:              cobra.ExactArgs(1),
	RunE:              configGet,
	ValidArgsFunction: configGetCompletion,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
}

// configFilePath is the file config subcommands read and write.
func configFilePath() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	path, err := config.GetConfigPath()
	if err != nil {
		return "", fmt.Errorf("failed to get config path: %w", err)
	}
	return path, nil
}

func configShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	printConfig(cmd.OutOrStdout(), cfg)
	return nil
}

func printConfig(w io.Writer, cfg *config.Config) {
	section := func(name string) { fmt.Fprintln(w, promptStyle.Render(name+":")) }
	field := func(key string, value any) { fmt.Fprintf(w, "  %-20s %v\n", key+":", value) }
	unset := func(v any) any {
		switch v {
		case 0, 0.0:
			return mutedStyle.Render("(tier default)")
		}
		return v
	}

	section("backend")
	field("base_url", cfg.Backend.BaseURL)
	field("model", cfg.Backend.Model)
	if cfg.Backend.APIKey != "" {
		field("api_key", "(set)")
	} else {
		field("api_key", mutedStyle.Render("(not set)"))
	}
	field("retry_attempts", cfg.Backend.RetryAttempts)

	section("generation")
	field("tier", cfg.Generation.Tier)
	if tier, ok := llm.LookupTier(cfg.Generation.Tier); ok && tier.MaxTokens > 0 {
		fmt.Fprintln(w, "  "+mutedStyle.Render(fmt.Sprintf("tier %s: max_tokens=%d context_window=%d temperature=%.2f",
			tier.Name, tier.MaxTokens, tier.ContextWindow, tier.Temperature)))
	}
	field("max_tokens", unset(cfg.Generation.MaxTokens))
	field("context_window", unset(cfg.Generation.ContextWindow))
	field("temperature", unset(cfg.Generation.Temperature))
	field("top_p", unset(cfg.Generation.TopP))
	field("top_k", unset(cfg.Generation.TopK))

	section("agent")
	field("max_rounds", cfg.Agent.MaxRounds)
	field("max_calls_per_round", cfg.Agent.MaxCallsPerRound)
	field("tool_output_limit", cfg.Agent.ToolOutputLimit)
	if cfg.Agent.CatalogPath != "" {
		field("catalog_path", cfg.Agent.CatalogPath)
	}

	section("tools")
	field("enabled", strings.Join(cfg.Tools.Enabled, ", "))
	if cfg.Tools.Workspace != "" {
		field("workspace", cfg.Tools.Workspace)
	}
	field("python_command", cfg.Tools.PythonCommand)
	field("timeout", cfg.Tools.Timeout)

	section("mcp")
	if len(cfg.MCP.Servers) == 0 {
		fmt.Fprintln(w, "  "+mutedStyle.Render("(no servers)"))
	}
	for _, name := range mcp.ServerNames(cfg.MCP.Servers) {
		field(name, describeServer(cfg.MCP.Servers[name]))
	}

	section("sessions")
	field("enabled", cfg.Sessions.Enabled)
	if cfg.Sessions.Path != "" {
		field("path", cfg.Sessions.Path)
	}

	section("debug")
	field("enabled", cfg.Debug.Enabled)
	if cfg.Debug.Enabled {
		field("dir", cfg.DebugDir())
	}
}

func configInit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	path, err := config.Save(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func configEdit(cmd *cobra.Command, args []string) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}

	// Create a starter config if none exists
	if _, err := os.Stat(path); os.IsNotExist(err) && configFile == "" {
		cfg, err := config.Load("")
		if err != nil {
			return err
		}
		if _, err := config.Save(cfg); err != nil {
			return err
		}
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		editor = "vi"
	}

	editorCmd := exec.Command(editor, path)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	return editorCmd.Run()
}

func configPath(cmd *cobra.Command, args []string) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func configSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	path, err := configFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var root yaml.Node
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		root = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	case err != nil:
		return fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &root); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		if root.Kind == 0 {
			root = yaml.Node{
				Kind:    yaml.DocumentNode,
				Content: []*yaml.Node{{Kind: yaml.MappingNode}},
			}
		}
	}

	if err := setYAMLValue(&root, strings.Split(key, "."), value); err != nil {
		return fmt.Errorf("failed to set value: %w", err)
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&root); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	encoder.Close()

	// Reject values that would make the config unloadable
	tmp := strings.TrimSuffix(path, filepath.Ext(path)) + ".tmp.yaml"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if _, err := config.Load(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
	return nil
}

// setYAMLValue navigates/creates the path in a yaml.Node tree and sets the value
func setYAMLValue(root *yaml.Node, path []string, value string) error {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return fmt.Errorf("invalid document structure")
	}

	current := root.Content[0]
	if current.Kind != yaml.MappingNode {
		return fmt.Errorf("root is not a mapping")
	}

	for i, part := range path {
		isLast := i == len(path)-1

		found := false
		for j := 0; j < len(current.Content); j += 2 {
			if current.Content[j].Value != part {
				continue
			}
			if isLast {
				valueNode := current.Content[j+1]
				valueNode.Kind = yaml.ScalarNode
				valueNode.Value = value
				valueNode.Tag = ""
				valueNode.Content = nil
			} else {
				current = current.Content[j+1]
				if current.Kind != yaml.MappingNode {
					current.Kind = yaml.MappingNode
					current.Content = nil
					current.Value = ""
					current.Tag = ""
				}
			}
			found = true
			break
		}

		if !found {
			keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: part}
			if isLast {
				current.Content = append(current.Content, keyNode, &yaml.Node{Kind: yaml.ScalarNode, Value: value})
			} else {
				newMapping := &yaml.Node{Kind: yaml.MappingNode}
				current.Content = append(current.Content, keyNode, newMapping)
				current = newMapping
			}
		}
	}

	return nil
}

func configGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	path, err := configFilePath()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file does not exist")
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	value, err := getYAMLValue(&root, strings.Split(key, "."))
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

// getYAMLValue navigates the yaml.Node tree and returns the value at path.
// Sequences of scalars are joined with commas.
func getYAMLValue(root *yaml.Node, path []string) (string, error) {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return "", fmt.Errorf("invalid document structure")
	}

	current := root.Content[0]
	for _, part := range path {
		if current.Kind != yaml.MappingNode {
			return "", fmt.Errorf("path not found: expected mapping")
		}

		found := false
		for j := 0; j < len(current.Content); j += 2 {
			if current.Content[j].Value == part {
				current = current.Content[j+1]
				found = true
				break
			}
		}
		if !found {
			return "", fmt.Errorf("key not found: %s", part)
		}
	}

	switch current.Kind {
	case yaml.ScalarNode:
		return current.Value, nil
	case yaml.SequenceNode:
		items := make([]string, 0, len(current.Content))
		for _, n := range current.Content {
			if n.Kind != yaml.ScalarNode {
				return "", fmt.Errorf("value is not a scalar")
			}
			items = append(items, n.Value)
		}
		return strings.Join(items, ","), nil
	}
	return "", fmt.Errorf("value is not a scalar")
}

var configKeys = []string{
	"backend.base_url",
	"backend.model",
	"backend.api_key",
	"backend.retry_attempts",
	"generation.tier",
	"generation.max_tokens",
	"generation.context_window",
	"generation.temperature",
	"generation.top_p",
	"generation.top_k",
	"agent.max_rounds",
	"agent.max_calls_per_round",
	"agent.tool_output_limit",
	"agent.system_prompt",
	"agent.catalog_path",
	"tools.workspace",
	"tools.python_command",
	"tools.timeout",
	"tools.http_timeout",
	"tools.search_url",
	"tools.max_bytes",
	"sessions.enabled",
	"sessions.path",
	"sessions.max_age_days",
	"sessions.max_count",
	"debug.enabled",
	"debug.dir",
}

func configSetCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return filterPrefix(configKeys, toComplete), cobra.ShellCompDirectiveNoFileComp
	case 1:
		return configValueCompletions(args[0], toComplete), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func configGetCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return filterPrefix(configKeys, toComplete), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

// configValueCompletions returns completions for config values based on key
func configValueCompletions(key, toComplete string) []string {
	switch key {
	case "generation.tier":
		return filterPrefix(llm.TierNames(), toComplete)
	case "sessions.enabled", "debug.enabled":
		return filterPrefix([]string{"true", "false"}, toComplete)
	}
	return nil
}
