package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/samsaffron/localagent/internal/llm"
	"github.com/samsaffron/localagent/internal/mcp"
	"github.com/samsaffron/localagent/internal/tools"
)

// GenerationFlags holds per-turn parameter overrides from the command line.
type GenerationFlags struct {
	Model         string
	Tier          string
	Mood          string
	MaxTokens     int
	ContextWindow int
	Temperature   float64
	TopP          float64
	TopK          int
}

// AddGenerationFlags adds --model, --tier and the sampling override flags.
func AddGenerationFlags(cmd *cobra.Command, f *GenerationFlags) {
	cmd.Flags().StringVar(&f.Model, "model", "", "Override backend model")
	cmd.Flags().StringVarP(&f.Tier, "tier", "t", "", "Hardware tier: "+strings.Join(llm.TierNames(), ", "))
	cmd.Flags().StringVar(&f.Mood, "mood", "", "Mood the assistant starts in")
	cmd.Flags().IntVar(&f.MaxTokens, "max-tokens", 0, "Override max tokens per reply")
	cmd.Flags().IntVar(&f.ContextWindow, "context-window", 0, "Override context window")
	cmd.Flags().Float64Var(&f.Temperature, "temperature", 0, "Override temperature")
	cmd.Flags().Float64Var(&f.TopP, "top-p", 0, "Override top_p")
	cmd.Flags().IntVar(&f.TopK, "top-k", 0, "Override top_k")
	if err := cmd.RegisterFlagCompletionFunc("tier", TierFlagCompletion); err != nil {
		panic("failed to register tier completion: " + err.Error())
	}
}

// Overrides converts the flags the user actually set into llm.Overrides.
func (f *GenerationFlags) Overrides(cmd *cobra.Command) llm.Overrides {
	var o llm.Overrides
	changed := cmd.Flags().Changed
	if changed("max-tokens") {
		o.MaxTokens = &f.MaxTokens
	}
	if changed("context-window") {
		o.ContextWindow = &f.ContextWindow
	}
	if changed("temperature") {
		o.Temperature = &f.Temperature
	}
	if changed("top-p") {
		o.TopP = &f.TopP
	}
	if changed("top-k") {
		o.TopK = &f.TopK
	}
	return o
}

// AddToolsFlag adds the --tools flag with completion
func AddToolsFlag(cmd *cobra.Command, dest *string) {
	cmd.Flags().StringVar(dest, "tools", "", "Enabled tools, comma-separated glob patterns or 'all' (e.g., 'clock.now,web.*')")
	if err := cmd.RegisterFlagCompletionFunc("tools", ToolsFlagCompletion); err != nil {
		panic("failed to register tools completion: " + err.Error())
	}
}

// TierFlagCompletion provides shell completion for the --tier flag.
func TierFlagCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return filterPrefix(llm.TierNames(), toComplete), cobra.ShellCompDirectiveNoFileComp
}

// ToolsFlagCompletion completes the last comma-separated element of --tools
// from built-in tool names and cached MCP tools.
func ToolsFlagCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	prefix := ""
	current := toComplete
	if idx := strings.LastIndex(toComplete, ","); idx >= 0 {
		prefix = toComplete[:idx+1]
		current = toComplete[idx+1:]
	}

	names := append([]string{"all"}, tools.BuiltinToolNames()...)
	if cfg, err := loadConfig(); err == nil {
		for _, server := range mcp.ServerNames(cfg.MCP.Servers) {
			names = append(names, server+".*")
			for _, t := range mcp.LoadCachedTools(server) {
				names = append(names, server+"."+t.Name)
			}
		}
	}

	var completions []string
	for _, name := range filterPrefix(names, current) {
		completions = append(completions, prefix+name)
	}
	return completions, cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
}

func filterPrefix(items []string, prefix string) []string {
	var result []string
	for _, item := range items {
		if strings.HasPrefix(item, prefix) {
			result = append(result, item)
		}
	}
	return result
}
