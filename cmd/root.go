package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/samsaffron/localagent/internal/config"
)

// Version is set at build time.
var Version = "dev"

var (
	configFile string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: $XDG_CONFIG_HOME/localagent/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug information to stderr")
}

var rootCmd = &cobra.Command{
	Use:   "localagent",
	Short: "Chat with a local model that can call tools",
	Long: `localagent runs a tool-calling agent on top of a local completion server
(llama.cpp server, Ollama, LM Studio).

Examples:
  localagent chat                         # interactive chat
  localagent chat "what time is it?"      # one-shot
  localagent chat --tools 'fs.*,web.*'    # enable more tools
  localagent chat --resume                # continue the last session

  localagent sessions                     # list saved sessions
  localagent tools list                   # show available tools
  localagent config                       # view configuration`,
	Version:           Version,
	SilenceUsage:      true,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(verbose)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
