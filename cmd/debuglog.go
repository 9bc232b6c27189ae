package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/samsaffron/localagent/internal/debuglog"
)

var (
	debugLogPrompts bool
	debugLogTimes   bool
	debugLogRaw     bool
)

var debugLogCmd = &cobra.Command{
	Use:   "debug-log",
	Short: "Inspect JSONL debug logs",
	Long: `Inspect the per-session debug logs written when debug.enabled is true.

Each log records planned rounds and their parameter attempts, rejected
attempts, tool events and the final reply of every turn.

Examples:
  localagent debug-log                 # list logs, most recent first
  localagent debug-log show            # show the most recent log
  localagent debug-log show 2 --prompts
  localagent debug-log path`,
	RunE: runDebugLogList,
}

var debugLogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List debug logs",
	RunE:  runDebugLogList,
}

var debugLogShowCmd = &cobra.Command{
	Use:   "show [n|id]",
	Short: "Show a debug log (default: most recent)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDebugLogShow,
}

var debugLogPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the debug log directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := debugLogDir()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), dir)
		return nil
	},
}

func init() {
	debugLogShowCmd.Flags().BoolVar(&debugLogPrompts, "prompts", false, "Print full prompts")
	debugLogShowCmd.Flags().BoolVar(&debugLogTimes, "timestamps", false, "Print entry timestamps")
	debugLogShowCmd.Flags().BoolVar(&debugLogRaw, "raw", false, "Print the raw JSONL file")

	debugLogCmd.AddCommand(debugLogListCmd)
	debugLogCmd.AddCommand(debugLogShowCmd)
	debugLogCmd.AddCommand(debugLogPathCmd)
	rootCmd.AddCommand(debugLogCmd)
}

func debugLogDir() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.DebugDir(), nil
}

func runDebugLogList(cmd *cobra.Command, args []string) error {
	dir, err := debugLogDir()
	if err != nil {
		return err
	}
	sessions, err := debuglog.ListSessions(dir)
	if err != nil {
		return fmt.Errorf("failed to list debug logs: %w", err)
	}
	debuglog.FormatSessionList(cmd.OutOrStdout(), sessions)
	return nil
}

func runDebugLogShow(cmd *cobra.Command, args []string) error {
	dir, err := debugLogDir()
	if err != nil {
		return err
	}
	var ident string
	if len(args) > 0 {
		ident = args[0]
	}
	summary, err := debuglog.ResolveSession(dir, ident)
	if err != nil {
		return err
	}

	if debugLogRaw {
		data, err := os.ReadFile(summary.FilePath)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	sess, err := debuglog.ParseSession(summary.FilePath)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", summary.FilePath, err)
	}
	debuglog.FormatSession(cmd.OutOrStdout(), sess, debuglog.FormatOptions{
		ShowPrompts:   debugLogPrompts,
		ShowTimestamp: debugLogTimes,
	})
	return nil
}
