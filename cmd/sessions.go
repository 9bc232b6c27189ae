package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/samsaffron/localagent/internal/llm"
	"github.com/samsaffron/localagent/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
	Long: `List, search, show, delete, and export chat sessions.

Sessions are addressed by number (12 or #12) or by an ID prefix.

Examples:
  localagent sessions                       # List recent sessions
  localagent sessions list --status error
  localagent sessions search "oslo"
  localagent sessions show 12
  localagent sessions delete 12
  localagent sessions export 12 [path.md]`,
	RunE: runSessionsList, // Default to list
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE:  runSessionsList,
}

var sessionsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSessionsSearch,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show session details",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <id> [path]",
	Short: "Export session as markdown",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runSessionsExport,
}

// Flags
var (
	sessionsModel  string
	sessionsLimit  int
	sessionsJSON   bool
	sessionsStatus string
	sessionsTag    string
	sessionsTools  bool
)

func init() {
	sessionsListCmd.Flags().StringVar(&sessionsModel, "model", "", "Filter by model")
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "Maximum number of sessions to list")
	sessionsListCmd.Flags().StringVar(&sessionsStatus, "status", "", "Filter by status (active, complete, error, interrupted)")
	sessionsListCmd.Flags().StringVar(&sessionsTag, "tag", "", "Filter by tag")

	sessionsShowCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Output as JSON")
	sessionsShowCmd.Flags().BoolVar(&sessionsTools, "tools", false, "Include tool calls")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsSearchCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsExportCmd)

	rootCmd.AddCommand(sessionsCmd)
}

func getSessionStore() (session.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if !cfg.Sessions.Enabled {
		return nil, fmt.Errorf("session storage is disabled in config")
	}

	return session.NewStore(cfg.Sessions)
}

// lookupSession resolves a session number or ID prefix.
func lookupSession(ctx context.Context, store session.Store, ref string) (*session.Session, error) {
	sess, err := store.GetByPrefix(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if sess == nil {
		return nil, fmt.Errorf("session '%s' not found", ref)
	}
	return sess, nil
}

// sessionLabel is the short form used in listings and messages.
func sessionLabel(number int64, id string) string {
	if number > 0 {
		return fmt.Sprintf("#%d", number)
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	// Validate status if provided
	if sessionsStatus != "" {
		validStatuses := []string{"active", "complete", "error", "interrupted"}
		if !slices.Contains(validStatuses, sessionsStatus) {
			return fmt.Errorf("invalid status %q: must be one of %v", sessionsStatus, validStatuses)
		}
	}

	store, err := getSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	summaries, err := store.List(ctx, session.ListOptions{
		Model:  sessionsModel,
		Status: session.SessionStatus(sessionsStatus),
		Tag:    normalizeTag(sessionsTag),
		Limit:  sessionsLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}

	fmt.Fprintf(out, "%-6s %-30s %4s %5s %6s %5s %-11s %s\n",
		"ID", "SUMMARY", "MSGS", "TURNS", "ROUNDS", "TOOLS", "STATUS", "AGE")
	fmt.Fprintln(out, strings.Repeat("-", 85))

	for _, s := range summaries {
		summary := s.Summary
		if s.Name != "" {
			summary = s.Name
		}
		if r := []rune(summary); len(r) > 30 {
			summary = string(r[:27]) + "..."
		}

		status := string(s.Status)
		if status == "" {
			status = "active"
		}

		fmt.Fprintf(out, "%-6s %-30s %4d %5d %6d %5d %-11s %s\n",
			sessionLabel(s.Number, s.ID), summary, s.MessageCount, s.UserTurns,
			s.Rounds, s.ToolCalls, status, formatRelativeTime(s.UpdatedAt))
	}

	return nil
}

func runSessionsSearch(cmd *cobra.Command, args []string) error {
	store, err := getSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	query := strings.Join(args, " ")
	ctx := context.Background()
	results, err := store.Search(ctx, query, 20)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintf(out, "No results found for '%s'\n", query)
		return nil
	}

	fmt.Fprintf(out, "Found %d matches for '%s':\n\n", len(results), query)
	for _, r := range results {
		name := r.SessionName
		if name == "" {
			name = r.Summary
		}
		fmt.Fprintf(out, "%s %s (%s)\n", sessionLabel(r.SessionNumber, r.SessionID), name, r.Model)
		fmt.Fprintf(out, "  %s\n\n", r.Snippet)
	}

	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	store, err := getSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	sess, err := lookupSession(ctx, store, args[0])
	if err != nil {
		return err
	}

	messages, err := store.GetMessages(ctx, sess.ID, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to get messages: %w", err)
	}
	var events []session.ToolEventRecord
	if sessionsTools || sessionsJSON {
		events, err = store.GetToolEvents(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("failed to get tool events: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	if sessionsJSON {
		data := struct {
			Session    *session.Session          `json:"session"`
			Messages   []session.Message         `json:"messages"`
			ToolEvents []session.ToolEventRecord `json:"tool_events,omitempty"`
		}{
			Session:    sess,
			Messages:   messages,
			ToolEvents: events,
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}

	fmt.Fprintf(out, "Session: %s (%s)\n", sess.ID, sessionLabel(sess.Number, sess.ID))
	if sess.Name != "" {
		fmt.Fprintf(out, "Name: %s\n", sess.Name)
	}
	fmt.Fprintf(out, "Model: %s\n", sess.Model)
	if sess.Tier != "" {
		fmt.Fprintf(out, "Tier: %s\n", sess.Tier)
	}
	fmt.Fprintf(out, "Created: %s\n", sess.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Updated: %s\n", sess.UpdatedAt.Format(time.RFC3339))
	if sess.CWD != "" {
		fmt.Fprintf(out, "CWD: %s\n", sess.CWD)
	}
	if sess.Tools != "" {
		fmt.Fprintf(out, "Tools: %s\n", sess.Tools)
	}
	fmt.Fprintf(out, "Messages: %d\n", len(messages))

	status := string(sess.Status)
	if status == "" {
		status = "active"
	}
	fmt.Fprintf(out, "Status: %s\n", status)
	fmt.Fprintf(out, "User Turns: %d\n", sess.UserTurns)
	fmt.Fprintf(out, "Rounds: %d\n", sess.Rounds)
	fmt.Fprintf(out, "Tool Calls: %d\n", sess.ToolCalls)
	if sess.Tags != "" {
		fmt.Fprintf(out, "Tags: %s\n", sess.Tags)
	}
	fmt.Fprintln(out)

	for _, msg := range messages {
		role := string(msg.Role)
		switch msg.Role {
		case llm.RoleUser:
			role = "❯"
		case llm.RoleAssistant:
			role = "●"
		}
		content := msg.Content
		if r := []rune(content); len(r) > 200 {
			content = string(r[:197]) + "..."
		}
		if msg.Mood != "" {
			content += "  [" + msg.Mood + "]"
		}
		fmt.Fprintf(out, "%s %s\n\n", role, content)
	}

	if len(events) > 0 {
		fmt.Fprintln(out, "Tool calls:")
		for _, ev := range events {
			mark := "✓"
			if ev.Status != llm.ToolStatusOK {
				mark = "✗"
			}
			fmt.Fprintf(out, "  %s %s %s\n", mark, ev.Name, ev.Arguments)
		}
	}

	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	store, err := getSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	sess, err := lookupSession(ctx, store, args[0])
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, sess.ID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted session: %s\n", sessionLabel(sess.Number, sess.ID))
	return nil
}

func runSessionsExport(cmd *cobra.Command, args []string) error {
	store, err := getSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	sess, err := lookupSession(ctx, store, args[0])
	if err != nil {
		return err
	}

	messages, err := store.GetMessages(ctx, sess.ID, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to get messages: %w", err)
	}

	var outputPath string
	if len(args) > 1 {
		outputPath = args[1]
	} else {
		outputPath = fmt.Sprintf("session-%d.md", sess.Number)
	}

	if err := os.WriteFile(outputPath, []byte(exportMarkdown(sess, messages)), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d messages to %s\n", len(messages), outputPath)
	return nil
}

// exportMarkdown renders a session transcript as markdown.
func exportMarkdown(sess *session.Session, messages []session.Message) string {
	var b strings.Builder
	b.WriteString("# Chat Export\n\n")
	fmt.Fprintf(&b, "**Session:** %s\n", sess.ID)
	if sess.Name != "" {
		fmt.Fprintf(&b, "**Name:** %s\n", sess.Name)
	}
	fmt.Fprintf(&b, "**Model:** %s\n", sess.Model)
	fmt.Fprintf(&b, "**Created:** %s\n", sess.CreatedAt.Format(time.RFC3339))
	b.WriteString("\n---\n\n")

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleUser:
			b.WriteString("## ❯\n\n")
		case llm.RoleAssistant:
			b.WriteString("## Assistant\n\n")
		default:
			continue
		}
		b.WriteString(msg.Content)
		b.WriteString("\n\n---\n\n")
	}
	return b.String()
}

// formatRelativeTime returns a human-readable relative time string
func formatRelativeTime(t time.Time) string {
	dur := time.Since(t)
	switch {
	case dur < time.Minute:
		return "just now"
	case dur < time.Hour:
		return fmt.Sprintf("%dm ago", int(dur.Minutes()))
	case dur < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(dur.Hours()))
	case dur < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(dur.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}
