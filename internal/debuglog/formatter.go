package debuglog

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	toolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// FormatOptions controls how session output is formatted
type FormatOptions struct {
	ShowPrompts   bool // Print full prompts instead of their length
	ShowTimestamp bool // Show timestamp for each entry
}

// FormatSessionList formats a list of sessions as a table
func FormatSessionList(w io.Writer, sessions []SessionSummary) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No debug logs found.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Enable debug logging with debug.enabled: true in config.yaml")
		return
	}

	fmt.Fprintf(w, "%s\n\n", mutedStyle.Render("Debug logs"))
	for i, s := range sessions {
		failMark := " "
		if s.Failures > 0 {
			failMark = errorStyle.Render("!")
		}
		model := s.Model
		if s.Tier != "" {
			model += " / " + s.Tier
		}
		if r := []rune(model); len(r) > 32 {
			model = string(r[:29]) + "..."
		}
		fmt.Fprintf(w, "%s%2d. %s  %-32s  %d turns, %d rounds, %d tools\n",
			failMark,
			i+1,
			mutedStyle.Render(s.StartTime.Local().Format("Jan 02 15:04")),
			model,
			s.Turns, s.Rounds, s.ToolCalls,
		)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, mutedStyle.Render("Use `localagent debug-log show 1` to view a log"))
}

// FormatSession formats a full session for display
func FormatSession(w io.Writer, session *Session, opts FormatOptions) {
	fmt.Fprintf(w, "%s %s\n", highlightStyle.Render("Session:"), session.ID)
	fmt.Fprintf(w, "%s %s\n", mutedStyle.Render("Model:"), session.Model)
	if session.Tier != "" {
		fmt.Fprintf(w, "%s %s\n", mutedStyle.Render("Tier:"), session.Tier)
	}
	if len(session.Tools) > 0 {
		fmt.Fprintf(w, "%s %s\n", mutedStyle.Render("Tools:"), strings.Join(session.Tools, ", "))
	}
	fmt.Fprintf(w, "%s %s\n", mutedStyle.Render("Started:"), session.StartTime.Local().Format("2006-01-02 15:04:05"))
	if session.EndTime.After(session.StartTime) {
		fmt.Fprintf(w, "%s %s\n", mutedStyle.Render("Duration:"), session.EndTime.Sub(session.StartTime).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "%s %d turns, %d rounds\n", mutedStyle.Render("Activity:"), session.Turns, session.Rounds)
	if session.Failures > 0 {
		fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("%d rejected attempts", session.Failures)))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, mutedStyle.Render(strings.Repeat("─", 78)))

	for _, entry := range session.Entries {
		switch e := entry.(type) {
		case RoundEntry:
			fmt.Fprintln(w)
			fmt.Fprintf(w, "%s%s round %d  %s\n", stamp(e.Entry, opts), highlightStyle.Render("▶"), e.Round, mutedStyle.Render(roundFlags(e)))
			for _, a := range e.Attempts {
				fmt.Fprintf(w, "    %s\n", mutedStyle.Render(a))
			}
			if opts.ShowPrompts {
				fmt.Fprintln(w, indent(e.Prompt, "    │ "))
			} else {
				fmt.Fprintf(w, "    %s\n", mutedStyle.Render(fmt.Sprintf("prompt: %d bytes", e.PromptLen)))
			}
		case AttemptFailedEntry:
			fmt.Fprintf(w, "%s  %s %s: %s\n", stamp(e.Entry, opts), errorStyle.Render("✗"), e.Attempt, e.Error)
		case EventEntry:
			switch e.EventType {
			case "tool_start":
				fmt.Fprintf(w, "%s  %s %s\n", stamp(e.Entry, opts), toolStyle.Render("⚙ "+e.Name), mutedStyle.Render(e.Arguments))
			case "tool_result":
				mark := "✓"
				if e.Status != "ok" {
					mark = errorStyle.Render("✗")
				}
				fmt.Fprintf(w, "%s  %s %s %s\n", stamp(e.Entry, opts), mark, e.Name, mutedStyle.Render(e.Output))
			}
		case ResultEntry:
			fmt.Fprintln(w)
			label := fmt.Sprintf("reply (%d rounds, %d tools)", e.Rounds, e.ToolEvents)
			if e.Mood != "" {
				label += " mood=" + e.Mood
			}
			fmt.Fprintf(w, "%s%s\n", stamp(e.Entry, opts), highlightStyle.Render(label))
			fmt.Fprintln(w, indent(e.Reply, "    "))
			fmt.Fprintln(w, mutedStyle.Render(strings.Repeat("─", 78)))
		}
	}
}

func roundFlags(e RoundEntry) string {
	var flags []string
	if e.ToolsAllowed {
		flags = append(flags, "tools")
	}
	if e.Streaming {
		flags = append(flags, "stream")
	}
	return strings.Join(flags, ",")
}

func stamp(e Entry, opts FormatOptions) string {
	if !opts.ShowTimestamp {
		return ""
	}
	return mutedStyle.Render(e.Timestamp.Local().Format("15:04:05.000")) + " "
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
