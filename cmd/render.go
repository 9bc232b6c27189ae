package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/samsaffron/localagent/internal/llm"
	"github.com/samsaffron/localagent/internal/session"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	toolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

const maxArgsPreview = 80

// turnPrinter writes streamed replies and tool status lines, keeping status
// lines on lines of their own.
type turnPrinter struct {
	w       io.Writer
	midLine bool
}

func newTurnPrinter(w io.Writer) *turnPrinter {
	return &turnPrinter{w: w}
}

func (p *turnPrinter) Banner(sess *session.Session, model string, active []string) {
	label := "new session"
	if sess.Number > 0 {
		label = fmt.Sprintf("session #%d", sess.Number)
	}
	tools := "none"
	if len(active) > 0 {
		tools = strings.Join(active, ", ")
	}
	fmt.Fprintln(p.w, mutedStyle.Render(fmt.Sprintf("%s · %s · tools: %s", model, label, tools)))
}

func (p *turnPrinter) Prompt() {
	fmt.Fprint(p.w, promptStyle.Render("❯")+" ")
}

func (p *turnPrinter) Text(s string) {
	if s == "" {
		return
	}
	fmt.Fprint(p.w, s)
	p.midLine = !strings.HasSuffix(s, "\n")
}

func (p *turnPrinter) ToolStart(call *llm.ToolCall, displayName string) {
	p.breakLine()
	name := displayName
	if name == "" {
		name = call.Name
	}
	line := toolStyle.Render("⚙ " + name)
	if args := previewArgs(call.Arguments); args != "" {
		line += " " + mutedStyle.Render(args)
	}
	fmt.Fprintln(p.w, line)
}

func (p *turnPrinter) ToolResult(ev *llm.ToolEvent) {
	p.breakLine()
	if ev.Status == llm.ToolStatusOK {
		fmt.Fprintln(p.w, okStyle.Render("✓ "+ev.Name))
		return
	}
	msg, _ := ev.Output["error"].(string)
	fmt.Fprintln(p.w, errorStyle.Render("✗ "+ev.Name)+" "+mutedStyle.Render(msg))
}

func (p *turnPrinter) Mood(mood string) {
	p.breakLine()
	fmt.Fprintln(p.w, mutedStyle.Render("mood: "+mood))
}

func (p *turnPrinter) EndReply() {
	p.breakLine()
}

func (p *turnPrinter) Cancelled() {
	p.breakLine()
	fmt.Fprintln(p.w, mutedStyle.Render("(interrupted)"))
}

func (p *turnPrinter) Error(err error) {
	p.breakLine()
	fmt.Fprintln(p.w, errorStyle.Render("Error: ")+err.Error())
}

func (p *turnPrinter) Newline() {
	fmt.Fprintln(p.w)
}

func (p *turnPrinter) breakLine() {
	if p.midLine {
		fmt.Fprintln(p.w)
		p.midLine = false
	}
}

// previewArgs renders call arguments on one line, cut to maxArgsPreview runes.
func previewArgs(args json.RawMessage) string {
	s := strings.TrimSpace(string(args))
	if s == "" || s == "{}" || s == "null" {
		return ""
	}
	var compact map[string]any
	if err := json.Unmarshal(args, &compact); err == nil {
		if b, err := json.Marshal(compact); err == nil {
			s = string(b)
		}
	}
	if r := []rune(s); len(r) > maxArgsPreview {
		s = string(r[:maxArgsPreview-1]) + "…"
	}
	return s
}
