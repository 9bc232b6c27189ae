package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

const defaultToolOutputLimit = 4000

// RuntimeContext identifies where a tool call was made.
type RuntimeContext struct {
	SessionID string
	CallID    string
	Round     int
}

// ToolExecutor runs tools on behalf of the engine.
type ToolExecutor interface {
	HasTool(name string) bool
	Execute(ctx context.Context, name string, args json.RawMessage, rc RuntimeContext) (map[string]any, error)
}

// TurnObserver receives tool events and results for persistence.
// Implementations must not block for long; they run on the turn's goroutine.
type TurnObserver interface {
	OnToolStart(ctx context.Context, sessionID string, call ToolCall)
	OnToolResult(ctx context.Context, sessionID string, ev ToolEvent)
	OnResult(ctx context.Context, sessionID string, result *ModelResult)
}

// toolOutputContent renders a tool event as the content of a tool turn:
// canonical JSON with sorted keys, cut to limit bytes on a rune boundary.
func toolOutputContent(ev ToolEvent, limit int) string {
	payload := map[string]any{
		"name":   ev.Name,
		"status": ev.Status,
		"output": ev.Output,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"name":%q,"status":%q,"output":{"error":"unserializable tool output"}}`, ev.Name, ev.Status))
	}
	return truncateUTF8(string(data), limit)
}

func truncateUTF8(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	const marker = "...[truncated]"
	cut := limit - len(marker)
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + marker
}

// errorOutput builds the output mapping recorded for a failed tool call.
func errorOutput(err error) map[string]any {
	out := map[string]any{"error": err.Error()}
	var kinded interface{ Kind() string }
	if errors.As(err, &kinded) && kinded.Kind() != "" {
		out["kind"] = kinded.Kind()
	}
	return out
}
