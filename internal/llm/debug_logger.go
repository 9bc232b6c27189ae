package llm

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DebugLogger logs rounds, attempts and events to JSONL files for debugging.
// Each session gets its own file based on the session ID.
type DebugLogger struct {
	baseDir   string
	sessionID string
	mu        sync.Mutex
	file      *os.File
	writer    *bufio.Writer
	closeOnce sync.Once
	closed    bool
}

// debugLogEntry is the common structure for all log entries
type debugLogEntry struct {
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
	Type      string `json:"type"`
}

type debugSessionStartEntry struct {
	debugLogEntry
	Model string   `json:"model"`
	Tier  string   `json:"tier,omitempty"`
	Tools []string `json:"tools,omitempty"`
}

// debugRoundEntry logs the prompt and attempt list for one round
type debugRoundEntry struct {
	debugLogEntry
	Round        int      `json:"round"`
	Model        string   `json:"model"`
	ToolsAllowed bool     `json:"tools_allowed"`
	Streaming    bool     `json:"streaming"`
	Attempts     []string `json:"attempts"`
	PromptLen    int      `json:"prompt_len"`
	Prompt       string   `json:"prompt"`
}

type debugAttemptEntry struct {
	debugLogEntry
	Round   int    `json:"round"`
	Attempt string `json:"attempt"`
	Error   string `json:"error"`
}

type debugEventEntry struct {
	debugLogEntry
	EventType string `json:"event_type"`
	Data      any    `json:"data,omitempty"`
}

type debugResultEntry struct {
	debugLogEntry
	Reply      string `json:"reply"`
	Mood       string `json:"mood,omitempty"`
	Rounds     int    `json:"rounds"`
	ToolEvents int    `json:"tool_events"`
}

// NewDebugLogger creates a new DebugLogger.
// The sessionID is used to create a unique filename for this session.
// Old log files (>7 days) are automatically cleaned up.
func NewDebugLogger(baseDir, sessionID string) (*DebugLogger, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}

	_ = CleanupOldLogs(baseDir, 7*24*time.Hour)

	filename := filepath.Join(baseDir, sessionID+".jsonl")
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	return &DebugLogger{
		baseDir:   baseDir,
		sessionID: sessionID,
		file:      file,
		writer:    bufio.NewWriter(file),
	}, nil
}

func (l *DebugLogger) header(kind string) debugLogEntry {
	return debugLogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: l.sessionID,
		Type:      kind,
	}
}

// LogSessionStart records the model and tool set a session runs with.
func (l *DebugLogger) LogSessionStart(model, tier string, tools []string) {
	if l == nil {
		return
	}
	l.writeEntry(debugSessionStartEntry{
		debugLogEntry: l.header("session_start"),
		Model:         model,
		Tier:          tier,
		Tools:         tools,
	})
	l.Flush()
}

// LogRound records the prompt and attempts planned for a round.
func (l *DebugLogger) LogRound(round int, model, prompt string, attempts []Attempt, toolsAllowed, streaming bool) {
	if l == nil {
		return
	}
	described := make([]string, len(attempts))
	for i, a := range attempts {
		described[i] = a.String()
	}
	l.writeEntry(debugRoundEntry{
		debugLogEntry: l.header("round"),
		Round:         round,
		Model:         model,
		ToolsAllowed:  toolsAllowed,
		Streaming:     streaming,
		Attempts:      described,
		PromptLen:     len(prompt),
		Prompt:        prompt,
	})
}

// LogAttemptFailed records a rejected attempt.
func (l *DebugLogger) LogAttemptFailed(round int, attempt Attempt, err error) {
	if l == nil || err == nil {
		return
	}
	l.writeEntry(debugAttemptEntry{
		debugLogEntry: l.header("attempt_failed"),
		Round:         round,
		Attempt:       attempt.String(),
		Error:         err.Error(),
	})
}

// LogEvent records a streamed event.
func (l *DebugLogger) LogEvent(event Event) {
	if l == nil {
		return
	}

	entry := debugEventEntry{
		debugLogEntry: l.header("event"),
		EventType:     string(event.Type),
	}

	switch event.Type {
	case EventTextDelta:
		entry.Data = map[string]string{"text": event.Text}
	case EventToolStart:
		if event.Call != nil {
			entry.Data = map[string]any{
				"id":           event.Call.ID,
				"name":         event.Call.Name,
				"display_name": event.DisplayName,
				"arguments":    event.Call.Arguments,
			}
		}
	case EventToolResult:
		if event.ToolEvent != nil {
			data := map[string]any{
				"tool_call_id": event.ToolEvent.CallID,
				"tool_name":    event.ToolEvent.Name,
				"status":       event.ToolEvent.Status,
			}
			if out, err := json.Marshal(event.ToolEvent.Output); err == nil {
				// Truncate long outputs to avoid bloating logs
				output := string(out)
				if len(output) > 500 {
					output = output[:500] + "...[truncated]"
				}
				data["output"] = output
			}
			entry.Data = data
		}
	case EventDone:
		if event.Result != nil {
			entry.Data = map[string]any{"reply_len": len(event.Result.Reply), "rounds": event.Result.Rounds}
		}
	}

	l.writeEntry(entry)

	// Flush on EventDone to ensure all events for a response are persisted
	// without flushing on every high-frequency event like text deltas
	if event.Type == EventDone {
		l.Flush()
	}
}

// LogResult records the finalized result of a turn.
func (l *DebugLogger) LogResult(result *ModelResult) {
	if l == nil || result == nil {
		return
	}
	l.writeEntry(debugResultEntry{
		debugLogEntry: l.header("result"),
		Reply:         result.Reply,
		Mood:          result.Mood,
		Rounds:        result.Rounds,
		ToolEvents:    len(result.ToolEvents),
	})
	l.Flush()
}

// Close closes the debug logger and flushes any buffered data.
// Close is idempotent and safe to call multiple times.
func (l *DebugLogger) Close() error {
	if l == nil {
		return nil
	}

	var closeErr error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		if l.file == nil {
			return
		}

		if err := l.writer.Flush(); err != nil {
			closeErr = err
		}
		if err := l.file.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
		l.closed = true
	})
	return closeErr
}

// writeEntry writes a single log entry as a JSON line.
// Does not flush the buffer - caller is responsible for flushing when appropriate.
func (l *DebugLogger) writeEntry(entry any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.writer.Write(data)
	l.writer.WriteString("\n")
}

// Flush flushes the buffered writer to disk.
func (l *DebugLogger) Flush() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.writer == nil {
		return
	}
	l.writer.Flush()
}

// CleanupOldLogs removes JSONL log files older than maxAge from the specified directory.
func CleanupOldLogs(baseDir string, maxAge time.Duration) error {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(baseDir, entry.Name()))
		}
	}
	return nil
}
