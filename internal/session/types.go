package session

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/samsaffron/localagent/internal/llm"
)

// SessionStatus represents the current state of a session.
type SessionStatus string

const (
	StatusActive      SessionStatus = "active"      // Session is open
	StatusComplete    SessionStatus = "complete"    // Last turn finished normally
	StatusError       SessionStatus = "error"       // Last turn ended with an error
	StatusInterrupted SessionStatus = "interrupted" // Last turn was cancelled by the user
)

// Session represents a conversation stored in the database.
type Session struct {
	ID        string    `json:"id"`
	Number    int64     `json:"number,omitempty"` // Sequential session number (1, 2, 3...)
	Name      string    `json:"name,omitempty"`
	Summary   string    `json:"summary,omitempty"` // First user message
	Model     string    `json:"model"`
	Tier      string    `json:"tier,omitempty"`
	CWD       string    `json:"cwd,omitempty"` // Working directory at session start
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Archived  bool      `json:"archived,omitempty"`

	// Session settings (restored on resume unless overridden)
	Tools string `json:"tools,omitempty"` // Enabled tool patterns (comma-separated)

	// Session metrics
	UserTurns int           `json:"user_turns,omitempty"` // Number of user messages
	Rounds    int           `json:"rounds,omitempty"`     // Number of generation rounds
	ToolCalls int           `json:"tool_calls,omitempty"` // Total tool executions
	Status    SessionStatus `json:"status,omitempty"`
	Tags      string        `json:"tags,omitempty"` // Comma-separated tags
}

// Message is one stored conversation turn.
type Message struct {
	ID         int64          `json:"id"`
	SessionID  string         `json:"session_id"`
	Role       llm.Role       `json:"role"`
	Content    string         `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	Mood       string         `json:"mood,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	Sequence   int            `json:"sequence"`
}

// ToolEventRecord is a persisted tool execution.
type ToolEventRecord struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"session_id"`
	CallID    string         `json:"call_id"`
	Name      string         `json:"name"`
	Status    llm.ToolStatus `json:"status"`
	Arguments string         `json:"arguments,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// SessionSummary is a lightweight view of a session for listing.
type SessionSummary struct {
	ID           string        `json:"id"`
	Number       int64         `json:"number,omitempty"`
	Name         string        `json:"name,omitempty"`
	Summary      string        `json:"summary,omitempty"`
	Model        string        `json:"model"`
	MessageCount int           `json:"message_count"`
	UserTurns    int           `json:"user_turns,omitempty"`
	Rounds       int           `json:"rounds,omitempty"`
	ToolCalls    int           `json:"tool_calls,omitempty"`
	Status       SessionStatus `json:"status,omitempty"`
	Tags         string        `json:"tags,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ListOptions configures session listing.
type ListOptions struct {
	Model    string        // Filter by model
	Status   SessionStatus // Filter by status
	Tag      string        // Filter by tag
	Limit    int           // Max results (0 = use default)
	Offset   int           // Pagination offset
	Archived bool          // Include archived sessions
}

// SearchResult represents a search match.
type SearchResult struct {
	SessionID     string    `json:"session_id"`
	SessionNumber int64     `json:"session_number"`
	MessageID     int64     `json:"message_id"`
	SessionName   string    `json:"session_name"`
	Summary       string    `json:"summary"`
	Snippet       string    `json:"snippet"` // Matched text snippet
	Model         string    `json:"model"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewID returns a new random session ID.
func NewID() string {
	return uuid.NewString()
}

// NewMessage creates a Message from an llm.Turn. A negative sequence is
// allocated by the store.
func NewMessage(sessionID string, turn llm.Turn, sequence int) *Message {
	return &Message{
		SessionID:  sessionID,
		Role:       turn.Role,
		Content:    turn.Content,
		ToolCallID: turn.ToolCallID,
		ToolCalls:  turn.ToolCalls,
		CreatedAt:  time.Now(),
		Sequence:   sequence,
	}
}

// ToTurn converts a Message back to an llm.Turn.
func (m *Message) ToTurn() llm.Turn {
	return llm.Turn{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
		ToolCalls:  m.ToolCalls,
	}
}

// ToolCallsJSON returns the tool calls serialized for storage, or "" when empty.
func (m *Message) ToolCallsJSON() (string, error) {
	if len(m.ToolCalls) == 0 {
		return "", nil
	}
	data, err := json.Marshal(m.ToolCalls)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetToolCallsFromJSON deserializes stored tool calls.
func (m *Message) SetToolCallsFromJSON(data string) error {
	if data == "" {
		m.ToolCalls = nil
		return nil
	}
	return json.Unmarshal([]byte(data), &m.ToolCalls)
}

// TruncateSummary returns the first line of content, truncated to 100 chars.
func TruncateSummary(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "\n"); idx != -1 {
		content = content[:idx]
	}
	if r := []rune(content); len(r) > 100 {
		content = string(r[:97]) + "..."
	}
	return content
}
