package llm

import (
	"encoding/json"
)

// Role identifies a conversation turn role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one entry of conversation history.
// A tool turn always carries the ID of the call it answers.
type Turn struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a structured invocation produced by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolStatus reports how a tool execution ended.
type ToolStatus string

const (
	ToolStatusOK    ToolStatus = "ok"
	ToolStatusError ToolStatus = "error"
)

// ToolEvent records the outcome of one tool call.
type ToolEvent struct {
	CallID string         `json:"call_id"`
	Name   string         `json:"name"`
	Status ToolStatus     `json:"status"`
	Output map[string]any `json:"output,omitempty"`
}

// ModelResult is the finalized outcome of one user turn.
type ModelResult struct {
	Reply      string      `json:"reply"`
	Mood       string      `json:"mood,omitempty"`
	ToolEvents []ToolEvent `json:"tool_events,omitempty"`
	Model      string      `json:"model"`
	Rounds     int         `json:"rounds"`
}

// EventType identifies the kind of streamed event.
type EventType string

const (
	EventTextDelta  EventType = "text_delta"
	EventToolStart  EventType = "tool_start"
	EventToolResult EventType = "tool_result"
	EventDone       EventType = "done"
)

// Event is one item of a streamed turn.
type Event struct {
	Type EventType

	// EventTextDelta
	Text string

	// EventToolStart
	Call        *ToolCall
	DisplayName string

	// EventToolResult
	ToolEvent *ToolEvent

	// EventDone
	Result *ModelResult
}

// TurnRequest is the input for one user turn.
type TurnRequest struct {
	SessionID string
	Plan      GenerationPlan
	History   []Turn
}

// SystemTurn creates a system turn.
func SystemTurn(text string) Turn {
	return Turn{Role: RoleSystem, Content: text}
}

// UserTurn creates a user turn.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Content: text}
}

// AssistantTurn creates an assistant turn with optional tool calls.
func AssistantTurn(text string, calls []ToolCall) Turn {
	return Turn{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// ToolTurn creates a tool result turn answering callID.
func ToolTurn(callID, content string) Turn {
	return Turn{Role: RoleTool, Content: content, ToolCallID: callID}
}
