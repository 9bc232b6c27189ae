package debuglog

import "time"

// Entry is one parsed line of a debug log.
type Entry struct {
	Timestamp time.Time
	Type      string // session_start, round, attempt_failed, event, result
}

// RoundEntry is a planned generation round.
type RoundEntry struct {
	Entry
	Round        int
	Model        string
	ToolsAllowed bool
	Streaming    bool
	Attempts     []string
	PromptLen    int
	Prompt       string
}

// AttemptFailedEntry is an attempt the backend rejected.
type AttemptFailedEntry struct {
	Entry
	Round   int
	Attempt string
	Error   string
}

// EventEntry is a streamed event. Text deltas are not kept individually.
type EventEntry struct {
	Entry
	EventType string
	Name      string // tool name for tool events
	Status    string
	Arguments string
	Output    string
}

// ResultEntry is the outcome of one user turn.
type ResultEntry struct {
	Entry
	Reply      string
	Mood       string
	Rounds     int
	ToolEvents int
	Text       string // concatenated text deltas of the turn
}

// Session is a fully parsed debug log.
type Session struct {
	ID        string
	FilePath  string
	StartTime time.Time
	EndTime   time.Time
	Model     string
	Tier      string
	Tools     []string
	Turns     int
	Rounds    int
	Failures  int
	Entries   []any // RoundEntry, AttemptFailedEntry, EventEntry or ResultEntry
}

// SessionSummary is a lightweight session info for listing
type SessionSummary struct {
	ID        string
	FilePath  string
	StartTime time.Time
	Model     string
	Tier      string
	Turns     int
	Rounds    int
	ToolCalls int
	Failures  int
	FileSize  int64
}
