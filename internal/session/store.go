package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists sessions, their turns and their tool events.
//
// The chat loop writes through Create, AddMessage, AddToolEvent and the
// counters; the sessions command reads with List, Search, GetMessages and
// GetToolEvents. SetCurrent and GetCurrent back "chat --resume" without an
// argument.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	GetByPrefix(ctx context.Context, prefix string) (*Session, error)
	Update(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error

	List(ctx context.Context, opts ListOptions) ([]SessionSummary, error)
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)

	AddMessage(ctx context.Context, sessionID string, msg *Message) error
	GetMessages(ctx context.Context, sessionID string, limit, offset int) ([]Message, error)
	AddToolEvent(ctx context.Context, sessionID string, ev *ToolEventRecord) error
	GetToolEvents(ctx context.Context, sessionID string) ([]ToolEventRecord, error)

	UpdateMetrics(ctx context.Context, id string, rounds, toolCalls int) error
	UpdateStatus(ctx context.Context, id string, status SessionStatus) error
	IncrementUserTurns(ctx context.Context, id string) error

	SetCurrent(ctx context.Context, sessionID string) error
	GetCurrent(ctx context.Context) (*Session, error)

	Close() error
}

// Config configures session storage.
type Config struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`         // default: $XDG_DATA_HOME/localagent/sessions.db
	MaxAgeDays int    `mapstructure:"max_age_days"` // 0 keeps sessions forever
	MaxCount   int    `mapstructure:"max_count"`    // 0 keeps every session
}

// DefaultConfig enables persistence with no retention limits.
func DefaultConfig() Config {
	return Config{Enabled: true}
}

// GetDataDir returns $XDG_DATA_HOME/localagent, falling back to
// ~/.local/share/localagent.
func GetDataDir() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "localagent"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "localagent"), nil
}

// GetDBPath returns the default sessions database path.
func GetDBPath() (string, error) {
	dir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions.db"), nil
}

// NewStore opens the configured store. With persistence disabled the store
// is in memory, so a chat still tracks its own turns but nothing reaches disk.
func NewStore(cfg Config) (Store, error) {
	if !cfg.Enabled {
		return NewMemoryStore()
	}
	return NewSQLiteStore(cfg)
}
