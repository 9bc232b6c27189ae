package tools

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/samsaffron/localagent/internal/llm"
)

// ClockTool implements clock.now.
type ClockTool struct {
	now func() time.Time
}

// NewClockTool creates a ClockTool. A nil now uses time.Now.
func NewClockTool(now func() time.Time) *ClockTool {
	if now == nil {
		now = time.Now
	}
	return &ClockTool{now: now}
}

// ClockArgs are the arguments for clock.now.
type ClockArgs struct {
	Timezone string `json:"timezone,omitempty"`
}

func (t *ClockTool) Name() string { return ClockToolName }

func (t *ClockTool) Execute(_ context.Context, args json.RawMessage, _ llm.RuntimeContext) (map[string]any, error) {
	var a ClockArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	loc := time.Local
	if tz := strings.TrimSpace(a.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, NewToolErrorf(ErrInvalidParams, "unknown timezone %q", tz)
		}
		loc = l
	}

	now := t.now().In(loc)
	return map[string]any{
		"time":     now.Format(time.RFC3339),
		"date":     now.Format("2006-01-02"),
		"weekday":  now.Weekday().String(),
		"timezone": loc.String(),
		"unix":     now.Unix(),
	}, nil
}
