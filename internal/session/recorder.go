package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/samsaffron/localagent/internal/llm"
)

// Recorder persists one session's turns as they happen. It implements
// llm.TurnObserver so the engine reports tool events and results to it.
type Recorder struct {
	store   Store
	session *Session

	mu      sync.Mutex
	pending map[string]llm.ToolCall
	started time.Time
}

var _ llm.TurnObserver = (*Recorder)(nil)

// NewRecorder creates a recorder for an existing session.
func NewRecorder(store Store, sess *Session) *Recorder {
	return &Recorder{
		store:   store,
		session: sess,
		pending: make(map[string]llm.ToolCall),
	}
}

// Session returns the recorded session.
func (r *Recorder) Session() *Session {
	return r.session
}

// RecordUserTurn stores the user's message and marks the session current.
// The first user message becomes the session summary.
func (r *Recorder) RecordUserTurn(ctx context.Context, text string) error {
	r.mu.Lock()
	r.started = time.Now()
	r.mu.Unlock()

	id := r.session.ID
	if err := r.store.AddMessage(ctx, id, NewMessage(id, llm.UserTurn(text), -1)); err != nil {
		return err
	}
	if err := r.store.IncrementUserTurns(ctx, id); err != nil {
		return err
	}
	r.session.UserTurns++
	if r.session.Summary == "" {
		r.session.Summary = TruncateSummary(text)
		r.session.Status = StatusActive
		if err := r.store.Update(ctx, r.session); err != nil {
			return err
		}
	}
	return r.store.SetCurrent(ctx, id)
}

func (r *Recorder) OnToolStart(ctx context.Context, sessionID string, call llm.ToolCall) {
	r.mu.Lock()
	r.pending[call.ID] = call
	r.mu.Unlock()
}

func (r *Recorder) OnToolResult(ctx context.Context, sessionID string, ev llm.ToolEvent) {
	r.mu.Lock()
	call, ok := r.pending[ev.CallID]
	delete(r.pending, ev.CallID)
	r.mu.Unlock()

	rec := &ToolEventRecord{
		CallID: ev.CallID,
		Name:   ev.Name,
		Status: ev.Status,
		Output: ev.Output,
	}
	if ok {
		rec.Arguments = string(call.Arguments)
	}
	_ = r.store.AddToolEvent(ctx, r.sessionID(sessionID), rec)
}

func (r *Recorder) OnResult(ctx context.Context, sessionID string, result *llm.ModelResult) {
	id := r.sessionID(sessionID)
	msg := NewMessage(id, llm.AssistantTurn(result.Reply, nil), -1)
	msg.Mood = result.Mood
	r.mu.Lock()
	if !r.started.IsZero() {
		msg.DurationMs = time.Since(r.started).Milliseconds()
	}
	r.mu.Unlock()

	_ = r.store.AddMessage(ctx, id, msg)
	_ = r.store.UpdateMetrics(ctx, id, result.Rounds, len(result.ToolEvents))
	_ = r.store.UpdateStatus(ctx, id, StatusComplete)
	r.session.Rounds += result.Rounds
	r.session.ToolCalls += len(result.ToolEvents)
	r.session.Status = StatusComplete
}

// Fail records a turn that ended without a result. A cancelled turn keeps
// its partial reply so a resumed session shows what the user saw.
func (r *Recorder) Fail(ctx context.Context, err error) {
	ctx = context.WithoutCancel(ctx)
	id := r.session.ID
	status := StatusError
	var ce *llm.CancelledError
	if errors.As(err, &ce) {
		status = StatusInterrupted
		if ce.Partial != "" {
			_ = r.store.AddMessage(ctx, id, NewMessage(id, llm.AssistantTurn(ce.Partial, nil), -1))
		}
	}
	_ = r.store.UpdateStatus(ctx, id, status)
	r.session.Status = status
}

func (r *Recorder) sessionID(fromEngine string) string {
	if fromEngine != "" {
		return fromEngine
	}
	return r.session.ID
}

// LoadHistory returns the stored user and assistant turns of a session in
// order. Tool traffic is not replayed; it lives in the tool event log.
func LoadHistory(ctx context.Context, store Store, sessionID string) ([]llm.Turn, error) {
	msgs, err := store.GetMessages(ctx, sessionID, 0, 0)
	if err != nil {
		return nil, err
	}
	turns := make([]llm.Turn, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			continue
		}
		t := m.ToTurn()
		t.ToolCalls = nil
		turns = append(turns, t)
	}
	return turns, nil
}
