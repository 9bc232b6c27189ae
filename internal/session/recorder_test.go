package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/samsaffron/localagent/internal/llm"
)

func TestRecorderRecordsTurn(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sess := createSession(t, store)
	rec := NewRecorder(store, sess)

	if err := rec.RecordUserTurn(ctx, "what time is it?\nplease"); err != nil {
		t.Fatal(err)
	}
	call := llm.ToolCall{ID: "call_1", Name: "clock.now", Arguments: json.RawMessage(`{}`)}
	rec.OnToolStart(ctx, sess.ID, call)
	rec.OnToolResult(ctx, sess.ID, llm.ToolEvent{CallID: "call_1", Name: "clock.now", Status: llm.ToolStatusOK, Output: map[string]any{"time": "12:00"}})
	rec.OnResult(ctx, sess.ID, &llm.ModelResult{
		Reply:      "It is noon.",
		Mood:       "happy",
		Rounds:     2,
		ToolEvents: []llm.ToolEvent{{CallID: "call_1"}},
	})

	loaded, _ := store.Get(ctx, sess.ID)
	if loaded.Summary != "what time is it?" || loaded.UserTurns != 1 || loaded.Rounds != 2 || loaded.ToolCalls != 1 {
		t.Errorf("session = %+v", loaded)
	}
	if loaded.Status != StatusComplete {
		t.Errorf("status = %s", loaded.Status)
	}
	if cur, _ := store.GetCurrent(ctx); cur == nil || cur.ID != sess.ID {
		t.Error("session should be current")
	}

	events, _ := store.GetToolEvents(ctx, sess.ID)
	if len(events) != 1 || events[0].Arguments != `{}` {
		t.Errorf("tool events = %+v", events)
	}

	msgs, _ := store.GetMessages(ctx, sess.ID, 0, 0)
	if len(msgs) != 2 || msgs[1].Mood != "happy" || msgs[1].Content != "It is noon." {
		t.Errorf("messages = %+v", msgs)
	}

	history, err := LoadHistory(ctx, store, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Role != llm.RoleUser || history[1].Content != "It is noon." {
		t.Errorf("history = %+v", history)
	}
}

func TestRecorderFail(t *testing.T) {
	store := newTestStore(t)
	sess := createSession(t, store)
	rec := NewRecorder(store, sess)

	ctx, cancel := context.WithCancel(context.Background())
	if err := rec.RecordUserTurn(ctx, "tell me a story"); err != nil {
		t.Fatal(err)
	}
	cancel()
	rec.Fail(ctx, &llm.CancelledError{Partial: "Once upon"})

	loaded, _ := store.Get(context.Background(), sess.ID)
	if loaded.Status != StatusInterrupted {
		t.Errorf("status = %s", loaded.Status)
	}
	history, _ := LoadHistory(context.Background(), store, sess.ID)
	if len(history) != 2 || history[1].Content != "Once upon" {
		t.Errorf("history = %+v", history)
	}

	rec.Fail(context.Background(), errors.New("backend down"))
	loaded, _ = store.Get(context.Background(), sess.ID)
	if loaded.Status != StatusError {
		t.Errorf("status = %s", loaded.Status)
	}
}
