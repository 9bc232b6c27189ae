package llm

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readEntries(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var entries []map[string]any
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		entries = append(entries, m)
	}
	return entries
}

func TestDebugLoggerWritesTurn(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewDebugLogger(dir, "sess")
	if err != nil {
		t.Fatal(err)
	}

	m := &fakeModel{replies: []string{clockCall, "Noon."}}
	e := newTestEngine(m, clockExecutor(), EngineConfig{})
	e.SetDebugLogger(logger)
	logger.LogSessionStart(e.Model(), "balanced", []string{"clock.now"})

	if _, err := e.Run(t.Context(), TurnRequest{Plan: GenerationPlan{UserText: "time", ActiveTools: []string{"clock.now"}}}); err != nil {
		t.Fatal(err)
	}
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	entries := readEntries(t, filepath.Join(dir, "sess.jsonl"))
	var types []string
	for _, e := range entries {
		types = append(types, e["type"].(string))
		if e["session_id"] != "sess" {
			t.Errorf("entry without session id: %v", e)
		}
	}
	got := strings.Join(types, ",")
	if want := "session_start,round,event,event,round,result"; got != want {
		t.Errorf("entry types = %s, want %s", got, want)
	}
}

func TestDebugLoggerNilIsSafe(t *testing.T) {
	var l *DebugLogger
	l.LogEvent(Event{Type: EventDone})
	l.LogResult(&ModelResult{})
	l.Flush()
	if err := l.Close(); err != nil {
		t.Error(err)
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.jsonl")
	fresh := filepath.Join(dir, "fresh.jsonl")
	other := filepath.Join(dir, "keep.txt")
	for _, p := range []string{old, fresh, other} {
		if err := os.WriteFile(p, []byte("{}\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-30 * 24 * time.Hour)
	for _, p := range []string{old, other} {
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatal(err)
		}
	}

	if err := CleanupOldLogs(dir, 7*24*time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Errorf("old log kept")
	}
	for _, p := range []string{fresh, other} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s removed: %v", p, err)
		}
	}
}
