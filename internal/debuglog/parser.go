package debuglog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ListSessions returns summaries of all sessions in the debug log directory,
// sorted by start time (most recent first).
func ListSessions(dir string) ([]SessionSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var sessions []SessionSummary
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		summary, err := parseSessionSummary(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue // Skip unreadable files
		}
		sessions = append(sessions, summary)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
	return sessions, nil
}

func parseSessionSummary(filePath string) (SessionSummary, error) {
	sess, err := ParseSession(filePath)
	if err != nil {
		return SessionSummary{}, err
	}
	summary := SessionSummary{
		ID:        sess.ID,
		FilePath:  filePath,
		StartTime: sess.StartTime,
		Model:     sess.Model,
		Tier:      sess.Tier,
		Turns:     sess.Turns,
		Rounds:    sess.Rounds,
		Failures:  sess.Failures,
	}
	for _, e := range sess.Entries {
		if ev, ok := e.(EventEntry); ok && ev.EventType == "tool_result" {
			summary.ToolCalls++
		}
	}
	if info, err := os.Stat(filePath); err == nil {
		summary.FileSize = info.Size()
	}
	return summary, nil
}

// ParseSession parses a full session file.
func ParseSession(filePath string) (*Session, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	sess, err := parse(file)
	if err != nil {
		return nil, err
	}
	sess.ID = strings.TrimSuffix(filepath.Base(filePath), ".jsonl")
	sess.FilePath = filePath
	return sess, nil
}

func parse(r io.Reader) (*Session, error) {
	sess := &Session{}

	scanner := bufio.NewScanner(r)
	// Round entries carry whole prompts
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var text strings.Builder
	for scanner.Scan() {
		line := scanner.Bytes()
		if !gjson.ValidBytes(line) {
			continue
		}
		v := gjson.ParseBytes(line)
		ts, err := time.Parse(time.RFC3339Nano, v.Get("timestamp").String())
		if err != nil {
			continue
		}
		if sess.StartTime.IsZero() || ts.Before(sess.StartTime) {
			sess.StartTime = ts
		}
		if ts.After(sess.EndTime) {
			sess.EndTime = ts
		}

		base := Entry{Timestamp: ts, Type: v.Get("type").String()}
		switch base.Type {
		case "session_start":
			sess.Model = v.Get("model").String()
			sess.Tier = v.Get("tier").String()
			sess.Tools = nil
			for _, t := range v.Get("tools").Array() {
				sess.Tools = append(sess.Tools, t.String())
			}

		case "round":
			var attempts []string
			for _, a := range v.Get("attempts").Array() {
				attempts = append(attempts, a.String())
			}
			sess.Rounds++
			if sess.Model == "" {
				sess.Model = v.Get("model").String()
			}
			sess.Entries = append(sess.Entries, RoundEntry{
				Entry:        base,
				Round:        int(v.Get("round").Int()),
				Model:        v.Get("model").String(),
				ToolsAllowed: v.Get("tools_allowed").Bool(),
				Streaming:    v.Get("streaming").Bool(),
				Attempts:     attempts,
				PromptLen:    int(v.Get("prompt_len").Int()),
				Prompt:       v.Get("prompt").String(),
			})

		case "attempt_failed":
			sess.Failures++
			sess.Entries = append(sess.Entries, AttemptFailedEntry{
				Entry:   base,
				Round:   int(v.Get("round").Int()),
				Attempt: v.Get("attempt").String(),
				Error:   v.Get("error").String(),
			})

		case "event":
			evType := v.Get("event_type").String()
			data := v.Get("data")
			switch evType {
			case "text_delta":
				text.WriteString(data.Get("text").String())
				continue
			case "tool_start":
				sess.Entries = append(sess.Entries, EventEntry{
					Entry:     base,
					EventType: evType,
					Name:      data.Get("name").String(),
					Arguments: data.Get("arguments").Raw,
				})
			case "tool_result":
				sess.Entries = append(sess.Entries, EventEntry{
					Entry:     base,
					EventType: evType,
					Name:      data.Get("tool_name").String(),
					Status:    data.Get("status").String(),
					Output:    data.Get("output").String(),
				})
			}

		case "result":
			sess.Turns++
			sess.Entries = append(sess.Entries, ResultEntry{
				Entry:      base,
				Reply:      v.Get("reply").String(),
				Mood:       v.Get("mood").String(),
				Rounds:     int(v.Get("rounds").Int()),
				ToolEvents: int(v.Get("tool_events").Int()),
				Text:       text.String(),
			})
			text.Reset()
		}
	}
	return sess, scanner.Err()
}

// ResolveSession resolves a 1-based index (1 = most recent), a session ID or
// an ID prefix. An empty identifier selects the most recent session.
func ResolveSession(dir, identifier string) (*SessionSummary, error) {
	sessions, err := ListSessions(dir)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("no debug logs in %s", dir)
	}
	if identifier == "" {
		return &sessions[0], nil
	}

	if num, err := strconv.Atoi(identifier); err == nil && num > 0 && num <= len(sessions) {
		return &sessions[num-1], nil
	}

	var match *SessionSummary
	for i := range sessions {
		s := &sessions[i]
		if s.ID == identifier {
			return s, nil
		}
		if strings.HasPrefix(s.ID, identifier) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous debug log %q", identifier)
			}
			match = s
		}
	}
	if match == nil {
		return nil, fmt.Errorf("debug log %q not found", identifier)
	}
	return match, nil
}
