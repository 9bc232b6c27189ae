package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/samsaffron/localagent/internal/llm"
)

// ReadFileTool implements fs.read_file.
type ReadFileTool struct {
	workspace *Workspace
	maxBytes  int64
}

// NewReadFileTool creates a new ReadFileTool.
func NewReadFileTool(ws *Workspace, maxBytes int64) *ReadFileTool {
	return &ReadFileTool{workspace: ws, maxBytes: maxBytes}
}

// ReadFileArgs are the arguments for fs.read_file.
type ReadFileArgs struct {
	Path     string `json:"path"`
	MaxBytes int64  `json:"max_bytes,omitempty"`
}

func (t *ReadFileTool) Name() string { return ReadFileToolName }

func (t *ReadFileTool) Execute(_ context.Context, args json.RawMessage, _ llm.RuntimeContext) (map[string]any, error) {
	var a ReadFileArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	path, err := t.workspace.Resolve(a.Path, false)
	if err != nil {
		return nil, err
	}

	limit := t.maxBytes
	if a.MaxBytes > 0 && (limit <= 0 || a.MaxBytes < limit) {
		limit = a.MaxBytes
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewToolError(ErrFileNotFound, a.Path)
		}
		return nil, NewToolErrorf(ErrExecutionFailed, "read error: %v", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, NewToolErrorf(ErrExecutionFailed, "read error: %v", err)
	}
	if info.IsDir() {
		return nil, NewToolErrorf(ErrInvalidParams, "%s is a directory", a.Path)
	}

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, NewToolErrorf(ErrExecutionFailed, "read error: %v", err)
	}
	if isBinaryContent(data) {
		return nil, NewToolErrorf(ErrBinaryFile, "%s appears to be a binary file", a.Path)
	}

	truncated := limit > 0 && info.Size() > limit
	content := string(data)
	if truncated {
		content = trimPartialRune(content)
	}

	return map[string]any{
		"path":      t.workspace.Rel(path),
		"content":   content,
		"size":      info.Size(),
		"lines":     countLines(content),
		"truncated": truncated,
	}, nil
}

// isBinaryContent detects if content is binary using http.DetectContentType.
func isBinaryContent(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}

	contentType := http.DetectContentType(sample)
	if strings.HasPrefix(contentType, "text/") {
		return false
	}
	if strings.Contains(contentType, "json") || strings.Contains(contentType, "xml") {
		return false
	}

	for _, b := range sample {
		if b == 0 {
			return true
		}
	}
	return false
}

// trimPartialRune drops a multi-byte rune cut short by a byte limit.
func trimPartialRune(s string) string {
	for i := len(s) - 1; i >= 0 && i >= len(s)-utf8.UTFMax; i-- {
		if utf8.RuneStart(s[i]) {
			if !utf8.FullRuneInString(s[i:]) {
				return s[:i]
			}
			break
		}
	}
	return s
}

// countLines counts the number of lines in a string.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	count := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		count++
	}
	return count
}
