package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/samsaffron/localagent/internal/llm"
)

// WriteFileTool implements fs.write_file.
type WriteFileTool struct {
	workspace *Workspace
}

// NewWriteFileTool creates a new WriteFileTool.
func NewWriteFileTool(ws *Workspace) *WriteFileTool {
	return &WriteFileTool{workspace: ws}
}

// WriteFileArgs are the arguments for fs.write_file.
type WriteFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Append  bool   `json:"append,omitempty"`
}

func (t *WriteFileTool) Name() string { return WriteFileToolName }

func (t *WriteFileTool) Execute(_ context.Context, args json.RawMessage, _ llm.RuntimeContext) (map[string]any, error) {
	var a WriteFileArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	absPath, err := t.workspace.Resolve(a.Path, true)
	if err != nil {
		return nil, err
	}

	isNew := true
	existingMode := os.FileMode(0o644)
	var existing []byte
	if info, err := os.Stat(absPath); err == nil {
		if info.IsDir() {
			return nil, NewToolErrorf(ErrInvalidParams, "%s is a directory", a.Path)
		}
		existingMode = info.Mode().Perm()
		isNew = false
		if a.Append {
			if existing, err = os.ReadFile(absPath); err != nil {
				return nil, NewToolErrorf(ErrExecutionFailed, "read error: %v", err)
			}
		}
	}

	content := a.Content
	if a.Append {
		content = string(existing) + content
	}
	if err := writeAtomic(absPath, []byte(content), existingMode); err != nil {
		return nil, err
	}

	return map[string]any{
		"path":    t.workspace.Rel(absPath),
		"created": isNew,
		"bytes":   len(content),
		"lines":   countLines(content),
	}, nil
}

// writeAtomic writes to a uniquely-named temp file in the target
// directory, then renames it over the destination.
func writeAtomic(absPath string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return NewToolErrorf(ErrExecutionFailed, "failed to create directory: %v", err)
	}

	tf, err := os.CreateTemp(dir, "."+filepath.Base(absPath)+".*.tmp")
	if err != nil {
		return NewToolErrorf(ErrExecutionFailed, "failed to create temp file: %v", err)
	}
	tempPath := tf.Name()

	if _, err := tf.Write(data); err != nil {
		tf.Close()
		os.Remove(tempPath)
		return NewToolErrorf(ErrExecutionFailed, "failed to write temp file: %v", err)
	}
	if err := tf.Sync(); err != nil {
		tf.Close()
		os.Remove(tempPath)
		return NewToolErrorf(ErrExecutionFailed, "failed to sync temp file: %v", err)
	}
	if err := tf.Close(); err != nil {
		os.Remove(tempPath)
		return NewToolErrorf(ErrExecutionFailed, "failed to close temp file: %v", err)
	}
	// CreateTemp uses 0600.
	if err := os.Chmod(tempPath, mode); err != nil {
		os.Remove(tempPath)
		return NewToolErrorf(ErrExecutionFailed, "failed to set file permissions: %v", err)
	}
	if err := os.Rename(tempPath, absPath); err != nil {
		os.Remove(tempPath)
		return NewToolErrorf(ErrExecutionFailed, "failed to rename temp file: %v", err)
	}
	return nil
}
