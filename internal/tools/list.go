package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/samsaffron/localagent/internal/llm"
)

const maxListResults = 200

// ListDirTool implements fs.list_dir.
type ListDirTool struct {
	workspace *Workspace
}

// NewListDirTool creates a new ListDirTool.
func NewListDirTool(ws *Workspace) *ListDirTool {
	return &ListDirTool{workspace: ws}
}

// ListDirArgs are the arguments for fs.list_dir.
type ListDirArgs struct {
	Path      string `json:"path,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	Recursive bool   `json:"recursive,omitempty"`
}

// DirEntry is one entry in an fs.list_dir result.
type DirEntry struct {
	Path    string    `json:"path"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

func (t *ListDirTool) Name() string { return ListDirToolName }

func (t *ListDirTool) Execute(ctx context.Context, args json.RawMessage, _ llm.RuntimeContext) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	var a ListDirArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		a.Path = "."
	}
	pattern := a.Pattern
	if pattern == "" {
		pattern = "*"
		if a.Recursive {
			pattern = "**"
		}
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, NewToolErrorf(ErrInvalidParams, "invalid pattern %q", pattern)
	}

	base, err := t.workspace.Resolve(a.Path, false)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewToolError(ErrFileNotFound, a.Path)
		}
		return nil, NewToolErrorf(ErrExecutionFailed, "stat error: %v", err)
	}
	if !info.IsDir() {
		return nil, NewToolErrorf(ErrInvalidParams, "%s is not a directory", a.Path)
	}

	var entries []DirEntry
	truncated := false
	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil || path == base {
			return nil
		}

		// Skip hidden entries
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if matched, _ := doublestar.Match(pattern, rel); matched {
			fi, err := d.Info()
			if err != nil {
				return nil
			}
			entries = append(entries, DirEntry{Path: rel, IsDir: d.IsDir(), Size: fi.Size(), ModTime: fi.ModTime()})
			if len(entries) >= maxListResults {
				truncated = true
				return filepath.SkipAll
			}
		}

		if d.IsDir() && !a.Recursive && !strings.Contains(pattern, "**") && !strings.Contains(pattern, "/") {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, NewToolErrorf(ErrExecutionFailed, "walk error: %v", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	list := make([]any, 0, len(entries))
	for _, e := range entries {
		item := map[string]any{"path": e.Path, "type": "file", "size": e.Size, "modified": e.ModTime.Format(time.RFC3339)}
		if e.IsDir {
			item["type"] = "dir"
			delete(item, "size")
		}
		list = append(list, item)
	}
	return map[string]any{
		"path":      t.workspace.Rel(base),
		"entries":   list,
		"count":     len(entries),
		"truncated": truncated,
	}, nil
}
