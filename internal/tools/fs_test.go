package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samsaffron/localagent/internal/llm"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := NewWorkspace(t.TempDir(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return ws
}

func run(t *testing.T, tool Tool, args string) (map[string]any, error) {
	t.Helper()
	return tool.Execute(context.Background(), json.RawMessage(args), llm.RuntimeContext{})
}

func wantToolError(t *testing.T, err error, typ ToolErrorType) {
	t.Helper()
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected ToolError %s, got %v", typ, err)
	}
	if toolErr.Type != typ {
		t.Errorf("error type = %s, want %s (%s)", toolErr.Type, typ, toolErr.Message)
	}
}

func TestWorkspace_Resolve(t *testing.T) {
	ws := newTestWorkspace(t)

	got, err := ws.Resolve("notes/a.txt", true)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(ws.Root(), "notes", "a.txt"); got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}

	_, err = ws.Resolve("../escape.txt", false)
	wantToolError(t, err, ErrPathNotInWorkspace)

	_, err = ws.Resolve("", false)
	wantToolError(t, err, ErrInvalidParams)
}

func TestWorkspace_SymlinkEscape(t *testing.T) {
	ws := newTestWorkspace(t)
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(ws.Root(), "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	_, err := ws.Resolve("link/secret.txt", false)
	wantToolError(t, err, ErrSymlinkEscape)
}

func TestWorkspace_ReadDirs(t *testing.T) {
	extra := t.TempDir()
	ws, err := NewWorkspace(t.TempDir(), []string{extra}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ws.Resolve(filepath.Join(extra, "x.txt"), false); err != nil {
		t.Errorf("read dir should be readable: %v", err)
	}
	_, err = ws.Resolve(filepath.Join(extra, "x.txt"), true)
	wantToolError(t, err, ErrPathNotInWorkspace)
}

func TestWriteThenReadFile(t *testing.T) {
	ws := newTestWorkspace(t)
	write := NewWriteFileTool(ws)
	read := NewReadFileTool(ws, 0)

	out, err := run(t, write, `{"path":"dir/hello.txt","content":"hello\nworld\n"}`)
	if err != nil {
		t.Fatal(err)
	}
	if out["created"] != true || out["lines"] != 2 || out["path"] != "dir/hello.txt" {
		t.Errorf("write output = %v", out)
	}

	if _, err := run(t, write, `{"path":"dir/hello.txt","content":"again\n","append":true}`); err != nil {
		t.Fatal(err)
	}

	out, err = run(t, read, `{"path":"dir/hello.txt"}`)
	if err != nil {
		t.Fatal(err)
	}
	if out["content"] != "hello\nworld\nagain\n" || out["truncated"] != false {
		t.Errorf("read output = %v", out)
	}
}

func TestWriteFile_PreservesMode(t *testing.T) {
	ws := newTestWorkspace(t)
	path := filepath.Join(ws.Root(), "script.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, NewWriteFileTool(ws), `{"path":"script.sh","content":"#!/bin/sh\necho hi\n"}`); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", info.Mode().Perm())
	}
}

func TestReadFile_Errors(t *testing.T) {
	ws := newTestWorkspace(t)
	read := NewReadFileTool(ws, 0)

	_, err := run(t, read, `{"path":"missing.txt"}`)
	wantToolError(t, err, ErrFileNotFound)

	if err := os.WriteFile(filepath.Join(ws.Root(), "bin.dat"), []byte{0x7f, 0x00, 0x01, 0x02, 0x00}, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = run(t, read, `{"path":"bin.dat"}`)
	wantToolError(t, err, ErrBinaryFile)

	_, err = run(t, read, `{"path":`)
	wantToolError(t, err, ErrInvalidParams)
}

func TestReadFile_Truncates(t *testing.T) {
	ws := newTestWorkspace(t)
	content := strings.Repeat("é", 100)
	if err := os.WriteFile(filepath.Join(ws.Root(), "long.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, NewReadFileTool(ws, 1024), `{"path":"long.txt","max_bytes":11}`)
	if err != nil {
		t.Fatal(err)
	}
	if out["truncated"] != true || out["content"] != strings.Repeat("é", 5) {
		t.Errorf("read output = %v", out)
	}
}

func TestListDir(t *testing.T) {
	ws := newTestWorkspace(t)
	for _, p := range []string{"a.go", "b.txt", "sub/c.go", "sub/deep/d.go", ".hidden/e.go"} {
		full := filepath.Join(ws.Root(), p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	list := NewListDirTool(ws)

	paths := func(out map[string]any) []string {
		var ps []string
		for _, e := range out["entries"].([]any) {
			ps = append(ps, e.(map[string]any)["path"].(string))
		}
		return ps
	}

	tests := []struct {
		name string
		args string
		want string
	}{
		{"top level", `{}`, "a.go,b.txt,sub"},
		{"recursive", `{"recursive":true}`, "a.go,b.txt,sub,sub/c.go,sub/deep,sub/deep/d.go"},
		{"pattern", `{"pattern":"**/*.go"}`, "a.go,sub/c.go,sub/deep/d.go"},
		{"subdir", `{"path":"sub"}`, "c.go,deep"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, list, tt.args)
			if err != nil {
				t.Fatal(err)
			}
			if got := strings.Join(paths(out), ","); got != tt.want {
				t.Errorf("entries = %s, want %s", got, tt.want)
			}
		})
	}

	_, err := run(t, list, `{"path":"a.go"}`)
	wantToolError(t, err, ErrInvalidParams)
	_, err = run(t, list, `{"path":"nope"}`)
	wantToolError(t, err, ErrFileNotFound)
}
