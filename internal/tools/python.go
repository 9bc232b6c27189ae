package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/samsaffron/localagent/internal/llm"
)

const (
	maxPythonTimeout    = 120 * time.Second
	maxPythonOutputSize = 32 * 1024
)

// PythonTool implements code.python by running the snippet in a
// separate interpreter process.
type PythonTool struct {
	command string
	timeout time.Duration
	dir     string
}

// NewPythonTool creates a new PythonTool.
func NewPythonTool(command string, timeout time.Duration, dir string) *PythonTool {
	if command == "" {
		command = "python3"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PythonTool{command: command, timeout: timeout, dir: dir}
}

// PythonArgs are the arguments for code.python.
type PythonArgs struct {
	Code    string  `json:"code"`
	Timeout float64 `json:"timeout,omitempty"` // seconds
}

func (t *PythonTool) Name() string { return PythonToolName }

func (t *PythonTool) Execute(ctx context.Context, args json.RawMessage, _ llm.RuntimeContext) (map[string]any, error) {
	var a PythonArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.Code) == "" {
		return nil, NewToolError(ErrInvalidParams, "code is required")
	}

	timeout := t.timeout
	if a.Timeout > 0 {
		timeout = time.Duration(a.Timeout * float64(time.Second))
	}
	timeout = min(timeout, maxPythonTimeout)

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fields := strings.Fields(t.command)
	if len(fields) == 0 {
		fields = []string{"python3"}
	}
	cmd := exec.CommandContext(execCtx, fields[0], append(fields[1:], "-")...)
	cmd.Dir = t.dir
	cmd.Stdin = strings.NewReader(a.Code)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return nil, NewToolErrorf(ErrTimeout, "python timed out after %s", timeout)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, NewToolErrorf(ErrExecutionFailed, "python error: %v", err)
		}
		exitCode = exitErr.ExitCode()
	}

	out := map[string]any{
		"stdout":    truncateOutput(stdout.String()),
		"exit_code": exitCode,
	}
	if stderr.Len() > 0 {
		out["stderr"] = truncateOutput(stderr.String())
	}
	return out, nil
}

func truncateOutput(s string) string {
	if len(s) <= maxPythonOutputSize {
		return s
	}
	return trimPartialRune(s[:maxPythonOutputSize]) + "\n[output truncated]"
}
