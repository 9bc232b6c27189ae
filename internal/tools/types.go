// Package tools provides the in-process tool executor for localagent.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samsaffron/localagent/internal/llm"
)

// Tool is a single locally executed tool.
type Tool interface {
	// Name is the canonical catalog name, e.g. "fs.read_file".
	Name() string
	Execute(ctx context.Context, args json.RawMessage, rc llm.RuntimeContext) (map[string]any, error)
}

// ToolErrorType provides structured errors the model can react to.
type ToolErrorType string

const (
	ErrFileNotFound       ToolErrorType = "FILE_NOT_FOUND"
	ErrInvalidParams      ToolErrorType = "INVALID_PARAMS"
	ErrPathNotInWorkspace ToolErrorType = "PATH_NOT_IN_WORKSPACE"
	ErrExecutionFailed    ToolErrorType = "EXECUTION_FAILED"
	ErrPermissionDenied   ToolErrorType = "PERMISSION_DENIED"
	ErrBinaryFile         ToolErrorType = "BINARY_FILE"
	ErrFileTooLarge       ToolErrorType = "FILE_TOO_LARGE"
	ErrTimeout            ToolErrorType = "TIMEOUT"
	ErrSymlinkEscape      ToolErrorType = "SYMLINK_ESCAPE"
	ErrUnsupportedFormat  ToolErrorType = "UNSUPPORTED_FORMAT"
	ErrNetwork            ToolErrorType = "NETWORK"
	ErrUnknownTool        ToolErrorType = "UNKNOWN_TOOL"
)

// ToolError provides structured error information. The engine records
// Kind() next to the message in the tool event output.
type ToolError struct {
	Type    ToolErrorType `json:"type"`
	Message string        `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Kind returns the error type as a plain string.
func (e *ToolError) Kind() string {
	return string(e.Type)
}

// NewToolError creates a new ToolError.
func NewToolError(errType ToolErrorType, message string) *ToolError {
	return &ToolError{Type: errType, Message: message}
}

// NewToolErrorf creates a new ToolError with formatted message.
func NewToolErrorf(errType ToolErrorType, format string, args ...any) *ToolError {
	return &ToolError{Type: errType, Message: fmt.Sprintf(format, args...)}
}

// Tool names
const (
	ClockToolName     = "clock.now"
	ReadFileToolName  = "fs.read_file"
	WriteFileToolName = "fs.write_file"
	ListDirToolName   = "fs.list_dir"
	FetchToolName     = "web.fetch"
	SearchToolName    = "web.search.duckduckgo"
	PythonToolName    = "code.python"
)

// BuiltinToolNames returns the names of every built-in tool.
func BuiltinToolNames() []string {
	return []string{
		ClockToolName,
		ReadFileToolName,
		WriteFileToolName,
		ListDirToolName,
		FetchToolName,
		SearchToolName,
		PythonToolName,
	}
}

// decodeArgs unmarshals tool arguments, treating empty input as {}.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return NewToolError(ErrInvalidParams, err.Error())
	}
	return nil
}
