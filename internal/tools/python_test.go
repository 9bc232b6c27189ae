package tools

import (
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
}

func TestPythonTool(t *testing.T) {
	requirePython(t)
	tool := NewPythonTool("python3", 10*time.Second, t.TempDir())

	out, err := run(t, tool, `{"code":"print(6 * 7)"}`)
	if err != nil {
		t.Fatal(err)
	}
	if out["stdout"] != "42\n" || out["exit_code"] != 0 {
		t.Errorf("out = %v", out)
	}
}

func TestPythonTool_ExitCode(t *testing.T) {
	requirePython(t)
	tool := NewPythonTool("python3", 10*time.Second, t.TempDir())

	out, err := run(t, tool, `{"code":"import sys\nsys.stderr.write('boom')\nsys.exit(3)"}`)
	if err != nil {
		t.Fatal(err)
	}
	if out["exit_code"] != 3 || !strings.Contains(out["stderr"].(string), "boom") {
		t.Errorf("out = %v", out)
	}
}

func TestPythonTool_Timeout(t *testing.T) {
	requirePython(t)
	tool := NewPythonTool("python3", 10*time.Second, t.TempDir())

	_, err := run(t, tool, `{"code":"import time\ntime.sleep(5)","timeout":0.2}`)
	wantToolError(t, err, ErrTimeout)
}

func TestPythonTool_RequiresCode(t *testing.T) {
	_, err := run(t, NewPythonTool("", 0, ""), `{"code":"   "}`)
	wantToolError(t, err, ErrInvalidParams)
}

func TestTruncateOutput(t *testing.T) {
	long := strings.Repeat("x", maxPythonOutputSize+10)
	if got := truncateOutput(long); !strings.HasSuffix(got, "[output truncated]") || len(got) > maxPythonOutputSize+20 {
		t.Errorf("truncateOutput length = %d", len(got))
	}
}
