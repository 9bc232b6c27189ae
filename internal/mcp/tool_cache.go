package mcp

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// The cache file keeps one object per server:
//
//	{"notes": {"updated": "...", "tools": [...]}}
func toolCachePath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "localagent", "mcp-tools.json"), nil
}

// serverKey escapes a server name for use as a gjson/sjson path segment.
func serverKey(name string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(name)
}

// CacheTools records the tools a server advertised at startup, so listing
// and completion can show them without spawning the server again.
func CacheTools(serverName string, tools []ToolSpec) {
	path, err := toolCachePath()
	if err != nil {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil || !gjson.ValidBytes(data) {
		data = []byte(`{}`)
	}

	key := serverKey(serverName)
	data, err = sjson.SetBytes(data, key+".updated", time.Now().UTC().Format(time.RFC3339))
	if err == nil {
		data, err = sjson.SetBytes(data, key+".tools", tools)
	}
	if err != nil {
		slog.Debug("cannot encode MCP tool cache", "server", serverName, "error", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		slog.Debug("cannot create MCP tool cache dir", "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Debug("cannot write MCP tool cache", "error", err)
	}
}

// LoadCachedTools returns the last recorded tools for a server, or nil.
func LoadCachedTools(serverName string) []ToolSpec {
	path, err := toolCachePath()
	if err != nil {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	raw := gjson.GetBytes(data, serverKey(serverName)+".tools")
	if !raw.IsArray() {
		return nil
	}
	var tools []ToolSpec
	if err := json.Unmarshal([]byte(raw.Raw), &tools); err != nil {
		return nil
	}
	return tools
}
