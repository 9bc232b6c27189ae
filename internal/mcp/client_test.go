package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestStdioTransportEnv(t *testing.T) {
	t.Setenv("LOCALAGENT_MCP_VAR", "parent")

	tests := []struct {
		name    string
		env     map[string]string
		inherit bool
		want    string
	}{
		{"no env inherits implicitly", nil, false, ""},
		{"empty env inherits implicitly", map[string]string{}, false, ""},
		{"configured env keeps parent", map[string]string{"NOTES_DIR": "/tmp/notes"}, true, "NOTES_DIR=/tmp/notes"},
		{"configured env wins", map[string]string{"LOCALAGENT_MCP_VAR": "child"}, true, "LOCALAGENT_MCP_VAR=child"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, ok := stdioTransport(context.Background(), ServerConfig{Command: "notes-mcp", Env: tt.env}).(*sdkmcp.CommandTransport)
			if !ok {
				t.Fatal("expected sdkmcp.CommandTransport")
			}
			env := ct.Command.Env
			if !tt.inherit {
				if env != nil {
					t.Errorf("Env = %v, want nil", env)
				}
				return
			}
			if !slices.ContainsFunc(env, func(e string) bool { return strings.HasPrefix(e, "PATH=") }) {
				t.Error("parent PATH not inherited")
			}
			// exec.Cmd keeps the last duplicate
			last := ""
			key, _, _ := strings.Cut(tt.want, "=")
			for _, e := range env {
				if strings.HasPrefix(e, key+"=") {
					last = e
				}
			}
			if last != tt.want {
				t.Errorf("effective %s = %q, want %q", key, last, tt.want)
			}
		})
	}
}

func TestHTTPTransportHeaders(t *testing.T) {
	t.Setenv("TEST_MCP_TOKEN", "secret")
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	ct, ok := httpTransport(ServerConfig{
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer $TEST_MCP_TOKEN"},
	}).(*sdkmcp.StreamableClientTransport)
	if !ok {
		t.Fatal("expected sdkmcp.StreamableClientTransport")
	}
	if ct.Endpoint != srv.URL || ct.HTTPClient == nil {
		t.Fatalf("transport = %+v", ct)
	}

	resp, err := ct.HTTPClient.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got != "Bearer secret" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestAsObject(t *testing.T) {
	if got := asObject(nil); len(got) != 0 {
		t.Errorf("nil = %v", got)
	}
	if got := asObject([]string{"a"}); len(got) != 0 {
		t.Errorf("array = %v", got)
	}
	type schema struct {
		Type string `json:"type"`
	}
	if got := asObject(schema{Type: "object"}); got["type"] != "object" {
		t.Errorf("struct = %v", got)
	}
}

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		ok   bool
	}{
		{"stdio", ServerConfig{Command: "npx"}, true},
		{"http", ServerConfig{URL: "http://localhost:3000/mcp"}, true},
		{"http without url", ServerConfig{Type: "http"}, false},
		{"both", ServerConfig{URL: "http://x", Command: "npx"}, false},
		{"empty", ServerConfig{}, false},
	}
	for _, tt := range tests {
		if err := tt.cfg.Validate(); (err == nil) != tt.ok {
			t.Errorf("%s: Validate() = %v", tt.name, err)
		}
	}
	if ValidateServerName("my.server") == nil || ValidateServerName("files") != nil {
		t.Error("ValidateServerName")
	}
}
