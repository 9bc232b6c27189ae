package toolcall

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/samsaffron/localagent/internal/repetition"
)

func assertCalls(t *testing.T, got []Call, want ...Call) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d calls %s, want %d %s", len(got), describe(got), len(want), describe(want))
	}
	for i := range want {
		if got[i].Name != want[i].Name {
			t.Errorf("call %d name = %q, want %q", i, got[i].Name, want[i].Name)
		}
		if g, w := string(got[i].Arguments), string(want[i].Arguments); g != w {
			t.Errorf("call %d arguments = %s, want %s", i, g, w)
		}
	}
}

func describe(calls []Call) string {
	data, _ := json.Marshal(calls)
	return string(data)
}

func call(name, args string) Call {
	return Call{Name: name, Arguments: json.RawMessage(args)}
}

func TestExtractTaggedCall(t *testing.T) {
	res := Extract(`<tool_call>{"name":"web.search.duckduckgo","args":{"query":"weather"}}</tool_call>`)
	if res.Visible != "" {
		t.Errorf("Visible = %q, want empty", res.Visible)
	}
	assertCalls(t, res.Calls, call("web.search.duckduckgo", `{"query":"weather"}`))
}

func TestExtractMoodDirective(t *testing.T) {
	res := Extract("All good. [[mood:success]] Done.")
	if res.Visible != "All good.  Done." {
		t.Errorf("Visible = %q", res.Visible)
	}
	if res.Mood != "success" {
		t.Errorf("Mood = %q, want success", res.Mood)
	}
	if len(res.Calls) != 0 {
		t.Errorf("unexpected calls %s", describe(res.Calls))
	}
}

func TestExtractMoodLastKnownWins(t *testing.T) {
	res := Extract("[[mood:happy]] Hmm. [[mood:thinking]] Still going. [[mood:banana]]")
	if res.Mood != "thinking" {
		t.Errorf("Mood = %q, want thinking", res.Mood)
	}
	if strings.Contains(res.Visible, "[[") {
		t.Errorf("directive leaked into visible text: %q", res.Visible)
	}
}

func TestExtractLeavesProseUntouched(t *testing.T) {
	inputs := []string{
		"The weather in Paris is mild today.",
		"Step one: mix flour.\n\nStep two: add water.",
		"Use braces like {this} in templates, or arrays like [1, 2].",
		"Here is some data: {\"name\": \"Alice\", \"age\": 31} for you.",
		"```python\nprint({\"name\": \"x\", \"arguments\": {}})\n```",
		"  padded prose with trailing space  ",
		"User: admin\nPassword rules are below.",
		"Here are the server details:\nSystem: Ubuntu 22.04 with 16 GB RAM\nUser: admin\nAction: reboot the server when the update finishes.",
		"Tool: a torque wrench\nUser: the night shift",
		"Send {\"query\": \"weather\"} to the search API.",
	}
	for _, in := range inputs {
		res := Extract(in)
		if len(res.Calls) != 0 {
			t.Errorf("Extract(%q) found calls %s", in, describe(res.Calls))
		}
		if want := repetition.Compact(in); res.Visible != want {
			t.Errorf("Extract(%q).Visible = %q, want %q", in, res.Visible, want)
		}
	}
}

func TestExtractRoundTripsCatalogTools(t *testing.T) {
	args := map[string]string{
		"web.search.duckduckgo": `{"query":"go modules","max_results":3}`,
		"web.fetch":             `{"url":"https://go.dev/doc"}`,
		"code.python":           `{"code":"print(1 + 1)","timeout":2.5}`,
		"fs.write_file":         `{"path":"notes.txt","content":"hello <world>","append":true}`,
		"fs.read_file":          `{"path":"notes.txt"}`,
		"fs.list_dir":           `{"path":"."}`,
		"clock.now":             `{"timezone":"UTC"}`,
	}
	for _, name := range DefaultCatalog().Names() {
		a, ok := args[name]
		if !ok {
			t.Errorf("no round-trip arguments for catalog tool %s", name)
			continue
		}
		text := `<tool_call>{"name":` + quoteJSON(name) + `,"arguments":` + a + `}</tool_call>`
		res := Extract(text)
		if len(res.Calls) != 1 {
			t.Errorf("%s: got %d calls", name, len(res.Calls))
			continue
		}
		if res.Calls[0].Name != name {
			t.Errorf("%s: name = %q", name, res.Calls[0].Name)
		}
		if canonicalJSON(res.Calls[0].Arguments) != canonicalJSON([]byte(a)) {
			t.Errorf("%s: arguments = %s, want %s", name, res.Calls[0].Arguments, a)
		}
	}
}

func TestExtractPreservesArgumentOrder(t *testing.T) {
	res := Extract(`<tool_call>{"name":"weather_lookup","arguments":{"zeta":1,"alpha":2,"mid":3}}</tool_call>`)
	assertCalls(t, res.Calls, call("weather_lookup", `{"zeta":1,"alpha":2,"mid":3}`))
}

func TestExtractNormalization(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Call
	}{
		{
			name: "exact alias",
			in:   `<tool_call>{"name":"ddg","arguments":{"query":"go"}}</tool_call>`,
			want: []Call{call("web.search.duckduckgo", `{"query":"go"}`)},
		},
		{
			name: "compact alias",
			in:   `<tool_call>{"name":"Web-Search","arguments":{"query":"go"}}</tool_call>`,
			want: []Call{call("web.search.duckduckgo", `{"query":"go"}`)},
		},
		{
			name: "argument aliases and coercion",
			in:   `<tool_call>{"name":"web_search","arguments":{"q":"go","limit":"5"}}</tool_call>`,
			want: []Call{call("web.search.duckduckgo", `{"query":"go","max_results":5}`)},
		},
		{
			name: "type hint",
			in:   `{"type":"search","query":"go releases"}`,
			want: []Call{call("web.search.duckduckgo", `{"query":"go releases"}`)},
		},
		{
			name: "argument shape inside call markup",
			in:   `<tool_call>{"url":"https://example.com"}</tool_call>`,
			want: []Call{call("web.fetch", `{"url":"https://example.com"}`)},
		},
		{
			name: "unknown name falls back to argument shape",
			in:   `<tool_call>{"name":"lookup_online","arguments":{"query":"weather"}}</tool_call>`,
			want: []Call{call("web.search.duckduckgo", `{"query":"weather"}`)},
		},
		{
			name: "nameless payload on its own line",
			in:   `{"query":"weather"}`,
			want: []Call{call("web.search.duckduckgo", `{"query":"weather"}`)},
		},
		{
			name: "nameless multi-line payload on its own lines",
			in:   "Fetching.\n{\n  \"url\": \"https://go.dev\"\n}",
			want: []Call{call("web.fetch", `{"url":"https://go.dev"}`)},
		},
		{
			name: "shape prefers the most specific tool",
			in:   `<tool_call>{"path":"a.txt","content":"hi"}</tool_call>`,
			want: []Call{call("fs.write_file", `{"path":"a.txt","content":"hi"}`)},
		},
		{
			name: "missing required argument drops the call",
			in:   `<tool_call>{"name":"web.fetch","arguments":{"timeout":3}}</tool_call>`,
			want: nil,
		},
		{
			name: "blank required argument drops the call",
			in:   `<tool_call>{"name":"web_search","arguments":{"query":"  "}}</tool_call>`,
			want: nil,
		},
		{
			name: "unknown tool passes through",
			in:   `<tool_call>{"name":"calendar.add","arguments":{"title":"Lunch","when":"noon"}}</tool_call>`,
			want: []Call{call("calendar.add", `{"title":"Lunch","when":"noon"}`)},
		},
		{
			name: "string arguments holding json",
			in:   `<tool_call>{"name":"web.fetch","arguments":"{\"url\": \"https://go.dev\"}"}</tool_call>`,
			want: []Call{call("web.fetch", `{"url":"https://go.dev"}`)},
		},
		{
			name: "plain string argument fills the single required key",
			in:   `<tool_call>{"action":"search","action_input":"local weather"}</tool_call>`,
			want: []Call{call("web.search.duckduckgo", `{"query":"local weather"}`)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertCalls(t, Extract(tt.in).Calls, tt.want...)
		})
	}
}

func TestExtractShapes(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		wantVisible string
		want        []Call
	}{
		{
			name:        "prose around a tagged call",
			in:          "Let me check that.\n<tool_call>\n{\"name\": \"web.fetch\", \"arguments\": {\"url\": \"https://go.dev\"}}\n</tool_call>",
			wantVisible: "Let me check that.",
			want:        []Call{call("web.fetch", `{"url":"https://go.dev"}`)},
		},
		{
			name:        "unclosed trailing tag with truncated payload",
			in:          "Looking.\n<tool_call>{\"name\":\"web.fetch\",\"arguments\":{\"url\":\"https://go.dev\"}",
			wantVisible: "Looking.",
			want:        []Call{call("web.fetch", `{"url":"https://go.dev"}`)},
		},
		{
			name:        "nested tool_calls wrapper",
			in:          "<tool_calls>\n<tool_call>{\"name\":\"fs.read_file\",\"arguments\":{\"path\":\"a\"}}</tool_call>\n<tool_call>{\"name\":\"fs.read_file\",\"arguments\":{\"path\":\"b\"}}</tool_call>\n</tool_calls>",
			wantVisible: "",
			want:        []Call{call("fs.read_file", `{"path":"a"}`), call("fs.read_file", `{"path":"b"}`)},
		},
		{
			name:        "invoke markup",
			in:          `<function_calls><invoke name="web.fetch"><parameter name="url">https://example.com</parameter></invoke></function_calls>`,
			wantVisible: "",
			want:        []Call{call("web.fetch", `{"url":"https://example.com"}`)},
		},
		{
			name:        "fenced json call",
			in:          "Sure.\n```json\n{\"name\": \"clock.now\", \"arguments\": {}}\n```\nOne moment.",
			wantVisible: "Sure.\n\nOne moment.",
			want:        []Call{call("clock.now", `{}`)},
		},
		{
			name:        "tool fence with nameless payload",
			in:          "```tool_code\n{\"code\": \"print(2)\"}\n```",
			wantVisible: "",
			want:        []Call{call("code.python", `{"code":"print(2)"}`)},
		},
		{
			name:        "literal expression payload",
			in:          `<tool_call>{'name': 'code.python', 'arguments': {'code': 'print(1)', 'timeout': None}}</tool_call>`,
			wantVisible: "",
			want:        []Call{call("code.python", `{"code":"print(1)","timeout":null}`)},
		},
		{
			name:        "vendor shorthand",
			in:          `[TOOL_CALLS] web_search [ARGS] {"query": "go 1.25"}`,
			wantVisible: "",
			want:        []Call{call("web.search.duckduckgo", `{"query":"go 1.25"}`)},
		},
		{
			name:        "openai style tool_calls line",
			in:          `{"tool_calls":[{"id":"c1","type":"function","function":{"name":"web_search","arguments":"{\"query\":\"x\"}"}}]}`,
			wantVisible: "",
			want:        []Call{call("web.search.duckduckgo", `{"query":"x"}`)},
		},
		{
			name:        "labelled list line",
			in:          "1. tool: `{\"name\": \"fs.list_dir\", \"arguments\": {\"path\": \"src\"}}`",
			wantVisible: "",
			want:        []Call{call("fs.list_dir", `{"path":"src"}`)},
		},
		{
			name:        "multi-line payload in plain text",
			in:          "Checking.\n{\n  \"name\": \"fs.read_file\",\n  \"arguments\": {\"path\": \"go.mod\"}\n}\nDone soon.",
			wantVisible: "Checking.\nDone soon.",
			want:        []Call{call("fs.read_file", `{"path":"go.mod"}`)},
		},
		{
			name:        "role sectioned transcript",
			in:          "assistant: I will search.\ntool: {\"name\": \"web_search\", \"arguments\": {\"query\": \"gophers\"}}\nuser: thanks\nsystem: be brief",
			wantVisible: "I will search.",
			want:        []Call{call("web.search.duckduckgo", `{"query":"gophers"}`)},
		},
		{
			name:        "chatml transcript",
			in:          "Answer first.<|im_end|>\n<|im_start|>user\nanother question",
			wantVisible: "Answer first.",
			want:        nil,
		},
		{
			name:        "duplicate calls collapse",
			in:          `<tool_call>{"name":"web_search","arguments":{"query":"a","max_results":2}}</tool_call><tool_call>{"name":"search","arguments":{"max_results":2,"query":"a"}}</tool_call>`,
			wantVisible: "",
			want:        []Call{call("web.search.duckduckgo", `{"query":"a","max_results":2}`)},
		},
		{
			name:        "unparseable tagged block keeps its text",
			in:          "<tool_call>I am not sure which tool to use.</tool_call>",
			wantVisible: "I am not sure which tool to use.",
			want:        nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Extract(tt.in)
			if res.Visible != tt.wantVisible {
				t.Errorf("Visible = %q, want %q", res.Visible, tt.wantVisible)
			}
			assertCalls(t, res.Calls, tt.want...)
		})
	}
}
