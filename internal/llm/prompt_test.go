package llm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/samsaffron/localagent/internal/toolcall"
)

func TestChatMLRender(t *testing.T) {
	turns := []Turn{
		SystemTurn("Be nice."),
		UserTurn("time?"),
		AssistantTurn("", []ToolCall{{ID: "c1", Name: "clock.now", Arguments: json.RawMessage(`{"timezone":"UTC"}`)}}),
		ToolTurn("c1", `{"time":"12:00"}`),
	}
	want := "<|im_start|>system\nBe nice.<|im_end|>\n" +
		"<|im_start|>user\ntime?<|im_end|>\n" +
		"<|im_start|>assistant\n<tool_call>{\"name\":\"clock.now\",\"arguments\":{\"timezone\":\"UTC\"}}</tool_call><|im_end|>\n" +
		"<|im_start|>tool\n{\"time\":\"12:00\"}<|im_end|>\n" +
		"<|im_start|>assistant\n"
	if got := (ChatMLRenderer{}).Render(turns); got != want {
		t.Errorf("Render =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderedCallsExtractBack(t *testing.T) {
	call := ToolCall{Name: "web.search.duckduckgo", Arguments: json.RawMessage(`{"query":"weather"}`)}
	res := toolcall.Extract(formatToolCall(call))
	if len(res.Calls) != 1 || res.Calls[0].Name != call.Name || string(res.Calls[0].Arguments) != `{"query":"weather"}` {
		t.Errorf("round trip = %+v", res.Calls)
	}
}

func TestToolInstructions(t *testing.T) {
	got := toolInstructions(toolcall.DefaultCatalog(), []string{"web.search.duckduckgo", "custom.tool"})
	for _, want := range []string{
		"<tool_call>",
		"- web.search.duckduckgo:",
		"query (string, required), max_results (integer)",
		"- custom.tool\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("instructions missing %q:\n%s", want, got)
		}
	}
}

func TestMoodInstructions(t *testing.T) {
	got := moodInstructions(toolcall.DefaultCatalog(), "curious")
	if !strings.Contains(got, "[[mood:VALUE]]") || !strings.Contains(got, "success") || !strings.HasSuffix(got, "Your current mood is curious.") {
		t.Errorf("moodInstructions = %q", got)
	}
}
