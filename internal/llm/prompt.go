package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/samsaffron/localagent/internal/toolcall"
)

// PromptRenderer turns conversation turns into a completion prompt that ends
// where the assistant's reply should begin.
type PromptRenderer interface {
	Render(turns []Turn) string
}

// ChatMLRenderer renders turns with <|im_start|>/<|im_end|> markers.
type ChatMLRenderer struct{}

func (ChatMLRenderer) Render(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString("<|im_start|>")
		b.WriteString(string(t.Role))
		b.WriteString("\n")
		b.WriteString(t.Content)
		for i, call := range t.ToolCalls {
			if t.Content != "" || i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(formatToolCall(call))
		}
		b.WriteString("<|im_end|>\n")
	}
	b.WriteString("<|im_start|>assistant\n")
	return b.String()
}

func formatToolCall(call ToolCall) string {
	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	payload, err := json.Marshal(struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}{call.Name, args})
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"name":%q,"arguments":{}}`, call.Name))
	}
	return "<tool_call>" + string(payload) + "</tool_call>"
}

// toolInstructions describes the call syntax and the active tools.
func toolInstructions(cat *toolcall.Catalog, active []string) string {
	var b strings.Builder
	b.WriteString("You can use tools. To call one, reply with nothing but:\n")
	b.WriteString(`<tool_call>{"name": "<tool>", "arguments": {...}}</tool_call>`)
	b.WriteString("\nAvailable tools:\n")
	for _, name := range active {
		spec, ok := cat.Lookup(name)
		if !ok {
			fmt.Fprintf(&b, "- %s\n", name)
			continue
		}
		fmt.Fprintf(&b, "- %s: %s", spec.Name, strings.TrimSpace(spec.Description))
		if args := describeArgs(spec); args != "" {
			fmt.Fprintf(&b, " Arguments: %s.", args)
		}
		b.WriteString("\n")
	}
	b.WriteString("Call a tool only when it is needed. Otherwise answer directly.")
	return b.String()
}

func describeArgs(spec toolcall.ToolSpec) string {
	required := make(map[string]bool, len(spec.Required))
	for _, r := range spec.Required {
		required[r] = true
	}
	names := make([]string, 0, len(spec.Args))
	for name := range spec.Args {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if required[names[i]] != required[names[j]] {
			return required[names[i]]
		}
		return names[i] < names[j]
	})
	parts := make([]string, 0, len(names))
	for _, name := range names {
		p := name + " (" + spec.Args[name]
		if required[name] {
			p += ", required"
		}
		parts = append(parts, p+")")
	}
	return strings.Join(parts, ", ")
}

func moodInstructions(cat *toolcall.Catalog, current string) string {
	moods := cat.Moods()
	if len(moods) == 0 {
		return ""
	}
	s := "You may add [[mood:VALUE]] to set your mood, where VALUE is one of: " + strings.Join(moods, ", ") + "."
	if current = strings.TrimSpace(current); current != "" {
		s += " Your current mood is " + current + "."
	}
	return s
}
