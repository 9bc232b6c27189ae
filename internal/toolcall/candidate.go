package toolcall

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// rawCall is a call-shaped payload before name and argument normalization.
type rawCall struct {
	name string
	hint string
	args gjson.Result
	// argText holds arguments given as a plain, non-JSON string.
	argText string
	// explicit is set when the payload used a dedicated arguments key, a
	// function wrapper, or sat inside a calls container.
	explicit bool
}

// span is a parsed region of candidate text together with the calls found in it.
type span struct {
	start, end int
	calls      []rawCall
}

const maxNesting = 8

var (
	containerKeys = []string{"tool_calls", "calls", "actions", "tools", "function_calls"}
	nameKeys      = []string{"name", "tool", "tool_name", "function", "action", "recipient_name"}
	argKeys       = []string{"arguments", "args", "parameters", "params", "input", "action_input", "tool_input"}
	metaKeys      = []string{"type", "kind", "id", "call_id", "tool_call_id", "index"}
	genericTypes  = map[string]bool{"function": true, "tool": true, "tool_use": true, "tool_call": true, "function_call": true}
)

var (
	reListPrefix  = regexp.MustCompile(`^\s*(?:(?:[-*+•>]|\d{1,3}[.)])\s+)+`)
	reLabelPrefix = regexp.MustCompile(`(?i)^\s*(?:\[(?:json|tool|tool_call|tool_calls|function|function_call|call)\]|(?:tool|tool_call|tool_calls|tool_code|function|function_call|call|action|json)\s*:)\s*`)
	reShorthand   = regexp.MustCompile(`\[TOOL_CALLS\]\s*([A-Za-z_][A-Za-z0-9_.:\-]*)\s*\[ARGS\]\s*`)
	reCallsMarker = regexp.MustCompile(`\[TOOL_CALLS\]|<\|python_tag\|>`)
	invisibles    = strings.NewReplacer("\u200b", "", "\u200c", "", "\u200d", "", "\u2060", "", "\ufeff", "")
)

// normalizeCandidate strips decoration a model wraps around a call payload:
// list, quote and numbering prefixes, label prefixes, surrounding backticks and
// invisible characters.
func normalizeCandidate(s string) string {
	s = invisibles.Replace(s)
	for {
		next := reListPrefix.ReplaceAllString(s, "")
		next = reLabelPrefix.ReplaceAllString(next, "")
		next = strings.TrimSpace(next)
		if strings.HasPrefix(next, "`") && strings.HasSuffix(next, "`") && len(next) > 1 {
			next = strings.TrimSpace(strings.Trim(next, "`"))
		}
		if next == s {
			return s
		}
		s = next
	}
}

// rewriteShorthand turns "[TOOL_CALLS] name [ARGS] {...}" into a canonical
// {"name":...,"arguments":...} object and drops bare call markers.
func rewriteShorthand(s string) string {
	for {
		loc := reShorthand.FindStringSubmatchIndex(s)
		if loc == nil {
			break
		}
		name := s[loc[2]:loc[3]]
		rest := s[loc[1]:]
		args := "{}"
		consumed := 0
		if start, prefix, _ := balancedPrefix(rest); start == 0 {
			args = prefix
			consumed = len(prefix)
		}
		call := `{"name":` + quoteJSON(name) + `,"arguments":` + args + `}`
		s = s[:loc[0]] + call + rest[consumed:]
	}
	return reCallsMarker.ReplaceAllString(s, "")
}

// scanSpans finds every balanced JSON-like region in s that parses to at least
// one call-shaped payload.
func scanSpans(s string) []span {
	var spans []span
	pos := 0
	for pos < len(s) {
		start, prefix, ok := balancedPrefix(s[pos:])
		if start < 0 {
			break
		}
		start += pos
		end := start + len(prefix)
		if !ok && end < len(s) {
			// Mismatched closer; only a run to the end of input is repairable.
			pos = start + 1
			continue
		}
		v, parsed := parseLoose(prefix)
		if !parsed {
			pos = start + 1
			continue
		}
		if calls := collectCalls(v, 0, false, nil); len(calls) > 0 {
			spans = append(spans, span{start: start, end: end, calls: calls})
		}
		pos = end
	}
	return spans
}

// collectCalls walks a parsed payload and returns every call-shaped object in
// source order.
func collectCalls(v gjson.Result, depth int, inContainer bool, out []rawCall) []rawCall {
	if depth > maxNesting {
		return out
	}
	switch {
	case v.IsArray():
		v.ForEach(func(_, el gjson.Result) bool {
			out = collectCalls(el, depth+1, inContainer, out)
			return true
		})
	case v.IsObject():
		nested := false
		for _, key := range containerKeys {
			if c := v.Get(key); c.IsArray() || (c.IsObject() && key != "function_calls") {
				out = collectCalls(c, depth+1, true, out)
				nested = true
			}
		}
		if nested {
			return out
		}
		if rc, ok := objectCall(v); ok {
			rc.explicit = rc.explicit || inContainer
			out = append(out, rc)
		}
	}
	return out
}

func objectCall(v gjson.Result) (rawCall, bool) {
	var rc rawCall
	if t := v.Get("type"); t.Type == gjson.String && !genericTypes[strings.ToLower(t.String())] {
		rc.hint = t.String()
	} else if k := v.Get("kind"); k.Type == gjson.String {
		rc.hint = k.String()
	}

	if fn := v.Get("function"); fn.IsObject() {
		rc.name = fn.Get("name").String()
		rc.explicit = true
		setArgs(&rc, firstPresent(fn, argKeys))
		return rc, rc.name != ""
	}

	for _, key := range nameKeys {
		if n := v.Get(key); n.Type == gjson.String && strings.TrimSpace(n.String()) != "" {
			rc.name = strings.TrimSpace(n.String())
			break
		}
	}
	if a := firstPresent(v, argKeys); a.Exists() {
		rc.explicit = true
		setArgs(&rc, a)
	} else {
		rc.args = gjson.Parse(string(objectWithout(v, nameKeys, metaKeys)))
	}
	if rc.name == "" && rc.hint == "" && len(rc.args.Map()) == 0 {
		return rc, false
	}
	return rc, true
}

func firstPresent(v gjson.Result, keys []string) gjson.Result {
	for _, key := range keys {
		if r := v.Get(key); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

func setArgs(rc *rawCall, a gjson.Result) {
	switch {
	case a.IsObject():
		rc.args = a
	case a.Type == gjson.String:
		// Arguments are often a JSON document encoded as a string.
		if parsed, ok := parseLoose(a.String()); ok && parsed.IsObject() {
			rc.args = parsed
		} else if s := strings.TrimSpace(a.String()); s != "" {
			rc.argText = s
		}
	}
}

// objectWithout re-emits v without the listed keys, keeping source order.
func objectWithout(v gjson.Result, skip ...[]string) []byte {
	drop := make(map[string]bool)
	for _, keys := range skip {
		for _, k := range keys {
			drop[k] = true
		}
	}
	out := []byte{'{'}
	first := true
	v.ForEach(func(k, val gjson.Result) bool {
		if drop[k.String()] {
			return true
		}
		if !first {
			out = append(out, ',')
		}
		first = false
		out = append(out, k.Raw...)
		out = append(out, ':')
		out = append(out, val.Raw...)
		return true
	})
	return append(out, '}')
}
