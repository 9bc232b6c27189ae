// Package toolcall recovers structured tool calls from free-form model text.
//
// Local models emit calls in many shapes: tagged blocks, fenced JSON, role
// transcripts, vendor shorthands and loosely quoted literals. Extract runs a
// fixed pipeline over the reply, removes whatever markup it consumed, and
// returns the remaining visible text along with the normalized calls.
package toolcall

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/samsaffron/localagent/internal/repetition"
)

// Call is one tool invocation recovered from model text. Arguments is always a
// JSON object and keeps the key order the model used.
type Call struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Result is the outcome of one extraction pass.
type Result struct {
	Visible string
	Calls   []Call
	Mood    string
}

// Extractor runs the extraction pipeline against a catalog.
type Extractor struct {
	catalog *Catalog
}

// NewExtractor returns an extractor for the catalog. A nil catalog selects the
// built-in one.
func NewExtractor(c *Catalog) *Extractor {
	if c == nil {
		c = DefaultCatalog()
	}
	return &Extractor{catalog: c}
}

// Catalog returns the catalog the extractor resolves names against.
func (e *Extractor) Catalog() *Catalog {
	return e.catalog
}

// Extract splits text into visible prose, tool calls and a mood directive.
// Text that no stage can interpret is returned as visible text.
func (e *Extractor) Extract(text string) Result {
	p := newPass(e.catalog)

	work, mood := e.catalog.ExtractMood(text)
	work = p.taggedBlocks(work)
	work = p.fencedBlocks(work)
	work = p.roleSections(work)
	work = p.candidateLines(work)
	if p.changed {
		work = strings.TrimSpace(reBlankRuns.ReplaceAllString(work, "\n\n"))
	}

	return Result{
		Visible: repetition.Compact(work),
		Calls:   p.calls,
		Mood:    mood,
	}
}

// Extract runs the built-in catalog's extractor.
func Extract(text string) Result {
	return NewExtractor(nil).Extract(text)
}

var (
	reTaggedBlock = regexp.MustCompile(`(?is)<(tool_calls?|function_calls?|tool_use)\b[^>]*>(.*?)</(?:tool_calls?|function_calls?|tool_use)\s*>`)
	reTaggedOpen  = regexp.MustCompile(`(?is)<(?:tool_calls?|function_calls?|tool_use)\b[^>]*>(.*)$`)
	reCallTag     = regexp.MustCompile(`(?i)</?(?:tool_calls?|function_calls?|tool_use)\b[^>]*>`)
	reFence       = regexp.MustCompile("(?s)```[ \\t]*([A-Za-z0-9_+.-]*)[^\\n`]*\\n(.*?)```")
	reInvoke      = regexp.MustCompile(`(?is)<invoke\s+name\s*=\s*["']([^"']+)["']\s*>(.*?)</invoke>`)
	reParameter   = regexp.MustCompile(`(?is)<parameter\s+name\s*=\s*["']([^"']+)["']\s*>(.*?)</parameter>`)
	reRoleHeader  = regexp.MustCompile(`(?i)^\s*(?:#{1,6}\s*)?(?:\*\*)?\[?(assistant|tool|function|action|user|system)\]?(?:\*\*)?\s*:(?:\*\*)?[ \t]*(.*)$`)
	reChatHeader  = regexp.MustCompile(`(?i)^\s*<\|im_start\|>\s*(assistant|tool|function|action|user|system)\s*$`)
	reChatEnd     = regexp.MustCompile(`<\|im_end\|>|<\|endoftext\|>|<\|eot_id\|>`)
	reBlankRuns   = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)
)

// Fence labels whose content is call markup, and labels whose content may be.
var (
	callFenceLabels = map[string]bool{"tool": true, "tool_call": true, "tool_calls": true, "tool_code": true, "function": true, "function_call": true, "call": true}
	dataFenceLabels = map[string]bool{"": true, "json": true, "json5": true}
)

type pass struct {
	cat     *Catalog
	calls   []Call
	seen    map[string]struct{}
	changed bool
}

func newPass(c *Catalog) *pass {
	return &pass{cat: c, seen: make(map[string]struct{})}
}

// accept normalizes raw payloads and records the new ones. It returns how many
// payloads were valid calls, duplicates included.
func (p *pass) accept(raw []rawCall, from origin) int {
	n := 0
	for _, rc := range raw {
		call, ok := p.cat.resolveCall(rc, from)
		if !ok {
			continue
		}
		n++
		key := call.Name + "\x00" + canonicalJSON(call.Arguments)
		if _, dup := p.seen[key]; dup {
			continue
		}
		p.seen[key] = struct{}{}
		p.calls = append(p.calls, call)
	}
	return n
}

// parseBlock extracts calls from the body of call markup and reports whether
// any were found.
func (p *pass) parseBlock(body string, strong bool) bool {
	from := inProse
	if strong {
		from = inMarkup
	}
	body = reCallTag.ReplaceAllString(body, "\n")
	if p.accept(invokeCalls(body), from) > 0 {
		return true
	}
	found := false
	for _, sp := range scanSpans(rewriteShorthand(invisibles.Replace(body))) {
		if p.accept(sp.calls, from) > 0 {
			found = true
		}
	}
	return found
}

// invokeCalls reads <invoke name="..."><parameter name="...">v</parameter></invoke>
// markup.
func invokeCalls(body string) []rawCall {
	var out []rawCall
	for _, m := range reInvoke.FindAllStringSubmatch(body, -1) {
		obj := []byte{'{'}
		for i, pm := range reParameter.FindAllStringSubmatch(m[2], -1) {
			if i > 0 {
				obj = append(obj, ',')
			}
			obj = append(obj, quoteJSON(pm[1])...)
			obj = append(obj, ':')
			obj = append(obj, parameterValue(pm[2])...)
		}
		obj = append(obj, '}')
		out = append(out, rawCall{
			name:     strings.TrimSpace(m[1]),
			args:     gjson.ParseBytes(obj),
			explicit: true,
		})
	}
	return out
}

func parameterValue(s string) string {
	s = strings.TrimSpace(s)
	if s != "" && gjson.Valid(s) {
		return string(compactJSON(s))
	}
	return quoteJSON(s)
}

func (p *pass) taggedBlocks(text string) string {
	out := reTaggedBlock.ReplaceAllStringFunc(text, func(m string) string {
		sub := reTaggedBlock.FindStringSubmatch(m)
		p.changed = true
		if strings.TrimSpace(sub[2]) == "" || p.parseBlock(sub[2], true) {
			return "\n"
		}
		return sub[2]
	})
	// An open tag with no closer swallows the rest of the reply.
	if loc := reTaggedOpen.FindStringSubmatchIndex(out); loc != nil {
		body := out[loc[2]:loc[3]]
		p.changed = true
		if strings.TrimSpace(body) == "" || p.parseBlock(body, true) {
			out = out[:loc[0]]
		} else {
			out = out[:loc[0]] + body
		}
	}
	if reCallTag.MatchString(out) {
		p.changed = true
		out = reCallTag.ReplaceAllString(out, "")
	}
	return out
}

func (p *pass) fencedBlocks(text string) string {
	return reFence.ReplaceAllStringFunc(text, func(m string) string {
		sub := reFence.FindStringSubmatch(m)
		label := strings.ToLower(sub[1])
		strong := callFenceLabels[label]
		if !strong && !dataFenceLabels[label] {
			return m
		}
		if p.parseBlock(sub[2], strong) {
			p.changed = true
			return "\n"
		}
		return m
	})
}

type section struct {
	role   string
	header string
	lines  []string
	// inline is set when lines[0] is the text that followed the header.
	inline bool
}

// verbatim returns the section as it appeared in the source.
func (s section) verbatim() []string {
	out := []string{s.header}
	if s.inline {
		return append(out, s.lines[1:]...)
	}
	return append(out, s.lines...)
}

// roleHeader recognizes "Role: text" lines and ChatML turn headers. chat is
// set for the latter, which only ever appear in a transcript.
func roleHeader(line string) (role, rest string, chat, ok bool) {
	if m := reChatHeader.FindStringSubmatch(line); m != nil {
		return strings.ToLower(m[1]), "", true, true
	}
	if m := reRoleHeader.FindStringSubmatch(line); m != nil {
		return strings.ToLower(m[1]), m[2], false, true
	}
	return "", "", false, false
}

// roleSections handles replies written as a transcript. Tool, function and
// action sections are parsed as calls; assistant sections lose their header.
// User and system sections are dropped only when the reply is a transcript,
// meaning it has ChatML headers or a section that yielded a call. Otherwise
// they are prose and kept verbatim.
func (p *pass) roleSections(text string) string {
	if reChatEnd.MatchString(text) {
		p.changed = true
		text = reChatEnd.ReplaceAllString(text, "")
	}

	var sections []section
	cur := section{}
	transcript := false
	headers := 0
	inFence := false
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		role, rest, chat, ok := roleHeader(line)
		if inFence || !ok {
			cur.lines = append(cur.lines, line)
			continue
		}
		sections = append(sections, cur)
		cur = section{role: role, header: line}
		if strings.TrimSpace(rest) != "" {
			cur.lines = append(cur.lines, rest)
			cur.inline = true
		}
		headers++
		if chat {
			transcript = true
		}
	}
	sections = append(sections, cur)
	if headers == 0 {
		return text
	}

	parsed := make([]bool, len(sections))
	for i, s := range sections {
		switch s.role {
		case "tool", "function", "action":
			if p.parseBlock(strings.Join(s.lines, "\n"), true) {
				parsed[i] = true
				transcript = true
			}
		}
	}

	var out []string
	for i, s := range sections {
		switch s.role {
		case "":
			out = append(out, s.lines...)
		case "assistant":
			p.changed = true
			out = append(out, s.lines...)
		case "tool", "function", "action":
			if parsed[i] {
				p.changed = true
				continue
			}
			out = append(out, s.verbatim()...)
		default:
			if transcript {
				p.changed = true
				continue
			}
			out = append(out, s.verbatim()...)
		}
	}
	return strings.Join(out, "\n")
}

// candidateLines scans the remaining text line by line for inline payloads.
// A payload that opens on a line of its own may continue across lines. Lines
// inside code fences are left alone.
func (p *pass) candidateLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	inFence := false
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			out = append(out, line)
			continue
		}
		if inFence || !strings.ContainsAny(line, "{[") {
			out = append(out, line)
			continue
		}

		cand := normalizeCandidate(rewriteShorthand(line))
		if kept, ok := p.consume(cand); ok {
			p.changed = true
			if kept != "" {
				out = append(out, kept)
			}
			continue
		}

		if strings.HasPrefix(cand, "{") || strings.HasPrefix(cand, "[") {
			rest := cand + "\n" + strings.Join(lines[i+1:], "\n")
			if _, prefix, ok := balancedPrefix(rest); ok && strings.Contains(prefix, "\n") {
				tail := rest[len(prefix):]
				if nl := strings.IndexByte(tail, '\n'); nl >= 0 {
					tail = tail[:nl]
				}
				kept := trimLeftover(tail)
				from := ownLine
				if kept != "" {
					from = inProse
				}
				if v, parsed := parseLoose(prefix); parsed && p.accept(collectCalls(v, 0, false, nil), from) > 0 {
					p.changed = true
					i += strings.Count(prefix, "\n")
					if kept != "" {
						out = append(out, kept)
					}
					continue
				}
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// consume removes every accepted payload from s and returns the prose left
// around them.
func (p *pass) consume(s string) (string, bool) {
	var kept strings.Builder
	last := 0
	found := false
	for _, sp := range scanSpans(s) {
		from := inProse
		if trimLeftover(s[:sp.start]) == "" && trimLeftover(s[sp.end:]) == "" {
			from = ownLine
		}
		if p.accept(sp.calls, from) == 0 {
			continue
		}
		found = true
		kept.WriteString(s[last:sp.start])
		kept.WriteByte(' ')
		last = sp.end
	}
	if !found {
		return "", false
	}
	kept.WriteString(s[last:])
	return trimLeftover(kept.String()), true
}

func trimLeftover(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " \t`:;,-")
}
