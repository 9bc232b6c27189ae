package toolcall

import (
	"regexp"
	"strings"
)

var (
	reOpenTagTail  = regexp.MustCompile(`(?i)<(?:tool_calls?|function_calls?|tool_use)\b[^>]*$`)
	reMoodTail     = regexp.MustCompile(`(?i)\[\[\s*(?:m(?:o(?:o(?:d)?)?)?)?\s*(?::[A-Za-z_\- ]*(?:\])?)?$`)
	reTurnBoundary = regexp.MustCompile(`<\|im_start\|>|<\|im_end\|>|<\|endoftext\|>|<\|eot_id\|>|\[TOOL_CALLS\]|<\|python_tag\|>`)
)

// streamMarkers are the openings of markup that must never reach the user
// half-written.
var streamMarkers = []string{
	"<tool_call>", "<tool_calls>", "<function_call>", "<function_calls>", "<tool_use>",
	"<|im_start|>", "<|im_end|>", "<|endoftext|>", "<|eot_id|>", "<|python_tag|>",
	"[TOOL_CALLS]", "[[mood:", "```",
}

// StreamSanitizer turns a raw streamed reply into text that is safe to show
// while the reply is still being generated. Call markup, in-progress markup,
// mood directives and trailing fragments that could begin markup are held
// back. Already emitted text is never retracted, so output only grows.
type StreamSanitizer struct {
	catalog *Catalog
	raw     strings.Builder
	emitted string
}

// NewStreamSanitizer returns a sanitizer resolving fenced payloads against c.
// A nil catalog selects the built-in one.
func NewStreamSanitizer(c *Catalog) *StreamSanitizer {
	if c == nil {
		c = DefaultCatalog()
	}
	return &StreamSanitizer{catalog: c}
}

// Push appends a raw chunk and returns the newly visible text.
func (s *StreamSanitizer) Push(chunk string) string {
	if chunk == "" {
		return ""
	}
	s.raw.WriteString(chunk)
	safe := s.catalog.sanitizePartial(s.raw.String())
	if !strings.HasPrefix(safe, s.emitted) {
		return ""
	}
	delta := safe[len(s.emitted):]
	s.emitted = safe
	return delta
}

// Emitted returns everything surfaced so far.
func (s *StreamSanitizer) Emitted() string {
	return s.emitted
}

// Raw returns the unfiltered accumulated text.
func (s *StreamSanitizer) Raw() string {
	return s.raw.String()
}

func (c *Catalog) sanitizePartial(text string) string {
	out := reTaggedBlock.ReplaceAllString(text, "")
	if loc := reTaggedOpen.FindStringIndex(out); loc != nil {
		out = out[:loc[0]]
	}
	if loc := reOpenTagTail.FindStringIndex(out); loc != nil {
		out = out[:loc[0]]
	}
	if loc := reTurnBoundary.FindStringIndex(out); loc != nil {
		out = out[:loc[0]]
	}
	out = reMoodDirective.ReplaceAllString(out, "")
	out = c.withholdFences(out)
	if loc := reMoodTail.FindStringIndex(out); loc != nil {
		out = out[:loc[0]]
	}
	return out[:len(out)-partialMarkerLen(out)]
}

// withholdFences removes finished fences that hold calls and cuts the text at
// a fence whose kind is not known yet or whose payload is still streaming.
func (c *Catalog) withholdFences(text string) string {
	var b strings.Builder
	pos := 0
	for {
		i := strings.Index(text[pos:], "```")
		if i < 0 {
			b.WriteString(text[pos:])
			return b.String()
		}
		open := pos + i
		nl := strings.IndexByte(text[open:], '\n')
		if nl < 0 {
			b.WriteString(text[pos:open])
			return b.String()
		}
		bodyStart := open + nl + 1
		label := strings.ToLower(strings.TrimSpace(text[open+3 : open+nl]))
		if f := strings.Fields(label); len(f) > 0 {
			label = f[0]
		}
		candidate := callFenceLabels[label] || dataFenceLabels[label]

		j := strings.Index(text[bodyStart:], "```")
		if j < 0 {
			if candidate {
				b.WriteString(text[pos:open])
			} else {
				b.WriteString(text[pos:])
			}
			return b.String()
		}
		end := bodyStart + j + 3
		if candidate && newPass(c).parseBlock(text[bodyStart:bodyStart+j], callFenceLabels[label]) {
			b.WriteString(text[pos:open])
		} else {
			b.WriteString(text[pos:end])
		}
		pos = end
	}
}

// partialMarkerLen returns the length of the longest suffix of text that is a
// proper prefix of a stream marker.
func partialMarkerLen(text string) int {
	longest := 0
	for _, m := range streamMarkers {
		max := len(m) - 1
		if max > len(text) {
			max = len(text)
		}
		for n := max; n > longest; n-- {
			if strings.EqualFold(text[len(text)-n:], m[:n]) {
				longest = n
				break
			}
		}
	}
	return longest
}
