// Package repetition detects runaway model output and compacts duplicated text.
package repetition

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/dlclark/regexp2"
)

const (
	// MinRunawayLength is the normalized length below which detection never fires.
	MinRunawayLength = 180

	// maxCompactPasses bounds the fixed-point iteration in Compact.
	maxCompactPasses = 8

	matchTimeout = 50 * time.Millisecond
)

// windowSizes are the token window lengths compared by the tail-window check.
var windowSizes = []int{8, 12, 16}

var (
	// A 24-120 char span followed by at least two more copies.
	reRepeatedSpan = mustCompile(`(.{24,120}?)(?:\s*\1){2,}`)

	// A 3-80 char phrase repeated through dash-like connectors: "go - go - go".
	reDashRepeat = mustCompile(`(\b[^\n]{3,80}?)(?:[ \t]*[-‐-―]+[ \t]*\1(?!\w)){2,}`)

	// A 4-120 char span immediately repeated at least once.
	reDirectRepeat = mustCompile(`(\b[^\n]{4,120}?)(?:[ \t]*\1(?!\w))+`)

	reParagraphBreak = regexp.MustCompile(`\n[ \t]*\n\s*`)
	reSentenceEnd    = regexp.MustCompile(`[.!?]+`)
)

func mustCompile(expr string) *regexp2.Regexp {
	re := regexp2.MustCompile(expr, regexp2.None)
	re.MatchTimeout = matchTimeout
	return re
}

// Normalize lowercases text and collapses every whitespace run to one space.
func Normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// IsRunaway reports whether accumulated output shows pathological repetition.
// Text shorter than MinRunawayLength after normalization is never flagged.
func IsRunaway(text string) bool {
	norm := Normalize(text)
	if len(norm) < MinRunawayLength {
		return false
	}
	if ok, err := reRepeatedSpan.MatchString(norm); err == nil && ok {
		return true
	}
	if repeatedTailWindows(strings.Fields(norm)) {
		return true
	}
	return repeatedTailSentences(norm)
}

func repeatedTailWindows(tokens []string) bool {
	for _, size := range windowSizes {
		n := len(tokens)
		if n < 3*size {
			continue
		}
		a := strings.Join(tokens[n-3*size:n-2*size], " ")
		b := strings.Join(tokens[n-2*size:n-size], " ")
		c := strings.Join(tokens[n-size:], " ")
		if a == b && b == c {
			return true
		}
	}
	return false
}

func repeatedTailSentences(norm string) bool {
	var segments []string
	for _, s := range reSentenceEnd.Split(norm, -1) {
		if s = strings.TrimSpace(s); s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) < 3 {
		return false
	}
	tail := segments[len(segments)-3:]
	if len(tail[0]) < 24 {
		return false
	}
	return tail[0] == tail[1] && tail[1] == tail[2]
}

// Compact removes duplicated phrases, paragraphs and consecutive sentences from
// a finished reply. It iterates to a fixed point, so Compact(Compact(x)) equals
// Compact(x), and it never turns non-empty input into an empty string.
func Compact(text string) string {
	if text == "" {
		return text
	}
	out := text
	for i := 0; i < maxCompactPasses; i++ {
		next := compactOnce(out)
		if next == out {
			break
		}
		out = next
	}
	if out == "" {
		return text
	}
	return out
}

func compactOnce(text string) string {
	out := replaceAll(reDashRepeat, text)
	out = replaceAll(reDirectRepeat, out)
	out = dropDuplicateParagraphs(out)
	return strings.TrimSpace(out)
}

func replaceAll(re *regexp2.Regexp, text string) string {
	out, err := re.Replace(text, "$1", -1, -1)
	if err != nil {
		return text
	}
	return out
}

// dropDuplicateParagraphs keeps the separators of surviving paragraphs so text
// without duplicates comes back byte for byte.
func dropDuplicateParagraphs(text string) string {
	breaks := reParagraphBreak.FindAllStringIndex(text, -1)
	type para struct {
		sep  string
		body string
	}
	paras := make([]para, 0, len(breaks)+1)
	start := 0
	sep := ""
	for _, br := range breaks {
		paras = append(paras, para{sep: sep, body: text[start:br[0]]})
		sep = text[br[0]:br[1]]
		start = br[1]
	}
	paras = append(paras, para{sep: sep, body: text[start:]})

	seen := make(map[string]struct{}, len(paras))
	var b strings.Builder
	b.Grow(len(text))
	for _, p := range paras {
		norm := Normalize(p.body)
		if norm != "" {
			if _, dup := seen[norm]; dup {
				continue
			}
			seen[norm] = struct{}{}
		}
		if b.Len() > 0 {
			b.WriteString(p.sep)
		}
		b.WriteString(dropRepeatedSentences(p.body))
	}
	return b.String()
}

func dropRepeatedSentences(paragraph string) string {
	segments := splitSentences(paragraph)
	if len(segments) < 2 {
		return paragraph
	}
	var b strings.Builder
	b.Grow(len(paragraph))
	prev := ""
	for _, seg := range segments {
		norm := Normalize(seg)
		if norm != "" && norm == prev {
			continue
		}
		if norm != "" {
			prev = norm
		}
		b.WriteString(seg)
	}
	return b.String()
}

// splitSentences cuts after a terminator run and the whitespace that follows
// it. A terminator followed directly by a letter or digit ("3.14", "e.g.x") is
// not a boundary. Concatenating the result yields the input.
func splitSentences(text string) []string {
	var segments []string
	runes := []rune(text)
	start := 0
	i := 0
	for i < len(runes) {
		if !isTerminator(runes[i]) {
			i++
			continue
		}
		j := i
		for j < len(runes) && isTerminator(runes[j]) {
			j++
		}
		if j < len(runes) && !unicode.IsSpace(runes[j]) {
			i = j
			continue
		}
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		segments = append(segments, string(runes[start:j]))
		start = j
		i = j
	}
	if start < len(runes) {
		segments = append(segments, string(runes[start:]))
	}
	return segments
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
