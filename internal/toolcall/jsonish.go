package toolcall

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// balancedPrefix locates the first '{' or '[' in s and returns the shortest
// prefix from there whose brackets balance, honoring quoted strings and
// escapes. When the brackets never balance, ok is false and prefix runs to the
// end of s (or up to a mismatched closer).
func balancedPrefix(s string) (start int, prefix string, ok bool) {
	start = strings.IndexAny(s, "{[")
	if start < 0 {
		return -1, "", false
	}
	var stack []byte
	var quote byte
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return start, s[start:i], false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return start, s[start : i+1], true
			}
		}
	}
	return start, s[start:], false
}

// parseLoose parses strict JSON first and falls back to repairing a
// literal-expression style payload: single quotes, True/False/None, bare keys,
// trailing commas and missing closers.
func parseLoose(s string) (gjson.Result, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return gjson.Result{}, false
	}
	if gjson.Valid(s) {
		return gjson.Parse(s), true
	}
	repaired, ok := repairLiteral(s)
	if !ok || !gjson.Valid(repaired) {
		return gjson.Result{}, false
	}
	return gjson.Parse(repaired), true
}

func repairLiteral(s string) (string, bool) {
	var out []byte
	var closers []byte
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"' || c == '\'':
			str, n, ok := readQuoted(s[i:])
			if !ok {
				return "", false
			}
			out = append(out, quoteJSON(str)...)
			i += n
		case c == '{' || c == '[':
			out = append(out, c)
			if c == '{' {
				closers = append(closers, '}')
			} else {
				closers = append(closers, ']')
			}
			i++
		case c == '}' || c == ']':
			if len(closers) == 0 || closers[len(closers)-1] != c {
				return "", false
			}
			closers = closers[:len(closers)-1]
			out = append(trimTrailingComma(out), c)
			i++
		case c == ',' || c == ':':
			out = append(out, c)
			i++
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			out = append(out, c)
			i++
		case isBareStart(c):
			j := i
			for j < len(s) && isBareByte(s[j]) {
				j++
			}
			out = append(out, bareToken(s[i:j], nextIsColon(s[j:]))...)
			i = j
		default:
			return "", false
		}
	}
	out = trimTrailingComma(out)
	for k := len(closers) - 1; k >= 0; k-- {
		out = append(out, closers[k])
	}
	return string(out), true
}

// readQuoted decodes a single- or double-quoted string at the start of s and
// reports how many bytes it consumed.
func readQuoted(s string) (string, int, bool) {
	quote := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			next := s[i+1]
			switch next {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 'u':
				if i+5 < len(s) {
					if r, err := strconv.ParseUint(s[i+2:i+6], 16, 32); err == nil {
						b.WriteRune(rune(r))
						i += 5
						continue
					}
				}
				b.WriteByte(next)
			default:
				b.WriteByte(next)
			}
			i++
		case c == quote:
			return b.String(), i + 1, true
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, false
}

func bareToken(tok string, isKey bool) string {
	if isKey {
		return quoteJSON(tok)
	}
	switch tok {
	case "True", "true":
		return "true"
	case "False", "false":
		return "false"
	case "None", "null", "nil", "undefined":
		return "null"
	}
	if strings.IndexAny(tok[:1], "0123456789.+-") == 0 {
		num := strings.TrimPrefix(tok, "+")
		if json.Valid([]byte(num)) {
			return num
		}
		if f, err := strconv.ParseFloat(num, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return quoteJSON(tok)
}

func isBareStart(c byte) bool {
	return isBareByte(c) || c == '+'
}

func isBareByte(c byte) bool {
	return c == '_' || c == '-' || c == '.' || c == '+' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c >= 0x80
}

func nextIsColon(s string) bool {
	s = strings.TrimLeft(s, " \t\r\n")
	return strings.HasPrefix(s, ":")
}

func trimTrailingComma(out []byte) []byte {
	end := len(out)
	for end > 0 && (out[end-1] == ' ' || out[end-1] == '\t' || out[end-1] == '\n' || out[end-1] == '\r') {
		end--
	}
	if end > 0 && out[end-1] == ',' {
		return append(out[:end-1], out[end:]...)
	}
	return out
}

// quoteJSON encodes s as a JSON string without HTML escaping.
func quoteJSON(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return strconv.Quote(s)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// canonicalJSON renders raw with sorted keys and no insignificant whitespace.
// Invalid input is returned unchanged.
func canonicalJSON(raw []byte) string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(raw)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return string(raw)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// compactJSON strips insignificant whitespace while keeping key order.
func compactJSON(raw string) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return []byte(raw)
	}
	return buf.Bytes()
}
