package llm

import "strings"

// ResolveDelta returns the part of payload not yet surfaced, given the text
// emitted so far. Backends may send true deltas, cumulative snapshots, or
// repeat a chunk on retry; all three resolve to the new text only.
func ResolveDelta(payload, emitted string) string {
	if payload == "" {
		return ""
	}
	if emitted == "" {
		return payload
	}
	if strings.HasPrefix(payload, emitted) {
		return payload[len(emitted):]
	}
	if strings.HasSuffix(emitted, payload) {
		return ""
	}
	for k := min(len(payload), len(emitted)); k >= 1; k-- {
		if strings.HasSuffix(emitted, payload[:k]) {
			return payload[k:]
		}
	}
	return payload
}

// DeltaResolver tracks emitted text across a stream.
type DeltaResolver struct {
	emitted strings.Builder
}

// Push resolves payload against the text emitted so far and records the delta.
func (r *DeltaResolver) Push(payload string) string {
	delta := ResolveDelta(payload, r.emitted.String())
	r.emitted.WriteString(delta)
	return delta
}

// Text returns everything emitted so far.
func (r *DeltaResolver) Text() string {
	return r.emitted.String()
}
