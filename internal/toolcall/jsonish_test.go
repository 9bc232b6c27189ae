package toolcall

import (
	"testing"
)

func TestBalancedPrefixHandlesNesting(t *testing.T) {
	start, prefix, ok := balancedPrefix(`{"a":[1,2,{"b":3}]} trailing garbage`)
	if !ok || start != 0 {
		t.Fatalf("balancedPrefix ok=%v start=%d", ok, start)
	}
	if want := `{"a":[1,2,{"b":3}]}`; prefix != want {
		t.Errorf("prefix = %q, want %q", prefix, want)
	}
}

func TestBalancedPrefix(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantStart int
		want      string
		wantOK    bool
	}{
		{"leading prose", `call this: {"x":1} now`, 11, `{"x":1}`, true},
		{"brace inside string", `{"a":"}{"}`, 0, `{"a":"}{"}`, true},
		{"escaped quote", `{"a":"say \"}\""} tail`, 0, `{"a":"say \"}\""}`, true},
		{"single quoted", `{'a': '}'} x`, 0, `{'a': '}'}`, true},
		{"array first", `[{"a":1}], more`, 0, `[{"a":1}]`, true},
		{"unbalanced runs to end", `{"a":{"b":1}`, 0, `{"a":{"b":1}`, false},
		{"mismatched closer", `{"a":[1}`, 0, `{"a":[1`, false},
		{"no bracket", `plain text`, -1, ``, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, prefix, ok := balancedPrefix(tt.in)
			if start != tt.wantStart || prefix != tt.want || ok != tt.wantOK {
				t.Errorf("balancedPrefix(%q) = (%d, %q, %v), want (%d, %q, %v)",
					tt.in, start, prefix, ok, tt.wantStart, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseLoose(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"strict", `{"a":1}`, `{"a":1}`, true},
		{"single quotes and literals", `{'a': True, 'b': None, 'c': False}`, `{"a":true,"b":null,"c":false}`, true},
		{"bare keys", `{query: "go generics", limit: 3}`, `{"query":"go generics","limit":3}`, true},
		{"trailing commas", `{"a":[1,2,],}`, `{"a":[1,2]}`, true},
		{"missing closers", `{"a":{"b":"c"`, `{"a":{"b":"c"}}`, true},
		{"apostrophe inside double quotes", `{"text": "it's fine"}`, `{"text":"it's fine"}`, true},
		{"unterminated string", `{"a": "oops}`, ``, false},
		{"prose", `this is not json`, ``, false},
		{"empty", ``, ``, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseLoose(tt.in)
			if ok != tt.ok {
				t.Fatalf("parseLoose(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if !ok {
				return
			}
			if c := string(compactJSON(got.Raw)); c != tt.want {
				t.Errorf("parseLoose(%q) = %s, want %s", tt.in, c, tt.want)
			}
		})
	}
}

func TestCanonicalJSONSortsKeys(t *testing.T) {
	a := canonicalJSON([]byte(`{"b":1,"a":{"d":2,"c":3}}`))
	b := canonicalJSON([]byte(`{ "a": {"c":3, "d":2}, "b": 1 }`))
	if a != b {
		t.Errorf("canonical forms differ: %s vs %s", a, b)
	}
	if want := `{"a":{"c":3,"d":2},"b":1}`; a != want {
		t.Errorf("canonicalJSON = %s, want %s", a, want)
	}
}

func TestCanonicalJSONKeepsLargeNumbers(t *testing.T) {
	if got := canonicalJSON([]byte(`{"id":12345678901234567890}`)); got != `{"id":12345678901234567890}` {
		t.Errorf("canonicalJSON = %s", got)
	}
}
