package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestRejectedParam(t *testing.T) {
	keywords := Attempt{Kind: AttemptKeywords, Params: map[string]float64{ParamTopK: 40, ParamTopP: 0.9}}
	tests := []struct {
		name string
		err  error
		want string
		ok   bool
	}{
		{"typed", fmt.Errorf("wrapped: %w", &ParamError{Param: "min_p"}), "min_p", true},
		{"python kwargs", errors.New("generate() got an unexpected keyword argument 'top_k'"), ParamTopK, true},
		{"unknown parameter", errors.New(`400 Bad Request: Unknown parameter: "top_p"`), ParamTopP, true},
		{"not supported", errors.New("top_k is not supported by this model"), ParamTopK, true},
		{"param not sent", errors.New("unexpected keyword argument 'seed'"), "", false},
		{"unrelated", errors.New("connection refused"), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := rejectedParam(tt.err, keywords)
			if got != tt.want || ok != tt.ok {
				t.Errorf("rejectedParam = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestCancelledErrorWrapsContextCanceled(t *testing.T) {
	err := fmt.Errorf("turn: %w", &CancelledError{Partial: "Hel"})
	if !errors.Is(err, context.Canceled) || !IsCancelled(err) {
		t.Errorf("cancellation not recognised: %v", err)
	}
	if IsCancelled(&GenerationError{Err: errors.New("x")}) {
		t.Errorf("generation failure reported as cancellation")
	}
}
