package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("dial tcp 127.0.0.1:8080: connection refused"), true},
		{errors.New("POST /v1/completions: 503 Service Unavailable"), true},
		{errors.New("server is loading model"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("invalid prompt"), false},
		{&ParamError{Param: "top_k", Err: errors.New("503")}, false},
		{context.Canceled, false},
	}
	for _, tt := range tests {
		if got := isRetryable(tt.err); got != tt.want {
			t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

type flakyModel struct {
	plainModel
	failures int
	err      error
	calls    int
}

func (m *flakyModel) GenerateOnce(context.Context, string, Attempt) (string, error) {
	m.calls++
	if m.calls <= m.failures {
		return "", m.err
	}
	return "ok", nil
}

func noSleep(r *RetryModel) *[]time.Duration {
	var waits []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return &waits
}

func TestRetryModelRetriesTransientErrors(t *testing.T) {
	inner := &flakyModel{failures: 2, err: errors.New("connection refused")}
	r := WrapWithRetry(inner, RetryConfig{MaxAttempts: 3, BaseBackoff: time.Second, MaxBackoff: 4 * time.Second})
	waits := noSleep(r)

	text, err := r.GenerateOnce(context.Background(), "p", Attempt{})
	if err != nil || text != "ok" {
		t.Fatalf("GenerateOnce = %q, %v", text, err)
	}
	if inner.calls != 3 || len(*waits) != 2 {
		t.Errorf("calls = %d, waits = %v", inner.calls, *waits)
	}
	for _, w := range *waits {
		if w <= 0 || w > 4*time.Second {
			t.Errorf("wait %v out of range", w)
		}
	}
}

func TestRetryModelGivesUp(t *testing.T) {
	inner := &flakyModel{failures: 10, err: errors.New("503 service unavailable")}
	r := WrapWithRetry(inner, RetryConfig{MaxAttempts: 2, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	noSleep(r)

	if _, err := r.GenerateOnce(context.Background(), "p", Attempt{}); err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 2 {
		t.Errorf("calls = %d, want 2", inner.calls)
	}
}

func TestRetryModelDoesNotRetryParamErrors(t *testing.T) {
	inner := &flakyModel{failures: 1, err: &ParamError{Param: "top_k"}}
	r := WrapWithRetry(inner, DefaultRetryConfig())
	noSleep(r)

	_, err := r.GenerateOnce(context.Background(), "p", Attempt{})
	var pe *ParamError
	if !errors.As(err, &pe) || inner.calls != 1 {
		t.Errorf("err = %v, calls = %d", err, inner.calls)
	}
}

func TestRetryModelForwardsCapabilities(t *testing.T) {
	r := WrapWithRetry(limitedModel{unsupported: map[string]bool{ParamTopK: true}}, DefaultRetryConfig())
	if r.SupportsParam(ParamTopK) || !r.SupportsParam(ParamTopP) {
		t.Errorf("SupportsParam not forwarded")
	}
	if _, err := r.NewSampler(map[string]float64{"temp": 1}); !errors.Is(err, errNoSampler) {
		t.Errorf("NewSampler err = %v", err)
	}
}

func TestCalculateBackoffHonorsRetryAfter(t *testing.T) {
	r := WrapWithRetry(plainModel{}, RetryConfig{MaxAttempts: 3, BaseBackoff: time.Second, MaxBackoff: 10 * time.Second})
	if got := r.calculateBackoff(1, errors.New("429: retry after 3")); got != 3*time.Second {
		t.Errorf("backoff = %v", got)
	}
	if got := r.calculateBackoff(1, errors.New("retry-after: 60")); got != 10*time.Second {
		t.Errorf("backoff not capped: %v", got)
	}
}
