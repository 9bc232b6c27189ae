package llm

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryConfig returns sensible defaults for a local backend that may
// still be loading its model.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

var errNoSampler = errors.New("backend does not build samplers")

// RetryModel wraps a model with automatic retry on transient errors.
// Parameter errors are returned at once so the attempt chain can react.
type RetryModel struct {
	inner  TextCompletionModel
	config RetryConfig
	sleep  func(ctx context.Context, d time.Duration) error
}

// WrapWithRetry wraps a model with retry logic.
func WrapWithRetry(m TextCompletionModel, config RetryConfig) *RetryModel {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &RetryModel{inner: m, config: config, sleep: sleepContext}
}

func (r *RetryModel) Name() string {
	return r.inner.Name()
}

// SupportsParam forwards to the inner model when it can answer.
func (r *RetryModel) SupportsParam(name string) bool {
	if ps, ok := r.inner.(ParamSupport); ok {
		return ps.SupportsParam(name)
	}
	return true
}

// NewSampler forwards to the inner model when it builds samplers.
func (r *RetryModel) NewSampler(params map[string]float64) (Sampler, error) {
	if f, ok := r.inner.(SamplerFactory); ok {
		return f.NewSampler(params)
	}
	return nil, errNoSampler
}

func (r *RetryModel) GenerateOnce(ctx context.Context, prompt string, attempt Attempt) (string, error) {
	var text string
	err := r.do(ctx, func() error {
		var err error
		text, err = r.inner.GenerateOnce(ctx, prompt, attempt)
		return err
	})
	return text, err
}

// StreamGenerate retries opening the stream. A stream that fails after it
// started is not retried because its text may already have been shown.
func (r *RetryModel) StreamGenerate(ctx context.Context, prompt string, attempt Attempt) (TextStream, error) {
	var stream TextStream
	err := r.do(ctx, func() error {
		var err error
		stream, err = r.inner.StreamGenerate(ctx, prompt, attempt)
		return err
	})
	return stream, err
}

func (r *RetryModel) do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err

		// Don't retry if context is already cancelled
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= r.config.MaxAttempts {
			break
		}

		wait := r.calculateBackoff(attempt, lastErr)
		slog.Warn("backend request failed, retrying",
			"model", r.inner.Name(),
			"attempt", attempt,
			"max_attempts", r.config.MaxAttempts,
			"wait", wait,
			"error", err)
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// isRetryable returns true if the error is a transient error worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ParamError
	if errors.As(err, &pe) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	errStr := strings.ToLower(err.Error())

	// HTTP status codes and overload messages
	if strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "loading model") ||
		strings.Contains(errStr, "overloaded") {
		return true
	}

	// Connection errors
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "no such host") {
		return true
	}

	return false
}

// retryAfterRegex matches Retry-After values in error messages.
var retryAfterRegex = regexp.MustCompile(`(?i)retry[- ]?after[:\s]+(\d+)`)

// calculateBackoff computes the wait duration for a retry attempt.
func (r *RetryModel) calculateBackoff(attempt int, err error) time.Duration {
	if err != nil {
		if matches := retryAfterRegex.FindStringSubmatch(err.Error()); len(matches) > 1 {
			if secs, parseErr := strconv.Atoi(matches[1]); parseErr == nil && secs > 0 {
				wait := time.Duration(secs) * time.Second
				if wait > r.config.MaxBackoff {
					wait = r.config.MaxBackoff
				}
				return wait
			}
		}
	}

	// Exponential backoff: base * 2^(attempt-1)
	backoff := float64(r.config.BaseBackoff) * math.Pow(2, float64(attempt-1))

	// Add jitter: +/- 25%
	jitter := (rand.Float64() - 0.5) * 0.5 * backoff
	backoff += jitter

	if backoff > float64(r.config.MaxBackoff) {
		backoff = float64(r.config.MaxBackoff)
	}

	return time.Duration(backoff)
}
