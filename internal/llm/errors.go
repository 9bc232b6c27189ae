package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ParamError reports that a backend rejected a request parameter.
type ParamError struct {
	Param string
	Err   error
}

func (e *ParamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unsupported parameter %q", e.Param)
	}
	return fmt.Sprintf("unsupported parameter %q: %v", e.Param, e.Err)
}

func (e *ParamError) Unwrap() error { return e.Err }

// GenerationError reports that every attempt against the backend failed.
type GenerationError struct {
	Model    string
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed on %s after %d attempt(s): %v", e.Model, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// CancelledError reports that the caller stopped the turn. Partial holds the
// reply text surfaced before the stop.
type CancelledError struct {
	Partial string
}

func (e *CancelledError) Error() string {
	return "generation cancelled"
}

func (e *CancelledError) Unwrap() error { return context.Canceled }

// IsCancelled reports whether err is a cancellation rather than a failure.
func IsCancelled(err error) bool {
	var ce *CancelledError
	return errors.As(err, &ce)
}

// reRejectedParam matches backend messages that name a rejected parameter.
// Only used when the backend returns no *ParamError.
var reRejectedParam = []*regexp.Regexp{
	regexp.MustCompile(`unexpected keyword argument ['"]?([a-z_]+)`),
	regexp.MustCompile(`unknown (?:parameter|field|argument)[:\s]+['"]?([a-z_]+)`),
	regexp.MustCompile(`unrecognized request argument supplied:\s*([a-z_]+)`),
	regexp.MustCompile(`['"]?([a-z_]+)['"]? (?:is not supported|is not a valid|not allowed)`),
}

// rejectedParam returns the parameter of attempt that err says was rejected.
func rejectedParam(err error, attempt Attempt) (string, bool) {
	var pe *ParamError
	if errors.As(err, &pe) {
		return pe.Param, pe.Param != ""
	}
	msg := strings.ToLower(err.Error())
	for _, re := range reRejectedParam {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		if attempt.Has(m[1]) {
			return m[1], true
		}
	}
	return "", false
}
