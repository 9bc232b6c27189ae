package llm

import (
	"context"
)

// TextCompletionModel is a backend that turns a rendered prompt into text.
type TextCompletionModel interface {
	Name() string
	GenerateOnce(ctx context.Context, prompt string, attempt Attempt) (string, error)
	StreamGenerate(ctx context.Context, prompt string, attempt Attempt) (TextStream, error)
}

// TextStream yields raw text payloads until io.EOF.
// Payloads may be deltas or cumulative snapshots; the engine resolves both.
type TextStream interface {
	Recv() (string, error)
	Close() error
}

// Sampler is an opaque sampling configuration built by a backend.
type Sampler interface {
	Params() map[string]float64
}

// SamplerFactory is implemented by backends that build sampler objects.
// Backends disagree on parameter spellings, so NewSampler returns an error
// for names it does not recognise.
type SamplerFactory interface {
	NewSampler(params map[string]float64) (Sampler, error)
}

// ParamSupport is implemented by backends that can report whether a keyword
// parameter is accepted before a request is sent.
type ParamSupport interface {
	SupportsParam(name string) bool
}
