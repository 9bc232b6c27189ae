package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

const defaultLocalBaseURL = "http://127.0.0.1:8080/v1"

// DefaultStopSequences end generation at ChatML turn boundaries.
var DefaultStopSequences = []string{"<|im_end|>", "<|im_start|>", "<|endoftext|>"}

// OpenAICompatConfig configures a backend that serves the OpenAI legacy
// completions endpoint (llama.cpp server, Ollama, LM Studio, vLLM).
type OpenAICompatConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	Stop    []string
}

// OpenAICompatModel is a TextCompletionModel backed by /v1/completions.
// It remembers parameters the server rejected and stops offering them.
type OpenAICompatModel struct {
	client openai.Client
	model  string
	stop   []string

	mu       sync.RWMutex
	rejected map[string]bool
}

// NewOpenAICompatModel creates a completions client for a local server.
func NewOpenAICompatModel(cfg OpenAICompatConfig) *OpenAICompatModel {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultLocalBaseURL
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		// Local servers ignore the key but the client requires one.
		apiKey = "local"
	}
	stop := cfg.Stop
	if stop == nil {
		stop = DefaultStopSequences
	}
	return &OpenAICompatModel{
		client: openai.NewClient(
			option.WithBaseURL(baseURL+"/"),
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
		),
		model:    cfg.Model,
		stop:     stop,
		rejected: make(map[string]bool),
	}
}

func (m *OpenAICompatModel) Name() string {
	if m.model == "" {
		return "local"
	}
	return m.model
}

// SupportsParam reports false for parameters the server has rejected before.
func (m *OpenAICompatModel) SupportsParam(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.rejected[name]
}

func (m *OpenAICompatModel) markRejected(name string) {
	m.mu.Lock()
	m.rejected[name] = true
	m.mu.Unlock()
}

func (m *OpenAICompatModel) request(prompt string, attempt Attempt) (openai.CompletionNewParams, []option.RequestOption) {
	params := openai.CompletionNewParams{
		Model:  openai.CompletionNewParamsModel(m.model),
		Prompt: openai.CompletionNewParamsPromptUnion{OfString: openai.String(prompt)},
	}
	if attempt.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(attempt.MaxTokens))
	}

	var opts []option.RequestOption
	if len(m.stop) > 0 {
		opts = append(opts, option.WithJSONSet("stop", m.stop))
	}

	values := attempt.Params
	if attempt.Sampler != nil {
		values = attempt.Sampler.Params()
	}
	for name, v := range values {
		switch name {
		case ParamTemperature, "temp":
			params.Temperature = openai.Float(v)
		case ParamTopP:
			params.TopP = openai.Float(v)
		case ParamTopK:
			opts = append(opts, option.WithJSONSet("top_k", int(v)))
		default:
			opts = append(opts, option.WithJSONSet(name, v))
		}
	}
	return params, opts
}

func (m *OpenAICompatModel) GenerateOnce(ctx context.Context, prompt string, attempt Attempt) (string, error) {
	params, opts := m.request(prompt, attempt)
	resp, err := m.client.Completions.New(ctx, params, opts...)
	if err != nil {
		return "", m.wrapError(err, attempt)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Text, nil
}

// StreamGenerate opens a streaming completion. The first chunk is read
// before returning so request errors surface here rather than mid-stream.
func (m *OpenAICompatModel) StreamGenerate(ctx context.Context, prompt string, attempt Attempt) (TextStream, error) {
	params, opts := m.request(prompt, attempt)
	stream := m.client.Completions.NewStreaming(ctx, params, opts...)
	s := &completionStream{stream: stream, model: m, attempt: attempt}
	if !stream.Next() {
		if err := stream.Err(); err != nil {
			stream.Close()
			return nil, m.wrapError(err, attempt)
		}
		s.done = true
		return s, nil
	}
	s.pending = chunkText(stream.Current())
	s.hasPending = true
	return s, nil
}

// wrapError turns a 400/422 naming one of the attempt's parameters into a
// *ParamError and records the parameter as unsupported.
func (m *OpenAICompatModel) wrapError(err error, attempt Attempt) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("completion request: %w", err)
	}
	if apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnprocessableEntity {
		param := apiErr.Param
		if param == "" {
			param, _ = rejectedParam(err, attempt)
		}
		if param != "" && attempt.Has(param) {
			m.markRejected(param)
			return &ParamError{Param: param, Err: err}
		}
	}
	return fmt.Errorf("completion request (status %d): %w", apiErr.StatusCode, err)
}

func chunkText(c openai.Completion) string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Text
}

type completionStream struct {
	stream  *ssestream.Stream[openai.Completion]
	model   *OpenAICompatModel
	attempt Attempt

	pending    string
	hasPending bool
	done       bool
}

func (s *completionStream) Recv() (string, error) {
	if s.hasPending {
		s.hasPending = false
		return s.pending, nil
	}
	if s.done {
		return "", io.EOF
	}
	if s.stream.Next() {
		return chunkText(s.stream.Current()), nil
	}
	s.done = true
	if err := s.stream.Err(); err != nil {
		return "", s.model.wrapError(err, s.attempt)
	}
	return "", io.EOF
}

func (s *completionStream) Close() error {
	s.done = true
	return s.stream.Close()
}
