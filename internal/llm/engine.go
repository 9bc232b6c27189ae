package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/samsaffron/localagent/internal/repetition"
	"github.com/samsaffron/localagent/internal/toolcall"
)

const (
	defaultMaxRounds        = 4
	defaultMaxCallsPerRound = 3

	// FallbackReply is returned when no round produced visible text.
	FallbackReply = "I could not produce a reply."

	answerDirectlyHint = "IMPORTANT: Do not call any tools. Use the tool results above and answer the user directly."

	// runawayCheckStride is how many new bytes arrive between runaway checks.
	runawayCheckStride = 48
)

var errEmptyTurn = errors.New("turn has no user text and no history")

// EngineConfig configures the round loop.
type EngineConfig struct {
	SystemPrompt     string
	MaxRounds        int
	MaxCallsPerRound int
	ToolOutputLimit  int
	Defaults         Defaults
}

// Engine alternates model generation with tool execution for one user turn
// at a time.
type Engine struct {
	model       TextCompletionModel
	executor    ToolExecutor
	extractor   *toolcall.Extractor
	renderer    PromptRenderer
	config      EngineConfig
	debugLogger *DebugLogger

	observer   TurnObserver
	observerMu sync.RWMutex

	// backend is held for a whole round's attempt sequence; the model
	// serves one generation at a time.
	backend sync.Mutex

	newCallID func() string
}

// NewEngine creates an engine. executor may be nil, in which case no tool
// is ever active; a nil extractor uses the built-in catalog.
func NewEngine(model TextCompletionModel, executor ToolExecutor, extractor *toolcall.Extractor, config EngineConfig) *Engine {
	if extractor == nil {
		extractor = toolcall.NewExtractor(nil)
	}
	if config.MaxRounds <= 0 {
		config.MaxRounds = defaultMaxRounds
	}
	if config.MaxCallsPerRound <= 0 {
		config.MaxCallsPerRound = defaultMaxCallsPerRound
	}
	if config.ToolOutputLimit <= 0 {
		config.ToolOutputLimit = defaultToolOutputLimit
	}
	return &Engine{
		model:     model,
		executor:  executor,
		extractor: extractor,
		renderer:  ChatMLRenderer{},
		config:    config,
		newCallID: func() string {
			return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		},
	}
}

// SetDebugLogger sets the debug logger for this engine.
func (e *Engine) SetDebugLogger(logger *DebugLogger) {
	e.debugLogger = logger
}

// SetRenderer replaces the prompt renderer.
func (e *Engine) SetRenderer(r PromptRenderer) {
	if r != nil {
		e.renderer = r
	}
}

// SetObserver sets the collaborator that persists tool events and results.
// Thread-safe: can be called while a turn is in progress.
func (e *Engine) SetObserver(o TurnObserver) {
	e.observerMu.Lock()
	e.observer = o
	e.observerMu.Unlock()
}

func (e *Engine) getObserver() TurnObserver {
	e.observerMu.RLock()
	o := e.observer
	e.observerMu.RUnlock()
	return o
}

// Model returns the backend name.
func (e *Engine) Model() string {
	return e.model.Name()
}

// Catalog returns the tool catalog calls are resolved against.
func (e *Engine) Catalog() *toolcall.Catalog {
	return e.extractor.Catalog()
}

// Run executes one user turn and returns its result.
func (e *Engine) Run(ctx context.Context, req TurnRequest) (*ModelResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return e.runTurn(ctx, req, nil)
}

// Stream executes one user turn, yielding text deltas and tool events as
// they happen, followed by EventDone.
func (e *Engine) Stream(ctx context.Context, req TurnRequest) (*TurnStream, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return newTurnStream(ctx, func(ctx context.Context, emit func(Event) error) error {
		result, err := e.runTurn(ctx, req, emit)
		if err != nil {
			return err
		}
		return e.emit(emit, Event{Type: EventDone, Result: result})
	}), nil
}

func validateRequest(req TurnRequest) error {
	if strings.TrimSpace(req.Plan.UserText) == "" && len(req.History) == 0 {
		return errEmptyTurn
	}
	return nil
}

// roundState is private to one user turn.
type roundState struct {
	round        int
	toolsAllowed bool
	turns        []Turn
	events       []ToolEvent
	mood         string
	lastVisible  string
	streamed     string
}

// partial returns the best reply text produced so far.
func (s *roundState) partial() string {
	if s.streamed != "" {
		return s.streamed
	}
	return s.lastVisible
}

func (e *Engine) runTurn(ctx context.Context, req TurnRequest, emit func(Event) error) (*ModelResult, error) {
	active := e.activeTools(req.Plan.ActiveTools)
	state := &roundState{toolsAllowed: len(active) > 0}
	params := ResolveParams(req.Plan, e.config.Defaults)

	for ; state.round < e.config.MaxRounds; state.round++ {
		if ctx.Err() != nil {
			return nil, &CancelledError{Partial: state.partial()}
		}

		prompt := e.renderer.Render(e.promptTurns(req, state, active))
		p := params
		if state.toolsAllowed {
			p = p.forToolRound()
		}
		attempts := attemptsFor(p, e.model)
		direct := emit != nil && state.round == 0 && len(active) == 0
		e.debugLogger.LogRound(state.round, e.model.Name(), prompt, attempts, state.toolsAllowed, direct)

		var text string
		var err error
		if direct {
			text, err = e.streamRound(ctx, state, prompt, attempts, emit)
		} else {
			text, err = e.generateRound(ctx, state, prompt, attempts)
		}
		if err != nil {
			return nil, err
		}

		res := e.extractor.Extract(text)
		if res.Mood != "" {
			state.mood = res.Mood
		}
		if strings.TrimSpace(res.Visible) != "" {
			state.lastVisible = strings.TrimSpace(res.Visible)
		}

		if len(res.Calls) == 0 || !state.toolsAllowed {
			if len(res.Calls) > 0 {
				slog.Debug("ignoring tool calls in a round without tools", "round", state.round, "calls", len(res.Calls))
			}
			return e.finalize(ctx, req, state, res.Visible, state.round+1, emit)
		}

		if err := e.executeCalls(ctx, req, state, res, active, emit); err != nil {
			return nil, err
		}
		// One tool round per user turn.
		state.toolsAllowed = false
	}

	slog.Warn("round limit reached without a final reply", "model", e.model.Name(), "max_rounds", e.config.MaxRounds)
	return e.finalize(ctx, req, state, "", state.round, emit)
}

// activeTools returns the requested tools the executor can run, in request
// order without duplicates.
func (e *Engine) activeTools(requested []string) []string {
	if e.executor == nil {
		return nil
	}
	var active []string
	for _, name := range requested {
		if name == "" || slices.Contains(active, name) || !e.executor.HasTool(name) {
			continue
		}
		active = append(active, name)
	}
	return active
}

func (e *Engine) promptTurns(req TurnRequest, state *roundState, active []string) []Turn {
	turns := make([]Turn, 0, len(req.History)+len(state.turns)+2)
	if sys := e.systemPrompt(req.Plan, state, active); sys != "" {
		turns = append(turns, SystemTurn(sys))
	}
	turns = append(turns, req.History...)
	if text := strings.TrimSpace(req.Plan.UserText); text != "" {
		turns = append(turns, UserTurn(text))
	}
	return append(turns, state.turns...)
}

func (e *Engine) systemPrompt(plan GenerationPlan, state *roundState, active []string) string {
	var parts []string
	if s := strings.TrimSpace(e.config.SystemPrompt); s != "" {
		parts = append(parts, s)
	}
	cat := e.extractor.Catalog()
	if state.toolsAllowed {
		parts = append(parts, toolInstructions(cat, active))
	} else if len(state.events) > 0 {
		parts = append(parts, answerDirectlyHint)
	}
	if s := moodInstructions(cat, plan.ContextMood); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n")
}

func (e *Engine) generateRound(ctx context.Context, state *roundState, prompt string, attempts []Attempt) (string, error) {
	e.backend.Lock()
	defer e.backend.Unlock()

	return e.tryAttempts(ctx, state, attempts, func(att Attempt) (string, error) {
		return e.model.GenerateOnce(ctx, prompt, att)
	})
}

func (e *Engine) streamRound(ctx context.Context, state *roundState, prompt string, attempts []Attempt, emit func(Event) error) (string, error) {
	e.backend.Lock()
	defer e.backend.Unlock()

	sanitizer := toolcall.NewStreamSanitizer(e.extractor.Catalog())
	return e.tryAttempts(ctx, state, attempts, func(att Attempt) (string, error) {
		stream, err := e.model.StreamGenerate(ctx, prompt, att)
		if err != nil {
			return "", err
		}
		defer stream.Close()
		return e.consumeStream(ctx, state, stream, sanitizer, emit)
	})
}

// tryAttempts runs attempts in order. A rejected keyword parameter is
// dropped and the same attempt retried before moving on.
func (e *Engine) tryAttempts(ctx context.Context, state *roundState, attempts []Attempt, run func(Attempt) (string, error)) (string, error) {
	queue := slices.Clone(attempts)
	var lastErr error
	tried := 0
	for len(queue) > 0 {
		if ctx.Err() != nil {
			return "", &CancelledError{Partial: state.partial()}
		}
		att := queue[0]
		queue = queue[1:]
		tried++

		text, err := run(att)
		if err == nil {
			return text, nil
		}
		var cancelled *CancelledError
		if errors.As(err, &cancelled) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", &CancelledError{Partial: state.partial()}
		}

		lastErr = err
		e.debugLogger.LogAttemptFailed(state.round, att, err)
		if param, ok := rejectedParam(err, att); ok && att.Kind == AttemptKeywords {
			if next := att.Without(param); len(next.Params) > 0 && len(next.Params) < len(att.Params) {
				slog.Debug("backend rejected parameter, retrying without it", "model", e.model.Name(), "param", param)
				queue = append([]Attempt{next}, queue...)
				continue
			}
		}
		slog.Debug("attempt failed", "model", e.model.Name(), "attempt", att.String(), "error", err)
	}
	return "", &GenerationError{Model: e.model.Name(), Attempts: tried, Err: lastErr}
}

func (e *Engine) consumeStream(ctx context.Context, state *roundState, stream TextStream, sanitizer *toolcall.StreamSanitizer, emit func(Event) error) (string, error) {
	var resolver DeltaResolver
	checked := 0
	for {
		if ctx.Err() != nil {
			return "", &CancelledError{Partial: state.partial()}
		}
		payload, err := stream.Recv()
		if err == io.EOF {
			return resolver.Text(), nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", &CancelledError{Partial: state.partial()}
			}
			if resolver.Text() == "" {
				return "", err
			}
			// Text already reached the caller, so another attempt would repeat it.
			slog.Warn("stream interrupted, keeping partial reply", "model", e.model.Name(), "error", err)
			return resolver.Text(), nil
		}

		delta := resolver.Push(payload)
		if delta == "" {
			continue
		}
		if visible := sanitizer.Push(delta); visible != "" {
			state.streamed = sanitizer.Emitted()
			if err := e.emit(emit, Event{Type: EventTextDelta, Text: visible}); err != nil {
				return "", &CancelledError{Partial: state.partial()}
			}
		}

		if text := resolver.Text(); len(text)-checked >= runawayCheckStride {
			checked = len(text)
			if repetition.IsRunaway(text) {
				slog.Warn("runaway repetition, stopping stream", "model", e.model.Name(), "chars", len(text))
				return text, nil
			}
		}
	}
}

func (e *Engine) executeCalls(ctx context.Context, req TurnRequest, state *roundState, res toolcall.Result, active []string, emit func(Event) error) error {
	calls := res.Calls
	if n := e.config.MaxCallsPerRound; len(calls) > n {
		slog.Debug("dropping extra tool calls", "found", len(calls), "max", n)
		calls = calls[:n]
	}

	cat := e.extractor.Catalog()
	observer := e.getObserver()
	made := make([]ToolCall, 0, len(calls))
	results := make([]Turn, 0, len(calls))

	for _, c := range calls {
		if ctx.Err() != nil {
			return &CancelledError{Partial: state.partial()}
		}
		call := ToolCall{ID: e.newCallID(), Name: c.Name, Arguments: c.Arguments}
		if err := e.emit(emit, Event{Type: EventToolStart, Call: &call, DisplayName: cat.DisplayName(call.Name)}); err != nil {
			return &CancelledError{Partial: state.partial()}
		}
		if observer != nil {
			observer.OnToolStart(ctx, req.SessionID, call)
		}

		ev := e.executeCall(ctx, req.SessionID, state.round, call, active)
		state.events = append(state.events, ev)
		made = append(made, call)
		results = append(results, ToolTurn(call.ID, toolOutputContent(ev, e.config.ToolOutputLimit)))

		if observer != nil {
			observer.OnToolResult(ctx, req.SessionID, ev)
		}
		if err := e.emit(emit, Event{Type: EventToolResult, ToolEvent: &ev}); err != nil {
			return &CancelledError{Partial: state.partial()}
		}
	}

	state.turns = append(state.turns, AssistantTurn(strings.TrimSpace(res.Visible), made))
	state.turns = append(state.turns, results...)
	return nil
}

// executeCall runs one call. Failures, including panics, become error events.
func (e *Engine) executeCall(ctx context.Context, sessionID string, round int, call ToolCall, active []string) (ev ToolEvent) {
	ev = ToolEvent{CallID: call.ID, Name: call.Name}

	if !slices.Contains(active, call.Name) {
		ev.Status = ToolStatusError
		ev.Output = errorOutput(fmt.Errorf("tool %q is not available", call.Name))
		return ev
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("tool panicked", "tool", call.Name, "panic", r)
			ev.Status = ToolStatusError
			ev.Output = errorOutput(fmt.Errorf("tool %s panicked: %v", call.Name, r))
		}
	}()

	rc := RuntimeContext{SessionID: sessionID, CallID: call.ID, Round: round}
	out, err := e.executor.Execute(ctx, call.Name, call.Arguments, rc)
	if err != nil {
		slog.Warn("tool failed", "tool", call.Name, "call_id", call.ID, "error", err)
		ev.Status = ToolStatusError
		ev.Output = errorOutput(err)
		return ev
	}
	if out == nil {
		out = map[string]any{}
	}
	ev.Status = ToolStatusOK
	ev.Output = out
	return ev
}

func (e *Engine) finalize(ctx context.Context, req TurnRequest, state *roundState, visible string, rounds int, emit func(Event) error) (*ModelResult, error) {
	reply := strings.TrimSpace(visible)
	if reply == "" {
		reply = state.lastVisible
	}
	if reply == "" {
		reply = FallbackReply
	}

	result := &ModelResult{
		Reply:      reply,
		Mood:       state.mood,
		ToolEvents: state.events,
		Model:      e.model.Name(),
		Rounds:     rounds,
	}

	if emit != nil {
		// Whatever was streamed live stays; only the unseen part is sent.
		if delta := unseenTail(reply, state.streamed); delta != "" {
			if err := e.emit(emit, Event{Type: EventTextDelta, Text: delta}); err != nil {
				return nil, &CancelledError{Partial: state.partial()}
			}
		}
	}

	if observer := e.getObserver(); observer != nil {
		observer.OnResult(ctx, req.SessionID, result)
	}
	e.debugLogger.LogResult(result)
	return result, nil
}

// unseenTail returns the part of reply a stream consumer has not seen yet.
// When reply diverges from what was streamed, everything after the common
// prefix is sent so the consumer still receives the end of the reply.
func unseenTail(reply, streamed string) string {
	streamed = strings.TrimLeftFunc(streamed, unicode.IsSpace)
	if streamed == "" {
		return reply
	}
	if strings.HasPrefix(reply, streamed) {
		return reply[len(streamed):]
	}
	n := 0
	for n < len(reply) && n < len(streamed) && reply[n] == streamed[n] {
		n++
	}
	for n > 0 && n < len(reply) && !utf8.RuneStart(reply[n]) {
		n--
	}
	return reply[n:]
}

func (e *Engine) emit(emit func(Event) error, ev Event) error {
	e.debugLogger.LogEvent(ev)
	if emit == nil {
		return nil
	}
	return emit(ev)
}
