package llm

import (
	"context"
	"io"
	"sync"
)

// TurnStream yields the events of one streamed turn until io.EOF.
// The final event before io.EOF is EventDone carrying the ModelResult.
type TurnStream struct {
	events <-chan Event
	errc   <-chan error
	cancel context.CancelFunc

	closeOnce sync.Once
	err       error
	finished  bool
}

// newTurnStream runs produce in its own goroutine. produce delivers events
// through emit, which fails once the stream is closed or ctx is done.
func newTurnStream(ctx context.Context, produce func(ctx context.Context, emit func(Event) error) error) *TurnStream {
	ctx, cancel := context.WithCancel(ctx)
	events := make(chan Event)
	errc := make(chan error, 1)

	emit := func(ev Event) error {
		select {
		case events <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go func() {
		defer close(events)
		errc <- produce(ctx, emit)
	}()

	return &TurnStream{events: events, errc: errc, cancel: cancel}
}

// Recv blocks for the next event. It returns io.EOF after a successful turn
// and the turn's error otherwise.
func (s *TurnStream) Recv() (Event, error) {
	if s.finished {
		if s.err != nil {
			return Event{}, s.err
		}
		return Event{}, io.EOF
	}
	ev, ok := <-s.events
	if ok {
		return ev, nil
	}
	s.finished = true
	s.err = <-s.errc
	if s.err != nil {
		return Event{}, s.err
	}
	return Event{}, io.EOF
}

// Close stops the producer. It is safe to call more than once.
func (s *TurnStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		// Drain so the producer can observe cancellation and exit.
		for range s.events {
		}
	})
	return nil
}

// Collect drains s and returns the final result.
func Collect(s *TurnStream) (*ModelResult, error) {
	defer s.Close()
	var result *ModelResult
	for {
		ev, err := s.Recv()
		if err == io.EOF {
			return result, nil
		}
		if err != nil {
			return nil, err
		}
		if ev.Type == EventDone {
			result = ev.Result
		}
	}
}
