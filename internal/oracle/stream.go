package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// stream drives the completion rounds for one turn. The driving goroutine
// owns s.err: it is written before s.events is closed, so readers observe
// it through the channel-close happens-before edge.
type stream struct {
	events  chan Event
	results chan ToolResult
	cancel  context.CancelFunc
	err     error
	once    sync.Once
}

func newStream() *stream {
	return &stream{
		events:  make(chan Event),
		results: make(chan ToolResult, 16),
	}
}

func (s *stream) run(ctx context.Context, c *Client, msgs []chatMessage, tools []toolDef) {
	defer close(s.events)

	for {
		res, err := c.completeRound(ctx, msgs, tools, func(text string) error {
			return s.emit(ctx, Event{Kind: KindText, Fragment: text})
		})
		if err != nil {
			s.err = err
			return
		}
		if res.finished {
			_ = s.emit(ctx, Event{Kind: KindFinished})
			return
		}

		for _, tc := range res.calls {
			args := tc.Function.Arguments
			if args == "" {
				args = "{}"
			}
			if !json.Valid([]byte(args)) {
				s.err = fmt.Errorf("%w: tool call %s has malformed arguments", ErrProtocol, tc.Function.Name)
				return
			}
			ev := Event{
				Kind:      KindToolInvocation,
				CallID:    tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(args),
			}
			if err := s.emit(ctx, ev); err != nil {
				s.err = err
				return
			}
		}

		// One result per requested invocation, in whatever order the
		// consumer finishes them.
		byID := make(map[string]ToolResult, len(res.calls))
		for range res.calls {
			select {
			case r := <-s.results:
				byID[r.CallID] = r
				if err := s.emit(ctx, Event{Kind: KindToolAck, CallID: r.CallID, Name: r.Name}); err != nil {
					s.err = err
					return
				}
			case <-ctx.Done():
				s.err = ctx.Err()
				return
			}
		}

		msgs = append(msgs, chatMessage{Role: "assistant", Content: "", ToolCalls: res.calls})
		for _, tc := range res.calls {
			r := byID[tc.ID]
			content := string(r.Content)
			if content == "" {
				content = "{}"
			}
			if r.IsError {
				content = fmt.Sprintf(`{"error":%s}`, content)
			}
			msgs = append(msgs, chatMessage{Role: "tool", ToolCallID: tc.ID, Content: content})
		}
	}
}

func (s *stream) emit(ctx context.Context, ev Event) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv returns the next event. It returns io.EOF once the stream is
// exhausted, or the terminal error if the turn failed.
func (s *stream) Recv(ctx context.Context) (Event, error) {
	select {
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case ev, ok := <-s.events:
		if !ok {
			if s.err != nil {
				return Event{}, s.err
			}
			return Event{}, io.EOF
		}
		return ev, nil
	}
}

// SubmitToolResult feeds one tool outcome back into the turn.
func (s *stream) SubmitToolResult(ctx context.Context, res ToolResult) error {
	select {
	case s.results <- res:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the turn. Safe to call more than once.
func (s *stream) Close() error {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
	return nil
}
