package oracle

import (
	"context"
	"io"
	"sync"

	"github.com/kisansathi/orchestrator/internal/domain"
)

// ScriptedOracle is a TurnOpener that replays a fixed event script.
// Used in tests and local development without a live oracle endpoint.
type ScriptedOracle struct {
	// Script is emitted in order; end the script with a KindFinished
	// event unless the test exercises implicit stream exhaustion.
	Script []Event
	// OpenErr, when set, is returned from OpenTurn.
	OpenErr error
	// RecvErr, when set, is returned after the script is exhausted
	// instead of io.EOF.
	RecvErr error

	mu       sync.Mutex
	results  []ToolResult
	history  []domain.Turn
	segments []domain.Segment
	tools    []ToolSpec
	opens    int
}

// OpenTurn captures the request for later assertions and returns a stream
// over the script.
func (m *ScriptedOracle) OpenTurn(_ context.Context, history []domain.Turn, segments []domain.Segment, tools []ToolSpec) (TurnStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	m.opens++
	m.history = history
	m.segments = segments
	m.tools = tools
	return &scriptedStream{parent: m, script: m.Script}, nil
}

// Results returns the tool results submitted so far, in submission order.
func (m *ScriptedOracle) Results() []ToolResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ToolResult, len(m.results))
	copy(out, m.results)
	return out
}

// Opens returns how many turns were opened.
func (m *ScriptedOracle) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// LastSegments returns the segments of the most recent turn.
func (m *ScriptedOracle) LastSegments() []domain.Segment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.segments
}

// LastHistory returns the history of the most recent turn.
func (m *ScriptedOracle) LastHistory() []domain.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history
}

// LastTools returns the tool specs of the most recent turn.
func (m *ScriptedOracle) LastTools() []ToolSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tools
}

type scriptedStream struct {
	parent *ScriptedOracle
	script []Event
	pos    int
}

func (s *scriptedStream) Recv(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if s.pos >= len(s.script) {
		if s.parent.RecvErr != nil {
			return Event{}, s.parent.RecvErr
		}
		return Event{}, io.EOF
	}
	ev := s.script[s.pos]
	s.pos++
	return ev, nil
}

func (s *scriptedStream) SubmitToolResult(ctx context.Context, res ToolResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	s.parent.results = append(s.parent.results, res)
	return nil
}

func (s *scriptedStream) Close() error { return nil }
