package oracle

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kisansathi/orchestrator/internal/domain"
)

// ErrUnavailable reports a transient oracle failure; the caller may retry
// the whole turn.
var ErrUnavailable = errors.New("oracle unavailable")

// ErrProtocol reports a malformed oracle response; not retryable.
var ErrProtocol = errors.New("oracle protocol error")

// EventKind discriminates the Event tagged union.
type EventKind int

const (
	// KindToolInvocation asks the consumer to execute a tool and submit
	// the result back on the stream.
	KindToolInvocation EventKind = iota
	// KindToolAck confirms a submitted tool result was accepted.
	// Informational, no action required.
	KindToolAck
	// KindText carries a fragment of the reply text.
	KindText
	// KindFinished marks the end of the turn.
	KindFinished
)

// Event is one signal emitted by the oracle during a turn.
type Event struct {
	Kind      EventKind
	CallID    string          // tool invocation id (invocation and ack)
	Name      string          // tool name (invocation and ack)
	Arguments json.RawMessage // tool arguments (invocation only)
	Fragment  string          // reply text fragment (text only)
}

// ToolResult feeds one tool execution outcome back into the turn.
type ToolResult struct {
	CallID  string
	Name    string
	Content json.RawMessage
	IsError bool
}

// ToolSpec describes one invocable tool to the oracle.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// TurnStream is the ordered, finite event sequence for one turn. It is
// single-consumer and not restartable: once Recv has been called, no other
// goroutine may iterate the same stream.
//
// Recv returns io.EOF when the stream is exhausted. A stream that ends
// without a KindFinished event is a defensive signal the consumer should
// treat as an implicit finish.
type TurnStream interface {
	Recv(ctx context.Context) (Event, error)
	SubmitToolResult(ctx context.Context, res ToolResult) error
	Close() error
}

// TurnOpener opens a turn against the tool-selection oracle.
type TurnOpener interface {
	OpenTurn(ctx context.Context, history []domain.Turn, segments []domain.Segment, tools []ToolSpec) (TurnStream, error)
}
