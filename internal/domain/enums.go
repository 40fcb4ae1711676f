// Package domain defines the core domain models for the farmer assistant.
package domain

// SegmentKind discriminates the Segment tagged union.
type SegmentKind string

const (
	SegmentText  SegmentKind = "text"
	SegmentImage SegmentKind = "image"
)

// ToolCallStatus represents the status of a tool call within a turn.
type ToolCallStatus string

const (
	ToolCallStatusPending   ToolCallStatus = "PENDING"
	ToolCallStatusCompleted ToolCallStatus = "COMPLETED"
	ToolCallStatusFailed    ToolCallStatus = "FAILED"
)

// TraceEventType represents the type of a turn trace event.
type TraceEventType string

const (
	TraceTurnStarted    TraceEventType = "turn_started"
	TraceUserInput      TraceEventType = "user_input"
	TraceToolRequested  TraceEventType = "tool_requested"
	TraceToolResult     TraceEventType = "tool_result"
	TracePolicyDecision TraceEventType = "policy_decision"
	TraceReplyDelta     TraceEventType = "reply_delta"
	TraceTurnDone       TraceEventType = "turn_done"
	TraceTurnFailed     TraceEventType = "turn_failed"
	TraceIncompleteTurn TraceEventType = "incomplete_turn"
)
