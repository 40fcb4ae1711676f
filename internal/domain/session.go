package domain

import (
	"encoding/json"
	"time"
)

// Session is one farmer's conversation. History is owned by the session
// store; insertion order is preserved and never reordered.
type Session struct {
	ID        string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	History   []Turn    `json:"history"`
}

// Turn is one request/response exchange within a session.
type Turn struct {
	ID            string     `json:"turn_id"`
	InputSegments []Segment  `json:"input_segments"`
	ToolCalls     []ToolCall `json:"tool_calls"`
	ReplyText     string     `json:"reply_text"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Segment is one unit of multimodal input. Exactly one of Text or
// Data/MIMEType is populated, per Kind.
type Segment struct {
	Kind     SegmentKind `json:"kind"`
	Text     string      `json:"text,omitempty"`
	Data     []byte      `json:"data,omitempty"`
	MIMEType string      `json:"mime_type,omitempty"`
}

// TextSegment builds a text segment.
func TextSegment(text string) Segment {
	return Segment{Kind: SegmentText, Text: text}
}

// ImageSegment builds an image segment.
func ImageSegment(data []byte, mimeType string) Segment {
	return Segment{Kind: SegmentImage, Data: data, MIMEType: mimeType}
}

// ToolCall is the record of one tool invocation requested by the oracle.
// It is created PENDING when the invocation event arrives and finalized to
// COMPLETED or FAILED exactly once; finalized calls are immutable.
type ToolCall struct {
	ID          string          `json:"tool_call_id"`
	Name        string          `json:"name"`
	Arguments   json.RawMessage `json:"arguments"`
	Result      json.RawMessage `json:"result,omitempty"`
	Status      ToolCallStatus  `json:"status"`
	RequestedAt time.Time       `json:"requested_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// TraceEvent is one replayable event recorded during a turn.
type TraceEvent struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	TurnID    string          `json:"turn_id"`
	Ts        int64           `json:"ts"` // Unix milliseconds
	Type      TraceEventType  `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
