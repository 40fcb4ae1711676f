package domain

import "encoding/json"

// AskRequest is the public query request.
type AskRequest struct {
	UserID      string `json:"user_id"`
	Query       string `json:"query"`
	SessionID   string `json:"session_id,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	Transcript  string `json:"transcript,omitempty"`
}

// AskResponse is the public query response.
type AskResponse struct {
	Reply     string            `json:"reply"`
	SessionID string            `json:"session_id"`
	Tool      []ToolCallSummary `json:"tool,omitempty"`
}

// ToolCallSummary is the externally visible slice of a ToolCall.
type ToolCallSummary struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Status    ToolCallStatus  `json:"status"`
}

// Summaries converts tool calls to their external form, preserving order.
func Summaries(calls []ToolCall) []ToolCallSummary {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCallSummary, len(calls))
	for i, tc := range calls {
		out[i] = ToolCallSummary{Name: tc.Name, Arguments: tc.Arguments, Status: tc.Status}
	}
	return out
}
