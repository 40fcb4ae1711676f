// Package oracle talks to the tool-selection oracle: an OpenAI-compatible
// chat-completions endpoint (LiteLLM fronting Gemini in production).
//
// A turn is one logical event stream. Internally it may span several
// completion rounds: each time the model requests tool invocations, the
// results are fed back and a follow-up completion is issued, until the
// model produces a final text answer.
package oracle

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kisansathi/orchestrator/internal/domain"
)

// systemInstruction biases the oracle toward calling a tool whenever the
// query carries enough information.
const systemInstruction = `You are a farm assistant that answers farmer queries using tools.
Use crop_diagnosis for images and plant problems.
Use financial_planner for cost, profit and yield questions.
Use inventory_status and reorder_suggestions to manage farm stock.
Use place_reorder to order an item once the farmer confirms a restock.
Use market_price to fetch mandi crop prices.
Use schemes and apply_scheme for government programs.
Use weather_advisory for forecast, alerts and tips.
Use buyer_lookup to find nearby buyers for a crop.
Always call a tool when enough info is present.`

// Client is the chat-completions oracle client.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a new oracle client.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// chatRequest is the chat completion request body.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []toolDef     `json:"tools,omitempty"`
	Stream   bool          `json:"stream,omitempty"`
}

// chatMessage is one conversation message. Content is either a plain
// string or a list of contentPart for multimodal user messages.
type chatMessage struct {
	Role       string     `json:"role"`
	Content    any        `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type toolDef struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type toolCall struct {
	Index    int              `json:"index"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function toolCallFunction `json:"function"`
}

type toolCallFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type streamChunk struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
}

type choice struct {
	Index        int          `json:"index"`
	Delta        *chatMessage `json:"delta,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

type errorResponse struct {
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// OpenTurn opens one logical turn. The stream is single-consumer and not
// restartable.
func (c *Client) OpenTurn(ctx context.Context, history []domain.Turn, segments []domain.Segment, tools []ToolSpec) (TurnStream, error) {
	s := newStream()
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(runCtx, c, buildMessages(history, segments), toolDefs(tools))
	return s, nil
}

func toolDefs(tools []ToolSpec) []toolDef {
	defs := make([]toolDef, len(tools))
	for i, t := range tools {
		defs[i] = toolDef{
			Type: "function",
			Function: toolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return defs
}

// buildMessages converts the cumulative conversation plus the new segments
// into the wire message list. Prior turns contribute text only; images are
// not replayed into history to bound request size.
func buildMessages(history []domain.Turn, segments []domain.Segment) []chatMessage {
	msgs := []chatMessage{{Role: "system", Content: systemInstruction}}

	for _, turn := range history {
		var texts []string
		for _, seg := range turn.InputSegments {
			if seg.Kind == domain.SegmentText {
				texts = append(texts, seg.Text)
			}
		}
		if len(texts) > 0 {
			msgs = append(msgs, chatMessage{Role: "user", Content: strings.Join(texts, "\n")})
		}
		if turn.ReplyText != "" {
			msgs = append(msgs, chatMessage{Role: "assistant", Content: turn.ReplyText})
		}
	}

	msgs = append(msgs, chatMessage{Role: "user", Content: segmentParts(segments)})
	return msgs
}

func segmentParts(segments []domain.Segment) []contentPart {
	parts := make([]contentPart, 0, len(segments))
	for _, seg := range segments {
		switch seg.Kind {
		case domain.SegmentImage:
			encoded := base64.StdEncoding.EncodeToString(seg.Data)
			parts = append(parts, contentPart{
				Type:     "image_url",
				ImageURL: &imageURL{URL: "data:" + seg.MIMEType + ";base64," + encoded},
			})
		case domain.SegmentText:
			parts = append(parts, contentPart{Type: "text", Text: seg.Text})
		}
	}
	return parts
}

// roundResult is the outcome of one completion round.
type roundResult struct {
	calls    []toolCall // requested invocations, in emission order
	finished bool       // the model produced a final answer
}

// completeRound streams one chat completion. Text deltas are forwarded
// through emitText; tool-call deltas are accumulated by index and returned
// once the round finishes.
func (c *Client) completeRound(ctx context.Context, msgs []chatMessage, tools []toolDef, emitText func(string) error) (*roundResult, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: msgs,
		Tools:    tools,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	res := &roundResult{}
	calls := map[int]*toolCall{}
	maxIndex := -1

	reader := bufio.NewReader(resp.Body)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, fmt.Errorf("%w: malformed chunk: %v", ErrProtocol, err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		ch := chunk.Choices[0]

		if ch.Delta != nil {
			if text, ok := ch.Delta.Content.(string); ok && text != "" {
				if err := emitText(text); err != nil {
					return nil, err
				}
			}
			for _, tc := range ch.Delta.ToolCalls {
				acc, ok := calls[tc.Index]
				if !ok {
					acc = &toolCall{Index: tc.Index}
					calls[tc.Index] = acc
					if tc.Index > maxIndex {
						maxIndex = tc.Index
					}
				}
				if tc.ID != "" {
					acc.ID = tc.ID
				}
				if tc.Function.Name != "" {
					acc.Function.Name = tc.Function.Name
				}
				acc.Function.Arguments += tc.Function.Arguments
			}
		}

		switch ch.FinishReason {
		case "":
		case "tool_calls":
			// Requests are delivered complete by now; fall through to
			// [DONE] for stream teardown.
		default:
			res.finished = true
		}
	}

	for i := 0; i <= maxIndex; i++ {
		acc, ok := calls[i]
		if !ok || acc.Function.Name == "" {
			return nil, fmt.Errorf("%w: incomplete tool call at index %d", ErrProtocol, i)
		}
		if acc.ID == "" {
			acc.ID = fmt.Sprintf("call_%d", i)
		}
		res.calls = append(res.calls, *acc)
	}

	if len(res.calls) == 0 && !res.finished {
		// Stream ended without a finish reason; treat as finished.
		res.finished = true
	}
	return res, nil
}

func (c *Client) statusError(resp *http.Response) error {
	respBody, _ := io.ReadAll(resp.Body)
	// 4xx means we sent a bad request, except 429: rate limiting is a
	// transient upstream condition, same as a 5xx.
	base := ErrUnavailable
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		base = ErrProtocol
	}
	var errResp errorResponse
	if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
		return fmt.Errorf("%w: [%d] %s (type: %s)", base, resp.StatusCode, errResp.Error.Message, errResp.Error.Type)
	}
	return fmt.Errorf("%w: [%d] %s", base, resp.StatusCode, string(respBody))
}
