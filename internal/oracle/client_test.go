package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kisansathi/orchestrator/internal/domain"
)

func sseWrite(w http.ResponseWriter, payloads ...string) {
	for _, p := range payloads {
		fmt.Fprintf(w, "data: %s\n\n", p)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func drain(t *testing.T, s TurnStream) ([]Event, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []Event
	for {
		ev, err := s.Recv(ctx)
		if err != nil {
			if err == io.EOF {
				return events, nil
			}
			return events, err
		}
		events = append(events, ev)
		if ev.Kind == KindFinished {
			return events, nil
		}
	}
}

func TestOpenTurnTextOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseWrite(w,
			`{"choices":[{"index":0,"delta":{"content":"Sow "}}]}`,
			`{"choices":[{"index":0,"delta":{"content":"in November."}}]}`,
			`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "test-model", 5*time.Second)
	stream, err := c.OpenTurn(context.Background(), nil, []domain.Segment{domain.TextSegment("when to sow wheat?")}, nil)
	if err != nil {
		t.Fatalf("OpenTurn: %v", err)
	}
	defer stream.Close()

	events, err := drain(t, stream)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Fragment != "Sow " || events[1].Fragment != "in November." {
		t.Errorf("unexpected fragments: %+v", events[:2])
	}
	if events[2].Kind != KindFinished {
		t.Errorf("expected Finished, got %v", events[2].Kind)
	}
}

func TestOpenTurnToolRound(t *testing.T) {
	var secondBody []byte
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			sseWrite(w,
				`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_abc","type":"function","function":{"name":"market_price","arguments":"{\"crop\":"}}]}}]}`,
				`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"wheat\"}"}}]}}]}`,
				`{"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
			)
			return
		}
		secondBody, _ = io.ReadAll(r.Body)
		sseWrite(w,
			`{"choices":[{"index":0,"delta":{"content":"Wheat sells at 2100."}}]}`,
			`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-test", "test-model", 5*time.Second)
	stream, err := c.OpenTurn(context.Background(), nil, []domain.Segment{domain.TextSegment("wheat price?")}, []ToolSpec{
		{Name: "market_price", Description: "mandi prices", Parameters: json.RawMessage(`{"type":"object"}`)},
	})
	if err != nil {
		t.Fatalf("OpenTurn: %v", err)
	}
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ev, err := stream.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if ev.Kind != KindToolInvocation || ev.Name != "market_price" {
		t.Fatalf("expected market_price invocation, got %+v", ev)
	}
	if string(ev.Arguments) != `{"crop":"wheat"}` {
		t.Errorf("arguments not accumulated across deltas: %s", ev.Arguments)
	}

	err = stream.SubmitToolResult(ctx, ToolResult{
		CallID:  ev.CallID,
		Name:    ev.Name,
		Content: json.RawMessage(`{"price":2100}`),
	})
	if err != nil {
		t.Fatalf("SubmitToolResult: %v", err)
	}

	events, err := drain(t, stream)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if events[0].Kind != KindToolAck {
		t.Errorf("expected ack after result submission, got %+v", events[0])
	}
	last := events[len(events)-1]
	if last.Kind != KindFinished {
		t.Errorf("expected Finished, got %+v", last)
	}
	var text strings.Builder
	for _, e := range events {
		if e.Kind == KindText {
			text.WriteString(e.Fragment)
		}
	}
	if text.String() != "Wheat sells at 2100." {
		t.Errorf("unexpected reply text %q", text.String())
	}
	if !strings.Contains(string(secondBody), `"role":"tool"`) {
		t.Errorf("tool result not fed back to the oracle: %s", secondBody)
	}
	if !strings.Contains(string(secondBody), `"tool_call_id":"call_abc"`) {
		t.Errorf("tool result missing call id: %s", secondBody)
	}
}

func TestOpenTurnClientErrorIsProtocol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"auth_error"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "test-model", time.Second)
	stream, err := c.OpenTurn(context.Background(), nil, []domain.Segment{domain.TextSegment("hi")}, nil)
	if err != nil {
		t.Fatalf("OpenTurn: %v", err)
	}
	defer stream.Close()

	_, err = drain(t, stream)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestOpenTurnRateLimitIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limit exceeded","type":"rate_limit_error"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "test-model", time.Second)
	stream, err := c.OpenTurn(context.Background(), nil, []domain.Segment{domain.TextSegment("hi")}, nil)
	if err != nil {
		t.Fatalf("OpenTurn: %v", err)
	}
	defer stream.Close()

	_, err = drain(t, stream)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for rate limiting, got %v", err)
	}
}

func TestOpenTurnServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "test-model", time.Second)
	stream, err := c.OpenTurn(context.Background(), nil, []domain.Segment{domain.TextSegment("hi")}, nil)
	if err != nil {
		t.Fatalf("OpenTurn: %v", err)
	}
	defer stream.Close()

	_, err = drain(t, stream)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestOpenTurnMalformedChunkIsProtocol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseWrite(w, `{not json`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "test-model", time.Second)
	stream, err := c.OpenTurn(context.Background(), nil, []domain.Segment{domain.TextSegment("hi")}, nil)
	if err != nil {
		t.Fatalf("OpenTurn: %v", err)
	}
	defer stream.Close()

	_, err = drain(t, stream)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestBuildMessagesIncludesHistoryInOrder(t *testing.T) {
	history := []domain.Turn{
		{InputSegments: []domain.Segment{domain.TextSegment("first question")}, ReplyText: "first answer"},
		{InputSegments: []domain.Segment{domain.TextSegment("second question")}, ReplyText: "second answer"},
	}
	msgs := buildMessages(history, []domain.Segment{domain.TextSegment("third question")})

	if msgs[0].Role != "system" {
		t.Fatalf("expected system message first, got %s", msgs[0].Role)
	}
	want := []struct{ role, content string }{
		{"user", "first question"},
		{"assistant", "first answer"},
		{"user", "second question"},
		{"assistant", "second answer"},
	}
	for i, w := range want {
		m := msgs[i+1]
		if m.Role != w.role || m.Content != w.content {
			t.Errorf("message %d: got %s/%v, want %s/%s", i+1, m.Role, m.Content, w.role, w.content)
		}
	}
	parts, ok := msgs[len(msgs)-1].Content.([]contentPart)
	if !ok || len(parts) != 1 || parts[0].Text != "third question" {
		t.Errorf("unexpected final user message: %+v", msgs[len(msgs)-1])
	}
}
