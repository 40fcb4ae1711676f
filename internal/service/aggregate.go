package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kisansathi/orchestrator/internal/domain"
	"github.com/kisansathi/orchestrator/internal/oracle"
	"github.com/kisansathi/orchestrator/internal/policy"
)

// aggregate is the outcome of consuming one oracle event stream.
type aggregate struct {
	replyText  string
	toolCalls  []domain.ToolCall
	incomplete bool
}

// consumeStream drives the oracle event stream to completion, dispatching
// tool invocations and accumulating reply text. Tool calls are recorded
// in request order and patched in place when execution finishes, so the
// ordering holds for both sequential and parallel dispatch.
func (s *Service) consumeStream(ctx context.Context, stream oracle.TurnStream, sessionID, turnID, userID string) (*aggregate, error) {
	agg := &aggregate{}
	var reply strings.Builder
	// Under parallel dispatch the consumer appends to agg.toolCalls while
	// dispatch goroutines patch finished entries; both sides hold mu so a
	// patch can never land in an abandoned backing array. wg joins the
	// in-flight dispatchers before the aggregate is handed back, the
	// implicit-finish path included.
	var mu sync.Mutex
	var wg sync.WaitGroup

	for {
		ev, err := stream.Recv(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Stream exhausted without TurnFinished. Treat as an
				// implicit finish but leave a trace of the anomaly.
				agg.incomplete = true
				s.logger.Warn("oracle stream ended without finish event", "session_id", sessionID, "turn_id", turnID)
				s.recordTrace(ctx, sessionID, turnID, domain.TraceIncompleteTurn, map[string]string{"reason": "stream exhausted"})
				break
			}
			return nil, err
		}

		switch ev.Kind {
		case oracle.KindToolInvocation:
			call := domain.ToolCall{
				ID:          ev.CallID,
				Name:        ev.Name,
				Arguments:   ev.Arguments,
				Status:      domain.ToolCallStatusPending,
				RequestedAt: time.Now(),
			}
			if call.ID == "" {
				call.ID = "tc_" + uuid.New().String()[:8]
			}
			mu.Lock()
			idx := len(agg.toolCalls)
			agg.toolCalls = append(agg.toolCalls, call)
			mu.Unlock()
			s.recordTrace(ctx, sessionID, turnID, domain.TraceToolRequested, map[string]any{
				"tool_call_id": call.ID,
				"name":         call.Name,
				"arguments":    call.Arguments,
			})
			s.publish(sessionID, turnID, "tool_requested", map[string]string{"name": call.Name})

			dispatch := func() oracle.ToolResult {
				result := s.executeCall(ctx, userID, &call)
				mu.Lock()
				agg.toolCalls[idx] = call
				mu.Unlock()
				s.recordTrace(ctx, sessionID, turnID, domain.TraceToolResult, map[string]any{
					"tool_call_id": call.ID,
					"name":         call.Name,
					"status":       call.Status,
				})
				s.publish(sessionID, turnID, "tool_result", map[string]string{
					"name":   call.Name,
					"status": string(call.Status),
				})
				return result
			}
			if s.config.ParallelTools {
				wg.Add(1)
				go func() {
					result := dispatch()
					// Done before submit: the call is finalized in the
					// aggregate at this point, and submit may block on a
					// stream that is no longer being drained.
					wg.Done()
					if err := stream.SubmitToolResult(ctx, result); err != nil {
						s.logger.Warn("failed to submit tool result", "name", call.Name, "error", err)
					}
				}()
			} else if err := stream.SubmitToolResult(ctx, dispatch()); err != nil {
				return nil, err
			}

		case oracle.KindToolAck:
			s.logger.Debug("tool result acknowledged", "tool_call_id", ev.CallID, "name", ev.Name)

		case oracle.KindText:
			reply.WriteString(ev.Fragment)
			s.recordTrace(ctx, sessionID, turnID, domain.TraceReplyDelta, map[string]string{"text": ev.Fragment})
			s.publish(sessionID, turnID, "reply_delta", map[string]string{"text": ev.Fragment})
		}

		if ev.Kind == oracle.KindFinished {
			break
		}
	}

	wg.Wait()
	agg.replyText = strings.TrimSpace(reply.String())
	return agg, nil
}

// executeCall runs one tool invocation and finalizes the call record.
// Unknown tools, policy blocks, execution errors and timeouts all become
// FAILED calls; the turn itself continues.
func (s *Service) executeCall(ctx context.Context, userID string, call *domain.ToolCall) oracle.ToolResult {
	finalize := func(status domain.ToolCallStatus, result json.RawMessage) oracle.ToolResult {
		now := time.Now()
		call.Status = status
		call.Result = result
		call.CompletedAt = &now
		return oracle.ToolResult{
			CallID:  call.ID,
			Name:    call.Name,
			Content: result,
			IsError: status == domain.ToolCallStatusFailed,
		}
	}

	desc := s.registry.Get(call.Name)
	if desc == nil {
		s.logger.Warn("oracle requested unknown tool", "name", call.Name)
		return finalize(domain.ToolCallStatusFailed, jsonString("unknown tool"))
	}

	var args map[string]any
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return finalize(domain.ToolCallStatusFailed, jsonString("malformed arguments"))
		}
	} else {
		args = map[string]any{}
	}

	decision, reason, err := s.policy.Evaluate(ctx, policy.Input{
		ToolName: call.Name,
		UserID:   userID,
		Args:     args,
	})
	if err != nil {
		s.logger.Error("policy evaluation failed", "name", call.Name, "error", err)
		return finalize(domain.ToolCallStatusFailed, jsonString("policy evaluation failed"))
	}
	if decision == "block" {
		s.logger.Info("tool blocked by policy", "name", call.Name, "reason", reason)
		msg := "blocked by policy"
		if reason != "" {
			msg += ": " + reason
		}
		return finalize(domain.ToolCallStatusFailed, jsonString(msg))
	}

	timeout := s.config.ToolTimeout
	if desc.Timeout > 0 {
		timeout = desc.Timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result json.RawMessage
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := desc.Execute(execCtx, call.Arguments)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			s.logger.Warn("tool execution failed", "name", call.Name, "error", out.err)
			return finalize(domain.ToolCallStatusFailed, jsonString(out.err.Error()))
		}
		return finalize(domain.ToolCallStatusCompleted, out.result)
	case <-execCtx.Done():
		// The executor keeps running; its result is discarded.
		s.logger.Warn("tool execution timed out", "name", call.Name, "timeout", timeout)
		return finalize(domain.ToolCallStatusFailed, jsonString("timeout"))
	}
}
