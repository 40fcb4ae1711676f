package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kisansathi/orchestrator/internal/domain"
	"github.com/kisansathi/orchestrator/internal/input"
)

// HandleQuery runs one conversational turn: resolve the session, normalize
// the input, drive the oracle stream and commit the turn to history.
// Exactly one turn is appended per successful call; on any surfaced error
// the history is left untouched.
func (s *Service) HandleQuery(ctx context.Context, req domain.AskRequest) (*domain.AskResponse, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if strings.TrimSpace(req.Query) == "" && strings.TrimSpace(req.Transcript) == "" && req.ImageBase64 == "" {
		return nil, fmt.Errorf("query, transcript or image is required")
	}

	sess, created := s.sessions.ResolveOrCreate(req.UserID, req.SessionID)
	turnID := "turn_" + uuid.New().String()[:8]
	logger := s.logger.With("session_id", sess.ID, "turn_id", turnID, "user_id", req.UserID)
	logger.Info("turn started", "session_created", created)

	s.recordTrace(ctx, sess.ID, turnID, domain.TraceTurnStarted, map[string]any{
		"user_id":         req.UserID,
		"session_created": created,
	})

	var imageBytes []byte
	if req.ImageBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			// Same degradation as undecodable image content: drop the
			// media, keep the text.
			logger.Warn("image is not valid base64, dropping", "error", err)
		} else {
			imageBytes = decoded
		}
	}

	segments, err := input.Normalize(req.UserID, req.Query, req.Transcript, imageBytes)
	if err != nil {
		if !errors.Is(err, input.ErrInvalidMedia) {
			s.recordTrace(ctx, sess.ID, turnID, domain.TraceTurnFailed, map[string]string{"error": err.Error()})
			return nil, err
		}
		logger.Warn("invalid media dropped", "error", err)
	}

	s.recordTrace(ctx, sess.ID, turnID, domain.TraceUserInput, map[string]any{
		"segments": len(segments),
		"query":    req.Query,
	})

	stream, err := s.oracle.OpenTurn(ctx, sess.History, segments, s.registry.Specs())
	if err != nil {
		s.recordTrace(ctx, sess.ID, turnID, domain.TraceTurnFailed, map[string]string{"error": err.Error()})
		return nil, fmt.Errorf("failed to open turn: %w", err)
	}
	defer stream.Close()

	agg, err := s.consumeStream(ctx, stream, sess.ID, turnID, req.UserID)
	if err != nil {
		logger.Error("turn failed", "error", err)
		s.recordTrace(ctx, sess.ID, turnID, domain.TraceTurnFailed, map[string]string{"error": err.Error()})
		s.publish(sess.ID, turnID, "turn_failed", map[string]string{"error": err.Error()})
		return nil, err
	}

	turn := domain.Turn{
		ID:            turnID,
		InputSegments: segments,
		ToolCalls:     agg.toolCalls,
		ReplyText:     agg.replyText,
		CreatedAt:     time.Now(),
	}
	if err := s.sessions.AppendTurn(sess.ID, turn); err != nil {
		s.recordTrace(ctx, sess.ID, turnID, domain.TraceTurnFailed, map[string]string{"error": err.Error()})
		return nil, fmt.Errorf("failed to commit turn: %w", err)
	}

	s.recordTrace(ctx, sess.ID, turnID, domain.TraceTurnDone, map[string]any{
		"tool_calls": len(agg.toolCalls),
		"incomplete": agg.incomplete,
	})
	s.publish(sess.ID, turnID, "turn_done", map[string]any{"reply": agg.replyText})
	logger.Info("turn done", "tool_calls", len(agg.toolCalls), "incomplete", agg.incomplete)

	return &domain.AskResponse{
		Reply:     agg.replyText,
		SessionID: sess.ID,
		Tool:      domain.Summaries(agg.toolCalls),
	}, nil
}
