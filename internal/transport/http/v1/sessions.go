package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/kisansathi/orchestrator/internal/domain"
	"github.com/kisansathi/orchestrator/internal/session"
)

type turnView struct {
	TurnID    string                   `json:"turn_id"`
	ReplyText string                   `json:"reply_text"`
	ToolCalls []domain.ToolCallSummary `json:"tool_calls,omitempty"`
	CreatedAt int64                    `json:"created_at"`
}

// GetSessionTurns returns a session's conversation history.
func (h *Handler) GetSessionTurns(c echo.Context) error {
	sessionID := c.Param("session_id")

	sess, err := h.service.Session(sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	turns := make([]turnView, 0, len(sess.History))
	for _, t := range sess.History {
		turns = append(turns, turnView{
			TurnID:    t.ID,
			ReplyText: t.ReplyText,
			ToolCalls: domain.Summaries(t.ToolCalls),
			CreatedAt: t.CreatedAt.UnixMilli(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"user_id":    sess.UserID,
		"turns":      turns,
	})
}

// GetSessionEvents returns a session's trace events for replay.
func (h *Handler) GetSessionEvents(c echo.Context) error {
	sessionID := c.Param("session_id")

	afterTs := int64(0)
	if v := c.QueryParam("after_ts"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid after_ts"})
		}
		afterTs = parsed
	}
	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = parsed
	}

	events, err := h.service.TurnEvents(c.Request().Context(), sessionID, afterTs, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if events == nil {
		events = []domain.TraceEvent{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"session_id": sessionID,
		"events":     events,
	})
}
