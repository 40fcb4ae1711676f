package v1

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/kisansathi/orchestrator/internal/domain"
	"github.com/kisansathi/orchestrator/internal/oracle"
)

// Ask handles one farmer query turn.
func (h *Handler) Ask(c echo.Context) error {
	var req domain.AskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.UserID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}
	if strings.TrimSpace(req.Query) == "" && strings.TrimSpace(req.Transcript) == "" && req.ImageBase64 == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "query, transcript or image is required"})
	}

	resp, err := h.service.HandleQuery(c.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, oracle.ErrUnavailable):
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "assistant temporarily unavailable, please retry"})
		case errors.Is(err, oracle.ErrProtocol):
			return c.JSON(http.StatusBadGateway, map[string]string{"error": "assistant returned a malformed response"})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, resp)
}
