// Package v1 provides the public HTTP handlers.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kisansathi/orchestrator/internal/push"
	"github.com/kisansathi/orchestrator/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	hub     *push.Hub
}

// NewHandler creates a new handler. The hub may be nil; the /ws route is
// only registered when push is enabled.
func NewHandler(svc *service.Service, hub *push.Hub) *Handler {
	return &Handler{
		service: svc,
		hub:     hub,
	}
}

// RegisterRoutes registers the public routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/ask", h.Ask)

	e.GET("/v1/sessions/:session_id/turns", h.GetSessionTurns)
	e.GET("/v1/sessions/:session_id/events", h.GetSessionEvents)
	e.GET("/v1/tools", h.ListTools)

	if h.hub != nil {
		e.GET("/ws", h.Subscribe)
	}

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
