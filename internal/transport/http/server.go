// Package http provides the HTTP server for the farmer assistant.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kisansathi/orchestrator/internal/push"
	"github.com/kisansathi/orchestrator/internal/service"
	v1 "github.com/kisansathi/orchestrator/internal/transport/http/v1"
)

// NewServer creates and configures the public HTTP server.
func NewServer(svc *service.Service, hub *push.Hub) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	handler := v1.NewHandler(svc, hub)
	handler.RegisterRoutes(e)

	return e
}
