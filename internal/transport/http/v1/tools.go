package v1

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
)

type toolView struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ListTools returns the registered tools in registration order.
func (h *Handler) ListTools(c echo.Context) error {
	descriptors := h.service.Tools()
	out := make([]toolView, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, toolView{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"tools": out})
}
