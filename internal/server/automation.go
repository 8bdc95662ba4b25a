package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/blogify-ai/blogify/internal/queue/streams"
)

// AutomationHandler lets operators queue a pipeline run on demand.
type AutomationHandler struct {
	Publisher *streams.Publisher
}

func (h *AutomationHandler) Register(g *echo.Group) {
	g.POST("/run", h.run)
}

type runRequest struct {
	Topic    string `json:"topic"`
	Template string `json:"template"`
	Publish  bool   `json:"publish"`
}

func (h *AutomationHandler) run(c echo.Context) error {
	var req runRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	id, err := h.Publisher.PublishCycle(c.Request().Context(), streams.CycleRequest{
		Topic:    req.Topic,
		Template: req.Template,
		Publish:  req.Publish,
		Source:   "api",
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]string{"event_id": id, "status": "queued"})
}
