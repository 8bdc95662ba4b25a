package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/blogify-ai/blogify/internal/store"
)

// DashboardHandler aggregates counts for the admin dashboard.
type DashboardHandler struct {
	Store *store.Store
}

func (h *DashboardHandler) Dashboard(c echo.Context) error {
	ctx := c.Request().Context()
	counts, err := h.Store.CountPostsByStatus(ctx)
	if err != nil {
		return err
	}
	pending, err := h.Store.PendingTopicCount(ctx)
	if err != nil {
		return err
	}
	procs, err := h.Store.ListProcesses(ctx, 10)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"posts_by_status": counts,
		"pending_topics":  pending,
		"recent_cycles":   procs,
	})
}
