package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/blogify-ai/blogify/internal/store"
)

// ProcessesHandler backs the automation log viewer.
type ProcessesHandler struct {
	Store *store.Store
}

func (h *ProcessesHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/:id", h.entries)
}

func (h *ProcessesHandler) list(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	procs, err := h.Store.ListProcesses(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	out := make([]map[string]interface{}, 0, len(procs))
	for _, p := range procs {
		out = append(out, map[string]interface{}{
			"process_id": p.ProcessID,
			"started_at": p.StartedAt,
			"steps":      p.Steps,
			"outcome":    p.Outcome,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"processes": out})
}

func (h *ProcessesHandler) entries(c echo.Context) error {
	entries, err := h.Store.ListProcessEntries(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "process not found")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"process_id": c.Param("id"), "entries": entries})
}
