package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/blogify-ai/blogify/internal/search"
	"github.com/blogify-ai/blogify/internal/store"
	"github.com/blogify-ai/blogify/internal/telemetry"
)

// PostsHandler serves the public blog endpoints and the post admin actions.
type PostsHandler struct {
	Store *store.Store
	Index *search.Index
}

func (h *PostsHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/search", h.search)
	g.GET("/:slug", h.get)
	g.POST("/:id/publish", h.publish)
	g.POST("/:id/archive", h.archive)
}

type postSummary struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Slug            string `json:"slug"`
	MetaDescription string `json:"meta_description"`
	TemplateID      string `json:"template_id"`
	PublishedAt     string `json:"published_at,omitempty"`
	ViewCount       int    `json:"view_count"`
}

func summarize(p store.BlogPost) postSummary {
	s := postSummary{
		ID:              p.ID,
		Title:           p.Title,
		Slug:            p.Slug,
		MetaDescription: p.MetaDescription,
		TemplateID:      p.TemplateID,
		ViewCount:       p.ViewCount,
	}
	if p.PublishedAt != nil {
		s.PublishedAt = p.PublishedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return s
}

func (h *PostsHandler) list(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}
	posts, err := h.Store.ListPostsByStatus(c.Request().Context(), store.StatusPublished, limit, offset)
	if err != nil {
		return err
	}
	out := make([]postSummary, 0, len(posts))
	for _, p := range posts {
		out = append(out, summarize(p))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"posts": out, "limit": limit, "offset": offset})
}

func (h *PostsHandler) get(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := h.Store.GetPostBySlug(ctx, c.Param("slug"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "post not found")
	}
	if err != nil {
		return err
	}
	if p.Status != store.StatusPublished {
		return echo.NewHTTPError(http.StatusNotFound, "post not found")
	}
	if err := h.Store.IncrementViewCount(ctx, p.ID); err == nil {
		p.ViewCount++
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"post":         summarize(p),
		"content_html": p.ContentHTML,
	})
}

func (h *PostsHandler) publish(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	err := h.Store.PublishPost(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "post not found")
	case errors.Is(err, store.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, "post cannot be published from its current status")
	case err != nil:
		return err
	}
	telemetry.PostsPublishedTotal.WithLabelValues("api").Inc()
	if h.Index != nil {
		indexPost(ctx, h.Store, h.Index, id)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": store.StatusPublished})
}

func (h *PostsHandler) archive(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	err := h.Store.ArchivePost(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "post not found")
	case err != nil:
		return err
	}
	if h.Index != nil {
		if err := h.Index.Remove(id); err != nil {
			c.Logger().Warnf("removing %s from search index: %v", id, err)
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": store.StatusArchived})
}

func (h *PostsHandler) search(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	hits, err := h.Index.Search(q, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"query": q, "hits": hits})
}
