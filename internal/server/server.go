// Package server hosts the HTTP API, the scheduler and the pipeline worker
// in one process.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/blogify-ai/blogify/config"
	"github.com/blogify-ai/blogify/internal/automation"
	"github.com/blogify-ai/blogify/internal/catalog"
	"github.com/blogify-ai/blogify/internal/chat"
	"github.com/blogify-ai/blogify/internal/enrich"
	"github.com/blogify-ai/blogify/internal/queue/streams"
	"github.com/blogify-ai/blogify/internal/search"
	"github.com/blogify-ai/blogify/internal/store"
	"github.com/blogify-ai/blogify/internal/trends"
	"github.com/blogify-ai/blogify/internal/trends/serpapi"
	"github.com/blogify-ai/blogify/internal/worker"
	"github.com/blogify-ai/blogify/provider/gemini"
)

func newTrendsClient(cfg config.SerpAPIConfig) trends.Client { return serpapi.New(cfg) }

// Run wires all components and serves until the context is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	e := newEcho()

	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr(),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	var history chat.History
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[HTTP] redis unavailable, using in-memory chat history: %v", err)
		history = chat.NewMemoryHistory()
	} else {
		history = chat.NewRedisHistory(rdb)
	}

	cat, err := catalog.Load(cfg.Templates.CatalogPath, cfg.Templates.Dir)
	if err != nil {
		return fmt.Errorf("loading template catalog: %w", err)
	}

	gem := gemini.New(cfg.Gemini)
	trendsClient := newTrendsClient(cfg.SerpAPI)
	orchLogger := log.New(log.Writer(), "", log.LstdFlags)
	enricher := enrich.New(orchLogger)
	orch := automation.New(cfg.Automation, st, trendsClient, gem, cat, enricher, orchLogger)

	idx, err := search.New()
	if err != nil {
		return err
	}
	if err := rebuildIndex(ctx, st, idx); err != nil {
		log.Printf("[HTTP] search index rebuild: %v", err)
	}

	pub := streams.NewPublisher(rdb)
	if err := streams.EnsureGroup(ctx, rdb, streams.StreamCycles, worker.Group); err != nil {
		log.Printf("[HTTP] ensure consumer group: %v", err)
	}
	consumer := streams.NewConsumer(rdb, worker.Group, "worker-1")
	wrk := worker.New(consumer, orch, st, log.New(log.Writer(), "[WORKER] ", log.LstdFlags))
	wrk.OnResult = func(ctx context.Context, res automation.CycleResult) {
		if res.Published && res.PostID != "" {
			indexPost(ctx, st, idx, res.PostID)
		}
	}
	go func() {
		if err := wrk.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[WORKER] stopped: %v", err)
		}
	}()

	sched := &Scheduler{
		Store:     st,
		Rdb:       rdb,
		Publisher: pub,
		Orch:      orch,
		Index:     idx,
		Cfg:       cfg.Automation,
		Logger:    log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
	}
	sched.Start(ctx)

	registerRoutes(e, st, idx, gem, history, cat, pub)

	go func() {
		<-ctx.Done()
		_ = e.Shutdown(context.Background())
	}()
	if err := e.Start(cfg.Server.Address); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// newEcho builds the Echo instance with the shared middleware and the
// unified JSON error handler.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

func registerRoutes(e *echo.Echo, st *store.Store, idx *search.Index, gem *gemini.Client, history chat.History, cat *catalog.Catalog, pub *streams.Publisher) {
	api := e.Group("/api")

	ph := &PostsHandler{Store: st, Index: idx}
	ph.Register(api.Group("/posts"))

	ch := &ChatHandler{Provider: gem, History: history, Catalog: cat}
	ch.Register(api.Group("/chat"))

	prh := &ProcessesHandler{Store: st}
	prh.Register(api.Group("/processes"))

	dh := &DashboardHandler{Store: st}
	api.GET("/dashboard", dh.Dashboard)

	ah := &AutomationHandler{Publisher: pub}
	ah.Register(api.Group("/automation"))
}

// rebuildIndex loads all published posts into the search index.
func rebuildIndex(ctx context.Context, st *store.Store, idx *search.Index) error {
	const pageSize = 200
	for offset := 0; ; offset += pageSize {
		posts, err := st.ListPostsByStatus(ctx, store.StatusPublished, pageSize, offset)
		if err != nil {
			return err
		}
		for _, p := range posts {
			if err := idx.Add(p.ID, searchDoc(p)); err != nil {
				return err
			}
		}
		if len(posts) < pageSize {
			return nil
		}
	}
}

func indexPost(ctx context.Context, st *store.Store, idx *search.Index, id string) {
	p, err := st.GetPostByID(ctx, id)
	if err != nil {
		log.Printf("[HTTP] indexing post %s: %v", id, err)
		return
	}
	if err := idx.Add(p.ID, searchDoc(p)); err != nil {
		log.Printf("[HTTP] indexing post %s: %v", id, err)
	}
}

func searchDoc(p store.BlogPost) search.Doc {
	return search.Doc{
		Slug:     p.Slug,
		Title:    p.Title,
		Meta:     p.MetaDescription,
		Template: p.TemplateID,
	}
}
