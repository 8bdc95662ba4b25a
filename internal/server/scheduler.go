package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/blogify-ai/blogify/config"
	"github.com/blogify-ai/blogify/internal/automation"
	"github.com/blogify-ai/blogify/internal/queue/streams"
	"github.com/blogify-ai/blogify/internal/search"
	"github.com/blogify-ai/blogify/internal/store"
	"github.com/blogify-ai/blogify/internal/telemetry"
)

const schedulerTick = 30 * time.Second

// Scheduler triggers pipeline cycles, trend refreshes and the publish sweep
// on their configured cadences. The Redis lock is best effort: without
// Redis, two replicas may dispatch the same cycle.
type Scheduler struct {
	Store     *store.Store
	Rdb       *redis.Client
	Publisher *streams.Publisher
	Orch      *automation.Orchestrator
	Index     *search.Index
	Cfg       config.AutomationConfig
	Logger    *log.Logger

	lastFetch *time.Time
	lastSweep time.Time
}

func (s *Scheduler) Start(ctx context.Context) {
	if s.Logger == nil {
		s.Logger = log.Default()
	}
	ticker := time.NewTicker(schedulerTick)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *Scheduler) tick(ctx context.Context) {
	s.maybeDispatchCycle(ctx)
	s.maybeFetchTrends(ctx)
	s.maybeSweep(ctx)
}

func (s *Scheduler) maybeDispatchCycle(ctx context.Context) {
	last, err := s.Store.LatestProcessTime(ctx, automation.StepPipeline)
	if err != nil {
		s.Logger.Printf("latest cycle time: %v", err)
		return
	}
	if !isDue(s.Cfg.CycleCron, last, time.Now()) {
		return
	}
	if !s.tryLock(ctx, "sched:lock:cycle") {
		return
	}
	id, err := s.Publisher.PublishCycle(ctx, streams.CycleRequest{Source: "scheduler"})
	if err != nil {
		s.Logger.Printf("queueing cycle: %v", err)
		return
	}
	s.Logger.Printf("queued automation cycle event %s", id)
}

func (s *Scheduler) maybeFetchTrends(ctx context.Context) {
	now := time.Now()
	if !isDue(s.Cfg.FetchCron, s.lastFetch, now) {
		return
	}
	if !s.tryLock(ctx, "sched:lock:fetch") {
		return
	}
	s.lastFetch = &now
	go func() {
		if _, err := s.Orch.FetchTrends(ctx); err != nil {
			s.Logger.Printf("trend fetch: %v", err)
		}
	}()
}

// maybeSweep publishes scheduled posts whose time has come. Archived posts
// are never touched.
func (s *Scheduler) maybeSweep(ctx context.Context) {
	now := time.Now()
	if now.Sub(s.lastSweep) < s.Cfg.PublishSweepEvery {
		return
	}
	s.lastSweep = now
	published, err := s.Store.PublishDue(ctx, now)
	if err != nil {
		s.Logger.Printf("publish sweep: %v", err)
		return
	}
	for _, p := range published {
		telemetry.PostsPublishedTotal.WithLabelValues("sweep").Inc()
		if s.Index != nil {
			if err := s.Index.Add(p.ID, searchDoc(p)); err != nil {
				s.Logger.Printf("indexing %s: %v", p.ID, err)
			}
		}
	}
	if len(published) > 0 {
		s.Logger.Printf("publish sweep released %d posts", len(published))
	}
}

func (s *Scheduler) tryLock(ctx context.Context, key string) bool {
	if s.Rdb == nil {
		return true
	}
	ok, err := s.Rdb.SetNX(ctx, key, "1", 2*time.Minute).Result()
	if err != nil {
		// Redis trouble must not stop scheduling on a single instance.
		return true
	}
	return ok
}

// isDue reports whether a job with the given cron spec should run now given
// its last run time. Supports @hourly, @daily and 5-field cron expressions;
// invalid specs degrade to @daily.
func isDue(cronSpec string, last *time.Time, now time.Time) bool {
	switch cronSpec {
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
