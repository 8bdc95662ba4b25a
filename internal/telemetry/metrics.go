// Package telemetry declares the Prometheus metrics exported by the
// service on /metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts automation cycles by final outcome
	// (completed, fallback, failed).
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogify_cycles_total",
		Help: "Automation cycles run, by outcome",
	}, []string{"outcome"})

	// StepFailuresTotal counts individual pipeline step failures.
	StepFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogify_step_failures_total",
		Help: "Pipeline step failures, by step",
	}, []string{"step"})

	// PostsPublishedTotal counts posts transitioned to published, by path
	// (immediate, sweep, api).
	PostsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogify_posts_published_total",
		Help: "Posts published, by path",
	}, []string{"path"})

	// ProviderRequestsTotal counts LLM provider calls by operation and
	// status (ok, error).
	ProviderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogify_provider_requests_total",
		Help: "LLM provider requests, by operation and status",
	}, []string{"operation", "status"})

	// ProviderLatency observes LLM provider call durations.
	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "blogify_provider_request_seconds",
		Help:    "LLM provider request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// TrendsFetchedTotal counts trending topics fetched and stored.
	TrendsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blogify_trends_fetched_total",
		Help: "Trending topics fetched and stored",
	})

	// QueueEventsTotal counts stream events by event type and result
	// (processed, duplicate, failed).
	QueueEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogify_queue_events_total",
		Help: "Queue events consumed, by type and result",
	}, []string{"event_type", "result"})
)
