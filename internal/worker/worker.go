// Package worker consumes queued cycle requests and runs the pipeline for
// each one, with per-event idempotency so redeliveries do not produce
// duplicate posts.
package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/blogify-ai/blogify/internal/automation"
	"github.com/blogify-ai/blogify/internal/queue/streams"
	"github.com/blogify-ai/blogify/internal/telemetry"
)

const (
	// Group is the consumer group all pipeline workers share.
	Group = "blogify-workers"

	idempotencyScope = "cycle-event"
	readBlock        = 5 * time.Second
	readCount        = 8
	claimMinIdle     = 2 * time.Minute
)

// CycleRunner runs one pipeline cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context, opts automation.Options) (automation.CycleResult, error)
}

// IdempotencyStore claims processing slots keyed by scope and key.
type IdempotencyStore interface {
	ClaimIdempotency(ctx context.Context, scope, key string) (bool, error)
}

// Consumer is the slice of the streams consumer the worker needs.
type Consumer interface {
	Read(ctx context.Context, stream string, opts ...streams.ConsumerOption) ([]streams.Message, error)
	Ack(ctx context.Context, stream string, ids ...string) error
	AutoClaim(ctx context.Context, stream string, minIdle time.Duration, start string, count int64) ([]streams.Message, string, error)
}

// Worker ties a stream consumer to the pipeline orchestrator.
type Worker struct {
	consumer Consumer
	runner   CycleRunner
	idem     IdempotencyStore
	logger   *log.Logger

	// OnResult, when set, is called after each successful cycle. The server
	// uses it to refresh the search index.
	OnResult func(ctx context.Context, res automation.CycleResult)
}

func New(consumer Consumer, runner CycleRunner, idem IdempotencyStore, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{consumer: consumer, runner: runner, idem: idem, logger: logger}
}

// Run consumes cycle events until the context is cancelled. Pending entries
// abandoned by dead consumers are reclaimed periodically.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Printf("[WORKER] consuming %s", streams.StreamCycles)
	claimStart := "0-0"
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := w.consumer.Read(ctx, streams.StreamCycles, streams.WithBlock(readBlock), streams.WithCount(readCount))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Printf("[WORKER] read: %v", err)
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			w.handle(ctx, msg)
		}

		if len(msgs) == 0 {
			claimed, next, err := w.consumer.AutoClaim(ctx, streams.StreamCycles, claimMinIdle, claimStart, readCount)
			if err != nil {
				w.logger.Printf("[WORKER] autoclaim: %v", err)
				continue
			}
			claimStart = next
			for _, msg := range claimed {
				w.handle(ctx, msg)
			}
		}
	}
}

// handle processes one envelope and always acks it: failed cycles are
// recorded in process_logs, so redelivering them would only duplicate work.
func (w *Worker) handle(ctx context.Context, msg streams.Message) {
	env := msg.Envelope
	if env.EventType != streams.EventCycleRequested {
		w.logger.Printf("[WORKER] skipping unknown event type %q", env.EventType)
		telemetry.QueueEventsTotal.WithLabelValues(env.EventType, "skipped").Inc()
		w.ack(ctx, msg.ID)
		return
	}

	fresh, err := w.idem.ClaimIdempotency(ctx, idempotencyScope, env.EventID)
	if err != nil {
		w.logger.Printf("[WORKER] idempotency claim for %s: %v", env.EventID, err)
		// Leave unacked; the claim will be retried on redelivery.
		return
	}
	if !fresh {
		telemetry.QueueEventsTotal.WithLabelValues(env.EventType, "duplicate").Inc()
		w.ack(ctx, msg.ID)
		return
	}

	var req streams.CycleRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		w.logger.Printf("[WORKER] bad cycle request %s: %v", env.EventID, err)
		telemetry.QueueEventsTotal.WithLabelValues(env.EventType, "failed").Inc()
		w.ack(ctx, msg.ID)
		return
	}

	res, err := w.runner.RunCycle(ctx, automation.Options{
		Topic:    req.Topic,
		Template: req.Template,
		Publish:  req.Publish,
	})
	if err != nil {
		w.logger.Printf("[WORKER] cycle %s failed: %v", res.ProcessID, err)
		telemetry.QueueEventsTotal.WithLabelValues(env.EventType, "failed").Inc()
		w.ack(ctx, msg.ID)
		return
	}

	telemetry.QueueEventsTotal.WithLabelValues(env.EventType, "processed").Inc()
	if w.OnResult != nil {
		w.OnResult(ctx, res)
	}
	w.ack(ctx, msg.ID)
}

func (w *Worker) ack(ctx context.Context, id string) {
	if err := w.consumer.Ack(ctx, streams.StreamCycles, id); err != nil {
		w.logger.Printf("[WORKER] ack %s: %v", id, err)
	}
}
