// Package events turns job lifecycle events and metric snapshots into
// publisher envelopes.
package events

import (
	"context"
	"time"

	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/publishers"
)

// Dispatcher is satisfied by *publishers.Fanout.
type Dispatcher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Emitter publishes events best-effort: delivery failures are logged and
// never returned to the crawl.
type Emitter struct {
	out     Dispatcher
	timeout time.Duration
	log     logger.Logger
}

// NewEmitter builds an emitter. A zero timeout means 10s per event.
func NewEmitter(out Dispatcher, timeout time.Duration, log logger.Logger) *Emitter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Emitter{out: out, timeout: timeout, log: logger.Ensure(log)}
}

// EmitJob publishes a job lifecycle event.
func (e *Emitter) EmitJob(ctx context.Context, evt domain.JobEvent) {
	e.publish(ctx, publishers.NewJobEvent(evt))
}

// EmitBreaker publishes a circuit breaker snapshot.
func (e *Emitter) EmitBreaker(ctx context.Context, m domain.CircuitBreakerMetrics) {
	e.publish(ctx, publishers.NewBreakerEvent(m))
}

// EmitQueue publishes a worker pool snapshot.
func (e *Emitter) EmitQueue(ctx context.Context, m domain.QueueMetrics) {
	e.publish(ctx, publishers.NewQueueEvent(m))
}

func (e *Emitter) publish(ctx context.Context, evt publishers.Event) {
	if e == nil || e.out == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if _, err := e.out.Publish(ctx, evt); err != nil {
		e.log.WarnObj("event delivery failed", "event_error", map[string]any{
			"event_type": evt.Type,
			"source":     evt.SourceName,
			"job_id":     evt.JobID,
			"error":      err.Error(),
		})
		return
	}
	e.log.DebugObj("event delivered", "event_delivery", map[string]any{
		"event_type": evt.Type,
		"source":     evt.SourceName,
	})
}
