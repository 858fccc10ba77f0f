package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samvad-hq/samvad-article-pipeline/internal/config"
	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
	"github.com/samvad-hq/samvad-article-pipeline/internal/schedule"
)

const shutdownGrace = 30 * time.Second

// Harvester is the long-running daemon. Each source's schedule is a cron
// trigger that submits a cycle to a bounded worker pool; metrics snapshots
// are published on a fixed interval.
type Harvester struct {
	rt        *runtime
	scheduler *schedule.Scheduler
	pool      *Pool
	log       logger.Logger
}

// NewHarvester builds a harvester runtime from config files.
func NewHarvester(ctx context.Context, cfg *config.Config, log logger.Logger) (*Harvester, error) {
	rt, err := newRuntime(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	h := &Harvester{
		rt:        rt,
		scheduler: schedule.NewScheduler(cfg.Location(), rt.log),
		log:       rt.log,
	}
	h.pool = NewPool(cfg.WorkerCount, len(rt.sources), h.runCycle, rt.log)
	return h, nil
}

// Run registers every source trigger and serves them until ctx is cancelled.
func (h *Harvester) Run(ctx context.Context) error {
	if h == nil || h.rt == nil {
		return fmt.Errorf("harvester is not initialized")
	}
	defer h.rt.close()

	scheduled, err := h.registerTriggers()
	if err != nil {
		return err
	}
	if scheduled == 0 {
		h.log.WarnObj("no source has an enabled schedule; harvester idle", "sources_file", h.rt.cfg.SourcesFile)
	}

	h.log.InfoObj("harvester loop starting", "harvester_state", map[string]any{
		"sources_count":    len(h.rt.sources),
		"scheduled_count":  scheduled,
		"publishers_count": h.rt.fanout.Size(),
		"workers":          h.rt.cfg.WorkerCount,
		"page_concurrency": h.rt.cfg.PageConcurrency,
		"metrics_interval": h.rt.cfg.MetricsInterval.String(),
	})

	h.pool.Start(ctx)
	h.scheduler.Start()

	ticker := time.NewTicker(h.rt.cfg.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			h.log.InfoObj("harvester loop exiting", "reason", ctx.Err().Error())
			return nil
		case <-ticker.C:
			h.emitMetrics(ctx)
		}
	}
}

func (h *Harvester) registerTriggers() (int, error) {
	scheduled := 0
	for _, src := range h.rt.sources {
		trigger, err := schedule.Translate(src.Schedule)
		if err != nil {
			return 0, fmt.Errorf("schedule for %q: %w", src.Name, err)
		}
		ok, err := h.scheduler.Register(src.Name, trigger, h.fire(src))
		if err != nil {
			return 0, fmt.Errorf("register schedule for %q: %w", src.Name, err)
		}
		if !ok {
			h.log.InfoObj("source schedule disabled", "schedule_meta", map[string]any{"source": src.Name})
			continue
		}
		scheduled++
		next, _ := h.scheduler.Next(src.Name)
		h.log.InfoObj("source scheduled", "schedule_meta", map[string]any{
			"source":  src.Name,
			"trigger": string(trigger),
			"next":    next,
		})
	}
	return scheduled, nil
}

// fire is the trigger callback for src. A trigger that lands while src is
// still queued or running is dropped.
func (h *Harvester) fire(src domain.SourceConfig) func() {
	return func() {
		if err := h.pool.Submit(src); err != nil && !errors.Is(err, domain.ErrCycleInFlight) {
			h.log.WarnObj("source trigger not queued", "queue_error", map[string]any{
				"source": src.Name,
				"error":  err.Error(),
			})
		}
	}
}

func (h *Harvester) runCycle(ctx context.Context, src domain.SourceConfig) error {
	_, err := h.rt.crawler.RunCycle(ctx, src)
	return err
}

func (h *Harvester) emitMetrics(ctx context.Context) {
	m := h.pool.Metrics()
	h.log.InfoObj("queue metrics", "queue_metrics", m)
	h.rt.emitter.EmitQueue(ctx, m)
	h.rt.emitBreakers(ctx)
}

// shutdown stops new triggers, waits for in-flight cycles (which see the
// cancelled context and discard partial work) and flushes final metrics.
func (h *Harvester) shutdown() {
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	h.scheduler.Stop(stopCtx)
	h.pool.Stop()
	h.emitMetrics(stopCtx)
}
