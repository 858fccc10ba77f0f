package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-article-pipeline/internal/config"
	"github.com/samvad-hq/samvad-article-pipeline/internal/crawler"
	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/sources"
	"golang.org/x/sync/errgroup"
)

// Collector runs one cycle for every configured source and exits. Breakers
// still apply, so a source that is open is skipped.
type Collector struct {
	rt  *runtime
	log logger.Logger
}

// CollectorReport summarizes a one-shot run.
type CollectorReport struct {
	Cycles  []crawler.CycleResult
	Skipped []string
	Failed  map[string]error
}

// NewCollector builds a collector runtime from config files.
func NewCollector(ctx context.Context, cfg *config.Config, log logger.Logger) (*Collector, error) {
	rt, err := newRuntime(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &Collector{rt: rt, log: rt.log}, nil
}

// Only restricts the run to the named sources, in the given order. Repeated
// names run once.
func (c *Collector) Only(names []string) error {
	if c == nil || c.rt == nil {
		return fmt.Errorf("collector is not initialized")
	}
	if len(names) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(names))
	picked := make([]domain.SourceConfig, 0, len(names))
	var unknown []string
	for _, name := range names {
		src, ok := sources.SourceByName(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if seen[src.Name] {
			continue
		}
		seen[src.Name] = true
		picked = append(picked, src)
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown sources: %s", strings.Join(unknown, ", "))
	}
	c.rt.sources = picked
	return nil
}

// Run crawls every source once with at most worker_count cycles in parallel.
// It returns an error joining every whole-cycle failure.
func (c *Collector) Run(ctx context.Context) (CollectorReport, error) {
	report := CollectorReport{Failed: map[string]error{}}
	if c == nil || c.rt == nil {
		return report, fmt.Errorf("collector is not initialized")
	}
	defer c.rt.close()

	srcs := c.rt.sources
	if len(srcs) == 0 {
		c.log.WarnObj("no sources configured; nothing to collect", "sources_file", c.rt.cfg.SourcesFile)
		return report, nil
	}

	start := time.Now()
	c.log.InfoObj("collection started", "crawl_meta", map[string]any{
		"sources_count": len(srcs),
		"started_at":    start.UTC(),
	})

	results := make([]crawler.CycleResult, len(srcs))
	errs := make([]error, len(srcs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.rt.cfg.WorkerCount)
	for i, src := range srcs {
		g.Go(func() error {
			results[i], errs[i] = c.rt.crawler.RunCycle(gctx, src)
			return nil
		})
	}
	_ = g.Wait()

	var failures []error
	for i, src := range srcs {
		err := errs[i]
		switch {
		case errors.Is(err, domain.ErrCircuitOpen):
			report.Skipped = append(report.Skipped, src.Name)
			continue
		case cycleFailed(err):
			report.Failed[src.Name] = err
			failures = append(failures, fmt.Errorf("source %q: %w", src.Name, err))
		}
		report.Cycles = append(report.Cycles, results[i])
	}

	c.rt.emitBreakers(context.WithoutCancel(ctx))
	c.log.InfoObj("collection completed", "crawl_meta", map[string]any{
		"sources_count": len(srcs),
		"skipped":       len(report.Skipped),
		"failed":        len(report.Failed),
		"elapsed_ms":    time.Since(start).Milliseconds(),
	})
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, errors.Join(failures...)
}
