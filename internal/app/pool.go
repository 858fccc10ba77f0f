package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
)

// ErrPoolFull is returned when the pool's queue has no room.
var ErrPoolFull = errors.New("crawl queue is full")

// CycleFunc runs one cycle for a source.
type CycleFunc func(ctx context.Context, src domain.SourceConfig) error

// Pool runs source cycles on a fixed number of workers. A source is in
// flight from Submit until its cycle returns; submitting it again meanwhile
// is dropped with domain.ErrCycleInFlight.
type Pool struct {
	workers int
	run     CycleFunc
	jobs    chan domain.SourceConfig
	log     logger.Logger

	mu       sync.Mutex
	inflight map[string]struct{}

	running   atomic.Int64
	dropped   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	wg sync.WaitGroup
}

// NewPool builds a pool with workers goroutines and room for queueSize
// pending cycles.
func NewPool(workers, queueSize int, run CycleFunc, log logger.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}
	return &Pool{
		workers:  workers,
		run:      run,
		jobs:     make(chan domain.SourceConfig, queueSize),
		log:      logger.Ensure(log),
		inflight: make(map[string]struct{}),
	}
}

// Start launches the workers. They exit when ctx ends or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}
}

// Stop closes the queue and waits for running cycles to return.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.jobs != nil {
		close(p.jobs)
		p.jobs = nil
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Submit queues a cycle for src.
func (p *Pool) Submit(src domain.SourceConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.jobs == nil {
		return errors.New("crawl pool stopped")
	}
	if _, busy := p.inflight[src.Name]; busy {
		p.dropped.Add(1)
		p.log.WarnObj("trigger dropped, cycle still running", "queue_drop", map[string]any{
			"source": src.Name,
		})
		return fmt.Errorf("%w: %q", domain.ErrCycleInFlight, src.Name)
	}
	select {
	case p.jobs <- src:
		p.inflight[src.Name] = struct{}{}
		return nil
	default:
		p.dropped.Add(1)
		p.log.WarnObj("trigger dropped, queue full", "queue_drop", map[string]any{
			"source":   src.Name,
			"capacity": cap(p.jobs),
		})
		return fmt.Errorf("%w: %q", ErrPoolFull, src.Name)
	}
}

// Metrics reports the pool's counters.
func (p *Pool) Metrics() domain.QueueMetrics {
	p.mu.Lock()
	queued := 0
	if p.jobs != nil {
		queued = len(p.jobs)
	}
	p.mu.Unlock()

	return domain.QueueMetrics{
		Workers:   p.workers,
		Running:   int(p.running.Load()),
		Queued:    queued,
		Dropped:   p.dropped.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) work(ctx context.Context) {
	defer p.wg.Done()

	p.mu.Lock()
	jobs := p.jobs
	p.mu.Unlock()
	if jobs == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case src, ok := <-jobs:
			if !ok {
				return
			}
			p.execute(ctx, src)
		}
	}
}

func (p *Pool) execute(ctx context.Context, src domain.SourceConfig) {
	p.running.Add(1)
	defer func() {
		p.running.Add(-1)
		p.mu.Lock()
		delete(p.inflight, src.Name)
		p.mu.Unlock()
	}()

	if ctx.Err() != nil {
		return
	}
	err := p.safeRun(ctx, src)
	switch {
	case cycleFailed(err):
		p.failed.Add(1)
	case ctx.Err() == nil:
		p.completed.Add(1)
	}
}

func (p *Pool) safeRun(ctx context.Context, src domain.SourceConfig) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
			p.log.ErrorObj("crawl cycle panicked", "cycle_error", map[string]any{
				"source": src.Name,
				"panic":  fmt.Sprint(r),
			})
		}
	}()
	return p.run(ctx, src)
}
