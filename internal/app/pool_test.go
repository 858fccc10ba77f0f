package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolDropsTriggerWhileSourceInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	pool := NewPool(2, 4, func(ctx context.Context, src domain.SourceConfig) error {
		started <- struct{}{}
		<-release
		return nil
	}, nil)
	pool.Start(context.Background())

	src := domain.SourceConfig{Name: "daily"}
	require.NoError(t, pool.Submit(src))
	<-started

	err := pool.Submit(src)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCycleInFlight)

	close(release)
	pool.Stop()

	m := pool.Metrics()
	assert.Equal(t, int64(1), m.Dropped)
	assert.Equal(t, int64(1), m.Completed)
	assert.Equal(t, int64(0), m.Failed)
	assert.Equal(t, 2, m.Workers)
}

func TestPoolAcceptsSourceAgainAfterCycle(t *testing.T) {
	var mu sync.Mutex
	runs := 0
	done := make(chan struct{}, 2)
	pool := NewPool(1, 1, func(ctx context.Context, src domain.SourceConfig) error {
		mu.Lock()
		runs++
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, nil)
	pool.Start(context.Background())

	src := domain.SourceConfig{Name: "daily"}
	require.NoError(t, pool.Submit(src))
	<-done
	require.Eventually(t, func() bool { return pool.Metrics().Running == 0 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return pool.Submit(src) == nil }, time.Second, 5*time.Millisecond)
	<-done
	pool.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, runs)
}

func TestPoolQueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	pool := NewPool(1, 1, func(ctx context.Context, src domain.SourceConfig) error {
		if src.Name == "first" {
			started <- struct{}{}
		}
		<-release
		return nil
	}, nil)
	pool.Start(context.Background())

	require.NoError(t, pool.Submit(domain.SourceConfig{Name: "first"}))
	<-started
	require.NoError(t, pool.Submit(domain.SourceConfig{Name: "second"}))

	err := pool.Submit(domain.SourceConfig{Name: "third"})
	assert.ErrorIs(t, err, ErrPoolFull)
	assert.Equal(t, 1, pool.Metrics().Queued)

	close(release)
	pool.Stop()
	assert.Equal(t, int64(2), pool.Metrics().Completed)
}

func TestPoolCountsFailuresAndPanics(t *testing.T) {
	pool := NewPool(1, 4, func(ctx context.Context, src domain.SourceConfig) error {
		switch src.Name {
		case "broken":
			return errors.New("listing unreachable")
		case "partial":
			return &domain.PartialCycleFailure{Source: src.Name}
		case "open":
			return domain.ErrCircuitOpen
		case "panics":
			panic("boom")
		}
		return nil
	}, nil)
	pool.Start(context.Background())

	for _, name := range []string{"broken", "partial", "open", "panics"} {
		require.NoError(t, pool.Submit(domain.SourceConfig{Name: name}))
	}
	pool.Stop()

	m := pool.Metrics()
	assert.Equal(t, int64(2), m.Failed)
	assert.Equal(t, int64(2), m.Completed)
	assert.Equal(t, 0, m.Running)
}

func TestPoolSubmitAfterStop(t *testing.T) {
	pool := NewPool(1, 1, func(ctx context.Context, src domain.SourceConfig) error { return nil }, nil)
	pool.Start(context.Background())
	pool.Stop()

	assert.Error(t, pool.Submit(domain.SourceConfig{Name: "daily"}))
}

func TestCycleFailed(t *testing.T) {
	assert.False(t, cycleFailed(nil))
	assert.False(t, cycleFailed(&domain.PartialCycleFailure{Source: "daily"}))
	assert.False(t, cycleFailed(domain.ErrCircuitOpen))
	assert.False(t, cycleFailed(context.Canceled))
	assert.True(t, cycleFailed(errors.New("discover: listing unreachable")))
}
