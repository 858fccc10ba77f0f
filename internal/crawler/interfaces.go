package crawler

import (
	"context"

	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/browser"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/feeds"
)

// Discoverer produces a source's candidate links for one cycle.
type Discoverer interface {
	Discover(ctx context.Context, page browser.Page, src domain.SourceConfig) (DiscoveryResult, error)
}

// FeedReader is implemented by the pkg/feeds discoverers.
type FeedReader interface {
	Discover(ctx context.Context, src domain.SourceConfig) (feeds.Result, error)
}

// ArticleStore accepts extracted articles downstream.
type ArticleStore interface {
	Save(ctx context.Context, batch domain.ArticleBatch) []domain.SaveResult
}

// History answers whether an article was already handed downstream.
type History interface {
	SeenArticle(id string) (bool, error)
}

// JobEvents receives job lifecycle events and breaker snapshots.
type JobEvents interface {
	EmitJob(ctx context.Context, evt domain.JobEvent)
	EmitBreaker(ctx context.Context, m domain.CircuitBreakerMetrics)
}

type nopEvents struct{}

func (nopEvents) EmitJob(context.Context, domain.JobEvent)                  {}
func (nopEvents) EmitBreaker(context.Context, domain.CircuitBreakerMetrics) {}

type nopHistory struct{}

func (nopHistory) SeenArticle(string) (bool, error) { return false, nil }
