package app

import (
	"context"

	"github.com/samvad-hq/samvad-article-pipeline/internal/crawler"
	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/internal/events"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/publishers"
)

// ArticleHistory is the seen-article record kept by storage.
type ArticleHistory interface {
	SeenArticle(id string) (bool, error)
	MarkArticle(id string) error
}

// PublishingStore is the article store: it publishes each batch as one
// articles event and remembers what was handed off, under both the final and
// the discovered URL, so later cycles skip or report duplicates instead of
// publishing again.
type PublishingStore struct {
	history ArticleHistory
	out     events.Dispatcher
	log     logger.Logger
}

// NewPublishingStore builds the article store over history and out.
func NewPublishingStore(history ArticleHistory, out events.Dispatcher, log logger.Logger) *PublishingStore {
	return &PublishingStore{history: history, out: out, log: logger.Ensure(log)}
}

// Save publishes the articles of batch not already in history. The batch is
// delivered once it reaches at least one publisher; it fails as a whole when
// no publisher accepts it.
func (s *PublishingStore) Save(ctx context.Context, batch domain.ArticleBatch) []domain.SaveResult {
	results := make([]domain.SaveResult, len(batch.Articles))
	fresh := make([]domain.ExtractedArticle, 0, len(batch.Articles))
	freshIdx := make([]int, 0, len(batch.Articles))

	for i, a := range batch.Articles {
		results[i] = domain.SaveResult{ArticleID: a.ID, URL: a.URL}
		seen, err := s.history.SeenArticle(a.ID)
		if err != nil {
			s.log.WarnObj("article history lookup failed", "history_error", map[string]any{
				"source": batch.SourceName,
				"id":     a.ID,
				"error":  err.Error(),
			})
		}
		if seen {
			results[i].Status = domain.SaveDuplicate
			continue
		}
		fresh = append(fresh, a)
		freshIdx = append(freshIdx, i)
	}
	if len(fresh) == 0 {
		return results
	}

	delivered, err := s.out.Publish(ctx, publishers.NewArticlesEvent(domain.ArticleBatch{
		JobID:      batch.JobID,
		SourceName: batch.SourceName,
		Articles:   fresh,
	}))
	if err != nil && delivered == 0 {
		for _, i := range freshIdx {
			results[i].Status = domain.SaveFailed
			results[i].Err = err
		}
		s.log.ErrorObj("article batch not delivered", "publish_error", map[string]any{
			"source":   batch.SourceName,
			"job_id":   batch.JobID,
			"articles": len(fresh),
			"error":    err.Error(),
		})
		return results
	}
	if err != nil {
		s.log.WarnObj("article batch partially delivered", "publish_error", map[string]any{
			"source":    batch.SourceName,
			"job_id":    batch.JobID,
			"delivered": delivered,
			"error":     err.Error(),
		})
	}

	for _, i := range freshIdx {
		results[i].Status = domain.SaveSaved
		for _, id := range crawler.HistoryIDs(batch.Articles[i]) {
			if err := s.history.MarkArticle(id); err != nil {
				s.log.WarnObj("mark article failed", "history_error", map[string]any{
					"source": batch.SourceName,
					"id":     id,
					"error":  err.Error(),
				})
			}
		}
	}
	s.log.InfoObj("article batch published", "publish_meta", map[string]any{
		"source":     batch.SourceName,
		"job_id":     batch.JobID,
		"published":  len(fresh),
		"duplicates": len(batch.Articles) - len(fresh),
		"publishers": delivered,
	})
	return results
}
