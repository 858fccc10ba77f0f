package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/samvad-hq/samvad-article-pipeline/internal/crawler"
	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/publishers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryHistory struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryHistory(ids ...string) *memoryHistory {
	h := &memoryHistory{seen: make(map[string]bool)}
	for _, id := range ids {
		h.seen[id] = true
	}
	return h
}

func (h *memoryHistory) SeenArticle(id string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seen[id], nil
}

func (h *memoryHistory) MarkArticle(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen[id] = true
	return nil
}

type captureDispatcher struct {
	delivered int
	err       error
	events    []publishers.Event
}

func (d *captureDispatcher) Publish(_ context.Context, evt publishers.Event) (int, error) {
	d.events = append(d.events, evt)
	return d.delivered, d.err
}

func batchOf(ids ...string) domain.ArticleBatch {
	batch := domain.ArticleBatch{JobID: "job-1", SourceName: "daily"}
	for _, id := range ids {
		batch.Articles = append(batch.Articles, domain.ExtractedArticle{ID: id, URL: "https://news.test/" + id})
	}
	return batch
}

func TestPublishingStoreSkipsSeenArticles(t *testing.T) {
	history := newMemoryHistory("a")
	out := &captureDispatcher{delivered: 1}
	store := NewPublishingStore(history, out, nil)

	results := store.Save(context.Background(), batchOf("a", "b"))

	require.Len(t, results, 2)
	assert.Equal(t, domain.SaveDuplicate, results[0].Status)
	assert.Equal(t, domain.SaveSaved, results[1].Status)
	assert.Equal(t, "https://news.test/b", results[1].URL)

	require.Len(t, out.events, 1)
	evt := out.events[0]
	assert.Equal(t, publishers.KindArticles, evt.Kind)
	require.Len(t, evt.Articles, 1)
	assert.Equal(t, "b", evt.Articles[0].ID)

	seen, _ := history.SeenArticle("b")
	assert.True(t, seen)
}

func TestPublishingStoreAllDuplicatesPublishesNothing(t *testing.T) {
	out := &captureDispatcher{delivered: 1}
	store := NewPublishingStore(newMemoryHistory("a", "b"), out, nil)

	results := store.Save(context.Background(), batchOf("a", "b"))

	for _, r := range results {
		assert.Equal(t, domain.SaveDuplicate, r.Status)
	}
	assert.Empty(t, out.events)
}

func TestPublishingStoreUndeliveredBatchFails(t *testing.T) {
	history := newMemoryHistory()
	out := &captureDispatcher{err: errors.New("queue unavailable")}
	store := NewPublishingStore(history, out, nil)

	results := store.Save(context.Background(), batchOf("a", "b"))

	for _, r := range results {
		assert.Equal(t, domain.SaveFailed, r.Status)
		assert.EqualError(t, r.Err, "queue unavailable")
	}
	seen, _ := history.SeenArticle("a")
	assert.False(t, seen, "failed articles must be retried next cycle")
}

func TestPublishingStorePartialDeliveryCountsAsSaved(t *testing.T) {
	history := newMemoryHistory()
	out := &captureDispatcher{delivered: 1, err: errors.New("sns: throttled")}
	store := NewPublishingStore(history, out, nil)

	results := store.Save(context.Background(), batchOf("a"))

	require.Len(t, results, 1)
	assert.Equal(t, domain.SaveSaved, results[0].Status)
	assert.NoError(t, results[0].Err)
	seen, _ := history.SeenArticle("a")
	assert.True(t, seen)
}

func TestPublishingStoreRemembersDiscoveredURLOfRedirectedArticle(t *testing.T) {
	history := newMemoryHistory()
	out := &captureDispatcher{delivered: 1}
	store := NewPublishingStore(history, out, nil)

	moved := domain.ExtractedArticle{
		ID:            crawler.ArticleID("https://news.test/final-a1"),
		URL:           "https://news.test/final-a1",
		DiscoveredURL: "https://news.test/a1",
	}
	results := store.Save(context.Background(), domain.ArticleBatch{SourceName: "daily", Articles: []domain.ExtractedArticle{moved}})
	require.Len(t, results, 1)
	assert.Equal(t, domain.SaveSaved, results[0].Status)

	for _, u := range []string{"https://news.test/final-a1", "https://news.test/a1"} {
		seen, err := history.SeenArticle(crawler.ArticleID(u))
		require.NoError(t, err)
		assert.True(t, seen, u)
	}
}
