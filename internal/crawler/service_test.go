package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/internal/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cycleNow = time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

type serviceFixture struct {
	site    *fakeSite
	store   *fakeStore
	events  *recordedEvents
	tracker *health.Tracker
	svc     *Service
	src     domain.SourceConfig
}

func newServiceFixture(t *testing.T, history History) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		site:   newFakeSite(),
		store:  &fakeStore{duplicate: map[string]bool{}, failing: map[string]bool{}},
		events: &recordedEvents{},
		src:    listingSource(),
	}
	now := func() time.Time { return cycleNow }
	f.tracker = health.NewTracker(health.NewMemoryStore(), health.DefaultPolicy(), 0.5, now, nil)
	_, err := f.tracker.Register(f.src)
	require.NoError(t, err)

	reg := NewDiscovererRegistry(map[string]Discoverer{
		domain.SourceTypeListing: NewListingDiscoverer(ListingOptions{}, nil),
	})
	svc, err := NewService(Deps{
		Browser:     f.site,
		Discoverers: reg,
		Health:      f.tracker,
		History:     history,
		Store:       f.store,
		Events:      f.events,
	}, Options{PageConcurrency: 2, PageTimeout: time.Second, Now: now}, nil)
	require.NoError(t, err)
	f.svc = svc

	f.site.set("https://news.test/latest", listingHTML("", "/a1", "/a2", "/a3"))
	f.site.set("https://news.test/a1", articleHTML("First story", "Body one."))
	f.site.set("https://news.test/a2", articleHTML("Second story", "Body two."))
	f.site.set("https://news.test/a3", articleHTML("Third story", "Body three."))
	return f
}

func (f *serviceFixture) breaker(t *testing.T) domain.CircuitBreakerMetrics {
	t.Helper()
	m, err := f.tracker.Snapshot(f.src.Name)
	require.NoError(t, err)
	return m
}

func TestRunCycleExtractsAndHandsOffArticles(t *testing.T) {
	f := newServiceFixture(t, nil)

	res, err := f.svc.RunCycle(context.Background(), f.src)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Discovered)
	assert.Equal(t, 3, res.Extracted)
	assert.Equal(t, 3, res.Saved)
	assert.NotEmpty(t, res.JobID)

	saved := f.store.saved()
	require.Len(t, saved, 3)
	assert.Equal(t, "https://news.test/a1", saved[0].URL)
	assert.Equal(t, ArticleID("https://news.test/a1"), saved[0].ID)
	assert.Equal(t, "First story", saved[0].Title)
	assert.Equal(t, "Body one.", saved[0].Body)
	assert.Equal(t, []string{"politics", "economy"}, saved[0].Keywords)
	assert.Equal(t, "daily", saved[0].SourceName)
	require.NotNil(t, saved[0].PublishedAt)
	assert.Equal(t, time.Date(2025, 3, 4, 8, 0, 0, 0, time.UTC), *saved[0].PublishedAt)
	assert.Equal(t, "https://news.test/a3", saved[2].URL)

	assert.Equal(t, []domain.JobEventType{domain.JobStarted, domain.JobProgress, domain.JobCompleted}, f.events.types())
	assert.Equal(t, "closed", f.breaker(t).State)
}

func TestRunCycleUsesFinalURLAfterRedirect(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.site.redirects["https://news.test/a2"] = "https://news.test/2025/03/second-story"
	f.site.set("https://news.test/2025/03/second-story", articleHTML("Second story", "Body two."))

	_, err := f.svc.RunCycle(context.Background(), f.src)
	require.NoError(t, err)

	saved := f.store.saved()
	require.Len(t, saved, 3)
	assert.Equal(t, "https://news.test/2025/03/second-story", saved[1].URL)
	assert.Equal(t, ArticleID("https://news.test/2025/03/second-story"), saved[1].ID)
}

func TestRunCycleSkipsRedirectedLinkOnceHandedOff(t *testing.T) {
	history := fakeHistory{}
	f := newServiceFixture(t, history)
	f.site.redirects["https://news.test/a1"] = "https://news.test/final-a1"
	f.site.set("https://news.test/final-a1", articleHTML("First story", "Body one."))

	_, err := f.svc.RunCycle(context.Background(), f.src)
	require.NoError(t, err)
	saved := f.store.saved()
	require.Len(t, saved, 3)
	assert.Equal(t, "https://news.test/final-a1", saved[0].URL)
	assert.Equal(t, "https://news.test/a1", saved[0].DiscoveredURL)
	assert.Empty(t, saved[1].DiscoveredURL)
	for _, a := range saved {
		for _, id := range HistoryIDs(a) {
			history[id] = true
		}
	}

	f.site.set("https://news.test/latest", listingHTML("", "/a1", "/a2", "/a3", "/a4"))
	f.site.set("https://news.test/a4", articleHTML("Fourth story", "Body four."))
	res, err := f.svc.RunCycle(context.Background(), f.src)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fresh)
	assert.Equal(t, 1, f.site.visited("https://news.test/a1"))
	assert.Equal(t, 1, f.site.visited("https://news.test/a4"))
}

func TestHistoryIDsIncludeDiscoveredURL(t *testing.T) {
	plain := domain.ExtractedArticle{ID: ArticleID("https://news.test/a"), URL: "https://news.test/a"}
	assert.Equal(t, []string{plain.ID}, HistoryIDs(plain))

	moved := plain
	moved.DiscoveredURL = "https://news.test/r?utm=x"
	assert.Equal(t, []string{plain.ID, ArticleID("https://news.test/r?utm=x")}, HistoryIDs(moved))
}

func TestRunCycleEmitsArticleWithoutTitle(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.site.set("https://news.test/latest", `<ul><li class="story"><a href="/untitled"><img src="/thumb.jpg"></a></li></ul>`)
	f.site.set("https://news.test/untitled", "<html><body><p>Only some text here.</p></body></html>")

	res, err := f.svc.RunCycle(context.Background(), f.src)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Saved)

	saved := f.store.saved()
	require.Len(t, saved, 1)
	assert.Empty(t, saved[0].Title)
	assert.Equal(t, "Only some text here.", saved[0].Body)
	assert.Nil(t, saved[0].PublishedAt)
}

func TestRunCycleSkipsArticlesAlreadySeen(t *testing.T) {
	f := newServiceFixture(t, fakeHistory{ArticleID("https://news.test/a2"): true})

	res, err := f.svc.RunCycle(context.Background(), f.src)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Discovered)
	assert.Equal(t, 2, res.Fresh)
	assert.Zero(t, f.site.visited("https://news.test/a2"))
	assert.Len(t, f.store.saved(), 2)
}

func TestRunCycleCountsDuplicatesAsHandedOff(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.store.duplicate[ArticleID("https://news.test/a1")] = true

	res, err := f.svc.RunCycle(context.Background(), f.src)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Saved)
	assert.Equal(t, 1, res.Duplicates)
	assert.Len(t, res.Articles, 3)
}

func TestRunCycleReportsPartialFailure(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.site.set("https://news.test/latest", listingHTML("", "/a1", "/gone", "/a3"))

	res, err := f.svc.RunCycle(context.Background(), f.src)
	var partial *domain.PartialCycleFailure
	require.ErrorAs(t, err, &partial)
	require.Len(t, partial.Failures, 1)
	assert.Equal(t, "https://news.test/gone", partial.Failures[0].URL)
	assert.Equal(t, 2, res.Saved)

	// a partial cycle still counts as a success for the breaker
	m := f.breaker(t)
	assert.Equal(t, "closed", m.State)
	assert.Zero(t, m.Failures)
}

func TestRunCycleStoreFailureIsReported(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.store.failing[ArticleID("https://news.test/a3")] = true

	res, err := f.svc.RunCycle(context.Background(), f.src)
	var partial *domain.PartialCycleFailure
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "https://news.test/a3", partial.Failures[0].URL)
	assert.Equal(t, 2, res.Saved)
}

func TestRunCycleFailsWhenEveryArticleFails(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.site.set("https://news.test/latest", listingHTML("", "/gone1", "/gone2"))

	_, err := f.svc.RunCycle(context.Background(), f.src)
	require.Error(t, err)
	assert.Empty(t, f.store.saved())
	assert.Equal(t, 1, f.breaker(t).Failures)
	assert.Contains(t, f.events.types(), domain.JobFailed)
}

func TestRunCycleDiscoveryFailureOpensBreakerAtThreshold(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.src.ListingURLs = []string{"https://news.test/down"}

	for i := 0; i < 3; i++ {
		_, err := f.svc.RunCycle(context.Background(), f.src)
		require.Error(t, err)
	}
	assert.Equal(t, "open", f.breaker(t).State)

	res, err := f.svc.RunCycle(context.Background(), f.src)
	require.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.Equal(t, SkipCircuitOpen, res.Skipped)
	assert.Equal(t, 3, f.site.visited("https://news.test/down"))
}

func TestRunCycleSkipsExtractionWhenListingUnchanged(t *testing.T) {
	f := newServiceFixture(t, nil)

	_, err := f.svc.RunCycle(context.Background(), f.src)
	require.NoError(t, err)

	res, err := f.svc.RunCycle(context.Background(), f.src)
	require.NoError(t, err)
	assert.Equal(t, SkipUnchanged, res.Skipped)
	assert.Len(t, f.store.batches, 1)
	assert.Equal(t, 1, f.site.visited("https://news.test/a1"))

	f.site.set("https://news.test/latest", listingHTML("", "/a4", "/a1", "/a2", "/a3"))
	f.site.set("https://news.test/a4", articleHTML("Fourth story", "Body four."))
	res, err = f.svc.RunCycle(context.Background(), f.src)
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, 4, res.Discovered)
}

func TestRunCycleFlagsDriftButStillExtracts(t *testing.T) {
	f := newServiceFixture(t, nil)
	expected := 20
	f.src.ExpectedCount = &expected

	res, err := f.svc.RunCycle(context.Background(), f.src)
	require.NoError(t, err)
	require.NotNil(t, res.Drift)
	assert.Equal(t, 3, res.Drift.Discovered)
	assert.Equal(t, 20, res.Drift.Expected)
	assert.Len(t, f.store.saved(), 3)
	assert.Equal(t, 1, f.breaker(t).Failures)

	// drift keeps re-extracting even though the listing did not change
	res, err = f.svc.RunCycle(context.Background(), f.src)
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
}

func TestRunCycleCancelledMidBatchDiscardsResults(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	f.site.onNavigate = func(url string) {
		if url == "https://news.test/a2" {
			cancel()
		}
	}

	_, err := f.svc.RunCycle(ctx, f.src)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.store.batches)

	m := f.breaker(t)
	assert.Zero(t, m.Failures)
	assert.Equal(t, "closed", m.State)
}

func TestRunCycleUnknownSourceType(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.src.Type = "carrier-pigeon"

	_, err := f.svc.RunCycle(context.Background(), f.src)
	require.Error(t, err)
	assert.True(t, domain.IsConfiguration(err))
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	_, err := NewService(Deps{}, Options{}, nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrCircuitOpen))
}
