package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-article-pipeline/internal/config"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/publishers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventSink struct {
	mu     sync.Mutex
	events []publishers.Event
}

func (s *eventSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var evt publishers.Event
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.events = append(s.events, evt)
	s.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
}

func (s *eventSink) ofKind(kind string) []publishers.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []publishers.Event
	for _, e := range s.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func newNewsSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/latest", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><ul>
<li class="story"><a href="/a/1">First story</a></li>
<li class="story"><a href="/a/2">Second story</a></li>
</ul></body></html>`)
	})
	for _, id := range []string{"1", "2"} {
		mux.HandleFunc("/a/"+id, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `<html><head><title>Story %s</title>
<meta property="article:published_time" content="2026-03-01T08:00:00Z">
<meta name="keywords" content="Politics, Economy"></head>
<body><article><h1>Story %s</h1><p>Body of story %s.</p></article></body></html>`, id, id, id)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testConfig(t *testing.T, siteURL, sinkURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	sourcesFile := writeFile(t, dir, "sources.yaml", fmt.Sprintf(`sources:
  - name: daily
    type: listing
    listing_urls: ["%s/latest"]
    listing_item_selector: li.story
    link_selectors:
      url: a
      title: a
    schedule:
      enabled: true
      type: interval
      interval: {value: 15, unit: minute}
`, siteURL))
	publishersFile := writeFile(t, dir, "publishers.yaml", fmt.Sprintf(`publishers:
  - id: sink
    type: http
    http:
      url: %s
`, sinkURL))

	return &config.Config{
		SourcesFile:             sourcesFile,
		PublishersFile:          publishersFile,
		UserAgent:               "pipeline-test",
		Timezone:                "UTC",
		StorageType:             "memory",
		StorageTTL:              time.Hour,
		StorageCleanupInterval:  time.Hour,
		WorkerCount:             2,
		PageConcurrency:         2,
		NavigationTimeout:       5 * time.Second,
		SettleTimeout:           time.Second,
		MaxListingPages:         3,
		MaxListingItems:         50,
		BreakerFailureThreshold: 3,
		BreakerRecovery:         time.Minute,
		BreakerMaxRecovery:      time.Hour,
		DriftRatio:              0.5,
		MetricsInterval:         time.Minute,
	}
}

func TestCollectorPublishesArticlesAndJobEvents(t *testing.T) {
	site := newNewsSite(t)
	sink := &eventSink{}
	sinkSrv := httptest.NewServer(sink)
	t.Cleanup(sinkSrv.Close)

	ctx := context.Background()
	collector, err := NewCollector(ctx, testConfig(t, site.URL, sinkSrv.URL), nil)
	require.NoError(t, err)

	report, err := collector.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Failed)
	assert.Empty(t, report.Skipped)
	require.Len(t, report.Cycles, 1)

	cycle := report.Cycles[0]
	assert.Equal(t, "daily", cycle.Source)
	assert.Equal(t, 2, cycle.Discovered)
	assert.Equal(t, 2, cycle.Saved)
	assert.NotEmpty(t, cycle.ContentHash)

	batches := sink.ofKind(publishers.KindArticles)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Articles, 2)
	first := batches[0].Articles[0]
	assert.Equal(t, site.URL+"/a/1", first.URL)
	assert.Equal(t, "daily", first.SourceName)
	assert.Equal(t, []string{"politics", "economy"}, first.Keywords)
	require.NotNil(t, first.PublishedAt)
	assert.Equal(t, 2026, first.PublishedAt.Year())

	assert.NotEmpty(t, sink.ofKind(publishers.KindJob))
	breakers := sink.ofKind(publishers.KindBreaker)
	require.NotEmpty(t, breakers)
	for _, b := range breakers {
		assert.Equal(t, "daily", b.SourceName)
		require.NotNil(t, b.Breaker)
	}
}

func TestNewCollectorRequiresPublishers(t *testing.T) {
	site := newNewsSite(t)
	cfg := testConfig(t, site.URL, "http://127.0.0.1:1")
	cfg.PublishersFile = writeFile(t, t.TempDir(), "publishers.yaml", `publishers:
  - id: sink
    type: http
    enabled: false
    http:
      url: http://127.0.0.1:1
`)

	_, err := NewCollector(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no publishers configured")
}
