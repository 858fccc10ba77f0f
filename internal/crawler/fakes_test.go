package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/browser"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/feeds"
)

// fakeSite serves canned HTML keyed by URL. It implements browser.Browser.
type fakeSite struct {
	mu         sync.Mutex
	pages      map[string]string
	redirects  map[string]string
	onNavigate func(url string)
	visits     []string
	opened     int
}

func newFakeSite() *fakeSite {
	return &fakeSite{pages: map[string]string{}, redirects: map[string]string{}}
}

func (s *fakeSite) set(url, html string) {
	s.mu.Lock()
	s.pages[url] = html
	s.mu.Unlock()
}

func (s *fakeSite) NewPage(_ context.Context, _ domain.SourceConfig) (browser.Page, error) {
	s.mu.Lock()
	s.opened++
	s.mu.Unlock()
	return &fakePage{site: s}, nil
}

func (s *fakeSite) Close() error { return nil }

func (s *fakeSite) visited(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.visits {
		if v == url {
			n++
		}
	}
	return n
}

type fakePage struct {
	site *fakeSite
	doc  *goquery.Document
}

func (p *fakePage) Navigate(ctx context.Context, url string) (*goquery.Document, string, error) {
	p.site.mu.Lock()
	p.site.visits = append(p.site.visits, url)
	hook := p.site.onNavigate
	p.site.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	p.site.mu.Lock()
	final := url
	if r, ok := p.site.redirects[url]; ok {
		final = r
	}
	body, ok := p.site.pages[final]
	p.site.mu.Unlock()
	if !ok {
		return nil, "", &domain.TransientFetchError{URL: url, Err: errors.New("status 404")}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	p.doc = doc
	return doc, final, nil
}

func (p *fakePage) WaitForSelector(_ context.Context, selector string, _ time.Duration) error {
	if p.doc != nil && p.doc.Find(selector).Length() > 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrSelectorTimeout, selector)
}

func (p *fakePage) Document() *goquery.Document { return p.doc }
func (p *fakePage) Close() error                { return nil }

// fakeStore accepts every article unless its ID is marked duplicate or failing.
type fakeStore struct {
	mu        sync.Mutex
	batches   []domain.ArticleBatch
	duplicate map[string]bool
	failing   map[string]bool
}

func (s *fakeStore) Save(_ context.Context, batch domain.ArticleBatch) []domain.SaveResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	out := make([]domain.SaveResult, 0, len(batch.Articles))
	for _, a := range batch.Articles {
		r := domain.SaveResult{ArticleID: a.ID, URL: a.URL, Status: domain.SaveSaved}
		switch {
		case s.duplicate[a.ID]:
			r.Status = domain.SaveDuplicate
		case s.failing[a.ID]:
			r.Status = domain.SaveFailed
			r.Err = errors.New("sink unavailable")
		}
		out = append(out, r)
	}
	return out
}

func (s *fakeStore) saved() []domain.ExtractedArticle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ExtractedArticle
	for _, b := range s.batches {
		out = append(out, b.Articles...)
	}
	return out
}

type fakeHistory map[string]bool

func (h fakeHistory) SeenArticle(id string) (bool, error) { return h[id], nil }

type recordedEvents struct {
	mu       sync.Mutex
	jobs     []domain.JobEvent
	breakers []domain.CircuitBreakerMetrics
}

func (r *recordedEvents) EmitJob(_ context.Context, evt domain.JobEvent) {
	r.mu.Lock()
	r.jobs = append(r.jobs, evt)
	r.mu.Unlock()
}

func (r *recordedEvents) EmitBreaker(_ context.Context, m domain.CircuitBreakerMetrics) {
	r.mu.Lock()
	r.breakers = append(r.breakers, m)
	r.mu.Unlock()
}

func (r *recordedEvents) types() []domain.JobEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.JobEventType, 0, len(r.jobs))
	for _, e := range r.jobs {
		out = append(out, e.Type)
	}
	return out
}

type fakeFeedReader struct {
	res feeds.Result
	err error
}

func (f fakeFeedReader) Discover(context.Context, domain.SourceConfig) (feeds.Result, error) {
	return f.res, f.err
}

// listingHTML renders a listing page with one li.story per path.
func listingHTML(next string, paths ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, p := range paths {
		fmt.Fprintf(&b, `<li class="story"><a href="%s">Story %s</a></li>`, p, strings.TrimPrefix(p, "/"))
	}
	b.WriteString("</ul>")
	if next != "" {
		fmt.Fprintf(&b, `<a class="next" href="%s">Next</a>`, next)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func articleHTML(title, body string) string {
	return fmt.Sprintf(`<html><head>
<meta property="og:title" content="%s">
<meta property="article:published_time" content="2025-03-04T08:00:00Z">
<meta name="keywords" content="Politics, Economy">
</head><body><article><h1>%s</h1><div class="article-body"><p>%s</p></div></article></body></html>`, title, title, body)
}

func listingSource() domain.SourceConfig {
	return domain.SourceConfig{
		Name:                "daily",
		Type:                domain.SourceTypeListing,
		ListingURLs:         []string{"https://news.test/latest"},
		BaseURL:             "https://news.test",
		ListingItemSelector: "li.story",
		PaginationSelector:  "a.next",
		LinkFieldSelectors:  domain.LinkSelectors{URL: "a", Title: "a"},
	}
}
