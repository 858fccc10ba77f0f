package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/httpclient"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/sources"
	"golang.org/x/time/rate"
)

const defaultPollInterval = 500 * time.Millisecond

// Options configure an HTTPBrowser.
type Options struct {
	NavigationTimeout time.Duration
	UserAgent         string
	// PollInterval is how often WaitForSelector reloads a page whose
	// selector has not matched yet.
	PollInterval time.Duration
}

// HTTPBrowser renders pages with plain HTTP GETs. It does not execute
// JavaScript. Navigation for a source is paced by a token bucket shared by
// all pages of that source.
type HTTPBrowser struct {
	client httpclient.Client
	opts   Options
	log    logger.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPBrowser builds a browser over client. A nil client gets a resty
// client with the navigation timeout.
func NewHTTPBrowser(client httpclient.Client, opts Options, log logger.Logger) *HTTPBrowser {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if client == nil {
		client = httpclient.NewRestyClient(opts.NavigationTimeout)
	}
	return &HTTPBrowser{
		client:   client,
		opts:     opts,
		log:      logger.Ensure(log),
		limiters: make(map[string]*rate.Limiter),
	}
}

// NewPage returns a page carrying src's headers and pacing.
func (b *HTTPBrowser) NewPage(_ context.Context, src domain.SourceConfig) (Page, error) {
	if strings.TrimSpace(src.Name) == "" {
		return nil, errors.New("browser: source name is empty")
	}
	return &httpPage{
		browser: b,
		source:  src.Name,
		headers: sources.Headers(src, b.opts.UserAgent),
		limiter: b.limiterFor(src),
	}, nil
}

// Close is a no-op; HTTP pages hold no resources between navigations.
func (b *HTTPBrowser) Close() error { return nil }

func (b *HTTPBrowser) limiterFor(src domain.SourceConfig) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	limit := rate.Inf
	if d := src.RequestDelay(); d > 0 {
		limit = rate.Every(d)
	}
	if l, ok := b.limiters[src.Name]; ok {
		if l.Limit() != limit {
			l.SetLimit(limit)
		}
		return l
	}
	l := rate.NewLimiter(limit, 1)
	b.limiters[src.Name] = l
	return l
}

type httpPage struct {
	browser *HTTPBrowser
	source  string
	headers map[string]string
	limiter *rate.Limiter

	doc      *goquery.Document
	finalURL string
	closed   bool
}

func (p *httpPage) Navigate(ctx context.Context, url string) (*goquery.Document, string, error) {
	if p.closed {
		return nil, "", errors.New("browser: page is closed")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", &domain.TransientFetchError{URL: url, Err: err}
	}

	navCtx, cancel := context.WithTimeout(ctx, p.browser.opts.NavigationTimeout)
	defer cancel()

	resp, err := p.browser.client.Get(navCtx, url, p.headers)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", &domain.TransientFetchError{URL: url, Err: err}
	}
	if code := resp.StatusCode(); code < http.StatusOK || code >= http.StatusMultipleChoices {
		return nil, "", &domain.TransientFetchError{URL: url, Err: fmt.Errorf("unexpected status %d", code)}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, "", &domain.TransientFetchError{URL: url, Err: fmt.Errorf("parse html: %w", err)}
	}

	final := resp.FinalURL()
	if final == "" {
		final = url
	}
	if final != url {
		p.browser.log.DebugObj("navigation redirected", "navigation", map[string]any{
			"source":    p.source,
			"url":       url,
			"final_url": final,
		})
	}
	p.doc = doc
	p.finalURL = final
	return doc, final, nil
}

func (p *httpPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if p.doc == nil {
		return errors.New("browser: no document loaded")
	}
	if p.doc.Find(selector).Length() > 0 {
		return nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(p.browser.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: %q on %s", domain.ErrSelectorTimeout, selector, p.finalURL)
		case <-ticker.C:
			doc, _, err := p.Navigate(ctx, p.finalURL)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			if doc.Find(selector).Length() > 0 {
				return nil
			}
		}
	}
}

func (p *httpPage) Document() *goquery.Document { return p.doc }

func (p *httpPage) Close() error {
	p.closed = true
	p.doc = nil
	return nil
}
