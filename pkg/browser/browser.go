// Package browser provides the page navigation capability the crawler
// consumes: navigate to a URL, get back a parsed document and the final URL.
package browser

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
)

// Page is one navigation context. A Page is not safe for concurrent use;
// callers wanting parallel fetches open several pages.
type Page interface {
	// Navigate loads url and returns the parsed document plus the URL the
	// page ended up at after redirects.
	Navigate(ctx context.Context, url string) (*goquery.Document, string, error)
	// WaitForSelector blocks until selector matches the current document or
	// timeout elapses.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	// Document returns the currently loaded document, or nil.
	Document() *goquery.Document
	Close() error
}

// Browser hands out pages bound to one source's request settings.
type Browser interface {
	NewPage(ctx context.Context, src domain.SourceConfig) (Page, error)
	Close() error
}
