package crawler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/internal/extract"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/browser"
)

// DiscoveryResult is the outcome of one source's link discovery.
type DiscoveryResult struct {
	Links []domain.CandidateLink
	// ContentHash fingerprints the listing content seen this cycle.
	ContentHash string
	// Failures holds listing or feed URLs that could not be loaded.
	Failures []domain.LinkFailure
	Pages    int
}

// ListingOptions bound listing-page walks. Source-level limits win when set.
type ListingOptions struct {
	SettleTimeout time.Duration
	MaxPages      int
	MaxItems      int
}

// ListingDiscoverer walks listing pages with the source's selectors.
type ListingDiscoverer struct {
	opts ListingOptions
	log  logger.Logger
}

// NewListingDiscoverer builds a selector-driven discoverer.
func NewListingDiscoverer(opts ListingOptions, log logger.Logger) *ListingDiscoverer {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 10
	}
	return &ListingDiscoverer{opts: opts, log: logger.Ensure(log)}
}

// Discover walks every listing URL of src. A listing URL that fails to load
// is recorded and the remaining URLs are still walked; an error is returned
// only when no listing URL could be loaded at all, or ctx ends.
func (d *ListingDiscoverer) Discover(ctx context.Context, page browser.Page, src domain.SourceConfig) (DiscoveryResult, error) {
	if page == nil {
		return DiscoveryResult{}, errors.New("listing discovery needs a page")
	}
	if len(src.ListingURLs) == 0 {
		return DiscoveryResult{}, &domain.ConfigurationError{Source: src.Name, Err: errors.New("no listing_urls")}
	}

	w := &listingWalk{
		d:        d,
		page:     page,
		src:      src,
		maxPages: firstPositive(src.MaxPages, d.opts.MaxPages),
		maxItems: firstPositive(src.MaxItems, d.opts.MaxItems),
		hash:     sha256.New(),
		seen:     make(map[string]struct{}),
	}

	loaded := 0
	for _, listing := range src.ListingURLs {
		if w.full() {
			break
		}
		ok, err := w.walk(ctx, listing)
		if err != nil {
			return DiscoveryResult{}, err
		}
		if ok {
			loaded++
		}
	}

	if loaded == 0 {
		errs := make([]error, 0, len(w.res.Failures))
		for _, f := range w.res.Failures {
			errs = append(errs, f.Err)
		}
		return w.res, fmt.Errorf("no listing page of %q could be loaded: %w", src.Name, errors.Join(errs...))
	}
	if w.items > 0 {
		w.res.ContentHash = hex.EncodeToString(w.hash.Sum(nil))
	}
	return w.res, nil
}

type listingWalk struct {
	d        *ListingDiscoverer
	page     browser.Page
	src      domain.SourceConfig
	maxPages int
	maxItems int

	hash  hash.Hash
	items int
	seen  map[string]struct{}
	res   DiscoveryResult
}

func (w *listingWalk) full() bool {
	return w.maxItems > 0 && w.items >= w.maxItems
}

// walk follows one listing URL through its pagination. ok reports whether the
// first page loaded.
func (w *listingWalk) walk(ctx context.Context, listing string) (bool, error) {
	visited := make(map[string]struct{})
	next := listing
	pages := 0

	for next != "" && pages < w.maxPages && !w.full() {
		if _, dup := visited[next]; dup {
			break
		}
		visited[next] = struct{}{}

		doc, final, err := w.page.Navigate(ctx, next)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			w.res.Failures = append(w.res.Failures, domain.LinkFailure{URL: next, Err: err})
			w.d.log.WarnObj("listing page failed", "discovery_error", map[string]any{
				"source": w.src.Name,
				"url":    next,
				"page":   pages + 1,
				"error":  err.Error(),
			})
			return pages > 0, nil
		}
		visited[final] = struct{}{}

		if w.d.opts.SettleTimeout > 0 {
			if err := w.page.WaitForSelector(ctx, w.src.ListingItemSelector, w.d.opts.SettleTimeout); err != nil {
				if ctx.Err() != nil {
					return false, ctx.Err()
				}
				w.d.log.DebugObj("listing did not settle", "discovery_settle", map[string]any{
					"source": w.src.Name,
					"url":    final,
					"error":  err.Error(),
				})
			} else if current := w.page.Document(); current != nil {
				doc = current
			}
		}

		pages++
		w.res.Pages++
		w.collect(doc)
		next = nextPageURL(doc, w.src.PaginationSelector, final)
	}
	return pages > 0, nil
}

func (w *listingWalk) collect(doc *goquery.Document) {
	base := baseFor(w.src.BaseURL)
	doc.Find(w.src.ListingItemSelector).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if w.full() {
			return false
		}
		w.items++
		if html, err := goquery.OuterHtml(item); err == nil {
			w.hash.Write([]byte(html))
		}

		link := linkFromItem(item, w.src.LinkFieldSelectors, base)
		if link.URL == "" {
			return true
		}
		if _, dup := w.seen[link.URL]; dup {
			return true
		}
		w.seen[link.URL] = struct{}{}
		link.Source = w.src.Name
		w.res.Links = append(w.res.Links, link)
		return true
	})
}

// linkFromItem applies the link selectors inside one listing item. A selector
// that matches nothing leaves its field empty.
func linkFromItem(item *goquery.Selection, sel domain.LinkSelectors, base *url.URL) domain.CandidateLink {
	var link domain.CandidateLink

	anchor := item
	if sel.URL != "" {
		anchor = item.Find(sel.URL).First()
	}
	href := hrefOf(anchor)
	if href == "" && sel.URL == "" {
		href = hrefOf(item.Find("a[href]").First())
	}
	link.URL = absoluteHTTP(href, base)

	if sel.Title != "" {
		link.Title = extract.CleanText(item.Find(sel.Title).First().Text())
	}
	if sel.Description != "" {
		link.Description = extract.CleanText(item.Find(sel.Description).First().Text())
	}
	if sel.Image != "" {
		link.FeaturedImage = absoluteHTTP(imageRef(item.Find(sel.Image).First()), base)
	}
	return link
}

func hrefOf(s *goquery.Selection) string {
	if s == nil || s.Length() == 0 {
		return ""
	}
	if v, ok := s.Attr("href"); ok {
		return strings.TrimSpace(v)
	}
	if v, ok := s.Find("a[href]").First().Attr("href"); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func imageRef(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	if goquery.NodeName(s) != "img" {
		if nested := s.Find("img").First(); nested.Length() > 0 {
			s = nested
		}
	}
	for _, attr := range []string{"src", "data-src", "data-lazy-src", "content", "href"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" && !strings.HasPrefix(v, "data:") {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func nextPageURL(doc *goquery.Document, selector, current string) string {
	if selector == "" {
		return ""
	}
	href := hrefOf(doc.Find(selector).First())
	if href == "" {
		return ""
	}
	return absoluteHTTP(href, baseFor(current))
}

// absoluteHTTP resolves ref against base and keeps only http(s) results.
func absoluteHTTP(ref string, base *url.URL) string {
	resolved := extract.ResolveURL(ref, base)
	if resolved == "" {
		return ""
	}
	u, err := url.Parse(resolved)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

func baseFor(raw string) *url.URL {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return nil
	}
	return u
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// feedDiscoverer adapts a pkg/feeds reader to the Discoverer contract.
type feedDiscoverer struct {
	reader FeedReader
}

// NewFeedDiscoverer wraps an RSS or sitemap reader. Feeds need no page.
func NewFeedDiscoverer(reader FeedReader) Discoverer {
	return feedDiscoverer{reader: reader}
}

func (f feedDiscoverer) Discover(ctx context.Context, _ browser.Page, src domain.SourceConfig) (DiscoveryResult, error) {
	res, err := f.reader.Discover(ctx, src)
	if err != nil {
		return DiscoveryResult{}, err
	}
	out := DiscoveryResult{Links: res.Links, Failures: res.Failures, Pages: len(src.FeedURLs)}
	if len(res.Links) == 0 && len(res.Failures) == len(src.FeedURLs) && len(res.Failures) > 0 {
		errs := make([]error, 0, len(res.Failures))
		for _, fl := range res.Failures {
			errs = append(errs, fl.Err)
		}
		return out, fmt.Errorf("no feed of %q could be loaded: %w", src.Name, errors.Join(errs...))
	}
	if len(res.Links) > 0 {
		h := sha256.New()
		for _, l := range res.Links {
			h.Write([]byte(l.URL))
			h.Write([]byte{'\n'})
		}
		out.ContentHash = hex.EncodeToString(h.Sum(nil))
	}
	return out, nil
}
