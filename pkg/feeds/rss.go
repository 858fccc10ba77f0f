package feeds

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
)

// RSSDiscoverer reads RSS, Atom and JSON feeds.
type RSSDiscoverer struct {
	opts Options
}

// NewRSSDiscoverer builds a feed discoverer.
func NewRSSDiscoverer(opts Options) *RSSDiscoverer {
	return &RSSDiscoverer{opts: opts.withDefaults()}
}

// Discover fetches and parses every feed URL of src.
func (d *RSSDiscoverer) Discover(ctx context.Context, src domain.SourceConfig) (Result, error) {
	if len(src.FeedURLs) == 0 {
		return Result{}, fmt.Errorf("source %q has no feed_urls", src.Name)
	}
	headers := headersFor(src, d.opts.UserAgent)
	parser := gofeed.NewParser()

	var res Result
	for _, target := range src.FeedURLs {
		raw, err := fetch(ctx, d.opts.Client, target, src.Name, headers)
		if err == nil {
			var feed *gofeed.Feed
			feed, err = parser.Parse(bytes.NewReader(raw))
			if err == nil {
				res.Links = append(res.Links, feedLinks(src, target, feed)...)
				continue
			}
			err = fmt.Errorf("parse feed %s: %w", target, err)
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		res.Failures = append(res.Failures, domain.LinkFailure{URL: target, Err: err})
		d.opts.Log.WarnObj("feed discovery failed", "feed_error", map[string]any{
			"source": src.Name,
			"url":    target,
			"error":  err.Error(),
		})
	}
	res.Links = dedupe(res.Links)
	return res, nil
}

func feedLinks(src domain.SourceConfig, feedURL string, feed *gofeed.Feed) []domain.CandidateLink {
	base := src.BaseURL
	if feed.Link != "" {
		base = resolve(feed.Link, feedURL)
	}

	links := make([]domain.CandidateLink, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		loc := resolve(item.Link, base)
		if loc == "" && len(item.Links) > 0 {
			loc = resolve(item.Links[0], base)
		}
		if loc == "" {
			continue
		}
		link := domain.CandidateLink{
			URL:           loc,
			Title:         strings.Join(strings.Fields(item.Title), " "),
			Description:   plainText(item.Description),
			FeaturedImage: resolve(itemImage(item), loc),
			Source:        src.Name,
		}
		switch {
		case item.PublishedParsed != nil:
			t := item.PublishedParsed.UTC()
			link.PublishedAt = &t
		case item.UpdatedParsed != nil:
			t := item.UpdatedParsed.UTC()
			link.PublishedAt = &t
		}
		links = append(links, link)
	}
	return links
}

// plainText strips markup some feeds embed in descriptions.
func plainText(raw string) string {
	if !strings.Contains(raw, "<") {
		return strings.Join(strings.Fields(raw), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return strings.Join(strings.Fields(raw), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func itemImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}
