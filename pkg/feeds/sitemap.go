package feeds

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/sources"
)

const (
	// maxSitemapDepth bounds sitemap index recursion.
	maxSitemapDepth = 3
	// maxSitemapFetches bounds the number of documents fetched per feed URL.
	maxSitemapFetches = 50
)

type urlSet struct {
	URLs []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string         `xml:"loc"`
	LastMod string         `xml:"lastmod"`
	News    sitemapNews    `xml:"news"`
	Images  []sitemapImage `xml:"image"`
}

type sitemapNews struct {
	Title           string `xml:"title"`
	PublicationDate string `xml:"publication_date"`
}

type sitemapImage struct {
	Loc string `xml:"loc"`
}

type sitemapIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

func parseSitemap(data []byte) ([]sitemapURL, error) {
	var set urlSet
	if err := xml.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	return set.URLs, nil
}

func parseSitemapIndex(data []byte) ([]string, error) {
	var idx sitemapIndex
	if err := xml.Unmarshal(data, &idx); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(idx.Sitemaps))
	for _, s := range idx.Sitemaps {
		if loc := strings.TrimSpace(s.Loc); loc != "" {
			out = append(out, loc)
		}
	}
	return out, nil
}

func isSitemapIndex(data []byte) bool {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return false
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local == "sitemapindex"
		}
	}
}

// SitemapDiscoverer reads Google News style sitemaps, following sitemap indexes.
type SitemapDiscoverer struct {
	opts Options
}

// NewSitemapDiscoverer builds a sitemap discoverer.
func NewSitemapDiscoverer(opts Options) *SitemapDiscoverer {
	return &SitemapDiscoverer{opts: opts.withDefaults()}
}

// Discover fetches every feed URL of src.
func (d *SitemapDiscoverer) Discover(ctx context.Context, src domain.SourceConfig) (Result, error) {
	if len(src.FeedURLs) == 0 {
		return Result{}, fmt.Errorf("source %q has no feed_urls", src.Name)
	}
	headers := headersFor(src, d.opts.UserAgent)

	var res Result
	for _, raw := range src.FeedURLs {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		target := raw
		if sources.ConfigBool(src, sources.ConfigSitemapDateParamsKey) {
			zone := sources.ConfigString(src, sources.ConfigSitemapTimezoneKey, "UTC")
			dated, err := datedSitemapURL(raw, zone, d.opts.Now)
			if err != nil {
				res.Failures = append(res.Failures, domain.LinkFailure{URL: raw, Err: err})
				continue
			}
			target = dated
		}

		budget := maxSitemapFetches
		entries, err := d.collect(ctx, src.Name, target, headers, 0, &budget)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			res.Failures = append(res.Failures, domain.LinkFailure{URL: target, Err: err})
			d.opts.Log.WarnObj("sitemap discovery failed", "feed_error", map[string]any{
				"source": src.Name,
				"url":    target,
				"error":  err.Error(),
			})
			continue
		}
		res.Links = append(res.Links, buildLinks(src, entries)...)
	}
	res.Links = dedupe(res.Links)
	return res, nil
}

func (d *SitemapDiscoverer) collect(ctx context.Context, source, target string, headers map[string]string, depth int, budget *int) ([]sitemapURL, error) {
	if *budget <= 0 {
		return nil, nil
	}
	*budget--

	raw, err := fetch(ctx, d.opts.Client, target, source, headers)
	if err != nil {
		return nil, err
	}

	if !isSitemapIndex(raw) {
		entries, err := parseSitemap(raw)
		if err != nil {
			return nil, fmt.Errorf("decode sitemap %s: %w", target, err)
		}
		return entries, nil
	}

	if depth >= maxSitemapDepth {
		return nil, fmt.Errorf("sitemap index nesting deeper than %d at %s", maxSitemapDepth, target)
	}
	children, err := parseSitemapIndex(raw)
	if err != nil {
		return nil, fmt.Errorf("decode sitemap index %s: %w", target, err)
	}

	var out []sitemapURL
	var lastErr error
	for _, child := range children {
		entries, err := d.collect(ctx, source, resolve(child, target), headers, depth+1, budget)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		out = append(out, entries...)
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

func buildLinks(src domain.SourceConfig, entries []sitemapURL) []domain.CandidateLink {
	links := make([]domain.CandidateLink, 0, len(entries))
	for _, entry := range entries {
		loc := resolve(entry.Loc, src.BaseURL)
		if loc == "" {
			continue
		}
		link := domain.CandidateLink{
			URL:    loc,
			Title:  strings.Join(strings.Fields(entry.News.Title), " "),
			Source: src.Name,
		}
		if len(entry.Images) > 0 {
			link.FeaturedImage = resolve(entry.Images[0].Loc, loc)
		}
		if t := parseFeedDate(entry.News.PublicationDate); t != nil {
			link.PublishedAt = t
		} else if t := parseFeedDate(entry.LastMod); t != nil {
			link.PublishedAt = t
		}
		links = append(links, link)
	}
	return links
}

func parseFeedDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// datedSitemapURL adds yyyy/mm/dd query parameters for the current day in zone.
func datedSitemapURL(raw, zone string, now func() time.Time) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("sitemap url is empty")
	}
	if now == nil {
		now = time.Now
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return "", fmt.Errorf("load sitemap timezone %q: %w", zone, err)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse sitemap url: %w", err)
	}

	y, m, d := now().In(loc).Date()

	q := parsed.Query()
	q.Set("yyyy", fmt.Sprintf("%04d", y))
	q.Set("mm", fmt.Sprintf("%02d", int(m)))
	q.Set("dd", fmt.Sprintf("%02d", d))
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}
