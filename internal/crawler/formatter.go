package crawler

import (
	"crypto/sha1" //nolint:gosec // non-cryptographic id generation
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/internal/extract"
)

// ArticleID derives the stable article ID from its canonical URL.
func ArticleID(u string) string {
	sum := sha1.Sum([]byte(u))
	return hex.EncodeToString(sum[:])
}

// HistoryIDs returns every ID under which a handed-off article must be
// remembered: its own ID and, after a redirect, the ID of the discovered link
// so the next cycle skips the link before navigating it.
func HistoryIDs(a domain.ExtractedArticle) []string {
	ids := []string{a.ID}
	if a.DiscoveredURL != "" {
		if alias := ArticleID(a.DiscoveredURL); alias != a.ID {
			ids = append(ids, alias)
		}
	}
	return ids
}

// Formatter maps extracted page fields plus link metadata into the canonical
// article. One Formatter serves one source batch: when a page redirects to a
// different origin, the batch's effective base URL follows it.
type Formatter struct {
	source string

	mu   sync.Mutex
	base *url.URL
}

// NewFormatter starts a batch for src.
func NewFormatter(src domain.SourceConfig) *Formatter {
	return &Formatter{source: src.Name, base: baseFor(src.BaseURL)}
}

// Base returns the batch's current effective base URL.
func (f *Formatter) Base() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.base == nil {
		return ""
	}
	return f.base.String()
}

// Normalize builds the article. finalURL is where the page landed after
// redirects and replaces the discovered URL when it differs.
func (f *Formatter) Normalize(link domain.CandidateLink, fields domain.PageFields, finalURL string) (domain.ExtractedArticle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	articleURL := absoluteHTTP(link.URL, f.base)
	var discovered string
	if finalURL != "" {
		final := absoluteHTTP(finalURL, f.base)
		if final == "" {
			return domain.ExtractedArticle{}, fmt.Errorf("final url %q is not an absolute http(s) url", finalURL)
		}
		if final != articleURL {
			if origin := originOf(final); origin != nil {
				f.base = origin
			}
			discovered = link.URL
		}
		articleURL = final
	}
	if articleURL == "" {
		return domain.ExtractedArticle{}, errors.New("article has no absolute url")
	}

	art := domain.ExtractedArticle{
		ID:            ArticleID(articleURL),
		URL:           articleURL,
		Title:         firstNonEmpty(fields.Title, link.Title),
		Body:          firstNonEmpty(fields.Body, fields.ContainerText),
		Author:        extract.CleanText(fields.Author),
		PublishedAt:   copyTime(fields.PublishedAt, link.PublishedAt),
		FeaturedImage: firstNonEmpty(absoluteHTTP(fields.FeaturedImage, f.base), absoluteHTTP(link.FeaturedImage, f.base)),
		Keywords:      extract.NormalizeKeywords(fields.Keywords),
		SourceName:    link.Source,
		DiscoveredURL: discovered,
	}
	if art.SourceName == "" {
		art.SourceName = f.source
	}
	return art, nil
}

func originOf(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
}

// firstNonEmpty returns the first value that is non-empty after whitespace
// normalization.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = extract.CleanText(v); v != "" {
			return v
		}
	}
	return ""
}

func copyTime(candidates ...*time.Time) *time.Time {
	for _, t := range candidates {
		if t != nil && !t.IsZero() {
			v := t.UTC()
			return &v
		}
	}
	return nil
}
