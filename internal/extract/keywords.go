package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
)

var tagSelectors = []string{`a[rel="tag"]`, ".tags a", ".tag-list a", ".post-tags a", ".article-tags a"}

// Keywords gathers keywords from meta tags, JSON-LD and tag-like links. All
// sources contribute; results are lower-cased and deduplicated in first-seen
// order.
func Keywords(d *Document, log logger.Logger) []string {
	log = logger.Ensure(log)
	var raw []string

	collect := func(name string, fn func() []string) {
		defer func() {
			if r := recover(); r != nil {
				log.DebugObj("keyword source failed", "strategy_error", map[string]any{
					"field":    "keywords",
					"strategy": name,
					"url":      pageURL(d),
					"error":    r,
				})
			}
		}()
		raw = append(raw, fn()...)
	}

	collect("meta-keywords", func() []string {
		var out []string
		for _, key := range []string{"keywords", "news_keywords"} {
			out = append(out, splitKeywords(d.Meta(key))...)
		}
		d.Doc.Find(`meta[property="article:tag"]`).Each(func(_ int, s *goquery.Selection) {
			v, _ := s.Attr("content")
			out = append(out, v)
		})
		return out
	})
	collect("jsonld-keywords", func() []string {
		var out []string
		for _, obj := range d.ArticleObjects() {
			switch v := obj["keywords"].(type) {
			case string:
				out = append(out, splitKeywords(v)...)
			case []any:
				for _, item := range v {
					if s, ok := item.(string); ok {
						out = append(out, s)
					}
				}
			}
		}
		return out
	})
	collect("tag-links", func() []string {
		var out []string
		for _, sel := range tagSelectors {
			d.Doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
				out = append(out, s.Text())
			})
		}
		return out
	})

	return NormalizeKeywords(raw)
}

// NormalizeKeywords trims, lower-cases and deduplicates keywords.
func NormalizeKeywords(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(CleanText(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

func splitKeywords(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
