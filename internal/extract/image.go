package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
)

var contentImageContainers = []string{
	"article", ".article-content", ".post-content", ".entry-content", ".content", "main", `[role="main"]`,
}

var backgroundImage = regexp.MustCompile(`(?i)background(?:-image)?\s*:[^;]*url\(\s*['"]?([^'")]+)['"]?\s*\)`)

// ImageChain builds the featured-image strategy chain. Every result is
// resolved against the page's own URL.
func ImageChain(selector string, log logger.Logger) Chain[string] {
	var strategies []Strategy[string]
	if selector != "" {
		strategies = append(strategies, Strategy[string]{Name: "source-selector", Extract: func(d *Document) (string, error) {
			return d.Resolve(firstImageSrc(d.Doc.Find(selector))), nil
		}})
	}
	strategies = append(strategies,
		Strategy[string]{Name: "og-image", Extract: func(d *Document) (string, error) {
			for _, key := range []string{"og:image", "og:image:url", "og:image:secure_url"} {
				if v := d.Meta(key); v != "" {
					return d.Resolve(v), nil
				}
			}
			return "", nil
		}},
		Strategy[string]{Name: "twitter-image", Extract: func(d *Document) (string, error) {
			if v := d.Meta("twitter:image"); v != "" {
				return d.Resolve(v), nil
			}
			return d.Resolve(d.Meta("twitter:image:src")), nil
		}},
		Strategy[string]{Name: "jsonld-image", Extract: func(d *Document) (string, error) {
			for _, obj := range d.ArticleObjects() {
				if v := jsonLDImage(obj["image"]); v != "" {
					return d.Resolve(v), nil
				}
			}
			return "", nil
		}},
		Strategy[string]{Name: "content-image", Extract: func(d *Document) (string, error) {
			for _, sel := range contentImageContainers {
				if src := firstImageSrc(d.Doc.Find(sel).Find("img")); src != "" {
					return d.Resolve(src), nil
				}
			}
			return "", nil
		}},
		Strategy[string]{Name: "any-image", Extract: func(d *Document) (string, error) {
			return d.Resolve(firstImageSrc(d.Doc.Find("img"))), nil
		}},
		Strategy[string]{Name: "background-image", Extract: func(d *Document) (string, error) {
			var out string
			// Find returns matches in document order, which is a depth-first walk.
			d.Doc.Find("[style]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				style, _ := s.Attr("style")
				if m := backgroundImage.FindStringSubmatch(style); len(m) == 2 {
					out = d.Resolve(m[1])
					return false
				}
				return true
			})
			return out, nil
		}},
	)
	return Chain[string]{Field: "featured_image", Strategies: strategies, Empty: emptyString, Log: log}
}

// firstImageSrc returns the first usable image reference within sel. Elements
// that are not <img> are inspected for content/href attributes.
func firstImageSrc(sel *goquery.Selection) string {
	var out string
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		img := s
		if goquery.NodeName(s) != "img" {
			if nested := s.Find("img").First(); nested.Length() > 0 {
				img = nested
			}
		}
		for _, attr := range []string{"src", "data-src", "data-lazy-src", "content", "href"} {
			if v, ok := img.Attr(attr); ok {
				v = strings.TrimSpace(v)
				if v != "" && !strings.HasPrefix(v, "data:") {
					out = v
					return false
				}
			}
		}
		return true
	})
	return out
}

func jsonLDImage(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if u, ok := v["url"].(string); ok {
			return strings.TrimSpace(u)
		}
		if u, ok := v["contentUrl"].(string); ok {
			return strings.TrimSpace(u)
		}
	case []any:
		for _, item := range v {
			if u := jsonLDImage(item); u != "" {
				return u
			}
		}
	}
	return ""
}
