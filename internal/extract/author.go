package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
)

var bylineSelectors = []string{
	".byline", ".author", ".author-name", ".post-author", ".article-author",
	".entry-author", ".by-author", ".writer",
}

// authorPatterns are scanned in order against body text; the first match wins.
var authorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bBy\s+([\p{Lu}][\p{L}'.\-]+(?:[ \t]+[\p{Lu}][\p{L}'.\-]+){0,3})`),
	regexp.MustCompile(`(?i:\bauthor):\s*([\p{Lu}][\p{L}'.\-]+(?:[ \t]+[\p{Lu}][\p{L}'.\-]+){0,3})`),
	regexp.MustCompile(`(?i:\bwritten by)[:\s]+([\p{Lu}][\p{L}'.\-]+(?:[ \t]+[\p{Lu}][\p{L}'.\-]+){0,3})`),
}

const maxAuthorLength = 100

// AuthorChain builds the author strategy chain.
func AuthorChain(selector string, log logger.Logger) Chain[string] {
	var strategies []Strategy[string]
	if selector != "" {
		strategies = append(strategies, Strategy[string]{Name: "source-selector", Extract: func(d *Document) (string, error) {
			return cleanAuthor(d.FirstText(selector)), nil
		}})
	}
	strategies = append(strategies,
		Strategy[string]{Name: "jsonld-author", Extract: func(d *Document) (string, error) {
			for _, obj := range d.ArticleObjects() {
				if name := jsonLDAuthor(obj["author"]); name != "" {
					return name, nil
				}
			}
			return "", nil
		}},
		metaAuthor("meta-author", "author"),
		Strategy[string]{Name: "og-article-author", Extract: func(d *Document) (string, error) {
			for _, key := range []string{"article:author", "og:article:author"} {
				if v := cleanAuthor(d.Meta(key)); v != "" && !looksLikeURL(v) {
					return v, nil
				}
			}
			return "", nil
		}},
		metaAuthor("twitter-creator", "twitter:creator"),
		Strategy[string]{Name: "rel-author", Extract: func(d *Document) (string, error) {
			return cleanAuthor(d.FirstText(`a[rel="author"], link[rel="author"][title]`)), nil
		}},
		Strategy[string]{Name: "byline-class", Extract: func(d *Document) (string, error) {
			for _, sel := range bylineSelectors {
				if v := cleanAuthor(d.FirstText(sel)); v != "" {
					return v, nil
				}
			}
			return "", nil
		}},
		Strategy[string]{Name: "itemprop-author", Extract: func(d *Document) (string, error) {
			var out string
			d.Doc.Find(`[itemprop="author"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				if v, ok := s.Attr("content"); ok && cleanAuthor(v) != "" {
					out = cleanAuthor(v)
					return false
				}
				if v := cleanAuthor(s.Find(`[itemprop="name"]`).First().Text()); v != "" {
					out = v
					return false
				}
				if v := cleanAuthor(s.Text()); v != "" {
					out = v
					return false
				}
				return true
			})
			return out, nil
		}},
		Strategy[string]{Name: "body-pattern", Extract: func(d *Document) (string, error) {
			text := bodyText(d)
			for _, re := range authorPatterns {
				if m := re.FindStringSubmatch(text); len(m) > 1 {
					return cleanAuthor(m[1]), nil
				}
			}
			return "", nil
		}},
	)
	return Chain[string]{Field: "author", Strategies: strategies, Empty: emptyString, Log: log}
}

func metaAuthor(name, key string) Strategy[string] {
	return Strategy[string]{Name: name, Extract: func(d *Document) (string, error) {
		return cleanAuthor(d.Meta(key)), nil
	}}
}

func jsonLDAuthor(raw any) string {
	switch v := raw.(type) {
	case string:
		return cleanAuthor(v)
	case map[string]any:
		if name, ok := v["name"].(string); ok {
			return cleanAuthor(name)
		}
	case []any:
		names := make([]string, 0, len(v))
		for _, item := range v {
			if name := jsonLDAuthor(item); name != "" {
				names = append(names, name)
			}
		}
		return strings.Join(names, ", ")
	}
	return ""
}

var bylinePrefix = regexp.MustCompile(`(?i)^(by|written by|author:)\s+`)

func cleanAuthor(raw string) string {
	s := CleanText(raw)
	s = bylinePrefix.ReplaceAllString(s, "")
	s = strings.TrimPrefix(s, "@")
	s = strings.TrimSpace(s)
	if len(s) > maxAuthorLength {
		return ""
	}
	return s
}

func looksLikeURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
