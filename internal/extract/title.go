package extract

import (
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
)

var titleClassSelectors = []string{".article-title", ".post-title", ".entry-title"}

// TitleChain builds the title strategy chain. A non-empty selector from the
// source config is tried before the generic strategies.
func TitleChain(selector string, log logger.Logger) Chain[string] {
	var strategies []Strategy[string]
	if selector != "" {
		strategies = append(strategies, selectorText("source-selector", selector))
	}
	strategies = append(strategies,
		Strategy[string]{Name: "structured-meta", Extract: func(d *Document) (string, error) {
			if v := d.Meta("og:title"); v != "" {
				return CleanText(v), nil
			}
			return CleanText(d.Meta("twitter:title")), nil
		}},
		Strategy[string]{Name: "meta-title", Extract: func(d *Document) (string, error) {
			return CleanText(d.Meta("title")), nil
		}},
		selectorText("h1", "h1"),
		Strategy[string]{Name: "title-tag", Extract: func(d *Document) (string, error) {
			return CleanText(d.Doc.Find("title").First().Text()), nil
		}},
		Strategy[string]{Name: "jsonld-headline", Extract: func(d *Document) (string, error) {
			for _, obj := range d.ArticleObjects() {
				if v, ok := obj["headline"].(string); ok && CleanText(v) != "" {
					return CleanText(v), nil
				}
				if v, ok := obj["name"].(string); ok && CleanText(v) != "" {
					return CleanText(v), nil
				}
			}
			return "", nil
		}},
		Strategy[string]{Name: "css-class", Extract: func(d *Document) (string, error) {
			for _, sel := range titleClassSelectors {
				if v := d.FirstText(sel); v != "" {
					return v, nil
				}
			}
			return "", nil
		}},
	)
	return Chain[string]{Field: "title", Strategies: strategies, Empty: emptyString, Log: log}
}

func selectorText(name, selector string) Strategy[string] {
	return Strategy[string]{Name: name, Extract: func(d *Document) (string, error) {
		return d.FirstText(selector), nil
	}}
}
