package extract

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
	"golang.org/x/net/html"
)

var bodySelectors = []string{
	`[itemprop="articleBody"]`, ".article-body", ".article-content", ".entry-content", ".post-content", ".story-body",
}

// noiseElements never contribute to body text.
var noiseElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true, "iframe": true,
}

// PageExtractor runs every field chain for one source's pages.
type PageExtractor struct {
	title  Chain[string]
	author Chain[string]
	image  Chain[string]
	body   Chain[string]
	date   Chain[*time.Time]
	ignore []string
	now    func() time.Time
	log    logger.Logger
}

// NewPageExtractor builds the chains for a source. Selectors from the source
// config take precedence over the generic strategies. now may be nil.
func NewPageExtractor(sel domain.PageSelectors, ignore []string, now func() time.Time, log logger.Logger) *PageExtractor {
	log = logger.Ensure(log)
	if now == nil {
		now = time.Now
	}
	return &PageExtractor{
		title:  TitleChain(sel.Title, log),
		author: AuthorChain(sel.Author, log),
		image:  ImageChain(sel.Image, log),
		body:   BodyChain(sel.Body, log),
		date:   DateChain(sel.Date, log),
		ignore: ignore,
		now:    now,
		log:    log,
	}
}

// Extract pulls every field from doc. finalURL is the page URL after
// redirects. Missing fields are left empty and never cause an error.
func (e *PageExtractor) Extract(doc *goquery.Document, finalURL string) domain.PageFields {
	var fields domain.PageFields
	if doc == nil {
		return fields
	}
	for _, sel := range e.ignore {
		doc.Find(sel).Remove()
	}

	d := NewDocument(doc, finalURL, e.now)
	var missing []string

	fields.Title, _ = e.title.Extract(d)
	fields.Author, _ = e.author.Extract(d)
	fields.FeaturedImage, _ = e.image.Extract(d)
	fields.Body, _ = e.body.Extract(d)
	fields.PublishedAt, _ = e.date.Extract(d)
	fields.Keywords = Keywords(d, e.log)
	fields.ContainerText = ContainerText(d)

	if fields.Title == "" {
		missing = append(missing, "title")
	}
	if fields.Body == "" {
		missing = append(missing, "body")
	}
	if fields.PublishedAt == nil {
		missing = append(missing, "published_at")
	}
	if len(missing) > 0 {
		e.log.WarnObj("strategy chains exhausted", "extraction_drift", map[string]any{
			"url":    finalURL,
			"fields": missing,
		})
	}
	return fields
}

// BodyChain builds the article body chain.
func BodyChain(selector string, log logger.Logger) Chain[string] {
	var strategies []Strategy[string]
	if selector != "" {
		strategies = append(strategies, Strategy[string]{Name: "source-selector", Extract: func(d *Document) (string, error) {
			return joinedText(d.Doc.Find(selector)), nil
		}})
	}
	strategies = append(strategies, Strategy[string]{Name: "body-class", Extract: func(d *Document) (string, error) {
		for _, sel := range bodySelectors {
			if v := joinedText(d.Doc.Find(sel)); v != "" {
				return v, nil
			}
		}
		return "", nil
	}})
	return Chain[string]{Field: "body", Strategies: strategies, Empty: emptyString, Log: log}
}

// ContainerText returns the text of the first <article>, else <body>.
func ContainerText(d *Document) string {
	if d == nil || d.Doc == nil {
		return ""
	}
	if v := joinedText(d.Doc.Find("article").First()); v != "" {
		return v
	}
	return joinedText(d.Doc.Find("body").First())
}

// joinedText returns the text of every node in sel. Adjacent text nodes are
// separated by a space so sibling paragraphs do not run together.
func joinedText(sel *goquery.Selection) string {
	return strings.Join(textNodes(sel), " ")
}

// textNodes returns the cleaned, non-empty text nodes under sel in document
// order, skipping script-like elements.
func textNodes(sel *goquery.Selection) []string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if text := CleanText(n.Data); text != "" {
				parts = append(parts, text)
			}
			return
		case html.ElementNode:
			if noiseElements[n.Data] {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return parts
}
