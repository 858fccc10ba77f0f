// Package extract pulls article fields out of parsed pages using ordered
// fallback strategy chains.
package extract

import (
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Document is a parsed page plus the context strategies need to interpret it.
type Document struct {
	Doc *goquery.Document
	URL *url.URL
	Now func() time.Time

	jsonldOnce sync.Once
	jsonld     []map[string]any
}

// NewDocument wraps doc. pageURL is the final URL of the page and is used to
// resolve relative references.
func NewDocument(doc *goquery.Document, pageURL string, now func() time.Time) *Document {
	u, _ := url.Parse(pageURL)
	if now == nil {
		now = time.Now
	}
	return &Document{Doc: doc, URL: u, Now: now}
}

// Meta returns the content of the first <meta> whose property, name or
// itemprop equals key (case-insensitive).
func (d *Document) Meta(key string) string {
	var out string
	d.Doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"property", "name", "itemprop"} {
			if v, ok := s.Attr(attr); ok && strings.EqualFold(strings.TrimSpace(v), key) {
				if content, ok := s.Attr("content"); ok && strings.TrimSpace(content) != "" {
					out = strings.TrimSpace(content)
					return false
				}
			}
		}
		return true
	})
	return out
}

// FirstText returns the whitespace-normalized text of the first element
// matching selector that has any text.
func (d *Document) FirstText(selector string) string {
	var out string
	d.Doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text := CleanText(s.Text()); text != "" {
			out = text
			return false
		}
		return true
	})
	return out
}

// Resolve makes ref absolute against the page URL.
func (d *Document) Resolve(ref string) string {
	return ResolveURL(ref, d.URL)
}

// Articles returns every JSON-LD object on the page, flattening arrays and
// @graph containers. Malformed blocks are skipped.
func (d *Document) Articles() []map[string]any {
	d.jsonldOnce.Do(func() {
		d.Doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
			raw := strings.TrimSpace(s.Text())
			if raw == "" {
				return
			}
			var data any
			if err := json.Unmarshal([]byte(raw), &data); err != nil {
				return
			}
			d.jsonld = append(d.jsonld, flattenJSONLD(data)...)
		})
	})
	return d.jsonld
}

// ArticleObjects returns JSON-LD objects typed as an article flavour.
func (d *Document) ArticleObjects() []map[string]any {
	var out []map[string]any
	for _, obj := range d.Articles() {
		if isArticleType(obj["@type"]) {
			out = append(out, obj)
		}
	}
	return out
}

func flattenJSONLD(data any) []map[string]any {
	switch v := data.(type) {
	case []any:
		var out []map[string]any
		for _, item := range v {
			out = append(out, flattenJSONLD(item)...)
		}
		return out
	case map[string]any:
		out := []map[string]any{v}
		if graph, ok := v["@graph"]; ok {
			out = append(out, flattenJSONLD(graph)...)
		}
		return out
	default:
		return nil
	}
}

var articleTypes = map[string]bool{
	"article":             true,
	"newsarticle":         true,
	"blogposting":         true,
	"reportage":           true,
	"scholarlyarticle":    true,
	"techarticle":         true,
	"analysisnewsarticle": true,
	"opinionnewsarticle":  true,
	"webpage":             true,
}

func isArticleType(raw any) bool {
	switch v := raw.(type) {
	case string:
		return articleTypes[strings.ToLower(v)]
	case []any:
		for _, item := range v {
			if isArticleType(item) {
				return true
			}
		}
	}
	return false
}

// CleanText collapses runs of whitespace (including newlines) to one space.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ResolveURL resolves ref against base. It returns "" for empty refs and
// the trimmed ref when it cannot be parsed or base is nil.
func ResolveURL(ref string, base *url.URL) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if base == nil {
		return parsed.String()
	}
	return base.ResolveReference(parsed).String()
}
