package extract

import (
	"fmt"

	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
)

// Strategy is one extraction heuristic for a field. Extract returns the zero
// value when it finds nothing; an error marks the strategy as failed for this
// document and never aborts the field.
type Strategy[T any] struct {
	Name    string
	Extract func(doc *Document) (T, error)
}

// Chain tries strategies strictly in order and keeps the first non-empty value.
type Chain[T any] struct {
	Field      string
	Strategies []Strategy[T]
	Empty      func(T) bool
	Log        logger.Logger
}

// Extract runs the chain. The bool reports whether any strategy produced a value.
func (c Chain[T]) Extract(doc *Document) (T, bool) {
	var zero T
	if doc == nil || doc.Doc == nil {
		return zero, false
	}
	log := logger.Ensure(c.Log)

	for _, s := range c.Strategies {
		val, err := c.run(s, doc)
		if err != nil {
			log.DebugObj("extraction strategy failed", "strategy_error", map[string]any{
				"field":    c.Field,
				"strategy": s.Name,
				"url":      pageURL(doc),
				"error":    err.Error(),
			})
			continue
		}
		if c.Empty != nil && c.Empty(val) {
			continue
		}
		return val, true
	}
	return zero, false
}

func (c Chain[T]) run(s Strategy[T], doc *Document) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", s.Name, r)
		}
	}()
	if s.Extract == nil {
		return val, fmt.Errorf("strategy %s has no extract func", s.Name)
	}
	return s.Extract(doc)
}

// Names lists strategy names in priority order.
func (c Chain[T]) Names() []string {
	out := make([]string, 0, len(c.Strategies))
	for _, s := range c.Strategies {
		out = append(out, s.Name)
	}
	return out
}

func pageURL(doc *Document) string {
	if doc.URL == nil {
		return ""
	}
	return doc.URL.String()
}

func emptyString(s string) bool { return s == "" }
