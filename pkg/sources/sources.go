// Package sources loads crawlable source definitions (YAML/JSON) and validates
// them before any crawl runs.
package sources

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"github.com/samvad-hq/samvad-article-pipeline/internal/configfile"
	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/internal/schedule"
)

type registry struct {
	Sources []domain.SourceConfig `json:"sources" yaml:"sources"`
}

var (
	regMu      sync.RWMutex
	currentReg registry
	sourcesIdx map[string]domain.SourceConfig
)

// Sources returns a copy of the currently loaded sources.
func Sources() []domain.SourceConfig {
	regMu.RLock()
	defer regMu.RUnlock()

	if len(currentReg.Sources) == 0 {
		return nil
	}

	out := make([]domain.SourceConfig, len(currentReg.Sources))
	copy(out, currentReg.Sources)
	return out
}

// SourceByName returns the source entry for the given name, if loaded.
func SourceByName(name string) (domain.SourceConfig, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.SourceConfig{}, false
	}

	regMu.RLock()
	defer regMu.RUnlock()

	if sourcesIdx == nil {
		return domain.SourceConfig{}, false
	}

	s, ok := sourcesIdx[name]
	return s, ok
}

// LoadSources loads and validates the source registry from file, replacing
// whatever was loaded before. Nothing is replaced on error.
func LoadSources(path string) error {
	reg, err := configfile.Load[registry](path, "sources")
	if err != nil {
		return err
	}
	list, err := validateAll(reg)
	if err != nil {
		return err
	}

	idx := make(map[string]domain.SourceConfig, len(list))
	for _, s := range list {
		idx[s.Name] = s
	}

	regMu.Lock()
	currentReg = registry{Sources: list}
	sourcesIdx = idx
	regMu.Unlock()

	return nil
}

// Parse decodes, sanitizes and validates a source list. ext selects the
// decoder (".yaml", ".yml", ".json"); an empty ext tries each in turn.
func Parse(data []byte, ext string) ([]domain.SourceConfig, error) {
	reg, err := configfile.Decode[registry](data, ext, "sources")
	if err != nil {
		return nil, err
	}
	return validateAll(reg)
}

func validateAll(reg registry) ([]domain.SourceConfig, error) {
	if len(reg.Sources) == 0 {
		return nil, errors.New("sources file contains no sources entries")
	}

	seen := make(map[string]struct{}, len(reg.Sources))
	for i := range reg.Sources {
		s := sanitizeSource(reg.Sources[i])
		if err := Validate(s); err != nil {
			return nil, fmt.Errorf("source[%d]: %w", i, err)
		}
		if _, exists := seen[s.Name]; exists {
			return nil, fmt.Errorf("duplicate source name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
		reg.Sources[i] = s
	}
	return reg.Sources, nil
}

func sanitizeSource(s domain.SourceConfig) domain.SourceConfig {
	s.Name = strings.TrimSpace(s.Name)
	s.Type = strings.ToLower(strings.TrimSpace(s.Type))
	if s.Type == "" {
		s.Type = domain.SourceTypeListing
	}
	s.BaseURL = strings.TrimSpace(s.BaseURL)
	s.ListingItemSelector = strings.TrimSpace(s.ListingItemSelector)
	s.PaginationSelector = strings.TrimSpace(s.PaginationSelector)
	s.ListingURLs = trimAll(s.ListingURLs)
	s.FeedURLs = trimAll(s.FeedURLs)
	s.IgnoreSelectors = trimAll(s.IgnoreSelectors)

	s.LinkFieldSelectors.URL = strings.TrimSpace(s.LinkFieldSelectors.URL)
	s.LinkFieldSelectors.Title = strings.TrimSpace(s.LinkFieldSelectors.Title)
	s.LinkFieldSelectors.Description = strings.TrimSpace(s.LinkFieldSelectors.Description)
	s.LinkFieldSelectors.Image = strings.TrimSpace(s.LinkFieldSelectors.Image)
	s.PageFieldSelectors.Body = strings.TrimSpace(s.PageFieldSelectors.Body)
	s.PageFieldSelectors.Title = strings.TrimSpace(s.PageFieldSelectors.Title)
	s.PageFieldSelectors.Author = strings.TrimSpace(s.PageFieldSelectors.Author)
	s.PageFieldSelectors.Date = strings.TrimSpace(s.PageFieldSelectors.Date)
	s.PageFieldSelectors.Image = strings.TrimSpace(s.PageFieldSelectors.Image)

	if s.BaseURL == "" {
		first := ""
		if len(s.ListingURLs) > 0 {
			first = s.ListingURLs[0]
		} else if len(s.FeedURLs) > 0 {
			first = s.FeedURLs[0]
		}
		s.BaseURL = origin(first)
	}
	if s.Config == nil {
		s.Config = map[string]any{}
	}
	return s
}

// Validate checks a sanitized source. Selector syntax and schedules are
// checked here so a broken source fails at load time, not mid-crawl.
func Validate(s domain.SourceConfig) error {
	if s.Name == "" {
		return configErr("", errors.New("name is required"))
	}
	switch s.Type {
	case domain.SourceTypeListing:
		if len(s.ListingURLs) == 0 {
			return configErr(s.Name, errors.New("listing_urls is required for listing sources"))
		}
		if s.ListingItemSelector == "" {
			return configErr(s.Name, errors.New("listing_item_selector is required for listing sources"))
		}
	case domain.SourceTypeRSS, domain.SourceTypeSitemap:
		if len(s.FeedURLs) == 0 {
			return configErr(s.Name, fmt.Errorf("feed_urls is required for %s sources", s.Type))
		}
	default:
		return configErr(s.Name, fmt.Errorf("unknown source type %q", s.Type))
	}

	for _, raw := range append(append([]string{s.BaseURL}, s.ListingURLs...), s.FeedURLs...) {
		if err := checkAbsoluteURL(raw); err != nil {
			return configErr(s.Name, err)
		}
	}
	if s.MaxPages < 0 || s.MaxItems < 0 {
		return configErr(s.Name, errors.New("max_pages and max_items must not be negative"))
	}
	if s.ExpectedCount != nil && *s.ExpectedCount < 0 {
		return configErr(s.Name, errors.New("expected_count must not be negative"))
	}

	for field, sel := range selectorFields(s) {
		if sel == "" {
			continue
		}
		if _, err := cascadia.ParseGroup(sel); err != nil {
			return configErr(s.Name, fmt.Errorf("invalid selector %s %q: %w", field, sel, err))
		}
	}

	trigger, err := schedule.Translate(s.Schedule)
	if err != nil {
		return configErr(s.Name, err)
	}
	if trigger != schedule.Disabled {
		if _, err := schedule.Parse(trigger); err != nil {
			return configErr(s.Name, fmt.Errorf("schedule %q: %w", trigger, err))
		}
	}
	return nil
}

func selectorFields(s domain.SourceConfig) map[string]string {
	fields := map[string]string{
		"listing_item_selector":      s.ListingItemSelector,
		"pagination_selector":        s.PaginationSelector,
		"link_selectors.url":         s.LinkFieldSelectors.URL,
		"link_selectors.title":       s.LinkFieldSelectors.Title,
		"link_selectors.description": s.LinkFieldSelectors.Description,
		"link_selectors.image":       s.LinkFieldSelectors.Image,
		"page_selectors.body":        s.PageFieldSelectors.Body,
		"page_selectors.title":       s.PageFieldSelectors.Title,
		"page_selectors.author":      s.PageFieldSelectors.Author,
		"page_selectors.date":        s.PageFieldSelectors.Date,
		"page_selectors.image":       s.PageFieldSelectors.Image,
	}
	for i, sel := range s.IgnoreSelectors {
		fields[fmt.Sprintf("ignore_selectors[%d]", i)] = sel
	}
	return fields
}

func checkAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("url %q must be absolute", raw)
	}
	return nil
}

func configErr(name string, err error) error {
	return &domain.ConfigurationError{Source: name, Err: err}
}

func origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
