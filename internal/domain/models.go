package domain

import "time"

// Domain contains core models shared by the acquisition pipeline.

// Discovery modes for a source.
const (
	SourceTypeListing = "listing"
	SourceTypeRSS     = "rss"
	SourceTypeSitemap = "sitemap"
)

// LinkSelectors are applied inside every listing item.
type LinkSelectors struct {
	URL         string `json:"url" yaml:"url"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Image       string `json:"image" yaml:"image"`
}

// PageSelectors are tried first when extracting an article page.
type PageSelectors struct {
	Body   string `json:"body" yaml:"body"`
	Title  string `json:"title" yaml:"title"`
	Author string `json:"author" yaml:"author"`
	Date   string `json:"date" yaml:"date"`
	Image  string `json:"image" yaml:"image"`
}

// SourceConfig identifies one crawlable site. It is immutable for the
// duration of a crawl cycle.
type SourceConfig struct {
	Name                string         `json:"name" yaml:"name"`
	Type                string         `json:"type" yaml:"type"`
	ListingURLs         []string       `json:"listing_urls" yaml:"listing_urls"`
	FeedURLs            []string       `json:"feed_urls" yaml:"feed_urls"`
	BaseURL             string         `json:"base_url" yaml:"base_url"`
	ListingItemSelector string         `json:"listing_item_selector" yaml:"listing_item_selector"`
	PaginationSelector  string         `json:"pagination_selector" yaml:"pagination_selector"`
	LinkFieldSelectors  LinkSelectors  `json:"link_selectors" yaml:"link_selectors"`
	PageFieldSelectors  PageSelectors  `json:"page_selectors" yaml:"page_selectors"`
	IgnoreSelectors     []string       `json:"ignore_selectors" yaml:"ignore_selectors"`
	MaxPages            int            `json:"max_pages" yaml:"max_pages"`
	MaxItems            int            `json:"max_items" yaml:"max_items"`
	ExpectedCount       *int           `json:"expected_count" yaml:"expected_count"`
	RequestDelayMs      int            `json:"request_delay_ms" yaml:"request_delay_ms"`
	Schedule            ScheduleConfig `json:"schedule" yaml:"schedule"`
	Config              map[string]any `json:"config" yaml:"config"`
}

// RequestDelay returns the minimum spacing between page navigations.
func (s SourceConfig) RequestDelay() time.Duration {
	if s.RequestDelayMs <= 0 {
		return 0
	}
	return time.Duration(s.RequestDelayMs) * time.Millisecond
}

// ContentSource is the persisted, mutable record shadowing a SourceConfig.
type ContentSource struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	RSSURLs       []string  `json:"rss_urls,omitempty"`
	ContentHash   string    `json:"content_hash,omitempty"`
	HasFailed     bool      `json:"has_failed"`
	FailedCount   int       `json:"failed_count"`
	RefreshedAt   time.Time `json:"refreshed_at"`
	ExpectedCount *int      `json:"expected_count,omitempty"`
}

// CandidateLink is produced by link discovery and discarded after the cycle.
type CandidateLink struct {
	URL           string     `json:"url"`
	Title         string     `json:"title,omitempty"`
	Description   string     `json:"description,omitempty"`
	FeaturedImage string     `json:"featured_image,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	Source        string     `json:"source"`
}

// PageFields holds the raw per-page extraction result. Empty strings mean
// the field was not found.
type PageFields struct {
	Title         string
	Body          string
	ContainerText string
	Author        string
	PublishedAt   *time.Time
	FeaturedImage string
	Keywords      []string
}

// ExtractedArticle is the canonical article record handed to the article store.
type ExtractedArticle struct {
	ID            string     `json:"id"`
	Title         string     `json:"title,omitempty"`
	URL           string     `json:"url"`
	Body          string     `json:"body,omitempty"`
	Author        string     `json:"author,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	FeaturedImage string     `json:"featured_image,omitempty"`
	Keywords      []string   `json:"keywords"`
	SourceName    string     `json:"source_name"`
	// DiscoveredURL is the link as discovered, set only when the page
	// redirected away from it.
	DiscoveredURL string `json:"discovered_url,omitempty"`
}
