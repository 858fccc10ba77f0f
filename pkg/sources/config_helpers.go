package sources

import (
	"strings"

	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
)

const (
	ConfigUserAgentKey      = "user_agent"
	ConfigAcceptKey         = "accept"
	ConfigAcceptLanguageKey = "accept_language"
	ConfigCacheControlKey   = "cache_control"
	// ConfigSitemapDateParamsKey makes sitemap discovery append yyyy/mm/dd
	// query parameters for the current day.
	ConfigSitemapDateParamsKey = "sitemap_date_params"
	// ConfigSitemapTimezoneKey names the IANA zone used for dated sitemaps.
	ConfigSitemapTimezoneKey = "sitemap_timezone"
)

// ConfigString returns the trimmed string value for key from src.Config or a fallback.
func ConfigString(src domain.SourceConfig, key, fallback string) string {
	if src.Config != nil {
		if raw, ok := src.Config[key]; ok {
			if val, ok := raw.(string); ok {
				if trimmed := strings.TrimSpace(val); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return fallback
}

// ConfigBool reads a boolean flag from src.Config. String values "true",
// "yes" and "1" count as true.
func ConfigBool(src domain.SourceConfig, key string) bool {
	if src.Config == nil {
		return false
	}
	switch v := src.Config[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true
		}
	}
	return false
}

// Headers builds the request headers for a source (skips empty values).
// defaultUserAgent applies when the source sets none.
func Headers(src domain.SourceConfig, defaultUserAgent string) map[string]string {
	headers := make(map[string]string, 4)

	if v := ConfigString(src, ConfigUserAgentKey, defaultUserAgent); v != "" {
		headers["User-Agent"] = v
	}
	if v := ConfigString(src, ConfigAcceptKey, ""); v != "" {
		headers["Accept"] = v
	}
	if v := ConfigString(src, ConfigAcceptLanguageKey, ""); v != "" {
		headers["Accept-Language"] = v
	}
	if v := ConfigString(src, ConfigCacheControlKey, ""); v != "" {
		headers["Cache-Control"] = v
	}

	return headers
}
