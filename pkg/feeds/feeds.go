// Package feeds discovers candidate article links from RSS/Atom feeds and
// Google News style sitemaps.
package feeds

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/httpclient"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/sources"
)

// DefaultHTTPClient returns the client feed discoverers use when none is given.
func DefaultHTTPClient() httpclient.Client { return httpclient.NewRestyClient(15 * time.Second) }

// Result is the outcome of discovering one source's feeds. A failing feed URL
// is recorded in Failures and never hides links from the others.
type Result struct {
	Links    []domain.CandidateLink
	Failures []domain.LinkFailure
}

// Options shared by both discoverers.
type Options struct {
	Client    httpclient.Client
	UserAgent string
	Now       func() time.Time
	Log       logger.Logger
}

func (o Options) withDefaults() Options {
	if o.Client == nil {
		o.Client = DefaultHTTPClient()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Log = logger.Ensure(o.Log)
	return o
}

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

func fetch(ctx context.Context, client httpclient.Client, rawURL, source string, headers map[string]string) ([]byte, error) {
	resp, err := client.Get(ctx, rawURL, headers)
	if err != nil {
		return nil, &domain.TransientFetchError{URL: rawURL, Err: fmt.Errorf("fetch %s feed: %w", source, err)}
	}

	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return nil, &domain.TransientFetchError{
			URL: rawURL,
			Err: fmt.Errorf("%s feed returned status %d body: %s", source, resp.StatusCode(), responseSnippet(body)),
		}
	}
	return body, nil
}

func headersFor(src domain.SourceConfig, userAgent string) map[string]string {
	return sources.Headers(src, userAgent)
}

func resolve(ref, base string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return r.String()
	}
	return b.ResolveReference(r).String()
}

// dedupe drops repeated URLs keeping the first occurrence.
func dedupe(links []domain.CandidateLink) []domain.CandidateLink {
	seen := make(map[string]struct{}, len(links))
	out := links[:0]
	for _, l := range links {
		if _, ok := seen[l.URL]; ok {
			continue
		}
		seen[l.URL] = struct{}{}
		out = append(out, l)
	}
	return out
}
