package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultMaxRedirects bounds redirect chains followed by page navigation.
const DefaultMaxRedirects = 10

// Option tunes a resty client.
type Option func(*resty.Client)

// WithMaxRedirects overrides DefaultMaxRedirects.
func WithMaxRedirects(n int) Option {
	return func(c *resty.Client) {
		c.SetRedirectPolicy(resty.FlexibleRedirectPolicy(n))
	}
}

// WithUserAgent sets the User-Agent sent when a request carries none.
func WithUserAgent(ua string) Option {
	return func(c *resty.Client) {
		if ua != "" {
			c.SetHeader("User-Agent", ua)
		}
	}
}

// RestyClient is the Client used for page navigation and feed fetches.
type RestyClient struct {
	client *resty.Client
}

// NewRestyClient builds a Client with a per-request timeout.
func NewRestyClient(timeout time.Duration, opts ...Option) *RestyClient {
	return &RestyClient{client: NewRestyHTTPClient(timeout, opts...)}
}

// NewRestyHTTPClient returns the underlying resty client for callers that
// need verbs other than GET or retry policies.
func NewRestyHTTPClient(timeout time.Duration, opts ...Option) *resty.Client {
	c := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(DefaultMaxRedirects))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches url. Non-2xx statuses are returned as responses, not errors.
func (r *RestyClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		Get(url)
	if err != nil {
		return nil, err
	}
	return &response{resp: resp, requested: url}, nil
}

type response struct {
	resp      *resty.Response
	requested string
}

func (r *response) Body() []byte        { return r.resp.Body() }
func (r *response) StatusCode() int     { return r.resp.StatusCode() }
func (r *response) Header() http.Header { return r.resp.Header() }

// FinalURL is the URL of the last request in the redirect chain.
func (r *response) FinalURL() string {
	if raw := r.resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		return raw.Request.URL.String()
	}
	return r.requested
}
