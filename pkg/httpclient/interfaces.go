// Package httpclient is the HTTP transport shared by page navigation, feed
// discovery and the webhook publisher.
package httpclient

import (
	"context"
	"net/http"
)

// Response is the part of an HTTP response the pipeline reads.
type Response interface {
	Body() []byte
	StatusCode() int
	Header() http.Header
	// FinalURL is the request URL after any redirects were followed.
	FinalURL() string
}

// Client fetches pages and feeds. Tests substitute fakes.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
}
