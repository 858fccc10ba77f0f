package publishers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/httpclient"
)

const (
	httpRetryWait    = 200 * time.Millisecond
	httpRetryMaxWait = 2 * time.Second
	httpBodySnippet  = 512
)

// eventHeaders maps envelope attributes onto request headers so receivers
// can route without decoding the body.
var eventHeaders = map[string]string{
	"event_kind":  "X-Event-Kind",
	"event_type":  "X-Event-Type",
	"source_name": "X-Source-Name",
	"job_id":      "X-Job-ID",
}

// httpPublisher posts JSON envelopes to a webhook. 5xx and 429 responses are
// retried up to the configured count; other non-2xx responses fail at once.
type httpPublisher struct {
	id      string
	method  string
	url     string
	headers map[string]string
	client  *resty.Client
	log     logger.Logger
}

func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log logger.Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("publisher %q missing http configuration", cfg.ID)
	}

	retries := 0
	if cfg.HTTP.Retries != nil {
		retries = *cfg.HTTP.Retries
	}
	client := httpclient.NewRestyHTTPClient(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second).
		SetRetryCount(retries).
		SetRetryWaitTime(httpRetryWait).
		SetRetryMaxWaitTime(httpRetryMaxWait).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil || resp == nil {
				return true
			}
			code := resp.StatusCode()
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		})

	return &httpPublisher{
		id:      cfg.ID,
		method:  cfg.HTTP.Method,
		url:     cfg.HTTP.URL,
		headers: cfg.HTTP.Headers,
		client:  client,
		log:     logger.Ensure(log),
	}, nil
}

func (h *httpPublisher) ID() string   { return h.id }
func (h *httpPublisher) Type() string { return TypeHTTP }

func (h *httpPublisher) Publish(ctx context.Context, evt Event) error {
	req := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Idempotency-Key", evt.ID).
		SetBody(evt)

	for attr, value := range evt.Attributes() {
		if header, ok := eventHeaders[attr]; ok {
			req.SetHeader(header, value)
		}
	}
	// Configured headers go last so a sink can override the defaults.
	if len(h.headers) > 0 {
		req.SetHeaders(h.headers)
	}

	resp, err := req.Execute(h.method, h.url)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	if resp.IsError() {
		h.log.WarnObj("http publisher rejected event", "publisher_http_error", map[string]any{
			"publisher_id": h.id,
			"event_kind":   evt.Kind,
			"event_type":   evt.Type,
			"source":       evt.SourceName,
			"status":       resp.StatusCode(),
			"attempts":     resp.Request.Attempt,
		})
		return fmt.Errorf("http response status %d: %s", resp.StatusCode(), bodySnippet(resp.Body()))
	}
	return nil
}

func bodySnippet(body []byte) string {
	if len(body) > httpBodySnippet {
		body = body[:httpBodySnippet]
	}
	return strings.TrimSpace(string(body))
}
