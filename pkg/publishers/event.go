package publishers

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
)

// Event kinds. A publisher may subscribe to a subset of kinds.
const (
	KindJob      = "job"
	KindArticles = "articles"
	KindBreaker  = "circuit_breaker"
	KindQueue    = "queue"
)

// Event types for the non-job kinds. Job events reuse domain.JobEventType.
const (
	TypeArticlesBatch  = "articles.batch"
	TypeBreakerMetrics = "metrics.circuit_breaker"
	TypeQueueMetrics   = "metrics.queue"
)

// Event is the JSON envelope published downstream. Exactly one payload field
// is set, matching Kind.
type Event struct {
	ID         string                        `json:"id"`
	Kind       string                        `json:"kind"`
	Type       string                        `json:"type"`
	SourceName string                        `json:"source_name,omitempty"`
	JobID      string                        `json:"job_id,omitempty"`
	Job        *domain.JobEvent              `json:"job,omitempty"`
	Articles   []domain.ExtractedArticle     `json:"articles,omitempty"`
	Breaker    *domain.CircuitBreakerMetrics `json:"circuit_breaker,omitempty"`
	Queue      *domain.QueueMetrics          `json:"queue,omitempty"`
	EmittedAt  time.Time                     `json:"emitted_at"`
}

// NewJobEvent wraps a job lifecycle event.
func NewJobEvent(evt domain.JobEvent) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       KindJob,
		Type:       string(evt.Type),
		SourceName: evt.SourceName,
		JobID:      evt.JobID,
		Job:        &evt,
		EmittedAt:  time.Now().UTC(),
	}
}

// NewArticlesEvent wraps one source batch of extracted articles.
func NewArticlesEvent(batch domain.ArticleBatch) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       KindArticles,
		Type:       TypeArticlesBatch,
		SourceName: batch.SourceName,
		JobID:      batch.JobID,
		Articles:   batch.Articles,
		EmittedAt:  time.Now().UTC(),
	}
}

// NewBreakerEvent wraps a circuit breaker snapshot.
func NewBreakerEvent(m domain.CircuitBreakerMetrics) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       KindBreaker,
		Type:       TypeBreakerMetrics,
		SourceName: m.SourceName,
		Breaker:    &m,
		EmittedAt:  time.Now().UTC(),
	}
}

// NewQueueEvent wraps a worker pool snapshot.
func NewQueueEvent(m domain.QueueMetrics) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      KindQueue,
		Type:      TypeQueueMetrics,
		Queue:     &m,
		EmittedAt: time.Now().UTC(),
	}
}

// Attributes returns the routing attributes set on queue and topic messages.
// Empty values are omitted.
func (e Event) Attributes() map[string]string {
	attrs := map[string]string{
		"event_kind": e.Kind,
		"event_type": e.Type,
	}
	if e.SourceName != "" {
		attrs["source_name"] = e.SourceName
	}
	if e.JobID != "" {
		attrs["job_id"] = e.JobID
	}
	return attrs
}

// ErrEventTooLarge is returned when an event cannot be split below a sink's
// message size limit.
var ErrEventTooLarge = errors.New("event exceeds sink message size limit")

type encodedEvent struct {
	Event Event
	Body  []byte
}

// encodeWithin marshals evt. Article batches over limit bytes are halved
// until every part fits; each part gets a derived ID. Other kinds, and single
// articles, that exceed limit fail with ErrEventTooLarge. limit <= 0 means no
// limit.
func encodeWithin(evt Event, limit int) ([]encodedEvent, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	if limit <= 0 || len(body) <= limit {
		return []encodedEvent{{Event: evt, Body: body}}, nil
	}
	if evt.Kind != KindArticles || len(evt.Articles) < 2 {
		return nil, fmt.Errorf("%w: %s event is %d bytes, limit %d", ErrEventTooLarge, evt.Type, len(body), limit)
	}

	mid := len(evt.Articles) / 2
	var out []encodedEvent
	for i, part := range [][]domain.ExtractedArticle{evt.Articles[:mid], evt.Articles[mid:]} {
		sub := evt
		sub.ID = fmt.Sprintf("%s-%d", evt.ID, i+1)
		sub.Articles = part
		enc, err := encodeWithin(sub, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	return out, nil
}
