package domain

import "time"

// JobEventType names a job lifecycle event.
type JobEventType string

const (
	JobStarted   JobEventType = "job.started"
	JobProgress  JobEventType = "job.progress"
	JobCompleted JobEventType = "job.completed"
	JobFailed    JobEventType = "job.failed"
)

// JobEvent reports one crawl cycle's lifecycle to the events collaborator.
type JobEvent struct {
	Type       JobEventType  `json:"type"`
	JobID      string        `json:"job_id"`
	SourceName string        `json:"source_name"`
	Stage      string        `json:"stage,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	At         time.Time     `json:"at"`
	Duration   time.Duration `json:"duration_ns,omitempty"`
	Discovered int           `json:"discovered"`
	Extracted  int           `json:"extracted"`
	Saved      int           `json:"saved"`
	Duplicates int           `json:"duplicates"`
	Failed     int           `json:"failed"`
	Skipped    string        `json:"skipped,omitempty"`
	Error      string        `json:"error,omitempty"`
	Errors     []string      `json:"errors,omitempty"`
}

// SaveStatus is the article store's verdict for one article.
type SaveStatus string

const (
	SaveSaved     SaveStatus = "saved"
	SaveDuplicate SaveStatus = "duplicate"
	SaveFailed    SaveStatus = "failed"
)

// SaveResult is the per-article outcome of handing a batch to the store.
type SaveResult struct {
	ArticleID string
	URL       string
	Status    SaveStatus
	Err       error
}

// OK reports whether the article is durably accepted. Duplicates count.
func (r SaveResult) OK() bool {
	return r.Status == SaveSaved || r.Status == SaveDuplicate
}

// ArticleBatch is the unit handed to the article store.
type ArticleBatch struct {
	JobID      string
	SourceName string
	Articles   []ExtractedArticle
}
