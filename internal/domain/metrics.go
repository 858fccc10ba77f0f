package domain

import "time"

// CircuitBreakerMetrics is a point-in-time view of one source's breaker.
type CircuitBreakerMetrics struct {
	SourceName         string        `json:"source_name"`
	State              string        `json:"state"`
	Failures           int           `json:"failures"`
	LastFailure        *time.Time    `json:"last_failure,omitempty"`
	LastSuccess        *time.Time    `json:"last_success,omitempty"`
	RecoveryAttempts   int           `json:"recovery_attempts"`
	TimeInCurrentState time.Duration `json:"time_in_current_state_ns"`
	RecoveryWindow     time.Duration `json:"recovery_window_ns"`
}

// QueueMetrics describes the crawl worker pool.
type QueueMetrics struct {
	Workers   int   `json:"workers"`
	Running   int   `json:"running"`
	Queued    int   `json:"queued"`
	Dropped   int64 `json:"dropped"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
