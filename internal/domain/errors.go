package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCircuitOpen is returned when a source's circuit breaker rejects a crawl.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrCycleInFlight is returned when a trigger fires for a source that is mid-cycle.
	ErrCycleInFlight = errors.New("crawl cycle already in flight")
	// ErrSelectorTimeout is returned when a selector never matched within the wait budget.
	ErrSelectorTimeout = errors.New("selector wait timed out")
	// ErrUnsupportedUnit is returned for interval units the translator does not know.
	ErrUnsupportedUnit = errors.New("unsupported interval unit")
	// ErrUnsupportedScheduleType is returned for unknown schedule types.
	ErrUnsupportedScheduleType = errors.New("unsupported schedule type")
)

// ConfigurationError is fatal and surfaced at startup; never retried.
type ConfigurationError struct {
	Source string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error for source %q: %v", e.Source, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TransientFetchError covers navigation timeouts and network failures. It is
// retried on the next scheduled cycle and counts toward the breaker threshold.
type TransientFetchError struct {
	URL string
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// ExtractionDrift flags a cycle whose discovered link count fell far below the
// configured expectation, usually because listing selectors no longer match.
type ExtractionDrift struct {
	Source     string
	Discovered int
	Expected   int
}

func (e *ExtractionDrift) Error() string {
	return fmt.Sprintf("source %q discovered %d links, expected about %d (likely selector drift)",
		e.Source, e.Discovered, e.Expected)
}

// LinkFailure records one link that could not be extracted.
type LinkFailure struct {
	URL string
	Err error
}

// PartialCycleFailure reports links that failed inside an otherwise
// successful cycle.
type PartialCycleFailure struct {
	Source   string
	Failures []LinkFailure
}

func (e *PartialCycleFailure) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.URL, f.Err))
	}
	return fmt.Sprintf("source %q completed with %d link errors: %s",
		e.Source, len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the individual link errors to errors.Is/As.
func (e *PartialCycleFailure) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
