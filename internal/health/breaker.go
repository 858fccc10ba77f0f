// Package health tracks per-source failure state and decides whether a
// source may be crawled.
package health

import (
	"time"
)

// Phase is the circuit breaker state.
type Phase int

const (
	Closed Phase = iota
	Open
	HalfOpen
)

func (p Phase) String() string {
	switch p {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Policy holds breaker tuning.
type Policy struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold int
	// Recovery is how long the breaker stays open before a trial.
	Recovery time.Duration
	// MaxRecovery caps the backoff-extended recovery window.
	MaxRecovery time.Duration
}

// DefaultPolicy matches the config defaults.
func DefaultPolicy() Policy {
	return Policy{Threshold: 3, Recovery: 15 * time.Minute, MaxRecovery: 24 * time.Hour}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.Threshold <= 0 {
		p.Threshold = d.Threshold
	}
	if p.Recovery <= 0 {
		p.Recovery = d.Recovery
	}
	if p.MaxRecovery < p.Recovery {
		p.MaxRecovery = p.Recovery
	}
	return p
}

// Breaker is one source's breaker state. It is a value: every transition
// returns the next state and leaves the receiver untouched, so callers can
// persist it as-is. Fields are only changed through the transition methods.
type Breaker struct {
	Phase            Phase      `json:"phase"`
	Failures         int        `json:"failures"`
	RecoveryAttempts int        `json:"recovery_attempts"`
	EnteredAt        time.Time  `json:"entered_at"`
	LastFailure      *time.Time `json:"last_failure,omitempty"`
	LastSuccess      *time.Time `json:"last_success,omitempty"`
	// TrialInFlight is set while the single half-open trial runs, which
	// started at TrialStartedAt.
	TrialInFlight  bool       `json:"trial_in_flight"`
	TrialStartedAt *time.Time `json:"trial_started_at,omitempty"`
}

// RecoveryWindow is the open duration before the next trial: the base
// recovery doubled per failed trial, capped at MaxRecovery.
func (b Breaker) RecoveryWindow(p Policy) time.Duration {
	p = p.normalized()
	window := p.Recovery
	for i := 0; i < b.RecoveryAttempts; i++ {
		window *= 2
		if window >= p.MaxRecovery {
			return p.MaxRecovery
		}
	}
	return window
}

// TimeInState reports how long the breaker has been in its current phase.
func (b Breaker) TimeInState(now time.Time) time.Duration {
	if b.EnteredAt.IsZero() {
		return 0
	}
	return now.Sub(b.EnteredAt)
}

// Admit decides whether a crawl may start. An open breaker whose recovery
// window has elapsed moves to half-open and admits exactly one trial.
func (b Breaker) Admit(now time.Time, p Policy) (Breaker, bool) {
	switch b.Phase {
	case Closed:
		return b, true
	case Open:
		if b.TimeInState(now) < b.RecoveryWindow(p) {
			return b, false
		}
		b.Phase = HalfOpen
		b.EnteredAt = now
		return b.startTrial(now), true
	case HalfOpen:
		if b.TrialInFlight && !b.trialAbandoned(now, p) {
			return b, false
		}
		return b.startTrial(now), true
	default:
		return b, false
	}
}

func (b Breaker) startTrial(now time.Time) Breaker {
	b.TrialInFlight = true
	b.TrialStartedAt = &now
	return b
}

// trialAbandoned reports whether the in-flight trial has run longer than the
// recovery window. A trial whose owner died never reports an outcome, so it
// is replaced instead of blocking the source forever. Records without a start
// time are treated as abandoned.
func (b Breaker) trialAbandoned(now time.Time, p Policy) bool {
	if b.TrialStartedAt == nil {
		return true
	}
	return now.Sub(*b.TrialStartedAt) >= b.RecoveryWindow(p)
}

// Fail records a failed crawl.
func (b Breaker) Fail(now time.Time, p Policy) Breaker {
	p = p.normalized()
	b.Failures++
	b.LastFailure = &now

	switch b.Phase {
	case Closed:
		if b.Failures >= p.Threshold {
			b.Phase = Open
			b.EnteredAt = now
		}
	case HalfOpen:
		b.RecoveryAttempts++
		b.Phase = Open
		b.EnteredAt = now
		b.TrialInFlight = false
		b.TrialStartedAt = nil
	}
	return b
}

// Succeed records a successful crawl and closes the breaker.
func (b Breaker) Succeed(now time.Time) Breaker {
	if b.Phase != Closed || b.EnteredAt.IsZero() {
		b.EnteredAt = now
	}
	b.Phase = Closed
	b.Failures = 0
	b.RecoveryAttempts = 0
	b.TrialInFlight = false
	b.TrialStartedAt = nil
	b.LastSuccess = &now
	return b
}

// Release gives back an admitted half-open trial that never reported an
// outcome (for example a cancelled cycle), allowing another trial.
func (b Breaker) Release() Breaker {
	b.TrialInFlight = false
	b.TrialStartedAt = nil
	return b
}
