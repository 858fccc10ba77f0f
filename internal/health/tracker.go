package health

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
)

// Record is the persisted health of one source.
type Record struct {
	Source  domain.ContentSource `json:"source"`
	Breaker Breaker              `json:"breaker"`
}

// Store persists health records keyed by source name.
type Store interface {
	LoadHealth(source string) (Record, bool, error)
	SaveHealth(source string, rec Record) error
	ListHealth() (map[string]Record, error)
}

// Admission is handed to a cycle that passed the breaker.
type Admission struct {
	Source domain.ContentSource
	// Trial is true when the cycle is the single half-open trial.
	Trial bool
}

// Tracker owns every source's health record. Mutations for one source are
// serialized through a per-source lock; different sources never contend.
type Tracker struct {
	store      Store
	policy     Policy
	driftRatio float64
	now        func() time.Time
	log        logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTracker builds a tracker. now may be nil.
func NewTracker(store Store, policy Policy, driftRatio float64, now func() time.Time, log logger.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		store:      store,
		policy:     policy.normalized(),
		driftRatio: driftRatio,
		now:        now,
		log:        logger.Ensure(log),
		locks:      make(map[string]*sync.Mutex),
	}
}

// Policy returns the breaker policy in effect.
func (t *Tracker) Policy() Policy { return t.policy }

func (t *Tracker) lock(source string) func() {
	t.mu.Lock()
	l, ok := t.locks[source]
	if !ok {
		l = &sync.Mutex{}
		t.locks[source] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Register creates the ContentSource record for src if it does not exist and
// refreshes the config-owned fields if it does. It runs before any cycle, so a
// half-open trial persisted by an earlier process is released.
func (t *Tracker) Register(src domain.SourceConfig) (domain.ContentSource, error) {
	defer t.lock(src.Name)()

	rec, ok, err := t.store.LoadHealth(src.Name)
	if err != nil {
		return domain.ContentSource{}, fmt.Errorf("load health for %s: %w", src.Name, err)
	}
	if !ok {
		rec = Record{
			Source:  domain.ContentSource{ID: uuid.NewString()},
			Breaker: Breaker{EnteredAt: t.now()},
		}
	}
	if rec.Breaker.TrialInFlight {
		t.log.WarnObj("releasing stale half-open trial", "breaker_meta", map[string]any{
			"source":        src.Name,
			"trial_started": rec.Breaker.TrialStartedAt,
		})
		rec.Breaker = rec.Breaker.Release()
	}
	rec.Source.URL = primaryURL(src)
	rec.Source.RSSURLs = append([]string(nil), src.FeedURLs...)
	rec.Source.ExpectedCount = src.ExpectedCount

	if err := t.store.SaveHealth(src.Name, rec); err != nil {
		return domain.ContentSource{}, fmt.Errorf("save health for %s: %w", src.Name, err)
	}
	return rec.Source, nil
}

func primaryURL(src domain.SourceConfig) string {
	switch {
	case len(src.ListingURLs) > 0:
		return src.ListingURLs[0]
	case len(src.FeedURLs) > 0:
		return src.FeedURLs[0]
	default:
		return src.BaseURL
	}
}

// Admit asks the breaker whether source may be crawled now. It returns
// domain.ErrCircuitOpen when the source must be skipped.
func (t *Tracker) Admit(source string) (Admission, error) {
	defer t.lock(source)()

	rec, err := t.load(source)
	if err != nil {
		return Admission{}, err
	}
	before := rec.Breaker.Phase
	next, ok := rec.Breaker.Admit(t.now(), t.policy)
	if !ok {
		return Admission{}, fmt.Errorf("%w: source %q", domain.ErrCircuitOpen, source)
	}
	rec.Breaker = next
	if err := t.store.SaveHealth(source, rec); err != nil {
		return Admission{}, fmt.Errorf("save health for %s: %w", source, err)
	}
	if before != next.Phase {
		t.logTransition(source, before, next, nil)
	}
	return Admission{Source: rec.Source, Trial: next.Phase == HalfOpen}, nil
}

// ShouldExtract reports whether a cycle must run full extraction given the
// listing hash it just computed. A failed source is always re-extracted.
func (t *Tracker) ShouldExtract(cs domain.ContentSource, hash string) bool {
	if cs.HasFailed || hash == "" || cs.ContentHash == "" {
		return true
	}
	return cs.ContentHash != hash
}

// CheckDrift returns an *domain.ExtractionDrift when discovered falls below
// the drift ratio of the expected count.
func (t *Tracker) CheckDrift(source string, expected *int, discovered int) error {
	if expected == nil || *expected <= 0 || t.driftRatio <= 0 {
		return nil
	}
	if float64(discovered) < t.driftRatio*float64(*expected) {
		return &domain.ExtractionDrift{Source: source, Discovered: discovered, Expected: *expected}
	}
	return nil
}

// RecordSuccess closes the breaker, clears failure counters and stores hash
// when it is non-empty.
func (t *Tracker) RecordSuccess(source, hash string) (Record, error) {
	defer t.lock(source)()

	rec, err := t.load(source)
	if err != nil {
		return Record{}, err
	}
	now := t.now()
	before := rec.Breaker.Phase
	rec.Breaker = rec.Breaker.Succeed(now)
	rec.Source.FailedCount = 0
	rec.Source.HasFailed = false
	rec.Source.RefreshedAt = now
	if hash != "" {
		rec.Source.ContentHash = hash
	}
	if err := t.store.SaveHealth(source, rec); err != nil {
		return Record{}, fmt.Errorf("save health for %s: %w", source, err)
	}
	if before != Closed {
		t.logTransition(source, before, rec.Breaker, nil)
	}
	return rec, nil
}

// RecordFailure counts a failed cycle toward the breaker threshold.
func (t *Tracker) RecordFailure(source string, cause error) (Record, error) {
	defer t.lock(source)()

	rec, err := t.load(source)
	if err != nil {
		return Record{}, err
	}
	now := t.now()
	before := rec.Breaker.Phase
	rec.Breaker = rec.Breaker.Fail(now, t.policy)
	rec.Source.FailedCount = rec.Breaker.Failures
	rec.Source.HasFailed = true
	rec.Source.RefreshedAt = now
	if err := t.store.SaveHealth(source, rec); err != nil {
		return Record{}, fmt.Errorf("save health for %s: %w", source, err)
	}
	if before != rec.Breaker.Phase {
		t.logTransition(source, before, rec.Breaker, cause)
	}
	return rec, nil
}

// Release returns an unfinished half-open trial.
func (t *Tracker) Release(source string) error {
	defer t.lock(source)()

	rec, err := t.load(source)
	if err != nil {
		return err
	}
	if !rec.Breaker.TrialInFlight {
		return nil
	}
	rec.Breaker = rec.Breaker.Release()
	return t.store.SaveHealth(source, rec)
}

// Snapshot reports breaker metrics for one source.
func (t *Tracker) Snapshot(source string) (domain.CircuitBreakerMetrics, error) {
	defer t.lock(source)()

	rec, err := t.load(source)
	if err != nil {
		return domain.CircuitBreakerMetrics{}, err
	}
	return t.metrics(source, rec), nil
}

// SnapshotAll reports breaker metrics for every known source.
func (t *Tracker) SnapshotAll() ([]domain.CircuitBreakerMetrics, error) {
	all, err := t.store.ListHealth()
	if err != nil {
		return nil, fmt.Errorf("list health: %w", err)
	}
	out := make([]domain.CircuitBreakerMetrics, 0, len(all))
	for name, rec := range all {
		out = append(out, t.metrics(name, rec))
	}
	return out, nil
}

func (t *Tracker) metrics(source string, rec Record) domain.CircuitBreakerMetrics {
	b := rec.Breaker
	return domain.CircuitBreakerMetrics{
		SourceName:         source,
		State:              b.Phase.String(),
		Failures:           b.Failures,
		LastFailure:        b.LastFailure,
		LastSuccess:        b.LastSuccess,
		RecoveryAttempts:   b.RecoveryAttempts,
		TimeInCurrentState: b.TimeInState(t.now()),
		RecoveryWindow:     b.RecoveryWindow(t.policy),
	}
}

// ErrUnknownSource is returned for sources that were never registered.
var ErrUnknownSource = errors.New("source not registered")

func (t *Tracker) load(source string) (Record, error) {
	rec, ok, err := t.store.LoadHealth(source)
	if err != nil {
		return Record{}, fmt.Errorf("load health for %s: %w", source, err)
	}
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	return rec, nil
}

func (t *Tracker) logTransition(source string, from Phase, b Breaker, cause error) {
	fields := map[string]any{
		"source":            source,
		"from":              from.String(),
		"to":                b.Phase.String(),
		"failures":          b.Failures,
		"recovery_attempts": b.RecoveryAttempts,
	}
	if cause != nil {
		fields["error"] = cause.Error()
	}
	if b.Phase == Open {
		fields["recovery_window"] = b.RecoveryWindow(t.policy).String()
		t.log.WarnObj("circuit breaker opened", "circuit_breaker", fields)
		return
	}
	t.log.InfoObj("circuit breaker transition", "circuit_breaker", fields)
}
