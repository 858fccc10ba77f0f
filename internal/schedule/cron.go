package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
)

// maxLastDayScan bounds the search for the next last-day-of-month match.
const maxLastDayScan = 100000

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse turns a Trigger into a cron.Schedule. A day-of-month of "L" selects
// the last day of each month.
func Parse(t Trigger) (cron.Schedule, error) {
	spec := strings.TrimSpace(string(t))
	if spec == "" {
		return nil, &domain.ConfigurationError{Err: fmt.Errorf("empty trigger expression")}
	}

	fields := strings.Fields(spec)
	if len(fields) == 5 && strings.EqualFold(fields[2], LastDayMarker) {
		fields[2] = "*"
		inner, err := parser.Parse(strings.Join(fields, " "))
		if err != nil {
			return nil, &domain.ConfigurationError{Err: fmt.Errorf("parse trigger %q: %w", spec, err)}
		}
		return lastDayOfMonth{inner: inner}, nil
	}

	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, &domain.ConfigurationError{Err: fmt.Errorf("parse trigger %q: %w", spec, err)}
	}
	return sched, nil
}

// NextFire returns the first activation of t strictly after from.
func NextFire(t Trigger, from time.Time) (time.Time, error) {
	sched, err := Parse(t)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

type lastDayOfMonth struct {
	inner cron.Schedule
}

func (l lastDayOfMonth) Next(t time.Time) time.Time {
	next := l.inner.Next(t)
	for i := 0; i < maxLastDayScan && !next.IsZero(); i++ {
		if next.AddDate(0, 0, 1).Day() == 1 {
			return next
		}
		next = l.inner.Next(next)
	}
	return time.Time{}
}

// Scheduler fires registered callbacks at their trigger times. One entry is
// kept per source; re-registering replaces the previous entry.
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID
	log     logger.Logger
}

// NewScheduler builds a scheduler evaluating triggers in loc.
func NewScheduler(loc *time.Location, log logger.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc), cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
		log:     logger.Ensure(log),
	}
}

// Register schedules fn for source. Disabled triggers unregister the source
// and report false.
func (s *Scheduler) Register(source string, t Trigger, fn func()) (bool, error) {
	if fn == nil {
		return false, fmt.Errorf("schedule %q: nil callback", source)
	}
	if t == Disabled {
		s.Unregister(source)
		return false, nil
	}

	sched, err := Parse(t)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[source]; ok {
		s.cron.Remove(id)
	}
	s.entries[source] = s.cron.Schedule(sched, cron.FuncJob(fn))

	s.log.DebugObj("source trigger registered", "schedule_meta", map[string]any{
		"source":  source,
		"trigger": string(t),
	})
	return true, nil
}

// Unregister drops the entry for source, if any.
func (s *Scheduler) Unregister(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[source]; ok {
		s.cron.Remove(id)
		delete(s.entries, source)
	}
}

// Next reports the next activation time for source.
func (s *Scheduler) Next(source string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[source]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(id)
	if !entry.Valid() {
		return time.Time{}, false
	}
	return entry.Next, true
}

// Len returns the number of registered sources.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Start begins firing triggers in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running callbacks or ctx expiry.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
