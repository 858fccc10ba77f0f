package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/internal/extract"
	"github.com/samvad-hq/samvad-article-pipeline/internal/health"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/browser"
	"golang.org/x/sync/errgroup"
)

// Skip reasons reported on CycleResult.Skipped.
const (
	SkipCircuitOpen = "circuit_open"
	SkipUnchanged   = "unchanged"
)

// Deps are the collaborators a Service drives.
type Deps struct {
	Browser     browser.Browser
	Discoverers *DiscovererRegistry
	Health      *health.Tracker
	History     History
	Store       ArticleStore
	Events      JobEvents
}

// Options tune a cycle.
type Options struct {
	// PageConcurrency bounds page contexts fetching articles in parallel.
	PageConcurrency int
	// PageTimeout bounds one article page, navigation and extraction included.
	PageTimeout time.Duration
	Now         func() time.Time
}

// CycleResult summarizes one source cycle.
type CycleResult struct {
	JobID       string
	Source      string
	StartedAt   time.Time
	FinishedAt  time.Time
	Discovered  int
	Fresh       int
	Extracted   int
	Saved       int
	Duplicates  int
	ContentHash string
	Skipped     string
	Drift       *domain.ExtractionDrift
	Failures    []domain.LinkFailure
	Articles    []domain.ExtractedArticle
}

// Service runs crawl cycles: discovery, page extraction, normalization and
// hand-off, with source health deciding what runs.
type Service struct {
	deps Deps
	opts Options
	log  logger.Logger
}

// NewService wires a crawler with its collaborators.
func NewService(deps Deps, opts Options, log logger.Logger) (*Service, error) {
	if deps.Browser == nil || deps.Discoverers == nil || deps.Health == nil || deps.Store == nil {
		return nil, errors.New("crawler: browser, discoverers, health and store are required")
	}
	if deps.History == nil {
		deps.History = nopHistory{}
	}
	if deps.Events == nil {
		deps.Events = nopEvents{}
	}
	if opts.PageConcurrency <= 0 {
		opts.PageConcurrency = 1
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{deps: deps, opts: opts, log: logger.Ensure(log)}, nil
}

// RunCycle runs one cycle for src.
//
// It returns an error wrapping domain.ErrCircuitOpen when the breaker skips
// the source, a *domain.PartialCycleFailure when some links failed but the
// rest were handed off, ctx.Err() when cancelled (nothing is handed off), and
// any other error for a whole-cycle failure, which also counts against the
// source's breaker.
func (s *Service) RunCycle(ctx context.Context, src domain.SourceConfig) (CycleResult, error) {
	res := CycleResult{JobID: uuid.NewString(), Source: src.Name, StartedAt: s.opts.Now()}

	adm, err := s.deps.Health.Admit(src.Name)
	if err != nil {
		if errors.Is(err, domain.ErrCircuitOpen) {
			res.Skipped = SkipCircuitOpen
			res.FinishedAt = s.opts.Now()
			s.log.InfoObj("source skipped by circuit breaker", "cycle_skipped", map[string]any{
				"source": src.Name,
				"job_id": res.JobID,
			})
		}
		return res, err
	}

	reported := false
	defer func() {
		if !reported {
			if err := s.deps.Health.Release(src.Name); err != nil {
				s.log.WarnObj("release breaker trial failed", "health_error", map[string]any{
					"source": src.Name,
					"error":  err.Error(),
				})
			}
		}
	}()

	s.emit(ctx, domain.JobStarted, &res, "", nil)

	disc, err := s.discover(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		reported = true
		return res, s.failCycle(ctx, &res, err)
	}
	res.Discovered = len(disc.Links)
	res.ContentHash = disc.ContentHash
	res.Failures = append(res.Failures, disc.Failures...)
	s.emit(ctx, domain.JobProgress, &res, "discovered", nil)

	expected := adm.Source.ExpectedCount
	if src.ExpectedCount != nil {
		expected = src.ExpectedCount
	}
	if driftErr := s.deps.Health.CheckDrift(src.Name, expected, res.Discovered); driftErr != nil {
		errors.As(driftErr, &res.Drift)
		s.log.WarnObj("likely selector drift", "extraction_drift", map[string]any{
			"source":     src.Name,
			"job_id":     res.JobID,
			"discovered": res.Discovered,
			"expected":   *expected,
		})
	}

	if res.Drift == nil && !s.deps.Health.ShouldExtract(adm.Source, disc.ContentHash) {
		res.Skipped = SkipUnchanged
		reported = true
		s.recordSuccess(ctx, src.Name, disc.ContentHash)
		s.finish(ctx, &res)
		return res, nil
	}

	fresh := s.filterFresh(src, disc.Links)
	res.Fresh = len(fresh)

	articles, failures, err := s.extractAll(ctx, src, fresh)
	if err != nil {
		// cancelled mid-batch: discard everything extracted so far
		return res, err
	}
	res.Failures = append(res.Failures, failures...)
	res.Extracted = len(articles)

	if len(fresh) > 0 && len(articles) == 0 {
		reported = true
		errs := make([]error, 0, len(failures))
		for _, f := range failures {
			errs = append(errs, fmt.Errorf("%s: %w", f.URL, f.Err))
		}
		return res, s.failCycle(ctx, &res, fmt.Errorf("all %d links of %q failed: %w", len(fresh), src.Name, errors.Join(errs...)))
	}

	if len(articles) > 0 {
		results := s.deps.Store.Save(ctx, domain.ArticleBatch{JobID: res.JobID, SourceName: src.Name, Articles: articles})
		s.tally(&res, articles, results)
	}

	reported = true
	if res.Drift != nil {
		s.recordFailure(ctx, src.Name, res.Drift)
	} else {
		s.recordSuccess(ctx, src.Name, disc.ContentHash)
	}
	s.finish(ctx, &res)

	if len(res.Failures) > 0 {
		return res, &domain.PartialCycleFailure{Source: src.Name, Failures: res.Failures}
	}
	return res, nil
}

func (s *Service) discover(ctx context.Context, src domain.SourceConfig) (DiscoveryResult, error) {
	d, err := s.deps.Discoverers.For(src)
	if err != nil {
		return DiscoveryResult{}, err
	}
	page, err := s.deps.Browser.NewPage(ctx, src)
	if err != nil {
		return DiscoveryResult{}, fmt.Errorf("open discovery page: %w", err)
	}
	defer page.Close()
	return d.Discover(ctx, page, src)
}

// filterFresh drops links already handed downstream. A history lookup error
// keeps the link; the article store is the final arbiter of duplicates.
func (s *Service) filterFresh(src domain.SourceConfig, links []domain.CandidateLink) []domain.CandidateLink {
	fresh := make([]domain.CandidateLink, 0, len(links))
	for _, l := range links {
		seen, err := s.deps.History.SeenArticle(ArticleID(l.URL))
		if err != nil {
			s.log.WarnObj("history lookup failed", "history_error", map[string]any{
				"source": src.Name,
				"url":    l.URL,
				"error":  err.Error(),
			})
		}
		if seen {
			continue
		}
		fresh = append(fresh, l)
	}
	return fresh
}

type pageOutcome struct {
	article domain.ExtractedArticle
	err     error
	done    bool
}

// extractAll fetches and extracts links over a bounded pool of pages. Output
// order follows link order. A non-nil error means ctx ended.
func (s *Service) extractAll(ctx context.Context, src domain.SourceConfig, links []domain.CandidateLink) ([]domain.ExtractedArticle, []domain.LinkFailure, error) {
	if len(links) == 0 {
		return nil, nil, nil
	}

	extractor := extract.NewPageExtractor(src.PageFieldSelectors, src.IgnoreSelectors, s.opts.Now, s.log)
	formatter := NewFormatter(src)
	outcomes := make([]pageOutcome, len(links))

	jobs := make(chan int)
	workers := min(s.opts.PageConcurrency, len(links))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for i := range links {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			page, err := s.deps.Browser.NewPage(gctx, src)
			if err != nil {
				for i := range jobs {
					outcomes[i] = pageOutcome{err: fmt.Errorf("open page: %w", err), done: true}
				}
				return nil
			}
			defer page.Close()

			for i := range jobs {
				art, err := s.extractOne(gctx, page, extractor, formatter, links[i])
				if gctx.Err() != nil {
					return gctx.Err()
				}
				outcomes[i] = pageOutcome{article: art, err: err, done: true}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var (
		articles []domain.ExtractedArticle
		failures []domain.LinkFailure
		ids      = make(map[string]struct{}, len(links))
	)
	for i, o := range outcomes {
		if !o.done {
			continue
		}
		if o.err != nil {
			failures = append(failures, domain.LinkFailure{URL: links[i].URL, Err: o.err})
			s.log.WarnObj("article extraction failed", "link_error", map[string]any{
				"source": src.Name,
				"url":    links[i].URL,
				"error":  o.err.Error(),
			})
			continue
		}
		if _, dup := ids[o.article.ID]; dup {
			continue
		}
		ids[o.article.ID] = struct{}{}
		articles = append(articles, o.article)
	}
	return articles, failures, nil
}

func (s *Service) extractOne(ctx context.Context, page browser.Page, ex *extract.PageExtractor, f *Formatter, link domain.CandidateLink) (domain.ExtractedArticle, error) {
	pctx, cancel := context.WithTimeout(ctx, s.opts.PageTimeout)
	defer cancel()

	doc, final, err := page.Navigate(pctx, link.URL)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return domain.ExtractedArticle{}, &domain.TransientFetchError{URL: link.URL, Err: err}
		}
		return domain.ExtractedArticle{}, err
	}
	fields := ex.Extract(doc, final)
	return f.Normalize(link, fields, final)
}

func (s *Service) tally(res *CycleResult, articles []domain.ExtractedArticle, results []domain.SaveResult) {
	byID := make(map[string]domain.SaveResult, len(results))
	for _, r := range results {
		byID[r.ArticleID] = r
	}
	for _, a := range articles {
		r, ok := byID[a.ID]
		switch {
		case !ok:
			res.Failures = append(res.Failures, domain.LinkFailure{URL: a.URL, Err: errors.New("article store returned no result")})
		case r.Status == domain.SaveSaved:
			res.Saved++
			res.Articles = append(res.Articles, a)
		case r.Status == domain.SaveDuplicate:
			res.Duplicates++
			res.Articles = append(res.Articles, a)
		default:
			err := r.Err
			if err == nil {
				err = errors.New("article store rejected article")
			}
			res.Failures = append(res.Failures, domain.LinkFailure{URL: a.URL, Err: err})
		}
	}
}

func (s *Service) failCycle(ctx context.Context, res *CycleResult, cause error) error {
	s.recordFailure(ctx, res.Source, cause)
	res.FinishedAt = s.opts.Now()
	s.emit(ctx, domain.JobFailed, res, "", cause)
	s.log.ErrorObj("crawl cycle failed", "cycle_error", map[string]any{
		"source": res.Source,
		"job_id": res.JobID,
		"error":  cause.Error(),
	})
	return cause
}

func (s *Service) finish(ctx context.Context, res *CycleResult) {
	res.FinishedAt = s.opts.Now()
	var cause error
	if len(res.Failures) > 0 {
		cause = &domain.PartialCycleFailure{Source: res.Source, Failures: res.Failures}
	}
	s.emit(ctx, domain.JobCompleted, res, "", cause)
	s.log.InfoObj("crawl cycle completed", "cycle_result", map[string]any{
		"source":     res.Source,
		"job_id":     res.JobID,
		"discovered": res.Discovered,
		"fresh":      res.Fresh,
		"extracted":  res.Extracted,
		"saved":      res.Saved,
		"duplicates": res.Duplicates,
		"failed":     len(res.Failures),
		"skipped":    res.Skipped,
		"drift":      res.Drift != nil,
	})
}

func (s *Service) recordSuccess(ctx context.Context, source, hash string) {
	if _, err := s.deps.Health.RecordSuccess(source, hash); err != nil {
		s.log.ErrorObj("record source success failed", "health_error", map[string]any{"source": source, "error": err.Error()})
	}
	s.emitBreaker(ctx, source)
}

func (s *Service) recordFailure(ctx context.Context, source string, cause error) {
	if _, err := s.deps.Health.RecordFailure(source, cause); err != nil {
		s.log.ErrorObj("record source failure failed", "health_error", map[string]any{"source": source, "error": err.Error()})
	}
	s.emitBreaker(ctx, source)
}

func (s *Service) emitBreaker(ctx context.Context, source string) {
	m, err := s.deps.Health.Snapshot(source)
	if err != nil {
		return
	}
	s.deps.Events.EmitBreaker(context.WithoutCancel(ctx), m)
}

func (s *Service) emit(ctx context.Context, typ domain.JobEventType, res *CycleResult, stage string, cause error) {
	now := s.opts.Now()
	evt := domain.JobEvent{
		Type:       typ,
		JobID:      res.JobID,
		SourceName: res.Source,
		Stage:      stage,
		StartedAt:  res.StartedAt,
		At:         now,
		Duration:   now.Sub(res.StartedAt),
		Discovered: res.Discovered,
		Extracted:  res.Extracted,
		Saved:      res.Saved,
		Duplicates: res.Duplicates,
		Failed:     len(res.Failures),
		Skipped:    res.Skipped,
	}
	if cause != nil {
		evt.Error = cause.Error()
	}
	for _, f := range res.Failures {
		evt.Errors = append(evt.Errors, fmt.Sprintf("%s: %v", f.URL, f.Err))
	}
	s.deps.Events.EmitJob(context.WithoutCancel(ctx), evt)
}
