package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/samvad-hq/samvad-article-pipeline/internal/config"
	"github.com/samvad-hq/samvad-article-pipeline/internal/crawler"
	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/internal/events"
	"github.com/samvad-hq/samvad-article-pipeline/internal/health"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
	"github.com/samvad-hq/samvad-article-pipeline/internal/storage"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/browser"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/feeds"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/httpclient"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/publishers"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/sources"
)

// runtime is the wiring shared by the harvester daemon and the one-shot
// collector.
type runtime struct {
	cfg     *config.Config
	sources []domain.SourceConfig
	fanout  *publishers.Fanout
	store   storage.Store
	tracker *health.Tracker
	emitter *events.Emitter
	browser browser.Browser
	crawler *crawler.Service
	log     logger.Logger
}

func newRuntime(ctx context.Context, cfg *config.Config, log logger.Logger) (*runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	if err := sources.LoadSources(cfg.SourcesFile); err != nil {
		return nil, fmt.Errorf("load sources registry: %w", err)
	}
	srcList := sources.Sources()
	names := make([]string, 0, len(srcList))
	for _, s := range srcList {
		names = append(names, s.Name)
	}
	log.InfoObj("sources registry loaded", "sources_meta", map[string]any{
		"count": len(names),
		"names": names,
	})

	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabledPublishers := publisherReg.Enabled()
	if len(enabledPublishers) == 0 {
		return nil, fmt.Errorf("no publishers configured")
	}
	pubClients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabledPublishers, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	fanout := publishers.NewFanout(pubClients)
	if !fanout.Accepts(publishers.KindArticles) {
		_ = fanout.Close()
		return nil, fmt.Errorf("no enabled publisher subscribes to %q events", publishers.KindArticles)
	}
	publisherSummaries := make([]map[string]any, 0, len(enabledPublishers))
	for _, pubCfg := range enabledPublishers {
		publisherSummaries = append(publisherSummaries, map[string]any{
			"id":    pubCfg.ID,
			"type":  pubCfg.Type,
			"kinds": pubCfg.Kinds,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(publisherSummaries),
		"publishers": publisherSummaries,
	})

	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storage.Options{
		ArticleTTL:      cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	})
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"article_ttl_seconds":      int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	tracker := health.NewTracker(store, health.Policy{
		Threshold:   cfg.BreakerFailureThreshold,
		Recovery:    cfg.BreakerRecovery,
		MaxRecovery: cfg.BreakerMaxRecovery,
	}, cfg.DriftRatio, nil, log)
	for _, src := range srcList {
		if _, err := tracker.Register(src); err != nil {
			_ = store.Close()
			_ = fanout.Close()
			return nil, fmt.Errorf("register source %q: %w", src.Name, err)
		}
	}

	emitter := events.NewEmitter(fanout, 0, log)
	client := httpclient.NewRestyClient(cfg.NavigationTimeout, httpclient.WithUserAgent(cfg.UserAgent))
	br := browser.NewHTTPBrowser(client, browser.Options{
		NavigationTimeout: cfg.NavigationTimeout,
		UserAgent:         cfg.UserAgent,
	}, log)

	feedOpts := feeds.Options{Client: client, UserAgent: cfg.UserAgent, Log: log}
	discoverers := crawler.NewDiscovererRegistry(map[string]crawler.Discoverer{
		domain.SourceTypeListing: crawler.NewListingDiscoverer(crawler.ListingOptions{
			SettleTimeout: cfg.SettleTimeout,
			MaxPages:      cfg.MaxListingPages,
			MaxItems:      cfg.MaxListingItems,
		}, log),
		domain.SourceTypeRSS:     crawler.NewFeedDiscoverer(feeds.NewRSSDiscoverer(feedOpts)),
		domain.SourceTypeSitemap: crawler.NewFeedDiscoverer(feeds.NewSitemapDiscoverer(feedOpts)),
	})

	svc, err := crawler.NewService(crawler.Deps{
		Browser:     br,
		Discoverers: discoverers,
		Health:      tracker,
		History:     store,
		Store:       NewPublishingStore(store, fanout, log),
		Events:      emitter,
	}, crawler.Options{
		PageConcurrency: cfg.PageConcurrency,
		PageTimeout:     cfg.NavigationTimeout + cfg.SettleTimeout,
	}, log)
	if err != nil {
		_ = store.Close()
		_ = fanout.Close()
		return nil, fmt.Errorf("init crawler: %w", err)
	}

	return &runtime{
		cfg:     cfg,
		sources: srcList,
		fanout:  fanout,
		store:   store,
		tracker: tracker,
		emitter: emitter,
		browser: br,
		crawler: svc,
		log:     log,
	}, nil
}

// emitBreakers publishes a breaker snapshot for every known source.
func (r *runtime) emitBreakers(ctx context.Context) {
	snaps, err := r.tracker.SnapshotAll()
	if err != nil {
		r.log.WarnObj("breaker snapshot failed", "health_error", map[string]any{"error": err.Error()})
		return
	}
	for _, m := range snaps {
		r.emitter.EmitBreaker(ctx, m)
	}
}

// close releases the browser, publishers and storage, logging failures.
func (r *runtime) close() {
	if r == nil {
		return
	}
	err := errors.Join(r.browser.Close(), r.fanout.Close(), r.store.Close())
	if err != nil {
		r.log.ErrorObj("runtime shutdown failed", "shutdown_error", map[string]any{"error": err.Error()})
	}
}

// cycleFailed reports whether err is a whole-cycle failure. Skips, partial
// results and cancellation are not.
func cycleFailed(err error) bool {
	if err == nil {
		return false
	}
	var partial *domain.PartialCycleFailure
	switch {
	case errors.As(err, &partial):
		return false
	case errors.Is(err, domain.ErrCircuitOpen):
		return false
	case errors.Is(err, context.Canceled):
		return false
	}
	return true
}
