package publishers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Builder creates a Publisher from a config entry.
type Builder func(ctx context.Context, cfg PublisherConfig, log logger.Logger) (Publisher, error)

// Registry maps publisher types to builders. Types are matched
// case-insensitively.
type Registry interface {
	Register(typ string, builder Builder)
	PublisherFor(ctx context.Context, cfg PublisherConfig, log logger.Logger) (Publisher, error)
}

type registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry returns a registry seeded with builders.
func NewRegistry(builders map[string]Builder) Registry {
	r := &registry{builders: make(map[string]Builder, len(builders))}
	for typ, b := range builders {
		r.Register(typ, b)
	}
	return r
}

// Register associates a builder with a publisher type.
func (r *registry) Register(typ string, builder Builder) {
	if typ = strings.TrimSpace(strings.ToLower(typ)); typ == "" || builder == nil {
		return
	}

	r.mu.Lock()
	r.builders[typ] = builder
	r.mu.Unlock()
}

// PublisherFor returns the publisher built for the provided config. Configs
// with a kinds filter are wrapped so unsubscribed events are dropped.
func (r *registry) PublisherFor(ctx context.Context, cfg PublisherConfig, log logger.Logger) (Publisher, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("publisher %q has no type configured", cfg.ID)
	}

	r.mu.RLock()
	builder := r.builders[strings.ToLower(cfg.Type)]
	r.mu.RUnlock()

	if builder == nil {
		return nil, fmt.Errorf("no publisher registered for type %q", cfg.Type)
	}
	pub, err := builder(ctx, cfg, logger.Ensure(log))
	if err != nil {
		return nil, err
	}
	if len(cfg.Kinds) > 0 {
		return &kindFilter{Publisher: pub, cfg: cfg}, nil
	}
	return pub, nil
}

// DefaultRegistry wires up known publishers.
func DefaultRegistry() Registry {
	builders := map[string]Builder{
		TypeHTTP:      newHTTPPublisher,
		TypeSQS:       newSQSPublisher,
		TypeSNS:       newSNSPublisher,
		TypeGCPPubSub: newGCPPubSubPublisher,
	}
	return NewRegistry(builders)
}

// BuildAll instantiates publishers for cfgs concurrently, returning them in
// config order. Client setup can dial (Pub/Sub) or resolve credentials (AWS),
// so one slow sink does not hold up the rest. On any failure every
// successfully built publisher is closed and all build errors are returned.
func BuildAll(ctx context.Context, reg Registry, cfgs []PublisherConfig, log logger.Logger) ([]Publisher, error) {
	if reg == nil || len(cfgs) == 0 {
		return nil, nil
	}

	pubs := make([]Publisher, len(cfgs))
	errs := make([]error, len(cfgs))
	var g errgroup.Group
	for i, cfg := range cfgs {
		g.Go(func() error {
			pub, err := reg.PublisherFor(ctx, cfg, log)
			if err != nil {
				errs[i] = fmt.Errorf("build publisher %q: %w", cfg.ID, err)
				return nil
			}
			pubs[i] = pub
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		built := make([]Publisher, 0, len(pubs))
		for _, p := range pubs {
			if p != nil {
				built = append(built, p)
			}
		}
		closeAll(built)
		return nil, err
	}
	return pubs, nil
}

// kindFilter drops events outside the publisher's subscribed kinds.
type kindFilter struct {
	Publisher
	cfg PublisherConfig
}

func (k *kindFilter) Accepts(kind string) bool { return k.cfg.Accepts(kind) }

func (k *kindFilter) Publish(ctx context.Context, evt Event) error {
	if !k.cfg.Accepts(evt.Kind) {
		return nil
	}
	return k.Publisher.Publish(ctx, evt)
}

func (k *kindFilter) Close() error {
	if c, ok := k.Publisher.(Closer); ok {
		return c.Close()
	}
	return nil
}
