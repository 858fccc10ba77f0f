// Package storage persists pipeline state: the seen-article history used for
// deduplication and each source's health record.
package storage

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-article-pipeline/internal/health"
)

// Store tracks seen article IDs and source health.
type Store interface {
	health.Store
	Close() error
	SeenArticle(id string) (bool, error)
	MarkArticle(id string) error
}

// Options controls article retention.
type Options struct {
	ArticleTTL      time.Duration
	CleanupInterval time.Duration
}

const (
	defaultArticleTTL      = 14 * 24 * time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

// NewStore creates the configured backend:
//
//	bbolt    history and health in a bbolt file at path
//	memory   history with TTL and health in process memory
//	none     health in memory, no history (every article is fresh)
func NewStore(typ, path string, opts Options) (Store, error) {
	opts = normalizeOptions(opts)

	switch strings.TrimSpace(strings.ToLower(typ)) {
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		s, err := openBolt(path, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return newMemoryStore(opts.ArticleTTL, time.Now), nil
	case "", "none", "disabled":
		return forgetfulStore{MemoryStore: health.NewMemoryStore()}, nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.ArticleTTL <= 0 {
		opts.ArticleTTL = defaultArticleTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

type memoryStore struct {
	*health.MemoryStore
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	expiry map[string]time.Time
}

func newMemoryStore(ttl time.Duration, now func() time.Time) *memoryStore {
	return &memoryStore{
		MemoryStore: health.NewMemoryStore(),
		ttl:         ttl,
		now:         now,
		expiry:      make(map[string]time.Time),
	}
}

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) SeenArticle(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.expiry[id]
	if !ok {
		return false, nil
	}
	if !exp.After(m.now()) {
		delete(m.expiry, id)
		return false, nil
	}
	return true, nil
}

func (m *memoryStore) MarkArticle(id string) error {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, exp := range m.expiry {
		if !exp.After(now) {
			delete(m.expiry, k)
		}
	}
	m.expiry[id] = now.Add(m.ttl)
	return nil
}

type forgetfulStore struct {
	*health.MemoryStore
}

func (forgetfulStore) Close() error                     { return nil }
func (forgetfulStore) SeenArticle(string) (bool, error) { return false, nil }
func (forgetfulStore) MarkArticle(string) error         { return nil }
