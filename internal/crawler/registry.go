package crawler

import (
	"fmt"
	"strings"
	"sync"

	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
)

// DiscovererRegistry resolves the discoverer for a source by its type.
type DiscovererRegistry struct {
	mu     sync.RWMutex
	byType map[string]Discoverer
}

// NewDiscovererRegistry builds a registry from type-keyed discoverers.
func NewDiscovererRegistry(byType map[string]Discoverer) *DiscovererRegistry {
	reg := &DiscovererRegistry{byType: make(map[string]Discoverer, len(byType))}
	for typ, d := range byType {
		reg.Register(typ, d)
	}
	return reg
}

// Register adds or replaces the discoverer for typ.
func (r *DiscovererRegistry) Register(typ string, d Discoverer) {
	if d == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(typ))
	if key == "" {
		return
	}

	r.mu.Lock()
	r.byType[key] = d
	r.mu.Unlock()
}

// For returns the discoverer for src. An empty type means listing.
func (r *DiscovererRegistry) For(src domain.SourceConfig) (Discoverer, error) {
	if r == nil {
		return nil, fmt.Errorf("discoverer registry is nil")
	}
	key := strings.ToLower(strings.TrimSpace(src.Type))
	if key == "" {
		key = domain.SourceTypeListing
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.byType[key]; ok {
		return d, nil
	}
	return nil, &domain.ConfigurationError{
		Source: src.Name,
		Err:    fmt.Errorf("no discoverer registered for type %q", src.Type),
	}
}
