package source

import (
	"context"
	"strings"

	"github.com/curator-agent/internal/models"
)

// Mux routes source references to adapters by an optional "<kind>+" prefix
// on the reference ("scrape+https://example.com/news"). References without
// a prefix go to the fallback adapter, so plain feed URLs keep working.
type Mux struct {
	adapters map[string]Adapter
	fallback Adapter
}

// NewMux creates a mux with a fallback adapter for unprefixed references.
func NewMux(fallback Adapter, others ...Adapter) *Mux {
	m := &Mux{
		adapters: make(map[string]Adapter, len(others)+1),
		fallback: fallback,
	}
	m.adapters[fallback.Kind()] = fallback
	for _, a := range others {
		m.adapters[a.Kind()] = a
	}
	return m
}

// Kind returns "mux"
func (m *Mux) Kind() string {
	return "mux"
}

// resolve splits an optional kind prefix off the reference.
func (m *Mux) resolve(sourceRef string) (Adapter, string) {
	if kind, rest, found := strings.Cut(sourceRef, "+"); found {
		if adapter, ok := m.adapters[kind]; ok {
			return adapter, rest
		}
	}
	return m.fallback, sourceRef
}

// Fetch implements Adapter by delegating to the routed adapter.
func (m *Mux) Fetch(ctx context.Context, sourceRef string) ([]models.ContentItem, error) {
	adapter, ref := m.resolve(sourceRef)
	return adapter.Fetch(ctx, ref)
}

// HealthCheck implements Adapter by delegating to the routed adapter.
func (m *Mux) HealthCheck(ctx context.Context, sourceRef string) error {
	adapter, ref := m.resolve(sourceRef)
	return adapter.HealthCheck(ctx, ref)
}

// Ensure Mux implements Adapter
var _ Adapter = (*Mux)(nil)
