package scraper

import (
	"github.com/rotisserie/eris"

	"github.com/popvault/pricewatch/internal/catalog"
)

// Registry maps source identifiers to their adapters. It is built once at
// startup and validated against the configured source list, so a source
// without an adapter fails fast instead of at dispatch time.
type Registry struct {
	adapters map[catalog.SourceID]SourceAdapter
}

// NewRegistry builds a Registry from the given adapters.
func NewRegistry(adapters ...SourceAdapter) (*Registry, error) {
	m := make(map[catalog.SourceID]SourceAdapter, len(adapters))
	for _, a := range adapters {
		if a == nil {
			return nil, eris.New("nil adapter")
		}
		id := a.Source()
		if _, dup := m[id]; dup {
			return nil, eris.Errorf("duplicate adapter for source %q", id)
		}
		m[id] = a
	}
	return &Registry{adapters: m}, nil
}

// Validate ensures every configured source has a registered adapter.
func (r *Registry) Validate(configured []catalog.SourceID) error {
	for _, id := range configured {
		if _, ok := r.adapters[id]; !ok {
			return eris.Errorf("no adapter registered for configured source %q", id)
		}
	}
	return nil
}

// Lookup returns the adapter for a source.
func (r *Registry) Lookup(id catalog.SourceID) (SourceAdapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// Sources lists every registered source.
func (r *Registry) Sources() []catalog.SourceID {
	out := make([]catalog.SourceID, 0, len(r.adapters))
	for id := range r.adapters {
		out = append(out, id)
	}
	return out
}
