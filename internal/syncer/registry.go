package syncer

import (
	"log/slog"

	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/errors"
	"github.com/pairsync/pairsync-server/internal/store"
)

// Registry holds one Engine per configured pair. It is built once at
// startup and passed to whatever dispatches lifecycle events.
type Registry struct {
	pairs      []domain.Pair
	engines    map[string]*Engine
	byType     map[string][]*Engine
	byTaxonomy map[string][]*Engine
}

// NewRegistry builds an engine for every pair. All engines share one guard table.
func NewRegistry(pairs []domain.Pair, repo store.Repository, emitter store.EventEmitter, logger *slog.Logger) *Registry {
	guards := NewGuards()
	r := &Registry{
		engines:    make(map[string]*Engine, len(pairs)),
		byType:     make(map[string][]*Engine),
		byTaxonomy: make(map[string][]*Engine),
	}
	for _, p := range pairs {
		if _, dup := r.engines[p.Key()]; dup {
			continue
		}
		e := NewEngine(p, repo, guards, emitter, logger)
		r.pairs = append(r.pairs, p)
		r.engines[p.Key()] = e
		r.byType[p.Type] = append(r.byType[p.Type], e)
		r.byTaxonomy[p.Taxonomy] = append(r.byTaxonomy[p.Taxonomy], e)
	}
	return r
}

// Pairs returns the configured pairs in configuration order.
func (r *Registry) Pairs() []domain.Pair {
	out := make([]domain.Pair, len(r.pairs))
	copy(out, r.pairs)
	return out
}

// Get returns the engine registered under a pair key.
func (r *Registry) Get(key string) (*Engine, bool) {
	e, ok := r.engines[key]
	return e, ok
}

// Lookup returns the engine for a type and taxonomy, or a NotFound error
// when that combination is not configured.
func (r *Registry) Lookup(primaryType, taxonomy string) (*Engine, error) {
	if e, ok := r.engines[domain.PairKey(primaryType, taxonomy)]; ok {
		return e, nil
	}
	return nil, errors.NotFoundf("pair %s/%s is not configured", primaryType, taxonomy)
}

// ForType returns the engines whose pair uses primaryType.
func (r *Registry) ForType(primaryType string) []*Engine {
	return r.byType[primaryType]
}

// ForTaxonomy returns the engines whose pair uses taxonomy.
func (r *Registry) ForTaxonomy(taxonomy string) []*Engine {
	return r.byTaxonomy[taxonomy]
}

// HasTaxonomy reports whether any pair uses taxonomy.
func (r *Registry) HasTaxonomy(taxonomy string) bool {
	return len(r.byTaxonomy[taxonomy]) > 0
}
