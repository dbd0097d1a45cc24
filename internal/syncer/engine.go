// Package syncer keeps each configured pair's primaries and categories in a
// 1:1 relationship by reacting to repository lifecycle events.
package syncer

import (
	"context"
	"log/slog"
	"slices"

	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/store"
)

// Engine syncs one pair. It never returns errors to hook callers; failures
// are logged and leave no half-written link behind.
type Engine struct {
	pair    domain.Pair
	repo    store.Repository
	guards  *Guards
	emitter store.EventEmitter
	logger  *slog.Logger
}

// NewEngine creates the engine for pair. guards is shared by every engine
// in the process.
func NewEngine(pair domain.Pair, repo store.Repository, guards *Guards, emitter store.EventEmitter, logger *slog.Logger) *Engine {
	if emitter == nil {
		emitter = store.NewNoopEmitter()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		pair:    pair,
		repo:    repo,
		guards:  guards,
		emitter: emitter,
		logger:  logger.With("pair", pair.Key()),
	}
}

// Pair returns the engine's pair.
func (e *Engine) Pair() domain.Pair {
	return e.pair
}

// Enter acquires this pair's guard of the given kind. Bulk callers hold the
// create guard while they write so the engine's hooks stand down.
func (e *Engine) Enter(ctx context.Context, kind Kind) (context.Context, func(), bool) {
	return e.guards.Enter(ctx, e.pair.Key(), kind)
}

// origin is the side whose record is creating its counterpart.
type origin int

const (
	fromPrimary origin = iota
	fromCategory
)

type creationCtxKey struct{}

// creation is one counterpart being created on the request carried by a
// context. Records chain so nested creations stay visible.
type creation struct {
	pair   string
	from   origin
	source string
	name   string
	next   *creation
}

// withCreation returns a context recording that source is creating a
// counterpart called name. The reciprocal create hook runs synchronously
// inside the repository call, before the new id is known, so it is matched
// by name on the same request only.
func (e *Engine) withCreation(ctx context.Context, from origin, sourceID, name string) context.Context {
	head, _ := ctx.Value(creationCtxKey{}).(*creation)
	return context.WithValue(ctx, creationCtxKey{}, &creation{
		pair:   e.pair.Key(),
		from:   from,
		source: sourceID,
		name:   name,
		next:   head,
	})
}

// creating reports whether the request carried by ctx is creating a
// counterpart called name for this pair.
func (e *Engine) creating(ctx context.Context, from origin, name string) bool {
	for c, _ := ctx.Value(creationCtxKey{}).(*creation); c != nil; c = c.next {
		if c.pair == e.pair.Key() && c.from == from && c.name == name {
			return true
		}
	}
	return false
}

func (e *Engine) emit(primaryID, categoryID string) {
	e.emitter.Emit(store.LinkChanged{PairKey: e.pair.Key(), PrimaryID: primaryID, CategoryID: categoryID})
}

// Suppress holds the given guards until release is called, so writes made
// with the returned context do not trigger this engine's hooks. Guards are
// taken in canonical order whatever order kinds are listed in.
func (e *Engine) Suppress(ctx context.Context, kinds ...Kind) (context.Context, func()) {
	sorted := slices.Clone(kinds)
	slices.SortFunc(sorted, func(a, b Kind) int { return a.rank() - b.rank() })

	var releases []func()
	for _, k := range slices.Compact(sorted) {
		var release func()
		ctx, release, _ = e.Enter(ctx, k)
		releases = append(releases, release)
	}
	return ctx, func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
}
