package syncer

import (
	"context"
	"sync"
)

// Kind is the class of engine operation a guard protects.
type Kind string

// Guard kinds. Nested acquisition always follows update, create, delete,
// so two goroutines can never wait on each other.
const (
	KindUpdate Kind = "update"
	KindCreate Kind = "create"
	KindDelete Kind = "delete"
)

type guardKey struct {
	pair string
	kind Kind
}

type tokenCtxKey struct{}

// Guards serializes engine operations per (pair, kind) and detects
// re-entry: a hook fired by the engine's own write carries a token in its
// context and is skipped instead of recursing.
type Guards struct {
	mu    sync.Mutex
	locks map[guardKey]*sync.Mutex
}

// NewGuards creates an empty guard table.
func NewGuards() *Guards {
	return &Guards{locks: make(map[guardKey]*sync.Mutex)}
}

// Enter acquires the guard for (pairKey, kind). When ctx already holds it,
// Enter returns ok=false and the caller must return without acting.
// Otherwise the returned context carries the token and release must be called.
func (g *Guards) Enter(ctx context.Context, pairKey string, kind Kind) (context.Context, func(), bool) {
	key := guardKey{pair: pairKey, kind: kind}
	if Held(ctx, pairKey, kind) {
		return ctx, func() {}, false
	}

	g.mu.Lock()
	l, ok := g.locks[key]
	if !ok {
		l = &sync.Mutex{}
		g.locks[key] = l
	}
	g.mu.Unlock()

	l.Lock()

	held, _ := ctx.Value(tokenCtxKey{}).(map[guardKey]bool)
	next := make(map[guardKey]bool, len(held)+1)
	for k := range held {
		next[k] = true
	}
	next[key] = true

	var once sync.Once
	return context.WithValue(ctx, tokenCtxKey{}, next), func() { once.Do(l.Unlock) }, true
}

// Held reports whether ctx carries the token for (pairKey, kind).
func Held(ctx context.Context, pairKey string, kind Kind) bool {
	held, _ := ctx.Value(tokenCtxKey{}).(map[guardKey]bool)
	return held[guardKey{pair: pairKey, kind: kind}]
}

func (k Kind) rank() int {
	switch k {
	case KindUpdate:
		return 0
	case KindCreate:
		return 1
	default:
		return 2
	}
}
