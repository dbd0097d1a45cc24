package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/store"
)

// Dispatcher routes repository lifecycle events to the engines whose pair
// matches the record's type or taxonomy. It implements store.Hooks.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

var _ store.Hooks = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// PrimaryCreated implements store.Hooks.
func (d *Dispatcher) PrimaryCreated(ctx context.Context, p *domain.Primary) {
	for _, e := range d.registry.ForType(p.Type) {
		d.run("primary created", p.ID, func() { e.OnPrimaryCreated(ctx, p) })
	}
}

// PrimaryUpdated implements store.Hooks.
func (d *Dispatcher) PrimaryUpdated(ctx context.Context, before, after *domain.Primary) {
	for _, e := range d.registry.ForType(after.Type) {
		d.run("primary updated", after.ID, func() { e.OnPrimaryUpdated(ctx, before, after) })
	}
}

// PrimaryBeforeDelete implements store.Hooks.
func (d *Dispatcher) PrimaryBeforeDelete(ctx context.Context, p *domain.Primary) {
	for _, e := range d.registry.ForType(p.Type) {
		d.run("primary deleted", p.ID, func() { e.OnPrimaryBeforeDelete(ctx, p) })
	}
}

// CategoryCreated implements store.Hooks.
func (d *Dispatcher) CategoryCreated(ctx context.Context, c *domain.Category) {
	for _, e := range d.registry.ForTaxonomy(c.Taxonomy) {
		d.run("category created", c.ID, func() { e.OnCategoryCreated(ctx, c) })
	}
}

// CategoryUpdated implements store.Hooks.
func (d *Dispatcher) CategoryUpdated(ctx context.Context, before, after *domain.Category) {
	for _, e := range d.registry.ForTaxonomy(after.Taxonomy) {
		d.run("category updated", after.ID, func() { e.OnCategoryUpdated(ctx, before, after) })
	}
}

// CategoryBeforeDelete implements store.Hooks.
func (d *Dispatcher) CategoryBeforeDelete(ctx context.Context, c *domain.Category) {
	for _, e := range d.registry.ForTaxonomy(c.Taxonomy) {
		d.run("category deleted", c.ID, func() { e.OnCategoryBeforeDelete(ctx, c) })
	}
}

// run isolates the repository caller from a panicking handler.
func (d *Dispatcher) run(event, id string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Sync handler panicked",
				"event", event,
				"id", id,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}
