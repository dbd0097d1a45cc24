// Package reconcile sweeps whole collections, linking every primary to its
// category (or the reverse) by existing pointer or exact name.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/errors"
	"github.com/pairsync/pairsync-server/internal/store"
	"github.com/pairsync/pairsync-server/internal/syncer"
)

// Reconciler runs bulk sweeps for the configured pairs.
type Reconciler struct {
	registry *syncer.Registry
	repo     store.Repository
	logger   *slog.Logger
}

// New creates a Reconciler.
func New(registry *syncer.Registry, repo store.Repository, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{registry: registry, repo: repo, logger: logger}
}

// Count returns the size of the source collection op walks: published
// primaries for OpPrimariesToCategories, every category otherwise.
func (r *Reconciler) Count(ctx context.Context, pair domain.Pair, op domain.Operation) (int, error) {
	if _, err := r.registry.Lookup(pair.Type, pair.Taxonomy); err != nil {
		return 0, err
	}
	switch op {
	case domain.OpPrimariesToCategories:
		return r.repo.CountPrimaries(ctx, pair.Type, domain.StatusPublished)
	case domain.OpCategoriesToPrimaries:
		return r.repo.CountCategories(ctx, pair.Taxonomy)
	default:
		return 0, errors.Validationf("invalid operation %q", op)
	}
}

// Run dispatches to the sweep for op.
func (r *Reconciler) Run(ctx context.Context, pair domain.Pair, op domain.Operation, offset, limit int) (domain.Result, error) {
	switch op {
	case domain.OpPrimariesToCategories:
		return r.PrimariesToCategories(ctx, pair, offset, limit)
	case domain.OpCategoriesToPrimaries:
		return r.CategoriesToPrimaries(ctx, pair, offset, limit)
	default:
		return domain.Result{}, errors.Validationf("invalid operation %q", op)
	}
}

// categoryIndex holds every category of a taxonomy, looked up by id and name.
type categoryIndex struct {
	byID   map[string]*domain.Category
	byName map[string]*domain.Category
}

func newCategoryIndex(cats []*domain.Category) *categoryIndex {
	idx := &categoryIndex{
		byID:   make(map[string]*domain.Category, len(cats)),
		byName: make(map[string]*domain.Category, len(cats)),
	}
	for _, c := range cats {
		idx.add(c)
	}
	return idx
}

func (idx *categoryIndex) add(c *domain.Category) {
	idx.byID[c.ID] = c
	if _, taken := idx.byName[c.Name]; !taken {
		idx.byName[c.Name] = c
	}
}

// PrimariesToCategories links one page of published primaries, in creation
// order, to their categories. Categories are loaded once for the whole page.
// limit <= 0 processes everything from offset on.
func (r *Reconciler) PrimariesToCategories(ctx context.Context, pair domain.Pair, offset, limit int) (domain.Result, error) {
	var result domain.Result

	e, err := r.registry.Lookup(pair.Type, pair.Taxonomy)
	if err != nil {
		return result, err
	}
	ctx, release := e.Suppress(ctx, syncer.KindCreate)
	defer release()

	page, err := r.repo.QueryPrimaries(ctx, store.PrimaryQuery{
		Type:   pair.Type,
		Status: domain.StatusPublished,
		Order:  store.OrderCreated,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return result, fmt.Errorf("load primaries: %w", err)
	}
	if len(page) == 0 {
		return result, nil
	}

	cats, err := r.repo.QueryCategories(ctx, pair.Taxonomy, true)
	if err != nil {
		return result, fmt.Errorf("load categories: %w", err)
	}
	idx := newCategoryIndex(cats)

	for _, p := range page {
		if err := r.syncPrimary(ctx, e, idx, p); err != nil {
			result.Errors++
			r.logger.Warn("Failed to sync primary", "pair", pair.Key(), "primary_id", p.ID, "name", p.Name, "error", err)
			continue
		}
		result.Synced++
	}

	r.logger.Info("Reconciled primaries", "pair", pair.Key(), "offset", offset, "synced", result.Synced, "errors", result.Errors)
	return result, nil
}

func (r *Reconciler) syncPrimary(ctx context.Context, e *syncer.Engine, idx *categoryIndex, p *domain.Primary) error {
	pair := e.Pair()

	if c, ok := idx.byID[p.LinkedCategoryID(pair.Taxonomy)]; ok {
		switch c.LinkedPrimaryID(pair.Type) {
		case p.ID:
			return nil
		case "":
			_, err := e.Link(ctx, p, c)
			return err
		}
	}

	c, ok := idx.byName[p.Name]
	if !ok {
		created, err := e.CreateCategoryFor(ctx, p, p.Name)
		if err != nil {
			return err
		}
		idx.add(created)
		return nil
	}

	if owner := c.LinkedPrimaryID(pair.Type); owner != "" && owner != p.ID {
		// Same name, but possibly someone else's category.
		attached, err := e.AttachCategory(ctx, p)
		if err != nil {
			return err
		}
		idx.add(attached)
		return nil
	}
	_, err := e.Link(ctx, p, c)
	return err
}

// primaryIndex holds every published primary of a type.
type primaryIndex struct {
	byID   map[string]*domain.Primary
	byName map[string]*domain.Primary
}

func newPrimaryIndex(ps []*domain.Primary) *primaryIndex {
	idx := &primaryIndex{
		byID:   make(map[string]*domain.Primary, len(ps)),
		byName: make(map[string]*domain.Primary, len(ps)),
	}
	for _, p := range ps {
		idx.add(p)
	}
	return idx
}

func (idx *primaryIndex) add(p *domain.Primary) {
	idx.byID[p.ID] = p
	if _, taken := idx.byName[p.Name]; !taken {
		idx.byName[p.Name] = p
	}
}

// CategoriesToPrimaries links one page of categories, in creation order, to
// published primaries. Primaries are loaded once; names missing from that
// snapshot are looked up by exact name before a primary is created.
func (r *Reconciler) CategoriesToPrimaries(ctx context.Context, pair domain.Pair, offset, limit int) (domain.Result, error) {
	var result domain.Result

	e, err := r.registry.Lookup(pair.Type, pair.Taxonomy)
	if err != nil {
		return result, err
	}
	ctx, release := e.Suppress(ctx, syncer.KindCreate)
	defer release()

	cats, err := r.repo.QueryCategories(ctx, pair.Taxonomy, true)
	if err != nil {
		return result, fmt.Errorf("load categories: %w", err)
	}
	page := window(cats, offset, limit)
	if len(page) == 0 {
		return result, nil
	}

	primaries, err := r.repo.QueryPrimaries(ctx, store.PrimaryQuery{
		Type:   pair.Type,
		Status: domain.StatusPublished,
		Order:  store.OrderCreated,
	})
	if err != nil {
		return result, fmt.Errorf("load primaries: %w", err)
	}
	idx := newPrimaryIndex(primaries)
	catsByID := make(map[string]*domain.Category, len(cats))
	for _, c := range cats {
		catsByID[c.ID] = c
	}

	for _, c := range page {
		if err := r.syncCategory(ctx, e, idx, catsByID, c); err != nil {
			result.Errors++
			r.logger.Warn("Failed to sync category", "pair", pair.Key(), "category_id", c.ID, "name", c.Name, "error", err)
			continue
		}
		result.Synced++
	}

	r.logger.Info("Reconciled categories", "pair", pair.Key(), "offset", offset, "synced", result.Synced, "errors", result.Errors)
	return result, nil
}

func (r *Reconciler) syncCategory(ctx context.Context, e *syncer.Engine, idx *primaryIndex, catsByID map[string]*domain.Category, c *domain.Category) error {
	pair := e.Pair()

	if p, ok := idx.byID[c.LinkedPrimaryID(pair.Type)]; ok {
		switch p.LinkedCategoryID(pair.Taxonomy) {
		case c.ID:
			return nil
		case "":
			_, err := e.Link(ctx, p, c)
			return err
		}
	}

	p, ok := idx.byName[c.Name]
	if !ok {
		found, err := r.repo.FindPrimaryByExactName(ctx, pair.Type, c.Name, domain.StatusPublished)
		switch {
		case err == nil:
			p = found
			idx.add(found)
		case errors.Is(err, store.ErrNotFound):
			created, err := e.CreatePrimaryFor(ctx, c)
			if err != nil {
				return err
			}
			idx.add(created)
			return nil
		default:
			return err
		}
	}

	// A primary already linked to another live category keeps that link.
	if oc, ok := catsByID[p.LinkedCategoryID(pair.Taxonomy)]; ok && oc.ID != c.ID && oc.LinkedPrimaryID(pair.Type) == p.ID {
		created, err := e.CreatePrimaryFor(ctx, c)
		if err != nil {
			return err
		}
		idx.add(created)
		return nil
	}
	_, err := e.Link(ctx, p, c)
	return err
}

func window[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
