package syncer

import (
	"context"

	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/errors"
	"github.com/pairsync/pairsync-server/internal/store"
)

// OnCategoryCreated links a new category to a primary of the same name,
// creating a published primary when none exists. Categories the engine
// created itself are ignored.
func (e *Engine) OnCategoryCreated(ctx context.Context, c *domain.Category) {
	if c.Taxonomy != e.pair.Taxonomy {
		return
	}
	if e.creating(ctx, fromPrimary, c.Name) {
		return
	}

	ctx, release, ok := e.Enter(ctx, KindCreate)
	if !ok {
		return
	}
	defer release()

	if p, linked := e.LinkedPrimary(ctx, c); linked {
		if _, err := e.Link(ctx, p, c); err != nil {
			e.logger.Error("Failed to repair link", "category_id", c.ID, "primary_id", p.ID, "error", err)
		}
		return
	}

	if _, err := e.AttachPrimary(ctx, c); err != nil {
		e.logger.Error("Failed to sync category to primary", "category_id", c.ID, "name", c.Name, "error", err)
	}
}

// OnCategoryUpdated propagates a rename or description change to the
// linked primary.
func (e *Engine) OnCategoryUpdated(ctx context.Context, before, after *domain.Category) {
	if after.Taxonomy != e.pair.Taxonomy {
		return
	}
	if before.Name == after.Name && before.Description == after.Description {
		return
	}
	ctx, release, ok := e.Enter(ctx, KindUpdate)
	if !ok {
		return
	}
	defer release()
	e.syncCategory(ctx, after, before.Description != after.Description)
}

// OnCategoryRenamed brings the linked primary's name in line with c. The
// primary is found through the link pointer only; without one, a primary is
// found or created by name.
func (e *Engine) OnCategoryRenamed(ctx context.Context, c *domain.Category) {
	if c.Taxonomy != e.pair.Taxonomy {
		return
	}
	ctx, release, ok := e.Enter(ctx, KindUpdate)
	if !ok {
		return
	}
	defer release()
	e.syncCategory(ctx, c, false)
}

func (e *Engine) syncCategory(ctx context.Context, c *domain.Category, descriptionChanged bool) {
	p, linked := e.LinkedPrimary(ctx, c)
	if !linked {
		cctx, release, ok := e.Enter(ctx, KindCreate)
		if !ok {
			return
		}
		defer release()
		if _, err := e.AttachPrimary(cctx, c); err != nil {
			e.logger.Error("Failed to sync updated category", "category_id", c.ID, "name", c.Name, "error", err)
		}
		return
	}

	var fields domain.PrimaryUpdate
	if p.Name != c.Name {
		fields.Name = &c.Name
	}
	if descriptionChanged && p.Body != c.Description {
		fields.Body = &c.Description
	}
	if !fields.Empty() {
		if err := e.repo.UpdatePrimary(ctx, p.ID, fields); err != nil {
			e.logger.Error("Failed to update linked primary", "category_id", c.ID, "primary_id", p.ID, "error", err)
			return
		}
		e.logger.Info("Updated linked primary", "category_id", c.ID, "primary_id", p.ID, "name", c.Name)
	}
	if _, err := e.Link(ctx, p, c); err != nil {
		e.logger.Error("Failed to repair link", "category_id", c.ID, "primary_id", p.ID, "error", err)
		return
	}
	e.emit(p.ID, c.ID)
}

// OnCategoryBeforeDelete hard-deletes the primary linked to c when that
// primary still points back at c.
func (e *Engine) OnCategoryBeforeDelete(ctx context.Context, c *domain.Category) {
	if c.Taxonomy != e.pair.Taxonomy {
		return
	}
	ctx, release, ok := e.Enter(ctx, KindDelete)
	if !ok {
		return
	}
	defer release()

	p, linked := e.LinkedPrimary(ctx, c)
	if !linked || p.LinkedCategoryID(e.pair.Taxonomy) != c.ID {
		return
	}
	if err := e.repo.DeletePrimary(ctx, p.ID, true); err != nil && !errors.Is(err, store.ErrNotFound) {
		e.logger.Error("Failed to delete linked primary", "category_id", c.ID, "primary_id", p.ID, "error", err)
		return
	}
	e.logger.Info("Deleted linked primary", "category_id", c.ID, "primary_id", p.ID)
	e.emit(p.ID, c.ID)
}
