package syncer

import (
	"context"

	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/errors"
	"github.com/pairsync/pairsync-server/internal/normalize"
	"github.com/pairsync/pairsync-server/internal/store"
)

// OnPrimaryCreated links a newly published primary to its category,
// creating the category when none matches. Drafts and trashed primaries
// are skipped. Calling it again for a linked primary changes nothing.
func (e *Engine) OnPrimaryCreated(ctx context.Context, p *domain.Primary) {
	if p.Type != e.pair.Type {
		return
	}
	if !p.IsPublished() {
		e.logger.Debug("Skipping unpublished primary", "primary_id", p.ID, "status", p.Status)
		return
	}
	if e.creating(ctx, fromCategory, p.Name) {
		return
	}

	ctx, release, ok := e.Enter(ctx, KindCreate)
	if !ok {
		return
	}
	defer release()

	if c, linked := e.LinkedCategory(ctx, p); linked {
		if _, err := e.Link(ctx, p, c); err != nil {
			e.logger.Error("Failed to repair link", "primary_id", p.ID, "category_id", c.ID, "error", err)
		}
		return
	}

	if _, err := e.AttachCategory(ctx, p); err != nil {
		e.logger.Error("Failed to sync primary to category", "primary_id", p.ID, "name", p.Name, "error", err)
	}
}

// OnPrimaryUpdated propagates a name or body change to the linked category.
// A primary that just became published is treated as created.
func (e *Engine) OnPrimaryUpdated(ctx context.Context, before, after *domain.Primary) {
	if after.Type != e.pair.Type || !after.IsPublished() {
		return
	}

	ctx, release, ok := e.Enter(ctx, KindUpdate)
	if !ok {
		return
	}
	defer release()

	if !before.IsPublished() {
		e.OnPrimaryCreated(ctx, after)
	}
	if before.Name != after.Name {
		e.renamePrimary(ctx, after, before.Name, after.Name)
	}
	if before.Body != after.Body {
		e.syncDescription(ctx, after)
	}
}

// OnPrimaryRenamed renames the category linked to p from oldName to newName.
// Identifiers stay stable. Without a category to rename, one is found or
// created under newName.
func (e *Engine) OnPrimaryRenamed(ctx context.Context, p *domain.Primary, oldName, newName string) {
	if p.Type != e.pair.Type {
		return
	}
	ctx, release, ok := e.Enter(ctx, KindUpdate)
	if !ok {
		return
	}
	defer release()
	e.renamePrimary(ctx, p, oldName, newName)
}

func (e *Engine) renamePrimary(ctx context.Context, p *domain.Primary, oldName, newName string) {
	if oldName == newName {
		return
	}

	c, linked := e.LinkedCategory(ctx, p)
	if !linked {
		c = e.categoryByName(ctx, p, oldName)
	}
	if c == nil {
		cctx, release, ok := e.Enter(ctx, KindCreate)
		if !ok {
			return
		}
		defer release()
		if _, err := e.AttachCategory(cctx, p); err != nil {
			e.logger.Error("Failed to sync renamed primary", "primary_id", p.ID, "name", newName, "error", err)
		}
		return
	}

	if c.Name != newName {
		if err := e.repo.UpdateCategory(ctx, c.ID, domain.CategoryUpdate{Name: &newName}); err != nil {
			e.logger.Error("Failed to rename category", "category_id", c.ID, "from", c.Name, "to", newName, "error", err)
			return
		}
		e.logger.Info("Renamed category", "category_id", c.ID, "from", c.Name, "to", newName)
	}
	if _, err := e.Link(ctx, p, c); err != nil {
		e.logger.Error("Failed to link renamed category", "primary_id", p.ID, "category_id", c.ID, "error", err)
		return
	}
	e.emit(p.ID, c.ID)
}

// categoryByName finds the category named name when it is free or already
// points at p.
func (e *Engine) categoryByName(ctx context.Context, p *domain.Primary, name string) *domain.Category {
	c, err := e.repo.FindCategoryByExactName(ctx, e.pair.Taxonomy, name)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.logger.Error("Failed to look up category", "name", name, "error", err)
		}
		return nil
	}
	if owner := e.categoryOwner(ctx, c); owner != "" && owner != p.ID {
		return nil
	}
	return c
}

func (e *Engine) syncDescription(ctx context.Context, p *domain.Primary) {
	c, linked := e.LinkedCategory(ctx, p)
	if !linked {
		return
	}
	desc := normalize.Description(p.Body)
	if c.Description == desc {
		return
	}
	if err := e.repo.UpdateCategory(ctx, c.ID, domain.CategoryUpdate{Description: &desc}); err != nil {
		e.logger.Error("Failed to update category description", "category_id", c.ID, "error", err)
		return
	}
	e.emit(p.ID, c.ID)
}

// OnPrimaryBeforeDelete deletes the category linked to p, provided that
// category still points back at p. Unlinked legacy data is matched by name.
func (e *Engine) OnPrimaryBeforeDelete(ctx context.Context, p *domain.Primary) {
	if p.Type != e.pair.Type {
		return
	}
	ctx, release, ok := e.Enter(ctx, KindDelete)
	if !ok {
		return
	}
	defer release()

	var target *domain.Category
	if c, linked := e.LinkedCategory(ctx, p); linked && c.LinkedPrimaryID(e.pair.Type) == p.ID {
		target = c
	} else if c, err := e.repo.FindCategoryByExactName(ctx, e.pair.Taxonomy, p.Name); err == nil {
		if back := c.LinkedPrimaryID(e.pair.Type); back == "" || back == p.ID {
			target = c
		}
	}
	if target == nil {
		return
	}

	if err := e.repo.DeleteCategory(ctx, target.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		e.logger.Error("Failed to delete linked category", "primary_id", p.ID, "category_id", target.ID, "error", err)
		return
	}
	e.logger.Info("Deleted linked category", "primary_id", p.ID, "category_id", target.ID)
	e.emit(p.ID, target.ID)
}
