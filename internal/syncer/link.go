package syncer

import (
	"context"
	"fmt"

	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/errors"
	"github.com/pairsync/pairsync-server/internal/normalize"
	"github.com/pairsync/pairsync-server/internal/store"
)

// Link points p and c at each other, writing only pointers that differ.
// Either both pointers end up written or neither changes. Stale pointers
// left on former partners are cleared first. changed reports whether
// anything was written.
func (e *Engine) Link(ctx context.Context, p *domain.Primary, c *domain.Category) (changed bool, err error) {
	taxKey := domain.LinkToTaxonomyKey(e.pair.Taxonomy)
	typeKey := domain.LinkToTypeKey(e.pair.Type)

	prev := p.LinkedCategoryID(e.pair.Taxonomy)
	if prev == c.ID && c.LinkedPrimaryID(e.pair.Type) == p.ID {
		return false, nil
	}

	e.detach(ctx, p, c)

	if prev != c.ID {
		if err := e.repo.SetMeta(ctx, store.PrimaryRef(p.ID), taxKey, c.ID); err != nil {
			return false, fmt.Errorf("set primary pointer: %w", err)
		}
	}
	if c.LinkedPrimaryID(e.pair.Type) != p.ID {
		if err := e.repo.SetMeta(ctx, store.CategoryRef(c.ID), typeKey, p.ID); err != nil {
			e.restorePointer(ctx, store.PrimaryRef(p.ID), taxKey, prev)
			return false, fmt.Errorf("set category pointer: %w", err)
		}
	}

	setMeta(&p.Meta, taxKey, c.ID)
	setMeta(&c.Meta, typeKey, p.ID)
	e.emit(p.ID, c.ID)
	return true, nil
}

// detach clears the reverse pointers of p's and c's former partners when
// those still point back, so relinking never leaves a crossed link.
func (e *Engine) detach(ctx context.Context, p *domain.Primary, c *domain.Category) {
	if old := p.LinkedCategoryID(e.pair.Taxonomy); old != "" && old != c.ID {
		if oc, err := e.repo.GetCategory(ctx, old); err == nil && oc.LinkedPrimaryID(e.pair.Type) == p.ID {
			e.dropPointer(ctx, store.CategoryRef(old), domain.LinkToTypeKey(e.pair.Type))
		}
	}
	if old := c.LinkedPrimaryID(e.pair.Type); old != "" && old != p.ID {
		if op, err := e.repo.GetPrimary(ctx, old); err == nil && op.LinkedCategoryID(e.pair.Taxonomy) == c.ID {
			e.dropPointer(ctx, store.PrimaryRef(old), domain.LinkToTaxonomyKey(e.pair.Taxonomy))
		}
	}
}

func (e *Engine) restorePointer(ctx context.Context, ref store.EntityRef, key, prev string) {
	var err error
	if prev == "" {
		err = e.repo.DeleteMeta(ctx, ref, key)
	} else {
		err = e.repo.SetMeta(ctx, ref, key, prev)
	}
	if err != nil {
		e.logger.Error("Failed to roll back link pointer", "ref", ref.ID, "key", key, "error", err)
	}
}

func (e *Engine) dropPointer(ctx context.Context, ref store.EntityRef, key string) {
	if err := e.repo.DeleteMeta(ctx, ref, key); err != nil {
		e.logger.Warn("Failed to remove stale pointer", "ref", ref.ID, "key", key, "error", err)
		return
	}
	e.logger.Info("Removed stale link pointer", "kind", ref.Kind, "id", ref.ID)
}

// LinkedCategory resolves p's category through its pointer. A pointer to a
// missing category, or to one that now belongs to another live primary, is
// removed and reported as no link.
func (e *Engine) LinkedCategory(ctx context.Context, p *domain.Primary) (*domain.Category, bool) {
	cid := p.LinkedCategoryID(e.pair.Taxonomy)
	if cid == "" {
		return nil, false
	}
	key := domain.LinkToTaxonomyKey(e.pair.Taxonomy)

	c, err := e.repo.GetCategory(ctx, cid)
	if errors.Is(err, store.ErrNotFound) || (err == nil && c.Taxonomy != e.pair.Taxonomy) {
		e.dropPointer(ctx, store.PrimaryRef(p.ID), key)
		delete(p.Meta, key)
		return nil, false
	}
	if err != nil {
		e.logger.Error("Failed to load linked category", "primary_id", p.ID, "category_id", cid, "error", err)
		return nil, false
	}

	if owner := e.categoryOwner(ctx, c); owner != "" && owner != p.ID {
		e.dropPointer(ctx, store.PrimaryRef(p.ID), key)
		delete(p.Meta, key)
		return nil, false
	}
	return c, true
}

// LinkedPrimary resolves c's primary through its pointer, healing stale
// pointers the same way LinkedCategory does.
func (e *Engine) LinkedPrimary(ctx context.Context, c *domain.Category) (*domain.Primary, bool) {
	pid := c.LinkedPrimaryID(e.pair.Type)
	if pid == "" {
		return nil, false
	}
	key := domain.LinkToTypeKey(e.pair.Type)

	p, err := e.repo.GetPrimary(ctx, pid)
	if errors.Is(err, store.ErrNotFound) || (err == nil && p.Type != e.pair.Type) {
		e.dropPointer(ctx, store.CategoryRef(c.ID), key)
		delete(c.Meta, key)
		return nil, false
	}
	if err != nil {
		e.logger.Error("Failed to load linked primary", "category_id", c.ID, "primary_id", pid, "error", err)
		return nil, false
	}

	if owner := e.primaryOwner(ctx, p); owner != "" && owner != c.ID {
		e.dropPointer(ctx, store.CategoryRef(c.ID), key)
		delete(c.Meta, key)
		return nil, false
	}
	return p, true
}

// categoryOwner returns the primary c is validly linked to: one that exists,
// has the pair's type, and does not point at a different category.
func (e *Engine) categoryOwner(ctx context.Context, c *domain.Category) string {
	pid := c.LinkedPrimaryID(e.pair.Type)
	if pid == "" {
		return ""
	}
	p, err := e.repo.GetPrimary(ctx, pid)
	if err != nil || p.Type != e.pair.Type {
		return ""
	}
	if back := p.LinkedCategoryID(e.pair.Taxonomy); back != "" && back != c.ID {
		return ""
	}
	return pid
}

// primaryOwner mirrors categoryOwner.
func (e *Engine) primaryOwner(ctx context.Context, p *domain.Primary) string {
	cid := p.LinkedCategoryID(e.pair.Taxonomy)
	if cid == "" {
		return ""
	}
	c, err := e.repo.GetCategory(ctx, cid)
	if err != nil || c.Taxonomy != e.pair.Taxonomy {
		return ""
	}
	if back := c.LinkedPrimaryID(e.pair.Type); back != "" && back != p.ID {
		return ""
	}
	return cid
}

// AttachCategory finds or creates p's category by name and links it.
// A same-named category already linked to another primary is left alone
// and a disambiguated category is used instead.
func (e *Engine) AttachCategory(ctx context.Context, p *domain.Primary) (*domain.Category, error) {
	existing, err := e.repo.FindCategoryByExactName(ctx, e.pair.Taxonomy, p.Name)
	switch {
	case err == nil:
		if owner := e.categoryOwner(ctx, existing); owner != "" && owner != p.ID {
			return e.attachDisambiguated(ctx, p)
		}
		if _, err := e.Link(ctx, p, existing); err != nil {
			return nil, err
		}
		return existing, nil
	case errors.Is(err, store.ErrNotFound):
		return e.CreateCategoryFor(ctx, p, p.Name)
	default:
		return nil, fmt.Errorf("find category %q: %w", p.Name, err)
	}
}

func (e *Engine) attachDisambiguated(ctx context.Context, p *domain.Primary) (*domain.Category, error) {
	name := domain.DisambiguatedName(p.Name, p.Slug, p.ID, normalize.Slugify(p.Name))

	existing, err := e.repo.FindCategoryByExactName(ctx, e.pair.Taxonomy, name)
	switch {
	case err == nil:
		if owner := e.categoryOwner(ctx, existing); owner != "" && owner != p.ID {
			return nil, errors.Conflictf("category %q is linked to another primary", name)
		}
		if _, err := e.Link(ctx, p, existing); err != nil {
			return nil, err
		}
		return existing, nil
	case errors.Is(err, store.ErrNotFound):
		return e.CreateCategoryFor(ctx, p, name)
	default:
		return nil, fmt.Errorf("find category %q: %w", name, err)
	}
}

// AttachPrimary finds or creates c's primary by name and links it. A
// published primary of that name already linked elsewhere is not taken
// over; a new primary is created instead.
func (e *Engine) AttachPrimary(ctx context.Context, c *domain.Category) (*domain.Primary, error) {
	existing, err := e.repo.FindPrimaryByExactName(ctx, e.pair.Type, c.Name, domain.StatusPublished)
	switch {
	case err == nil:
		if owner := e.primaryOwner(ctx, existing); owner != "" && owner != c.ID {
			return e.CreatePrimaryFor(ctx, c)
		}
		if _, err := e.Link(ctx, existing, c); err != nil {
			return nil, err
		}
		return existing, nil
	case errors.Is(err, store.ErrNotFound):
		return e.CreatePrimaryFor(ctx, c)
	default:
		return nil, fmt.Errorf("find primary %q: %w", c.Name, err)
	}
}

// CreateCategoryFor creates a category called name for p and links the two.
// If linking fails the new category is removed again.
func (e *Engine) CreateCategoryFor(ctx context.Context, p *domain.Primary, name string) (*domain.Category, error) {
	ctx = e.withCreation(ctx, fromPrimary, p.ID, name)
	cid, err := e.repo.CreateCategory(ctx, e.pair.Taxonomy, name, normalize.Description(p.Body))
	if err != nil {
		return nil, errors.CreateFailed(err, "create category %q", name)
	}

	c, err := e.repo.GetCategory(ctx, cid)
	if err == nil {
		_, err = e.Link(ctx, p, c)
	}
	if err != nil {
		e.rollbackCategory(ctx, cid)
		return nil, errors.CreateFailed(err, "link new category %q", name)
	}

	e.logger.Info("Created category from primary", "primary_id", p.ID, "category_id", cid, "name", name)
	return c, nil
}

// CreatePrimaryFor creates a published primary named after c and links the two.
func (e *Engine) CreatePrimaryFor(ctx context.Context, c *domain.Category) (*domain.Primary, error) {
	ctx = e.withCreation(ctx, fromCategory, c.ID, c.Name)
	pid, err := e.repo.CreatePrimary(ctx, e.pair.Type, c.Name, c.Description, domain.StatusPublished)
	if err != nil {
		return nil, errors.CreateFailed(err, "create primary %q", c.Name)
	}

	p, err := e.repo.GetPrimary(ctx, pid)
	if err == nil {
		_, err = e.Link(ctx, p, c)
	}
	if err != nil {
		e.rollbackPrimary(ctx, pid)
		return nil, errors.CreateFailed(err, "link new primary %q", c.Name)
	}

	e.logger.Info("Created primary from category", "category_id", c.ID, "primary_id", pid, "name", c.Name)
	return p, nil
}

func (e *Engine) rollbackCategory(ctx context.Context, cid string) {
	ctx, release, _ := e.Enter(ctx, KindDelete)
	defer release()
	if err := e.repo.DeleteCategory(ctx, cid); err != nil && !errors.Is(err, store.ErrNotFound) {
		e.logger.Error("Failed to remove unlinked category", "category_id", cid, "error", err)
	}
}

func (e *Engine) rollbackPrimary(ctx context.Context, pid string) {
	ctx, release, _ := e.Enter(ctx, KindDelete)
	defer release()
	if err := e.repo.DeletePrimary(ctx, pid, true); err != nil && !errors.Is(err, store.ErrNotFound) {
		e.logger.Error("Failed to remove unlinked primary", "primary_id", pid, "error", err)
	}
}

func setMeta(m *map[string]string, key, value string) {
	if *m == nil {
		*m = make(map[string]string)
	}
	(*m)[key] = value
}

// ClearPointer removes ref's link pointer for this pair without touching
// its counterpart.
func (e *Engine) ClearPointer(ctx context.Context, ref store.EntityRef) error {
	key := domain.LinkToTaxonomyKey(e.pair.Taxonomy)
	if ref.Kind == store.KindCategory {
		key = domain.LinkToTypeKey(e.pair.Type)
	}
	if err := e.repo.DeleteMeta(ctx, ref, key); err != nil {
		return fmt.Errorf("clear pointer: %w", err)
	}
	if ref.Kind == store.KindCategory {
		e.emit("", ref.ID)
	} else {
		e.emit(ref.ID, "")
	}
	return nil
}
