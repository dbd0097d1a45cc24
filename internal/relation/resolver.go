// Package relation answers "what is linked to X" queries: a primary's
// category, the siblings sharing it, and their custom display order.
package relation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/errors"
	"github.com/pairsync/pairsync-server/internal/store"
	"github.com/pairsync/pairsync-server/internal/syncer"
)

// Direction selects the neighbour AdjacentSibling returns.
type Direction string

// Directions.
const (
	Previous Direction = "previous"
	Next     Direction = "next"
)

// ParseDirection accepts "previous"/"prev" and "next".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "previous", "prev":
		return Previous, nil
	case "next":
		return Next, nil
	default:
		return "", errors.Validationf("invalid direction %q", s)
	}
}

// Resolver reads link pointers and order records. Apart from removing
// stale pointers it never writes, except through SaveOrder.
type Resolver struct {
	registry *syncer.Registry
	repo     store.Repository
	emitter  store.EventEmitter
	logger   *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(registry *syncer.Registry, repo store.Repository, emitter store.EventEmitter, logger *slog.Logger) *Resolver {
	if emitter == nil {
		emitter = store.NewNoopEmitter()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{registry: registry, repo: repo, emitter: emitter, logger: logger}
}

// engineFor returns the engine pairing primaryType with taxonomy. The
// engine is nil when taxonomy is configured only for other types.
func (r *Resolver) engineFor(primaryType, taxonomy string) (*syncer.Engine, error) {
	engines := r.registry.ForTaxonomy(taxonomy)
	if len(engines) == 0 {
		return nil, errors.Validationf("taxonomy %q is not configured", taxonomy)
	}
	for _, e := range engines {
		if e.Pair().Type == primaryType {
			return e, nil
		}
	}
	return nil, nil
}

// CategoryForPrimary returns the category p is linked to in taxonomy.
// ok is false when there is no valid link; a stale pointer is removed.
func (r *Resolver) CategoryForPrimary(ctx context.Context, p *domain.Primary, taxonomy string) (c *domain.Category, ok bool, err error) {
	e, err := r.engineFor(p.Type, taxonomy)
	if err != nil || e == nil {
		return nil, false, err
	}
	c, ok = e.LinkedCategory(ctx, p)
	return c, ok, nil
}

// SiblingsForPrimary lists the published primaries of targetType carrying
// the category linked to the primary. Without a link the result is empty.
// When targetType is the primary's own type, the primary itself is left out.
//
// Without useCustomOrder, siblings are sorted by menu order then id. With
// it, the order record on the category's linked primary comes first and
// the remaining siblings follow in menu order.
func (r *Resolver) SiblingsForPrimary(ctx context.Context, primaryID, taxonomy, targetType string, useCustomOrder bool) ([]*domain.Primary, error) {
	p, err := r.getPrimary(ctx, primaryID)
	if err != nil {
		return nil, err
	}
	if targetType == "" {
		targetType = p.Type
	}

	c, ok, err := r.CategoryForPrimary(ctx, p, taxonomy)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []*domain.Primary{}, nil
	}

	candidates, err := r.members(ctx, targetType, c.ID)
	if err != nil {
		return nil, err
	}
	if targetType == p.Type {
		candidates = without(candidates, p.ID)
	}
	if !useCustomOrder {
		return candidates, nil
	}

	order := r.orderFor(ctx, c)
	return applyOrder(candidates, order), nil
}

// AdjacentSibling returns the primary before or after primaryID among the
// primaries of its own type sharing a category with it. ok is false at
// either end of the sequence or when the primary has no siblings.
//
// Candidate categories are the primary's member categories in taxonomy
// plus its linked category. With useCustomOrder, the candidate whose order
// record places the primary earliest wins, then the longest record. Without
// a usable order record the first candidate in menu order is used.
func (r *Resolver) AdjacentSibling(ctx context.Context, primaryID, taxonomy string, dir Direction, useCustomOrder bool) (*domain.Primary, bool, error) {
	p, err := r.getPrimary(ctx, primaryID)
	if err != nil {
		return nil, false, err
	}
	e, err := r.engineFor(p.Type, taxonomy)
	if err != nil {
		return nil, false, err
	}

	cats, err := r.candidateCategories(ctx, e, p, taxonomy)
	if err != nil {
		return nil, false, err
	}
	if len(cats) == 0 {
		return nil, false, nil
	}

	var (
		seq      []*domain.Primary
		bestPos  = -1
		bestSize = 0
	)
	if useCustomOrder {
		for _, c := range cats {
			order := r.orderFor(ctx, c)
			pos := slices.Index(order, p.ID)
			if pos < 0 {
				continue
			}
			if bestPos >= 0 && (pos > bestPos || (pos == bestPos && len(order) <= bestSize)) {
				continue
			}
			members, err := r.members(ctx, p.Type, c.ID)
			if err != nil {
				return nil, false, err
			}
			bestPos, bestSize = pos, len(order)
			seq = applyOrder(members, order)
		}
	}
	if bestPos < 0 {
		members, err := r.members(ctx, p.Type, cats[0].ID)
		if err != nil {
			return nil, false, err
		}
		seq = members
	}

	i := slices.IndexFunc(seq, func(s *domain.Primary) bool { return s.ID == p.ID })
	if i < 0 {
		return nil, false, nil
	}
	switch dir {
	case Previous:
		i--
	case Next:
		i++
	default:
		return nil, false, errors.Validationf("invalid direction %q", dir)
	}
	if i < 0 || i >= len(seq) {
		return nil, false, nil
	}
	return seq[i], true, nil
}

// candidateCategories returns p's member categories in taxonomy followed by
// its linked category when that is not already a member.
func (r *Resolver) candidateCategories(ctx context.Context, e *syncer.Engine, p *domain.Primary, taxonomy string) ([]*domain.Category, error) {
	ids, err := r.repo.PrimaryCategoryIDs(ctx, p.ID, taxonomy)
	if err != nil {
		return nil, fmt.Errorf("load memberships: %w", err)
	}
	seen := make(map[string]bool, len(ids)+1)
	cats := make([]*domain.Category, 0, len(ids)+1)
	for _, id := range ids {
		c, err := r.repo.GetCategory(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load category: %w", err)
		}
		seen[c.ID] = true
		cats = append(cats, c)
	}
	if e != nil {
		if c, ok := e.LinkedCategory(ctx, p); ok && !seen[c.ID] {
			cats = append(cats, c)
		}
	}
	return cats, nil
}

// members lists published primaries of primaryType carrying categoryID,
// by menu order then id.
func (r *Resolver) members(ctx context.Context, primaryType, categoryID string) ([]*domain.Primary, error) {
	ps, err := r.repo.QueryPrimaries(ctx, store.PrimaryQuery{
		Type:       primaryType,
		Status:     domain.StatusPublished,
		CategoryID: categoryID,
		Order:      store.OrderMenu,
	})
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	if ps == nil {
		ps = []*domain.Primary{}
	}
	return ps, nil
}

// orderFor reads the order record stored on c's linked primary. With
// several types paired to the taxonomy, the first linked primary wins.
func (r *Resolver) orderFor(ctx context.Context, c *domain.Category) []string {
	for _, e := range r.registry.ForTaxonomy(c.Taxonomy) {
		if parent, ok := e.LinkedPrimary(ctx, c); ok {
			return domain.CleanOrder(domain.DecodeOrder(parent.MetaValue(domain.OrderKey(c.Taxonomy))))
		}
	}
	return nil
}

// SaveOrder stores ids as the order record of parentID in taxonomy and
// returns the stored sequence. Blank and repeated ids are dropped.
func (r *Resolver) SaveOrder(ctx context.Context, parentID, taxonomy string, ids []string) ([]string, error) {
	parent, err := r.getPrimary(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !r.registry.HasTaxonomy(taxonomy) {
		return nil, errors.Validationf("taxonomy %q is not configured", taxonomy)
	}
	if ids == nil {
		return nil, errors.Validation("order must be an array of primary ids")
	}

	order := domain.CleanOrder(ids)
	raw, err := domain.EncodeOrder(order)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "encode order")
	}
	if err := r.repo.SetMeta(ctx, store.PrimaryRef(parent.ID), domain.OrderKey(taxonomy), raw); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "save order")
	}

	for _, e := range r.registry.ForTaxonomy(taxonomy) {
		r.emitter.Emit(store.LinkChanged{
			PairKey:    e.Pair().Key(),
			PrimaryID:  parent.ID,
			CategoryID: parent.LinkedCategoryID(taxonomy),
		})
	}
	r.logger.Info("Saved relationship order", "parent_id", parent.ID, "taxonomy", taxonomy, "count", len(order))
	return order, nil
}

func (r *Resolver) getPrimary(ctx context.Context, id string) (*domain.Primary, error) {
	p, err := r.repo.GetPrimary(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errors.NotFoundf("primary %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load primary: %w", err)
	}
	return p, nil
}
