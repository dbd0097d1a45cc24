package service

import (
	"context"
	"log/slog"

	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/errors"
	"github.com/pairsync/pairsync-server/internal/relation"
	"github.com/pairsync/pairsync-server/internal/store"
	"github.com/pairsync/pairsync-server/internal/syncer"
	"github.com/pairsync/pairsync-server/internal/validation"
)

// RelationshipService is the read side of the API: listings, sibling
// lookups, custom order writes, and category redirects.
type RelationshipService struct {
	repo      store.Repository
	registry  *syncer.Registry
	resolver  *relation.Resolver
	listings  *relation.Listings
	validator *validation.Validator
	links     Permalinks
	logger    *slog.Logger
}

// NewRelationshipService creates a new relationship service.
func NewRelationshipService(
	repo store.Repository,
	registry *syncer.Registry,
	resolver *relation.Resolver,
	listings *relation.Listings,
	links Permalinks,
	logger *slog.Logger,
) *RelationshipService {
	return &RelationshipService{
		repo:      repo,
		registry:  registry,
		resolver:  resolver,
		listings:  listings,
		validator: validation.New(),
		links:     links,
		logger:    logger,
	}
}

// AllRelationships lists linked pairs across the configured pairs.
func (s *RelationshipService) AllRelationships(ctx context.Context, f relation.ListFilter) (*relation.Page[relation.Relationship], error) {
	return s.listings.AllRelationships(ctx, f)
}

// TypeRelationships lists one pair's links with their related primaries.
func (s *RelationshipService) TypeRelationships(ctx context.Context, primaryType, taxonomy, search string, page, perPage int) (*relation.Page[relation.TypeRelationship], error) {
	return s.listings.TypeRelationships(ctx, primaryType, taxonomy, search, page, perPage)
}

// SaveOrderRequest stores the display order of a parent's related primaries.
type SaveOrderRequest struct {
	ParentID string   `json:"parent_post_id" validate:"notblank"`
	Taxonomy string   `json:"taxonomy" validate:"required,pairname"`
	Order    []string `json:"order" validate:"required"`
}

// SaveOrderResult echoes the stored order.
type SaveOrderResult struct {
	ParentID string   `json:"parent_post_id"`
	Taxonomy string   `json:"taxonomy"`
	Order    []string `json:"order"`
}

// SaveOrder writes an order record.
func (s *RelationshipService) SaveOrder(ctx context.Context, req SaveOrderRequest) (*SaveOrderResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	order, err := s.resolver.SaveOrder(ctx, req.ParentID, req.Taxonomy, req.Order)
	if err != nil {
		return nil, err
	}
	return &SaveOrderResult{ParentID: req.ParentID, Taxonomy: req.Taxonomy, Order: order}, nil
}

// Siblings lists the primaries of targetType sharing the primary's category.
func (s *RelationshipService) Siblings(ctx context.Context, primaryID, taxonomy, targetType string, useCustomOrder bool) ([]*PrimaryView, error) {
	ps, err := s.resolver.SiblingsForPrimary(ctx, primaryID, taxonomy, targetType, useCustomOrder)
	if err != nil {
		return nil, err
	}
	out := make([]*PrimaryView, len(ps))
	for i, p := range ps {
		out[i] = s.links.primaryView(p)
	}
	return out, nil
}

// Adjacent returns the previous or next sibling, or nil at either end.
func (s *RelationshipService) Adjacent(ctx context.Context, primaryID, taxonomy, direction string, useCustomOrder bool) (*PrimaryView, error) {
	dir, err := relation.ParseDirection(direction)
	if err != nil {
		return nil, err
	}
	p, ok, err := s.resolver.AdjacentSibling(ctx, primaryID, taxonomy, dir, useCustomOrder)
	if err != nil || !ok {
		return nil, err
	}
	return s.links.primaryView(p), nil
}

// RedirectTarget returns the permalink of the primary linked to the
// category with the given slug or id. Only redirect-enabled pairs answer;
// everything else is NotFound.
func (s *RelationshipService) RedirectTarget(ctx context.Context, taxonomy, slugOrID string) (string, error) {
	var engine *syncer.Engine
	for _, e := range s.registry.ForTaxonomy(taxonomy) {
		if e.Pair().Redirect {
			engine = e
			break
		}
	}
	if engine == nil {
		return "", errors.NotFoundf("no redirect for taxonomy %s", taxonomy)
	}

	c, err := s.findCategory(ctx, taxonomy, slugOrID)
	if err != nil {
		return "", err
	}
	p, ok := engine.LinkedPrimary(ctx, c)
	if !ok || p.Status != domain.StatusPublished {
		return "", errors.NotFoundf("category %s has no published counterpart", slugOrID)
	}
	return s.links.Primary(p), nil
}

func (s *RelationshipService) findCategory(ctx context.Context, taxonomy, slugOrID string) (*domain.Category, error) {
	if c, err := s.repo.GetCategory(ctx, slugOrID); err == nil && c.Taxonomy == taxonomy {
		return c, nil
	}
	cats, err := s.repo.QueryCategories(ctx, taxonomy, true)
	if err != nil {
		return nil, storeError(err, "taxonomy", taxonomy)
	}
	for _, c := range cats {
		if c.Slug == slugOrID {
			return c, nil
		}
	}
	return nil, errors.NotFoundf("category %s not found", slugOrID)
}
