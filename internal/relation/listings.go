package relation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/errors"
	"github.com/pairsync/pairsync-server/internal/store"
	"github.com/pairsync/pairsync-server/internal/syncer"
)

// Pagination defaults for listings.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// PrimarySummary is the listing view of a primary.
type PrimarySummary struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Type   string        `json:"type"`
	Status domain.Status `json:"status"`
}

// CategorySummary is the listing view of a category.
type CategorySummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Taxonomy string `json:"taxonomy"`
	Count    int    `json:"count"`
}

// Relationship is one linked primary/category pair.
type Relationship struct {
	ID       string          `json:"id"`
	Primary  PrimarySummary  `json:"primary"`
	Category CategorySummary `json:"category"`
}

// TypeRelationship is a linked pair with the primaries carrying its
// category, in display order.
type TypeRelationship struct {
	Primary      PrimarySummary   `json:"primary"`
	Category     CategorySummary  `json:"category"`
	Related      []PrimarySummary `json:"related"`
	RelatedCount int              `json:"related_count"`
}

// Page is one page of a listing.
type Page[T any] struct {
	Items   []T `json:"relationships"`
	Total   int `json:"total"`
	Pages   int `json:"pages"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// ListFilter narrows AllRelationships. Empty fields match everything.
type ListFilter struct {
	Type     string
	Taxonomy string
	Search   string
	Page     int
	PerPage  int
}

// CacheConfig bounds the listing cache.
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// Listings builds the relationship dashboards. Results are cached until a
// link changes or the entry expires.
type Listings struct {
	registry *syncer.Registry
	repo     store.Repository
	cache    *expirable.LRU[string, any]
	logger   *slog.Logger
}

// NewListings creates a Listings with a bounded TTL cache.
func NewListings(registry *syncer.Registry, repo store.Repository, cfg CacheConfig, logger *slog.Logger) *Listings {
	if cfg.Size <= 0 {
		cfg.Size = 256
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listings{
		registry: registry,
		repo:     repo,
		cache:    expirable.NewLRU[string, any](cfg.Size, nil, cfg.TTL),
		logger:   logger,
	}
}

// Emit implements store.EventEmitter. Any link change drops every cached page.
func (l *Listings) Emit(event any) {
	if _, ok := event.(store.LinkChanged); ok {
		l.cache.Purge()
	}
}

// AllRelationships lists linked pairs across every configured pair.
func (l *Listings) AllRelationships(ctx context.Context, f ListFilter) (*Page[Relationship], error) {
	page, perPage := normalizePage(f.Page, f.PerPage)
	key := fmt.Sprintf("all|%s|%s|%s|%d|%d", f.Type, f.Taxonomy, f.Search, page, perPage)
	if v, ok := l.cache.Get(key); ok {
		return v.(*Page[Relationship]), nil
	}

	var all []Relationship
	for _, pair := range l.registry.Pairs() {
		if f.Type != "" && pair.Type != f.Type {
			continue
		}
		if f.Taxonomy != "" && pair.Taxonomy != f.Taxonomy {
			continue
		}
		linked, err := l.linkedPairs(ctx, pair)
		if err != nil {
			return nil, err
		}
		for _, lp := range linked {
			if !matches(f.Search, lp.primary.Name, lp.category.Name, pair.Type, pair.Taxonomy) {
				continue
			}
			all = append(all, Relationship{
				ID:       lp.primary.ID + "_" + lp.category.ID,
				Primary:  summarizePrimary(lp.primary),
				Category: summarizeCategory(lp.category),
			})
		}
	}

	result := paginate(all, page, perPage)
	l.cache.Add(key, result)
	return result, nil
}

// TypeRelationships lists the linked primaries of one pair with their
// related primaries of any type. The related list follows the primary's
// order record, then menu order.
func (l *Listings) TypeRelationships(ctx context.Context, primaryType, taxonomy, search string, page, perPage int) (*Page[TypeRelationship], error) {
	e, err := l.registry.Lookup(primaryType, taxonomy)
	if err != nil {
		return nil, errors.Validationf("invalid type or taxonomy %s/%s", primaryType, taxonomy)
	}
	page, perPage = normalizePage(page, perPage)
	key := fmt.Sprintf("type|%s|%s|%s|%d|%d", primaryType, taxonomy, search, page, perPage)
	if v, ok := l.cache.Get(key); ok {
		return v.(*Page[TypeRelationship]), nil
	}

	linked, err := l.linkedPairs(ctx, e.Pair())
	if err != nil {
		return nil, err
	}

	var all []TypeRelationship
	for _, lp := range linked {
		if !matches(search, lp.primary.Name) {
			continue
		}
		related, err := l.repo.QueryPrimaries(ctx, store.PrimaryQuery{CategoryID: lp.category.ID, Order: store.OrderMenu})
		if err != nil {
			return nil, fmt.Errorf("load related primaries: %w", err)
		}
		related = without(related, lp.primary.ID)
		order := domain.CleanOrder(domain.DecodeOrder(lp.primary.MetaValue(domain.OrderKey(taxonomy))))
		related = applyOrder(related, order)

		summaries := make([]PrimarySummary, len(related))
		for i, p := range related {
			summaries[i] = summarizePrimary(p)
		}
		all = append(all, TypeRelationship{
			Primary:      summarizePrimary(lp.primary),
			Category:     summarizeCategory(lp.category),
			Related:      summaries,
			RelatedCount: len(summaries),
		})
	}

	result := paginate(all, page, perPage)
	l.cache.Add(key, result)
	return result, nil
}

type linkedPair struct {
	primary  *domain.Primary
	category *domain.Category
}

// linkedPairs loads a pair's primaries and categories once each and joins
// them on the primary's pointer.
func (l *Listings) linkedPairs(ctx context.Context, pair domain.Pair) ([]linkedPair, error) {
	primaries, err := l.repo.QueryPrimaries(ctx, store.PrimaryQuery{Type: pair.Type, Order: store.OrderCreated})
	if err != nil {
		return nil, fmt.Errorf("load primaries: %w", err)
	}
	cats, err := l.repo.QueryCategories(ctx, pair.Taxonomy, true)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	byID := make(map[string]*domain.Category, len(cats))
	for _, c := range cats {
		byID[c.ID] = c
	}

	var out []linkedPair
	for _, p := range primaries {
		c, ok := byID[p.LinkedCategoryID(pair.Taxonomy)]
		if !ok {
			continue
		}
		out = append(out, linkedPair{primary: p, category: c})
	}
	return out, nil
}

// matches reports whether search fuzzily matches any field. An empty
// search matches everything.
func matches(search string, fields ...string) bool {
	if search == "" {
		return true
	}
	for _, f := range fields {
		if fuzzy.MatchNormalizedFold(search, f) {
			return true
		}
	}
	return false
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	return page, min(perPage, MaxPerPage)
}

func paginate[T any](items []T, page, perPage int) *Page[T] {
	total := len(items)
	out := &Page[T]{
		Items:   []T{},
		Total:   total,
		Pages:   (total + perPage - 1) / perPage,
		Page:    page,
		PerPage: perPage,
	}
	start := (page - 1) * perPage
	if start < total {
		out.Items = items[start:min(start+perPage, total)]
	}
	return out
}

func summarizePrimary(p *domain.Primary) PrimarySummary {
	return PrimarySummary{ID: p.ID, Name: p.Name, Type: p.Type, Status: p.Status}
}

func summarizeCategory(c *domain.Category) CategorySummary {
	return CategorySummary{ID: c.ID, Name: c.Name, Slug: c.Slug, Taxonomy: c.Taxonomy, Count: c.Count}
}
