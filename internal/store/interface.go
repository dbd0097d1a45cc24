// Package store defines the repository contract the sync core runs against,
// the lifecycle hooks it subscribes to, and the badger-backed progress store.
package store

import (
	"context"

	"github.com/pairsync/pairsync-server/internal/domain"
)

// EntityKind distinguishes the two record collections.
type EntityKind string

// Entity kinds.
const (
	KindPrimary  EntityKind = "primary"
	KindCategory EntityKind = "category"
)

// EntityRef addresses the metadata of one record.
type EntityRef struct {
	Kind EntityKind
	ID   string
}

// PrimaryRef addresses a Primary's metadata.
func PrimaryRef(id string) EntityRef { return EntityRef{Kind: KindPrimary, ID: id} }

// CategoryRef addresses a Category's metadata.
func CategoryRef(id string) EntityRef { return EntityRef{Kind: KindCategory, ID: id} }

// PrimaryOrder selects the sort applied by QueryPrimaries.
type PrimaryOrder int

// Sort orders for primary queries.
const (
	// OrderCreated sorts by insertion sequence. Stable across calls, so
	// offset windows neither skip nor repeat items.
	OrderCreated PrimaryOrder = iota
	// OrderMenu sorts by menu_order ascending, then id ascending.
	OrderMenu
)

// PrimaryQuery filters QueryPrimaries.
type PrimaryQuery struct {
	// Type restricts to one primary type. Empty matches every type.
	Type string
	// Status restricts to one status. Empty matches everything except deleted.
	Status domain.Status
	// CategoryID restricts to primaries carrying this category (membership, not link).
	CategoryID string
	Order      PrimaryOrder
	// Limit <= 0 means no limit.
	Limit  int
	Offset int
}

// Repository is the record storage the sync core reads and writes.
//
// Get and Find methods return ErrNotFound when nothing matches. Mutations
// invoke the registered Hooks synchronously on the caller's goroutine, after
// the write is durable (or, for deletes, before it starts).
type Repository interface {
	CreatePrimary(ctx context.Context, primaryType, name, body string, status domain.Status) (string, error)
	GetPrimary(ctx context.Context, id string) (*domain.Primary, error)
	UpdatePrimary(ctx context.Context, id string, fields domain.PrimaryUpdate) error
	// DeletePrimary moves the primary to the trash, or removes it with hard=true.
	DeletePrimary(ctx context.Context, id string, hard bool) error
	// FindPrimaryByExactName matches name exactly. An empty status matches drafts and published primaries; trashed ones are never matched.
	FindPrimaryByExactName(ctx context.Context, primaryType, name string, status domain.Status) (*domain.Primary, error)
	QueryPrimaries(ctx context.Context, q PrimaryQuery) ([]*domain.Primary, error)
	CountPrimaries(ctx context.Context, primaryType string, status domain.Status) (int, error)

	CreateCategory(ctx context.Context, taxonomy, name, description string) (string, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	FindCategoryByExactName(ctx context.Context, taxonomy, name string) (*domain.Category, error)
	UpdateCategory(ctx context.Context, id string, fields domain.CategoryUpdate) error
	DeleteCategory(ctx context.Context, id string) error
	// QueryCategories lists a taxonomy in creation order.
	QueryCategories(ctx context.Context, taxonomy string, includeEmpty bool) ([]*domain.Category, error)
	CountCategories(ctx context.Context, taxonomy string) (int, error)

	// GetMeta reports ok=false when the key is absent.
	GetMeta(ctx context.Context, ref EntityRef, key string) (value string, ok bool, err error)
	SetMeta(ctx context.Context, ref EntityRef, key, value string) error
	DeleteMeta(ctx context.Context, ref EntityRef, key string) error

	// SetPrimaryCategories replaces the primary's membership in taxonomy.
	SetPrimaryCategories(ctx context.Context, primaryID, taxonomy string, categoryIDs []string) error
	PrimaryCategoryIDs(ctx context.Context, primaryID, taxonomy string) ([]string, error)

	// SetHooks registers the lifecycle subscriber. Set after construction,
	// since the subscriber itself needs the repository.
	SetHooks(h Hooks)
}

// Hooks receives repository lifecycle events.
type Hooks interface {
	PrimaryCreated(ctx context.Context, p *domain.Primary)
	PrimaryUpdated(ctx context.Context, before, after *domain.Primary)
	PrimaryBeforeDelete(ctx context.Context, p *domain.Primary)
	CategoryCreated(ctx context.Context, c *domain.Category)
	CategoryUpdated(ctx context.Context, before, after *domain.Category)
	CategoryBeforeDelete(ctx context.Context, c *domain.Category)
}

// NoopHooks ignores every event.
type NoopHooks struct{}

// PrimaryCreated is a no-op.
func (NoopHooks) PrimaryCreated(context.Context, *domain.Primary) {}

// PrimaryUpdated is a no-op.
func (NoopHooks) PrimaryUpdated(context.Context, *domain.Primary, *domain.Primary) {}

// PrimaryBeforeDelete is a no-op.
func (NoopHooks) PrimaryBeforeDelete(context.Context, *domain.Primary) {}

// CategoryCreated is a no-op.
func (NoopHooks) CategoryCreated(context.Context, *domain.Category) {}

// CategoryUpdated is a no-op.
func (NoopHooks) CategoryUpdated(context.Context, *domain.Category, *domain.Category) {}

// CategoryBeforeDelete is a no-op.
func (NoopHooks) CategoryBeforeDelete(context.Context, *domain.Category) {}
