package service

import (
	"context"
	"log/slog"

	"github.com/pairsync/pairsync-server/internal/batch"
	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/errors"
	"github.com/pairsync/pairsync-server/internal/reconcile"
	"github.com/pairsync/pairsync-server/internal/store"
	"github.com/pairsync/pairsync-server/internal/syncer"
	"github.com/pairsync/pairsync-server/internal/validation"
)

// SyncService is the write side of the API: it creates and edits records
// through the repository, letting the lifecycle hooks keep each pair in
// sync, and runs the bulk and batch reconcilers.
type SyncService struct {
	repo        store.Repository
	registry    *syncer.Registry
	reconciler  *reconcile.Reconciler
	coordinator *batch.Coordinator
	emitter     store.EventEmitter
	validator   *validation.Validator
	links       Permalinks
	logger      *slog.Logger
}

// NewSyncService creates a new sync service.
func NewSyncService(
	repo store.Repository,
	registry *syncer.Registry,
	reconciler *reconcile.Reconciler,
	coordinator *batch.Coordinator,
	emitter store.EventEmitter,
	links Permalinks,
	logger *slog.Logger,
) *SyncService {
	if emitter == nil {
		emitter = store.NewNoopEmitter()
	}
	return &SyncService{
		repo:        repo,
		registry:    registry,
		reconciler:  reconciler,
		coordinator: coordinator,
		emitter:     emitter,
		validator:   validation.New(),
		links:       links,
		logger:      logger,
	}
}

// PairRef names a configured pair in a request.
type PairRef struct {
	Type     string `json:"cpt_slug" validate:"required,pairname"`
	Taxonomy string `json:"taxonomy_slug" validate:"required,pairname"`
}

// CreateCategoryRequest creates a category in a paired taxonomy.
type CreateCategoryRequest struct {
	PairRef
	Name        string `json:"name" validate:"notblank,max=200"`
	Description string `json:"description"`
}

// CreatePrimaryRequest creates a published primary of a paired type.
type CreatePrimaryRequest struct {
	PairRef
	Title   string `json:"title" validate:"notblank,max=200"`
	Content string `json:"content"`
}

// CreateCategoryResult reports a category create. Success is false when a
// category with the same name already exists; Category is then the existing one.
type CreateCategoryResult struct {
	Success  bool          `json:"success"`
	Message  string        `json:"message"`
	Category *CategoryView `json:"term"`
}

// CreatePrimaryResult mirrors CreateCategoryResult for primaries.
type CreatePrimaryResult struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Primary *PrimaryView `json:"post"`
}

// SyncResult is the summary of a bulk run.
type SyncResult struct {
	Synced  int    `json:"synced"`
	Errors  int    `json:"errors"`
	Message string `json:"message"`
}

// Pairs returns the configured pairs.
func (s *SyncService) Pairs() []domain.Pair {
	return s.registry.Pairs()
}

func (s *SyncService) pair(ref PairRef) (domain.Pair, error) {
	if err := s.validator.Validate(ref); err != nil {
		return domain.Pair{}, err
	}
	e, err := s.registry.Lookup(ref.Type, ref.Taxonomy)
	if err != nil {
		return domain.Pair{}, err
	}
	return e.Pair(), nil
}

// CreateCategory creates a category; the create hook links it to a
// primary of the pair's type.
func (s *SyncService) CreateCategory(ctx context.Context, req CreateCategoryRequest) (*CreateCategoryResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	pair, err := s.pair(req.PairRef)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindCategoryByExactName(ctx, pair.Taxonomy, req.Name)
	if err == nil {
		return &CreateCategoryResult{
			Message:  "A term with this name already exists.",
			Category: s.links.categoryView(existing, pair.Type),
		}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, storeError(err, "category", req.Name)
	}

	cid, err := s.repo.CreateCategory(ctx, pair.Taxonomy, req.Name, req.Description)
	if err != nil {
		return nil, errors.CreateFailed(err, "create term %q", req.Name)
	}
	c, err := s.repo.GetCategory(ctx, cid)
	if err != nil {
		return nil, storeError(err, "category", cid)
	}

	s.logger.Info("Category created", "category_id", c.ID, "pair", pair.Key(), "linked_primary", c.LinkedPrimaryID(pair.Type))
	return &CreateCategoryResult{
		Success:  true,
		Message:  "Term created and synced successfully.",
		Category: s.links.categoryView(c, pair.Type),
	}, nil
}

// CreatePrimary creates a published primary; the create hook links it to
// a category of the pair's taxonomy.
func (s *SyncService) CreatePrimary(ctx context.Context, req CreatePrimaryRequest) (*CreatePrimaryResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	pair, err := s.pair(req.PairRef)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindPrimaryByExactName(ctx, pair.Type, req.Title, domain.StatusPublished)
	if err == nil {
		return &CreatePrimaryResult{
			Message: "A post with this title already exists.",
			Primary: s.links.primaryView(existing, pair.Taxonomy),
		}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, storeError(err, "primary", req.Title)
	}

	pid, err := s.repo.CreatePrimary(ctx, pair.Type, req.Title, req.Content, domain.StatusPublished)
	if err != nil {
		return nil, errors.CreateFailed(err, "create post %q", req.Title)
	}
	p, err := s.repo.GetPrimary(ctx, pid)
	if err != nil {
		return nil, storeError(err, "primary", pid)
	}

	s.logger.Info("Primary created", "primary_id", p.ID, "pair", pair.Key(), "linked_category", p.LinkedCategoryID(pair.Taxonomy))
	return &CreatePrimaryResult{
		Success: true,
		Message: "Post created and synced successfully.",
		Primary: s.links.primaryView(p, pair.Taxonomy),
	}, nil
}

// UpdatePrimaryRequest lists editable primary fields. Nil fields are kept.
type UpdatePrimaryRequest struct {
	Title     *string `json:"title,omitempty" validate:"omitnil,notblank,max=200"`
	Content   *string `json:"content,omitempty"`
	Status    *string `json:"status,omitempty" validate:"omitnil,oneof=draft published trashed"`
	MenuOrder *int    `json:"menu_order,omitempty"`
}

// UpdatePrimary edits a primary. Renames and body changes reach the linked
// category through the update hook.
func (s *SyncService) UpdatePrimary(ctx context.Context, id string, req UpdatePrimaryRequest) (*PrimaryView, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	fields := domain.PrimaryUpdate{Name: req.Title, Body: req.Content, MenuOrder: req.MenuOrder}
	if req.Status != nil {
		st := domain.Status(*req.Status)
		fields.Status = &st
	}
	if fields.Empty() {
		return nil, errors.Validation("no fields to update")
	}

	if err := s.repo.UpdatePrimary(ctx, id, fields); err != nil {
		return nil, storeError(err, "primary", id)
	}
	p, err := s.repo.GetPrimary(ctx, id)
	if err != nil {
		return nil, storeError(err, "primary", id)
	}
	s.emitter.Emit(store.LinkChanged{PrimaryID: p.ID})
	return s.links.primaryView(p, s.taxonomiesFor(p.Type)...), nil
}

// DeletePrimary trashes a primary, or deletes it when force is set. Only a
// hard delete cascades to the linked category.
func (s *SyncService) DeletePrimary(ctx context.Context, id string, force bool) error {
	if err := s.repo.DeletePrimary(ctx, id, force); err != nil {
		return storeError(err, "primary", id)
	}
	s.emitter.Emit(store.LinkChanged{PrimaryID: id})
	s.logger.Info("Primary deleted", "primary_id", id, "hard", force)
	return nil
}

// UpdateCategoryRequest lists editable category fields.
type UpdateCategoryRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitnil,notblank,max=200"`
	Description *string `json:"description,omitempty"`
}

// UpdateCategory edits a category. Renames reach the linked primary through
// the update hook.
func (s *SyncService) UpdateCategory(ctx context.Context, id string, req UpdateCategoryRequest) (*CategoryView, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	fields := domain.CategoryUpdate{Name: req.Name, Description: req.Description}
	if fields.Empty() {
		return nil, errors.Validation("no fields to update")
	}

	if err := s.repo.UpdateCategory(ctx, id, fields); err != nil {
		return nil, storeError(err, "category", id)
	}
	c, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return nil, storeError(err, "category", id)
	}
	s.emitter.Emit(store.LinkChanged{CategoryID: c.ID})
	return s.links.categoryView(c, s.typesFor(c.Taxonomy)...), nil
}

// DeleteCategory deletes a category; its linked primary is deleted by the hook.
func (s *SyncService) DeleteCategory(ctx context.Context, id string) error {
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return storeError(err, "category", id)
	}
	s.emitter.Emit(store.LinkChanged{CategoryID: id})
	s.logger.Info("Category deleted", "category_id", id)
	return nil
}

// AssignCategoriesRequest replaces a primary's categories in one taxonomy.
type AssignCategoriesRequest struct {
	Taxonomy    string   `json:"taxonomy" validate:"required,pairname"`
	CategoryIDs []string `json:"term_ids" validate:"required,dive,notblank"`
}

// AssignCategories sets which categories a primary carries. Membership is
// independent of the primary's own link.
func (s *SyncService) AssignCategories(ctx context.Context, primaryID string, req AssignCategoriesRequest) ([]string, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if !s.registry.HasTaxonomy(req.Taxonomy) {
		return nil, errors.Validationf("taxonomy %q is not configured", req.Taxonomy)
	}
	if err := s.repo.SetPrimaryCategories(ctx, primaryID, req.Taxonomy, req.CategoryIDs); err != nil {
		return nil, storeError(err, "primary", primaryID)
	}
	ids, err := s.repo.PrimaryCategoryIDs(ctx, primaryID, req.Taxonomy)
	if err != nil {
		return nil, storeError(err, "primary", primaryID)
	}
	s.emitter.Emit(store.LinkChanged{PrimaryID: primaryID})
	return ids, nil
}

// SyncAll runs a full reconcile of op over the pair.
func (s *SyncService) SyncAll(ctx context.Context, ref PairRef, op domain.Operation) (*SyncResult, error) {
	pair, err := s.pair(ref)
	if err != nil {
		return nil, err
	}
	res, err := s.reconciler.Run(ctx, pair, op, 0, 0)
	if err != nil {
		return nil, err
	}

	what := "posts to terms"
	if op == domain.OpCategoriesToPrimaries {
		what = "terms to posts"
	}
	s.logger.Info("Bulk sync finished", "pair", pair.Key(), "operation", op, "synced", res.Synced, "errors", res.Errors)
	return &SyncResult{Synced: res.Synced, Errors: res.Errors, Message: res.Summary(what)}, nil
}

// InitBatch starts a batch run of op over the pair.
func (s *SyncService) InitBatch(ctx context.Context, ref PairRef, op string) (*batch.Started, error) {
	pair, err := s.pair(ref)
	if err != nil {
		return nil, err
	}
	parsed, err := domain.ParseOperation(op)
	if err != nil {
		return nil, errors.Validation(err.Error())
	}
	return s.coordinator.Init(ctx, pair, parsed)
}

// ProcessBatch advances a batch by one chunk.
func (s *SyncService) ProcessBatch(ctx context.Context, batchID string) (*batch.Status, error) {
	return s.coordinator.Process(ctx, batchID)
}

// BatchProgress reports a batch without advancing it.
func (s *SyncService) BatchProgress(ctx context.Context, batchID string) (*batch.Status, error) {
	return s.coordinator.Progress(ctx, batchID)
}

// CleanupBatch discards a batch.
func (s *SyncService) CleanupBatch(ctx context.Context, batchID string) error {
	return s.coordinator.Cleanup(ctx, batchID)
}

// ActiveBatches lists batches that have not expired.
func (s *SyncService) ActiveBatches(ctx context.Context) ([]*batch.Status, error) {
	return s.coordinator.Active(ctx)
}

// Verify checks the pair's links, removing broken pointers when fix is set.
func (s *SyncService) Verify(ctx context.Context, ref PairRef, fix bool) (*reconcile.Report, error) {
	pair, err := s.pair(ref)
	if err != nil {
		return nil, err
	}
	return s.reconciler.Verify(ctx, pair, fix)
}

// taxonomiesFor lists every taxonomy paired with primaryType.
func (s *SyncService) taxonomiesFor(primaryType string) []string {
	engines := s.registry.ForType(primaryType)
	out := make([]string, 0, len(engines))
	for _, e := range engines {
		out = append(out, e.Pair().Taxonomy)
	}
	return out
}

// typesFor lists every type paired with taxonomy.
func (s *SyncService) typesFor(taxonomy string) []string {
	engines := s.registry.ForTaxonomy(taxonomy)
	out := make([]string, 0, len(engines))
	for _, e := range engines {
		out = append(out, e.Pair().Type)
	}
	return out
}
