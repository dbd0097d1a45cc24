package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/pairsync/pairsync-server/internal/auth"
	"github.com/pairsync/pairsync-server/internal/batch"
	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/reconcile"
	"github.com/pairsync/pairsync-server/internal/service"
)

func (s *Server) registerSyncRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "createTerm",
		Method:        http.MethodPost,
		Path:          "/api/v1/create-term",
		Summary:       "Create term",
		Description:   "Creates a category in a paired taxonomy and its linked primary",
		Tags:          []string{"Sync"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleCreateTerm)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createPost",
		Method:        http.MethodPost,
		Path:          "/api/v1/create-post",
		Summary:       "Create post",
		Description:   "Creates a published primary and its linked category",
		Tags:          []string{"Sync"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleCreatePost)

	huma.Register(s.api, huma.Operation{
		OperationID: "syncPostsToTerms",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync-posts-to-terms",
		Summary:     "Sync posts to terms",
		Description: "Ensures every primary of the pair has a linked category",
		Tags:        []string{"Sync"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSyncPostsToTerms)

	huma.Register(s.api, huma.Operation{
		OperationID: "syncTermsToPosts",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync-terms-to-posts",
		Summary:     "Sync terms to posts",
		Description: "Ensures every category of the pair has a linked primary",
		Tags:        []string{"Sync"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSyncTermsToPosts)

	huma.Register(s.api, huma.Operation{
		OperationID: "listBatches",
		Method:      http.MethodGet,
		Path:        "/api/v1/batch-sync",
		Summary:     "List batches",
		Description: "Returns the status of every unexpired batch",
		Tags:        []string{"Batch"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListBatches)

	huma.Register(s.api, huma.Operation{
		OperationID: "initBatch",
		Method:      http.MethodPost,
		Path:        "/api/v1/batch-sync/init",
		Summary:     "Start batch",
		Description: "Counts the source records of a pair and returns a batch id",
		Tags:        []string{"Batch"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleInitBatch)

	huma.Register(s.api, huma.Operation{
		OperationID: "processBatch",
		Method:      http.MethodPost,
		Path:        "/api/v1/batch-sync/process",
		Summary:     "Process batch chunk",
		Description: "Advances a batch by one chunk",
		Tags:        []string{"Batch"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleProcessBatch)

	huma.Register(s.api, huma.Operation{
		OperationID: "batchProgress",
		Method:      http.MethodGet,
		Path:        "/api/v1/batch-sync/progress",
		Summary:     "Batch progress",
		Description: "Returns the progress of a batch",
		Tags:        []string{"Batch"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleBatchProgress)

	huma.Register(s.api, huma.Operation{
		OperationID: "cleanupBatch",
		Method:      http.MethodPost,
		Path:        "/api/v1/batch-sync/cleanup",
		Summary:     "Discard batch",
		Description: "Deletes the progress record of a batch",
		Tags:        []string{"Batch"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleCleanupBatch)

	huma.Register(s.api, huma.Operation{
		OperationID: "verifyPair",
		Method:      http.MethodPost,
		Path:        "/api/v1/verify",
		Summary:     "Verify pair",
		Description: "Checks link consistency for a pair and optionally repairs it",
		Tags:        []string{"Sync"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleVerify)

	huma.Register(s.api, huma.Operation{
		OperationID: "listPairs",
		Method:      http.MethodGet,
		Path:        "/api/v1/pairs",
		Summary:     "List pairs",
		Description: "Returns the configured post type and taxonomy pairs",
		Tags:        []string{"Sync"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListPairs)
}

// === DTOs ===

// PairBody names a configured pair.
type PairBody struct {
	CPTSlug      string `json:"cpt_slug" minLength:"1" doc:"Primary post type"`
	TaxonomySlug string `json:"taxonomy_slug" minLength:"1" doc:"Paired taxonomy"`
}

func (b PairBody) ref() service.PairRef {
	return service.PairRef{Type: b.CPTSlug, Taxonomy: b.TaxonomySlug}
}

// CreateTermRequest is the request body for creating a term.
type CreateTermRequest struct {
	PairBody
	Name        string `json:"name" minLength:"1" maxLength:"200" doc:"Term name"`
	Description string `json:"description,omitempty" doc:"Term description"`
}

// CreateTermInput wraps the create term request for Huma.
type CreateTermInput struct {
	Authorization string `header:"Authorization"`
	Body          CreateTermRequest
}

// CreateTermOutput wraps the create term response for Huma.
type CreateTermOutput struct {
	Status int
	Body   service.CreateCategoryResult
}

// CreatePostRequest is the request body for creating a post.
type CreatePostRequest struct {
	PairBody
	Title   string `json:"title" minLength:"1" maxLength:"200" doc:"Post title"`
	Content string `json:"content,omitempty" doc:"Post content"`
}

// CreatePostInput wraps the create post request for Huma.
type CreatePostInput struct {
	Authorization string `header:"Authorization"`
	Body          CreatePostRequest
}

// CreatePostOutput wraps the create post response for Huma.
type CreatePostOutput struct {
	Status int
	Body   service.CreatePrimaryResult
}

// SyncPairInput wraps a bulk sync request for Huma.
type SyncPairInput struct {
	Authorization string `header:"Authorization"`
	Body          PairBody
}

// SyncOutput wraps a bulk sync summary for Huma.
type SyncOutput struct {
	Body service.SyncResult
}

// ListBatchesInput contains parameters for listing batches.
type ListBatchesInput struct {
	Authorization string `header:"Authorization"`
}

// ListBatchesResponse contains the active batches.
type ListBatchesResponse struct {
	Batches []*batch.Status `json:"batches" doc:"Unexpired batches"`
}

// ListBatchesOutput wraps the batch list for Huma.
type ListBatchesOutput struct {
	Body ListBatchesResponse
}

// InitBatchRequest is the request body for starting a batch.
type InitBatchRequest struct {
	PairBody
	Operation string `json:"operation" enum:"posts-to-terms,terms-to-posts" doc:"Sync direction"`
}

// InitBatchInput wraps the init batch request for Huma.
type InitBatchInput struct {
	Authorization string `header:"Authorization"`
	Body          InitBatchRequest
}

// InitBatchOutput wraps the started batch for Huma.
type InitBatchOutput struct {
	Body batch.Started
}

// BatchIDRequest names a batch.
type BatchIDRequest struct {
	BatchID string `json:"batch_id" minLength:"1" doc:"Batch ID"`
}

// BatchIDInput wraps a batch id body for Huma.
type BatchIDInput struct {
	Authorization string `header:"Authorization"`
	Body          BatchIDRequest
}

// BatchProgressInput contains parameters for polling a batch.
type BatchProgressInput struct {
	Authorization string `header:"Authorization"`
	BatchID       string `query:"batch_id" required:"true" doc:"Batch ID"`
}

// BatchStatusOutput wraps a batch status for Huma.
type BatchStatusOutput struct {
	Body batch.Status
}

// MessageResponse carries a plain confirmation.
type MessageResponse struct {
	Message string `json:"message" doc:"Result message"`
}

// MessageOutput wraps a confirmation for Huma.
type MessageOutput struct {
	Body MessageResponse
}

// VerifyRequest is the request body for verifying a pair.
type VerifyRequest struct {
	PairBody
	Fix bool `json:"fix,omitempty" doc:"Repair broken and missing links"`
}

// VerifyInput wraps the verify request for Huma.
type VerifyInput struct {
	Authorization string `header:"Authorization"`
	Body          VerifyRequest
}

// VerifyOutput wraps the verify report for Huma.
type VerifyOutput struct {
	Body reconcile.Report
}

// ListPairsInput contains parameters for listing pairs.
type ListPairsInput struct {
	Authorization string `header:"Authorization"`
}

// ListPairsResponse contains the configured pairs.
type ListPairsResponse struct {
	Pairs []domain.Pair `json:"pairs" doc:"Configured pairs"`
}

// ListPairsOutput wraps the pair list for Huma.
type ListPairsOutput struct {
	Body ListPairsResponse
}

// === Handlers ===

func (s *Server) handleCreateTerm(ctx context.Context, input *CreateTermInput) (*CreateTermOutput, error) {
	if _, err := s.authorize(input.Authorization, auth.RoleEdit); err != nil {
		return nil, err
	}

	res, err := s.services.Sync.CreateCategory(ctx, service.CreateCategoryRequest{
		PairRef:     input.Body.ref(),
		Name:        input.Body.Name,
		Description: input.Body.Description,
	})
	if err != nil {
		return nil, err
	}

	status := http.StatusCreated
	if !res.Success {
		status = http.StatusOK
	}
	return &CreateTermOutput{Status: status, Body: *res}, nil
}

func (s *Server) handleCreatePost(ctx context.Context, input *CreatePostInput) (*CreatePostOutput, error) {
	if _, err := s.authorize(input.Authorization, auth.RoleEdit); err != nil {
		return nil, err
	}

	res, err := s.services.Sync.CreatePrimary(ctx, service.CreatePrimaryRequest{
		PairRef: input.Body.ref(),
		Title:   input.Body.Title,
		Content: input.Body.Content,
	})
	if err != nil {
		return nil, err
	}

	status := http.StatusCreated
	if !res.Success {
		status = http.StatusOK
	}
	return &CreatePostOutput{Status: status, Body: *res}, nil
}

func (s *Server) handleSyncPostsToTerms(ctx context.Context, input *SyncPairInput) (*SyncOutput, error) {
	return s.syncAll(ctx, input, domain.OpPrimariesToCategories)
}

func (s *Server) handleSyncTermsToPosts(ctx context.Context, input *SyncPairInput) (*SyncOutput, error) {
	return s.syncAll(ctx, input, domain.OpCategoriesToPrimaries)
}

func (s *Server) syncAll(ctx context.Context, input *SyncPairInput, op domain.Operation) (*SyncOutput, error) {
	if _, err := s.authorize(input.Authorization, auth.RoleAdmin); err != nil {
		return nil, err
	}

	res, err := s.services.Sync.SyncAll(ctx, input.Body.ref(), op)
	if err != nil {
		return nil, err
	}
	return &SyncOutput{Body: *res}, nil
}

func (s *Server) handleListBatches(ctx context.Context, input *ListBatchesInput) (*ListBatchesOutput, error) {
	if _, err := s.authorize(input.Authorization, auth.RoleAdmin); err != nil {
		return nil, err
	}

	batches, err := s.services.Sync.ActiveBatches(ctx)
	if err != nil {
		return nil, err
	}
	if batches == nil {
		batches = []*batch.Status{}
	}
	return &ListBatchesOutput{Body: ListBatchesResponse{Batches: batches}}, nil
}

func (s *Server) handleInitBatch(ctx context.Context, input *InitBatchInput) (*InitBatchOutput, error) {
	if _, err := s.authorize(input.Authorization, auth.RoleAdmin); err != nil {
		return nil, err
	}

	started, err := s.services.Sync.InitBatch(ctx, input.Body.ref(), input.Body.Operation)
	if err != nil {
		return nil, err
	}
	return &InitBatchOutput{Body: *started}, nil
}

func (s *Server) handleProcessBatch(ctx context.Context, input *BatchIDInput) (*BatchStatusOutput, error) {
	if _, err := s.authorize(input.Authorization, auth.RoleAdmin); err != nil {
		return nil, err
	}

	st, err := s.services.Sync.ProcessBatch(ctx, input.Body.BatchID)
	if err != nil {
		return nil, err
	}
	return &BatchStatusOutput{Body: *st}, nil
}

func (s *Server) handleBatchProgress(ctx context.Context, input *BatchProgressInput) (*BatchStatusOutput, error) {
	if _, err := s.authorize(input.Authorization, auth.RoleAdmin); err != nil {
		return nil, err
	}

	st, err := s.services.Sync.BatchProgress(ctx, input.BatchID)
	if err != nil {
		return nil, err
	}
	return &BatchStatusOutput{Body: *st}, nil
}

func (s *Server) handleCleanupBatch(ctx context.Context, input *BatchIDInput) (*MessageOutput, error) {
	if _, err := s.authorize(input.Authorization, auth.RoleAdmin); err != nil {
		return nil, err
	}

	if err := s.services.Sync.CleanupBatch(ctx, input.Body.BatchID); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Batch cleaned up."}}, nil
}

func (s *Server) handleVerify(ctx context.Context, input *VerifyInput) (*VerifyOutput, error) {
	if _, err := s.authorize(input.Authorization, auth.RoleAdmin); err != nil {
		return nil, err
	}

	report, err := s.services.Sync.Verify(ctx, input.Body.ref(), input.Body.Fix)
	if err != nil {
		return nil, err
	}
	return &VerifyOutput{Body: *report}, nil
}

func (s *Server) handleListPairs(_ context.Context, input *ListPairsInput) (*ListPairsOutput, error) {
	if _, err := s.authorize(input.Authorization, auth.RoleEdit); err != nil {
		return nil, err
	}
	return &ListPairsOutput{Body: ListPairsResponse{Pairs: s.services.Sync.Pairs()}}, nil
}
