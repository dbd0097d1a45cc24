package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/pairsync/pairsync-server/internal/auth"
	"github.com/pairsync/pairsync-server/internal/service"
)

func (s *Server) registerRecordRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "updatePrimary",
		Method:      http.MethodPatch,
		Path:        "/api/v1/primaries/{id}",
		Summary:     "Update primary",
		Description: "Updates a primary; renames and body changes reach its linked category",
		Tags:        []string{"Records"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdatePrimary)

	huma.Register(s.api, huma.Operation{
		OperationID: "deletePrimary",
		Method:      http.MethodDelete,
		Path:        "/api/v1/primaries/{id}",
		Summary:     "Delete primary",
		Description: "Trashes a primary, or deletes it and its linked category when force is set",
		Tags:        []string{"Records"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeletePrimary)

	huma.Register(s.api, huma.Operation{
		OperationID: "assignCategories",
		Method:      http.MethodPut,
		Path:        "/api/v1/primaries/{id}/categories",
		Summary:     "Assign categories",
		Description: "Replaces the categories a primary carries in one taxonomy",
		Tags:        []string{"Records"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleAssignCategories)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateCategory",
		Method:      http.MethodPatch,
		Path:        "/api/v1/categories/{id}",
		Summary:     "Update category",
		Description: "Updates a category; renames reach its linked primary",
		Tags:        []string{"Records"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateCategory)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteCategory",
		Method:      http.MethodDelete,
		Path:        "/api/v1/categories/{id}",
		Summary:     "Delete category",
		Description: "Deletes a category and its linked primary",
		Tags:        []string{"Records"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteCategory)
}

// === DTOs ===

// UpdatePrimaryInput wraps the update primary request for Huma.
type UpdatePrimaryInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Primary ID"`
	Body          service.UpdatePrimaryRequest
}

// PrimaryOutput wraps a primary for Huma.
type PrimaryOutput struct {
	Body service.PrimaryView
}

// DeletePrimaryInput contains parameters for deleting a primary.
type DeletePrimaryInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Primary ID"`
	Force         bool   `query:"force" doc:"Delete permanently instead of trashing"`
}

// AssignCategoriesInput wraps the assign categories request for Huma.
type AssignCategoriesInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Primary ID"`
	Body          service.AssignCategoriesRequest
}

// AssignCategoriesResponse lists the categories now carried.
type AssignCategoriesResponse struct {
	Taxonomy    string   `json:"taxonomy" doc:"Taxonomy"`
	CategoryIDs []string `json:"term_ids" doc:"Assigned category IDs"`
}

// AssignCategoriesOutput wraps the assignment for Huma.
type AssignCategoriesOutput struct {
	Body AssignCategoriesResponse
}

// UpdateCategoryInput wraps the update category request for Huma.
type UpdateCategoryInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Category ID"`
	Body          service.UpdateCategoryRequest
}

// CategoryOutput wraps a category for Huma.
type CategoryOutput struct {
	Body service.CategoryView
}

// DeleteCategoryInput contains parameters for deleting a category.
type DeleteCategoryInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Category ID"`
}

// === Handlers ===

func (s *Server) handleUpdatePrimary(ctx context.Context, input *UpdatePrimaryInput) (*PrimaryOutput, error) {
	if _, err := s.authorize(input.Authorization, auth.RoleEdit); err != nil {
		return nil, err
	}

	p, err := s.services.Sync.UpdatePrimary(ctx, input.ID, input.Body)
	if err != nil {
		return nil, err
	}
	return &PrimaryOutput{Body: *p}, nil
}

func (s *Server) handleDeletePrimary(ctx context.Context, input *DeletePrimaryInput) (*MessageOutput, error) {
	if _, err := s.authorize(input.Authorization, auth.RoleEdit); err != nil {
		return nil, err
	}

	if err := s.services.Sync.DeletePrimary(ctx, input.ID, input.Force); err != nil {
		return nil, err
	}
	msg := "Post moved to trash."
	if input.Force {
		msg = "Post deleted."
	}
	return &MessageOutput{Body: MessageResponse{Message: msg}}, nil
}

func (s *Server) handleAssignCategories(ctx context.Context, input *AssignCategoriesInput) (*AssignCategoriesOutput, error) {
	if _, err := s.authorize(input.Authorization, auth.RoleEdit); err != nil {
		return nil, err
	}

	ids, err := s.services.Sync.AssignCategories(ctx, input.ID, input.Body)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return &AssignCategoriesOutput{Body: AssignCategoriesResponse{
		Taxonomy:    input.Body.Taxonomy,
		CategoryIDs: ids,
	}}, nil
}

func (s *Server) handleUpdateCategory(ctx context.Context, input *UpdateCategoryInput) (*CategoryOutput, error) {
	if _, err := s.authorize(input.Authorization, auth.RoleEdit); err != nil {
		return nil, err
	}

	c, err := s.services.Sync.UpdateCategory(ctx, input.ID, input.Body)
	if err != nil {
		return nil, err
	}
	return &CategoryOutput{Body: *c}, nil
}

func (s *Server) handleDeleteCategory(ctx context.Context, input *DeleteCategoryInput) (*MessageOutput, error) {
	if _, err := s.authorize(input.Authorization, auth.RoleEdit); err != nil {
		return nil, err
	}

	if err := s.services.Sync.DeleteCategory(ctx, input.ID); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Term deleted."}}, nil
}
