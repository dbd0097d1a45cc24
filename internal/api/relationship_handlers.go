package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/pairsync/pairsync-server/internal/auth"
	"github.com/pairsync/pairsync-server/internal/relation"
	"github.com/pairsync/pairsync-server/internal/service"
)

func (s *Server) registerRelationshipRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listRelationships",
		Method:      http.MethodGet,
		Path:        "/api/v1/relationships",
		Summary:     "List relationships",
		Description: "Returns linked primary and category pairs across every configured pair",
		Tags:        []string{"Relationships"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListRelationships)

	huma.Register(s.api, huma.Operation{
		OperationID: "listTypeRelationships",
		Method:      http.MethodGet,
		Path:        "/api/v1/post-type-relationships",
		Summary:     "List post type relationships",
		Description: "Returns one pair's links with the primaries related through each category",
		Tags:        []string{"Relationships"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListTypeRelationships)

	huma.Register(s.api, huma.Operation{
		OperationID: "saveRelationshipOrder",
		Method:      http.MethodPost,
		Path:        "/api/v1/relationship-order",
		Summary:     "Save relationship order",
		Description: "Stores the display order of the primaries related to a parent",
		Tags:        []string{"Relationships"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSaveOrder)

	huma.Register(s.api, huma.Operation{
		OperationID: "listSiblings",
		Method:      http.MethodGet,
		Path:        "/api/v1/primaries/{id}/siblings",
		Summary:     "List siblings",
		Description: "Returns the primaries sharing this primary's category",
		Tags:        []string{"Relationships"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListSiblings)

	huma.Register(s.api, huma.Operation{
		OperationID: "getAdjacent",
		Method:      http.MethodGet,
		Path:        "/api/v1/primaries/{id}/adjacent",
		Summary:     "Get adjacent sibling",
		Description: "Returns the previous or next sibling, or null at either end",
		Tags:        []string{"Relationships"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetAdjacent)

	huma.Register(s.api, huma.Operation{
		OperationID:   "redirectCategory",
		Method:        http.MethodGet,
		Path:          "/api/v1/redirect/{taxonomy}/{slug}",
		Summary:       "Redirect category",
		Description:   "Redirects a category archive to its linked primary when the pair enables redirects",
		Tags:          []string{"Relationships"},
		DefaultStatus: http.StatusMovedPermanently,
	}, s.handleRedirect)
}

// === DTOs ===

// ListRelationshipsInput contains parameters for listing relationships.
type ListRelationshipsInput struct {
	Authorization string `header:"Authorization"`
	PostType      string `query:"post_type" doc:"Limit to one primary type"`
	Taxonomy      string `query:"taxonomy" doc:"Limit to one taxonomy"`
	Search        string `query:"search" doc:"Fuzzy match on names"`
	Page          int    `query:"page" default:"1" minimum:"1" doc:"Page number"`
	PerPage       int    `query:"per_page" default:"20" minimum:"1" maximum:"100" doc:"Items per page"`
}

// ListRelationshipsOutput wraps a page of relationships for Huma.
type ListRelationshipsOutput struct {
	Body relation.Page[relation.Relationship]
}

// ListTypeRelationshipsInput contains parameters for one pair's listing.
type ListTypeRelationshipsInput struct {
	Authorization string `header:"Authorization"`
	PostType      string `query:"post_type" required:"true" doc:"Primary type"`
	Taxonomy      string `query:"taxonomy" required:"true" doc:"Paired taxonomy"`
	Search        string `query:"search" doc:"Fuzzy match on names"`
	Page          int    `query:"page" default:"1" minimum:"1" doc:"Page number"`
	PerPage       int    `query:"per_page" default:"20" minimum:"1" maximum:"100" doc:"Items per page"`
}

// ListTypeRelationshipsOutput wraps a page of pair relationships for Huma.
type ListTypeRelationshipsOutput struct {
	Body relation.Page[relation.TypeRelationship]
}

// SaveOrderInput wraps the save order request for Huma.
type SaveOrderInput struct {
	Authorization string `header:"Authorization"`
	Body          service.SaveOrderRequest
}

// SaveOrderOutput wraps the stored order for Huma.
type SaveOrderOutput struct {
	Body service.SaveOrderResult
}

// ListSiblingsInput contains parameters for listing siblings.
type ListSiblingsInput struct {
	Authorization  string `header:"Authorization"`
	ID             string `path:"id" doc:"Primary ID"`
	Taxonomy       string `query:"taxonomy" required:"true" doc:"Taxonomy linking the siblings"`
	PostType       string `query:"post_type" doc:"Sibling type; defaults to the primary's own type"`
	UseCustomOrder bool   `query:"use_custom_order" default:"true" doc:"Apply the stored order"`
}

// SiblingsResponse contains sibling primaries.
type SiblingsResponse struct {
	Siblings []*service.PrimaryView `json:"siblings" doc:"Sibling primaries in display order"`
}

// SiblingsOutput wraps siblings for Huma.
type SiblingsOutput struct {
	Body SiblingsResponse
}

// GetAdjacentInput contains parameters for the adjacent lookup.
type GetAdjacentInput struct {
	Authorization  string `header:"Authorization"`
	ID             string `path:"id" doc:"Primary ID"`
	Taxonomy       string `query:"taxonomy" required:"true" doc:"Taxonomy linking the siblings"`
	Direction      string `query:"direction" default:"next" doc:"Which neighbour to return: previous, prev or next"`
	UseCustomOrder bool   `query:"use_custom_order" default:"true" doc:"Apply the stored order"`
}

// AdjacentResponse contains the neighbouring primary, if any.
type AdjacentResponse struct {
	Primary *service.PrimaryView `json:"post" doc:"Adjacent primary, null at either end"`
}

// AdjacentOutput wraps the adjacent lookup for Huma.
type AdjacentOutput struct {
	Body AdjacentResponse
}

// RedirectInput contains parameters for a category redirect.
type RedirectInput struct {
	Taxonomy string `path:"taxonomy" doc:"Taxonomy"`
	Slug     string `path:"slug" doc:"Category slug or ID"`
}

// RedirectOutput carries the redirect location.
type RedirectOutput struct {
	Status   int
	Location string `header:"Location"`
}

// === Handlers ===

func (s *Server) handleListRelationships(ctx context.Context, input *ListRelationshipsInput) (*ListRelationshipsOutput, error) {
	if _, err := s.authorize(input.Authorization, auth.RoleAdmin); err != nil {
		return nil, err
	}

	page, err := s.services.Relationship.AllRelationships(ctx, relation.ListFilter{
		Type:     input.PostType,
		Taxonomy: input.Taxonomy,
		Search:   input.Search,
		Page:     input.Page,
		PerPage:  input.PerPage,
	})
	if err != nil {
		return nil, err
	}
	return &ListRelationshipsOutput{Body: *page}, nil
}

func (s *Server) handleListTypeRelationships(ctx context.Context, input *ListTypeRelationshipsInput) (*ListTypeRelationshipsOutput, error) {
	if _, err := s.authorize(input.Authorization, auth.RoleEdit); err != nil {
		return nil, err
	}

	page, err := s.services.Relationship.TypeRelationships(ctx, input.PostType, input.Taxonomy, input.Search, input.Page, input.PerPage)
	if err != nil {
		return nil, err
	}
	return &ListTypeRelationshipsOutput{Body: *page}, nil
}

func (s *Server) handleSaveOrder(ctx context.Context, input *SaveOrderInput) (*SaveOrderOutput, error) {
	if _, err := s.authorize(input.Authorization, auth.RoleEdit); err != nil {
		return nil, err
	}

	res, err := s.services.Relationship.SaveOrder(ctx, input.Body)
	if err != nil {
		return nil, err
	}
	return &SaveOrderOutput{Body: *res}, nil
}

func (s *Server) handleListSiblings(ctx context.Context, input *ListSiblingsInput) (*SiblingsOutput, error) {
	if _, err := s.authorize(input.Authorization, auth.RoleEdit); err != nil {
		return nil, err
	}

	siblings, err := s.services.Relationship.Siblings(ctx, input.ID, input.Taxonomy, input.PostType, input.UseCustomOrder)
	if err != nil {
		return nil, err
	}
	if siblings == nil {
		siblings = []*service.PrimaryView{}
	}
	return &SiblingsOutput{Body: SiblingsResponse{Siblings: siblings}}, nil
}

func (s *Server) handleGetAdjacent(ctx context.Context, input *GetAdjacentInput) (*AdjacentOutput, error) {
	if _, err := s.authorize(input.Authorization, auth.RoleEdit); err != nil {
		return nil, err
	}

	p, err := s.services.Relationship.Adjacent(ctx, input.ID, input.Taxonomy, input.Direction, input.UseCustomOrder)
	if err != nil {
		return nil, err
	}
	return &AdjacentOutput{Body: AdjacentResponse{Primary: p}}, nil
}

func (s *Server) handleRedirect(ctx context.Context, input *RedirectInput) (*RedirectOutput, error) {
	target, err := s.services.Relationship.RedirectTarget(ctx, input.Taxonomy, input.Slug)
	if err != nil {
		return nil, err
	}
	return &RedirectOutput{Status: http.StatusMovedPermanently, Location: target}, nil
}
