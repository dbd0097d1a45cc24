package service

import (
	"fmt"

	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/errors"
	"github.com/pairsync/pairsync-server/internal/store"
)

// PrimaryView is the API representation of a primary.
type PrimaryView struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Content    string        `json:"content"`
	Status     domain.Status `json:"status"`
	Type       string        `json:"type"`
	MenuOrder  int           `json:"menu_order"`
	Link       string        `json:"link"`
	CategoryID string        `json:"linked_term_id,omitempty"`
	// Links maps each paired taxonomy to the linked category id.
	Links map[string]string `json:"linked_terms,omitempty"`
}

// CategoryView is the API representation of a category.
type CategoryView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Taxonomy    string `json:"taxonomy"`
	Link        string `json:"link"`
	Count       int    `json:"count"`
	Description string `json:"description"`
	PrimaryID   string `json:"linked_post_id,omitempty"`
	// Links maps each paired type to the linked primary id.
	Links map[string]string `json:"linked_posts,omitempty"`
}

// Permalinks builds public URLs for records.
type Permalinks struct {
	BaseURL string
}

// Primary returns "<base>/<type>/<slug>/".
func (l Permalinks) Primary(p *domain.Primary) string {
	return fmt.Sprintf("%s/%s/%s/", l.BaseURL, p.Type, p.Slug)
}

// Category returns "<base>/<taxonomy>/<slug>/".
func (l Permalinks) Category(c *domain.Category) string {
	return fmt.Sprintf("%s/%s/%s/", l.BaseURL, c.Taxonomy, c.Slug)
}

// primaryView renders p with its links in taxonomies. CategoryID is only
// set when exactly one taxonomy is given.
func (l Permalinks) primaryView(p *domain.Primary, taxonomies ...string) *PrimaryView {
	v := &PrimaryView{
		ID:        p.ID,
		Title:     p.Name,
		Content:   p.Body,
		Status:    p.Status,
		Type:      p.Type,
		MenuOrder: p.MenuOrder,
		Link:      l.Primary(p),
	}
	for _, tax := range taxonomies {
		if cid := p.LinkedCategoryID(tax); cid != "" {
			if v.Links == nil {
				v.Links = make(map[string]string, len(taxonomies))
			}
			v.Links[tax] = cid
		}
	}
	if len(taxonomies) == 1 {
		v.CategoryID = v.Links[taxonomies[0]]
	}
	return v
}

func (l Permalinks) categoryView(c *domain.Category, primaryTypes ...string) *CategoryView {
	v := &CategoryView{
		ID:          c.ID,
		Name:        c.Name,
		Slug:        c.Slug,
		Taxonomy:    c.Taxonomy,
		Link:        l.Category(c),
		Count:       c.Count,
		Description: c.Description,
	}
	for _, typ := range primaryTypes {
		if pid := c.LinkedPrimaryID(typ); pid != "" {
			if v.Links == nil {
				v.Links = make(map[string]string, len(primaryTypes))
			}
			v.Links[typ] = pid
		}
	}
	if len(primaryTypes) == 1 {
		v.PrimaryID = v.Links[primaryTypes[0]]
	}
	return v
}

// storeError translates repository sentinels into domain errors.
func storeError(err error, what, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return errors.NotFoundf("%s %s not found", what, id)
	case errors.Is(err, store.ErrInvalidInput):
		return errors.Wrap(err, errors.CodeValidation, err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		return errors.Wrapf(err, errors.CodeAlreadyExists, "%s already exists", what)
	default:
		return errors.Wrapf(err, errors.CodeInternal, "%s %s", what, id)
	}
}
