package domain

// Status is the lifecycle state of a Primary.
type Status string

// Primary statuses. Only published primaries take part in sync.
const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusTrashed   Status = "trashed"
	StatusDeleted   Status = "deleted"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusTrashed, StatusDeleted:
		return true
	}
	return false
}

// Primary is a content record of a configured type.
type Primary struct {
	Syncable
	Type      string            `json:"type"`
	Name      string            `json:"name"`
	Slug      string            `json:"slug"`
	Body      string            `json:"body,omitempty"`
	Status    Status            `json:"status"`
	MenuOrder int               `json:"menu_order"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// IsPublished reports whether the primary is live.
func (p *Primary) IsPublished() bool {
	return p.Status == StatusPublished
}

// MetaValue returns the metadata value for key, or "".
func (p *Primary) MetaValue(key string) string {
	return p.Meta[key]
}

// LinkedCategoryID returns the category this primary points at in taxonomy.
func (p *Primary) LinkedCategoryID(taxonomy string) string {
	return p.Meta[LinkToTaxonomyKey(taxonomy)]
}

// PrimaryUpdate lists the mutable fields of a Primary. Nil fields are left unchanged.
type PrimaryUpdate struct {
	Name      *string
	Body      *string
	Status    *Status
	MenuOrder *int
}

// Empty reports whether the update changes nothing.
func (u PrimaryUpdate) Empty() bool {
	return u.Name == nil && u.Body == nil && u.Status == nil && u.MenuOrder == nil
}
