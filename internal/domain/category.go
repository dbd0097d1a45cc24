package domain

// Category is a taxonomy term.
type Category struct {
	Syncable
	Taxonomy    string            `json:"taxonomy"`
	Name        string            `json:"name"`
	Slug        string            `json:"slug"`
	Description string            `json:"description,omitempty"`
	Count       int               `json:"count"` // primaries carrying this category
	Meta        map[string]string `json:"meta,omitempty"`
}

// MetaValue returns the metadata value for key, or "".
func (c *Category) MetaValue(key string) string {
	return c.Meta[key]
}

// LinkedPrimaryID returns the primary of primaryType this category points at.
func (c *Category) LinkedPrimaryID(primaryType string) string {
	return c.Meta[LinkToTypeKey(primaryType)]
}

// CategoryUpdate lists the mutable fields of a Category. Nil fields are left unchanged.
type CategoryUpdate struct {
	Name        *string
	Description *string
}

// Empty reports whether the update changes nothing.
func (u CategoryUpdate) Empty() bool {
	return u.Name == nil && u.Description == nil
}
