package domain

import (
	"encoding/json/v2"
	"fmt"
	"strings"
)

// Metadata key prefixes for link pointers and order records.
const (
	linkToTaxonomyPrefix = "link_to_taxonomy:"
	linkToTypePrefix     = "link_to_type:"
	orderPrefix          = "order_for_taxonomy:"
)

// LinkToTaxonomyKey is the Primary metadata key holding its Category ID in taxonomy.
func LinkToTaxonomyKey(taxonomy string) string {
	return linkToTaxonomyPrefix + taxonomy
}

// LinkToTypeKey is the Category metadata key holding its Primary ID of primaryType.
func LinkToTypeKey(primaryType string) string {
	return linkToTypePrefix + primaryType
}

// OrderKey is the Primary metadata key holding the sibling order for taxonomy.
func OrderKey(taxonomy string) string {
	return orderPrefix + taxonomy
}

// EncodeOrder serializes an order record.
func EncodeOrder(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode order: %w", err)
	}
	return string(data), nil
}

// DecodeOrder parses an order record. Malformed or empty values yield nil.
func DecodeOrder(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil
	}
	return ids
}

// CleanOrder trims entries, drops blanks, and removes duplicates keeping the first occurrence.
func CleanOrder(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// DisambiguatedName builds a category name for a primary whose name is
// already taken by a category linked elsewhere: "Name (slug)", or
// "Name (ID: id)" when the slug would just repeat the name.
func DisambiguatedName(name, slug, id, nameSlug string) string {
	if slug == "" || slug == nameSlug {
		return fmt.Sprintf("%s (ID: %s)", name, id)
	}
	return fmt.Sprintf("%s (%s)", name, slug)
}
