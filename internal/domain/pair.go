package domain

import (
	"fmt"
	"strings"
)

// Pair is one configured sync scope: primaries of Type mirror categories of Taxonomy.
type Pair struct {
	Type     string `json:"cpt_slug"`
	Taxonomy string `json:"taxonomy_slug"`
	Redirect bool   `json:"enable_redirect"`
}

// Key identifies the pair as "type_taxonomy".
func (p Pair) Key() string {
	return PairKey(p.Type, p.Taxonomy)
}

func (p Pair) String() string {
	return p.Type + "/" + p.Taxonomy
}

// PairKey builds the registry key for a type and taxonomy.
func PairKey(primaryType, taxonomy string) string {
	return primaryType + "_" + taxonomy
}

// Operation is the direction of a bulk or batch run.
type Operation string

// Operation values as accepted on the wire.
const (
	OpPrimariesToCategories Operation = "posts-to-terms"
	OpCategoriesToPrimaries Operation = "terms-to-posts"
)

// ParseOperation validates an operation name.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(strings.TrimSpace(s)); op {
	case OpPrimariesToCategories, OpCategoriesToPrimaries:
		return op, nil
	default:
		return "", fmt.Errorf("invalid operation %q", s)
	}
}

// Result counts the outcome of a reconcile page. Every examined item lands in
// exactly one of the two counters.
type Result struct {
	Synced int `json:"synced"`
	Errors int `json:"errors"`
}

// Add accumulates another result.
func (r *Result) Add(other Result) {
	r.Synced += other.Synced
	r.Errors += other.Errors
}

// Examined is the number of items looked at.
func (r Result) Examined() int {
	return r.Synced + r.Errors
}

// Summary renders the user-facing summary line.
func (r Result) Summary(what string) string {
	return fmt.Sprintf("Synced %d %s with %d errors", r.Synced, what, r.Errors)
}
