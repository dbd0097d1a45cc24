package relation

import "github.com/pairsync/pairsync-server/internal/domain"

// applyOrder places candidates listed in order first, in that sequence,
// then appends the rest in their existing order. Order entries that are
// not candidates are ignored.
func applyOrder(candidates []*domain.Primary, order []string) []*domain.Primary {
	if len(order) == 0 {
		return candidates
	}
	byID := make(map[string]*domain.Primary, len(candidates))
	for _, p := range candidates {
		byID[p.ID] = p
	}

	out := make([]*domain.Primary, 0, len(candidates))
	placed := make(map[string]bool, len(order))
	for _, id := range order {
		if p, ok := byID[id]; ok && !placed[id] {
			out = append(out, p)
			placed[id] = true
		}
	}
	for _, p := range candidates {
		if !placed[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

func without(ps []*domain.Primary, id string) []*domain.Primary {
	out := make([]*domain.Primary, 0, len(ps))
	for _, p := range ps {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}
