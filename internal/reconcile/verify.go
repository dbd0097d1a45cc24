package reconcile

import (
	"context"
	"fmt"

	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/store"
)

// Issue kinds reported by Verify.
const (
	IssueMissingCounterpart = "missing_counterpart"
	IssueNotReciprocal      = "not_reciprocal"
)

// Issue is one broken link pointer.
type Issue struct {
	Kind   store.EntityKind `json:"kind"`
	ID     string           `json:"id"`
	Target string           `json:"target"`
	Reason string           `json:"reason"`
	Fixed  bool             `json:"fixed"`
}

// Report summarizes the link health of one pair.
type Report struct {
	Pair               domain.Pair `json:"pair"`
	Primaries          int         `json:"primaries"`
	Categories         int         `json:"categories"`
	Linked             int         `json:"linked"`
	UnlinkedPrimaries  int         `json:"unlinked_primaries"`
	UnlinkedCategories int         `json:"unlinked_categories"`
	Broken             int         `json:"broken"`
	Fixed              int         `json:"fixed"`
	Issues             []Issue     `json:"issues"`
}

// Healthy reports whether every record is linked and no pointer is broken.
func (r Report) Healthy() bool {
	return r.Broken == 0 && r.UnlinkedPrimaries == 0 && r.UnlinkedCategories == 0
}

// Verify checks every link pointer of pair. A pointer is broken when its
// target is missing or does not point back. With fix, broken pointers are
// removed; a later sweep then relinks the records.
func (r *Reconciler) Verify(ctx context.Context, pair domain.Pair, fix bool) (*Report, error) {
	e, err := r.registry.Lookup(pair.Type, pair.Taxonomy)
	if err != nil {
		return nil, err
	}

	primaries, err := r.repo.QueryPrimaries(ctx, store.PrimaryQuery{Type: pair.Type, Order: store.OrderCreated})
	if err != nil {
		return nil, fmt.Errorf("load primaries: %w", err)
	}
	// Trashed primaries keep their links until they are deleted for good.
	trashed, err := r.repo.QueryPrimaries(ctx, store.PrimaryQuery{Type: pair.Type, Status: domain.StatusTrashed})
	if err != nil {
		return nil, fmt.Errorf("load trashed primaries: %w", err)
	}
	primaries = append(primaries, trashed...)
	cats, err := r.repo.QueryCategories(ctx, pair.Taxonomy, true)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	report := &Report{Pair: pair, Primaries: len(primaries), Categories: len(cats), Issues: []Issue{}}

	primaryByID := make(map[string]*domain.Primary, len(primaries))
	for _, p := range primaries {
		primaryByID[p.ID] = p
	}
	catByID := make(map[string]*domain.Category, len(cats))
	for _, c := range cats {
		catByID[c.ID] = c
	}

	for _, p := range primaries {
		cid := p.LinkedCategoryID(pair.Taxonomy)
		if cid == "" {
			if p.IsPublished() {
				report.UnlinkedPrimaries++
			}
			continue
		}
		c, ok := catByID[cid]
		switch {
		case !ok:
			report.add(Issue{Kind: store.KindPrimary, ID: p.ID, Target: cid, Reason: IssueMissingCounterpart})
		case c.LinkedPrimaryID(pair.Type) != p.ID:
			report.add(Issue{Kind: store.KindPrimary, ID: p.ID, Target: cid, Reason: IssueNotReciprocal})
		default:
			report.Linked++
		}
	}

	for _, c := range cats {
		pid := c.LinkedPrimaryID(pair.Type)
		if pid == "" {
			report.UnlinkedCategories++
			continue
		}
		p, ok := primaryByID[pid]
		switch {
		case !ok:
			report.add(Issue{Kind: store.KindCategory, ID: c.ID, Target: pid, Reason: IssueMissingCounterpart})
		case p.LinkedCategoryID(pair.Taxonomy) != c.ID:
			report.add(Issue{Kind: store.KindCategory, ID: c.ID, Target: pid, Reason: IssueNotReciprocal})
		}
	}

	if fix {
		for i := range report.Issues {
			issue := &report.Issues[i]
			if err := e.ClearPointer(ctx, store.EntityRef{Kind: issue.Kind, ID: issue.ID}); err != nil {
				r.logger.Warn("Failed to clear broken pointer", "pair", pair.Key(), "kind", issue.Kind, "id", issue.ID, "error", err)
				continue
			}
			issue.Fixed = true
			report.Fixed++
		}
	}

	r.logger.Info("Verified pair",
		"pair", pair.Key(),
		"linked", report.Linked,
		"broken", report.Broken,
		"fixed", report.Fixed,
	)
	return report, nil
}

func (r *Report) add(issue Issue) {
	r.Issues = append(r.Issues, issue)
	r.Broken++
}
