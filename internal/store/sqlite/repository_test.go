package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/store"
)

// recordingHooks captures lifecycle events in order.
type recordingHooks struct {
	events []string
}

func (h *recordingHooks) PrimaryCreated(_ context.Context, p *domain.Primary) {
	h.events = append(h.events, "primary-created:"+p.Name)
}

func (h *recordingHooks) PrimaryUpdated(_ context.Context, before, after *domain.Primary) {
	h.events = append(h.events, "primary-updated:"+before.Name+"->"+after.Name+":"+string(after.Status))
}

func (h *recordingHooks) PrimaryBeforeDelete(_ context.Context, p *domain.Primary) {
	h.events = append(h.events, "primary-delete:"+p.Name)
}

func (h *recordingHooks) CategoryCreated(_ context.Context, c *domain.Category) {
	h.events = append(h.events, "category-created:"+c.Name)
}

func (h *recordingHooks) CategoryUpdated(_ context.Context, before, after *domain.Category) {
	h.events = append(h.events, "category-updated:"+before.Name+"->"+after.Name)
}

func (h *recordingHooks) CategoryBeforeDelete(_ context.Context, c *domain.Category) {
	h.events = append(h.events, "category-delete:"+c.Name)
}

func TestCreateAndGetPrimary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pid, err := s.CreatePrimary(ctx, "genre", "Jazz", "<p>Swing</p>", domain.StatusPublished)
	if err != nil {
		t.Fatalf("CreatePrimary: %v", err)
	}

	got, err := s.GetPrimary(ctx, pid)
	if err != nil {
		t.Fatalf("GetPrimary: %v", err)
	}
	if got.Name != "Jazz" || got.Type != "genre" || got.Slug != "jazz" {
		t.Errorf("unexpected primary: %+v", got)
	}
	if got.Status != domain.StatusPublished {
		t.Errorf("Status: got %q", got.Status)
	}
	if got.Body != "<p>Swing</p>" {
		t.Errorf("Body: got %q", got.Body)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestCreatePrimary_UniqueSlugs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, _ := s.CreatePrimary(ctx, "genre", "Rock", "", domain.StatusPublished)
	second, err := s.CreatePrimary(ctx, "genre", "Rock", "", domain.StatusPublished)
	if err != nil {
		t.Fatalf("second CreatePrimary: %v", err)
	}
	other, _ := s.CreatePrimary(ctx, "artist", "Rock", "", domain.StatusPublished)

	p1, _ := s.GetPrimary(ctx, first)
	p2, _ := s.GetPrimary(ctx, second)
	p3, _ := s.GetPrimary(ctx, other)
	if p1.Slug != "rock" || p2.Slug != "rock-2" {
		t.Errorf("slugs: got %q and %q", p1.Slug, p2.Slug)
	}
	if p3.Slug != "rock" {
		t.Errorf("slug is scoped per type, got %q", p3.Slug)
	}
}

func TestGetPrimary_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetPrimary(context.Background(), "pri-missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreatePrimary_RejectsBlankName(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreatePrimary(context.Background(), "genre", "  ", "", domain.StatusPublished)
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestUpdatePrimary_KeepsSlugAndFiresHook(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	hooks := &recordingHooks{}
	s.SetHooks(hooks)

	pid, _ := s.CreatePrimary(ctx, "genre", "Jazz", "", domain.StatusDraft)
	name := "Bebop"
	published := domain.StatusPublished
	if err := s.UpdatePrimary(ctx, pid, domain.PrimaryUpdate{Name: &name, Status: &published}); err != nil {
		t.Fatalf("UpdatePrimary: %v", err)
	}

	got, _ := s.GetPrimary(ctx, pid)
	if got.Name != "Bebop" || got.Slug != "jazz" {
		t.Errorf("got name %q slug %q", got.Name, got.Slug)
	}

	want := []string{"primary-created:Jazz", "primary-updated:Jazz->Bebop:published"}
	assertEvents(t, hooks.events, want)
}

func TestDeletePrimary_SoftThenHard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	hooks := &recordingHooks{}

	pid, _ := s.CreatePrimary(ctx, "genre", "Jazz", "", domain.StatusPublished)
	if err := s.SetMeta(ctx, store.PrimaryRef(pid), "k", "v"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	s.SetHooks(hooks)

	if err := s.DeletePrimary(ctx, pid, false); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	got, _ := s.GetPrimary(ctx, pid)
	if got.Status != domain.StatusTrashed {
		t.Errorf("expected trashed, got %q", got.Status)
	}

	if err := s.DeletePrimary(ctx, pid, true); err != nil {
		t.Fatalf("hard delete: %v", err)
	}
	if _, err := s.GetPrimary(ctx, pid); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after hard delete, got %v", err)
	}
	if _, ok, _ := s.GetMeta(ctx, store.PrimaryRef(pid), "k"); ok {
		t.Error("meta survived hard delete")
	}

	assertEvents(t, hooks.events, []string{"primary-updated:Jazz->Jazz:trashed", "primary-delete:Jazz"})
}

func TestFindPrimaryByExactName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	draft, _ := s.CreatePrimary(ctx, "genre", "Jazz", "", domain.StatusDraft)
	pub, _ := s.CreatePrimary(ctx, "genre", "Jazz", "", domain.StatusPublished)
	s.CreatePrimary(ctx, "genre", "jazz", "", domain.StatusPublished)

	got, err := s.FindPrimaryByExactName(ctx, "genre", "Jazz", domain.StatusPublished)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != pub {
		t.Errorf("expected published match %s, got %s", pub, got.ID)
	}

	got, err = s.FindPrimaryByExactName(ctx, "genre", "Jazz", "")
	if err != nil {
		t.Fatalf("find any: %v", err)
	}
	if got.ID != draft {
		t.Errorf("expected earliest match %s, got %s", draft, got.ID)
	}

	if _, err := s.FindPrimaryByExactName(ctx, "genre", "Blues", ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQueryPrimaries_OrderAndWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"C", "A", "B", "D"} {
		pid, _ := s.CreatePrimary(ctx, "genre", name, "", domain.StatusPublished)
		ids = append(ids, pid)
	}
	s.CreatePrimary(ctx, "genre", "Draft", "", domain.StatusDraft)

	page, err := s.QueryPrimaries(ctx, store.PrimaryQuery{Type: "genre", Status: domain.StatusPublished, Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(page) != 2 || page[0].ID != ids[1] || page[1].ID != ids[2] {
		t.Errorf("window mismatch: %v", names(page))
	}

	tail, _ := s.QueryPrimaries(ctx, store.PrimaryQuery{Type: "genre", Status: domain.StatusPublished, Offset: 3})
	if len(tail) != 1 || tail[0].ID != ids[3] {
		t.Errorf("offset-only window mismatch: %v", names(tail))
	}

	n, _ := s.CountPrimaries(ctx, "genre", domain.StatusPublished)
	if n != 4 {
		t.Errorf("CountPrimaries: got %d, want 4", n)
	}
}

func TestQueryPrimaries_MenuOrderAndMembership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cid, _ := s.CreateCategory(ctx, "genre_tax", "Jazz", "")
	a, _ := s.CreatePrimary(ctx, "song", "A", "", domain.StatusPublished)
	b, _ := s.CreatePrimary(ctx, "song", "B", "", domain.StatusPublished)
	c, _ := s.CreatePrimary(ctx, "song", "C", "", domain.StatusPublished)

	for pid, order := range map[string]int{a: 5, b: 1, c: 3} {
		o := order
		s.UpdatePrimary(ctx, pid, domain.PrimaryUpdate{MenuOrder: &o})
	}
	for _, pid := range []string{a, b} {
		if err := s.SetPrimaryCategories(ctx, pid, "genre_tax", []string{cid}); err != nil {
			t.Fatalf("SetPrimaryCategories: %v", err)
		}
	}

	got, err := s.QueryPrimaries(ctx, store.PrimaryQuery{CategoryID: cid, Order: store.OrderMenu})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 || got[0].ID != b || got[1].ID != a {
		t.Errorf("expected [B A], got %v", names(got))
	}

	cat, _ := s.GetCategory(ctx, cid)
	if cat.Count != 2 {
		t.Errorf("category count: got %d, want 2", cat.Count)
	}
}

func TestCategories_CRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	hooks := &recordingHooks{}
	s.SetHooks(hooks)

	cid, err := s.CreateCategory(ctx, "genre_tax", "Jazz", "Swing era")
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if _, err := s.CreateCategory(ctx, "genre_tax", "Jazz", ""); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate name: expected ErrAlreadyExists, got %v", err)
	}

	found, err := s.FindCategoryByExactName(ctx, "genre_tax", "Jazz")
	if err != nil || found.ID != cid {
		t.Fatalf("FindCategoryByExactName: %v %+v", err, found)
	}
	if found.Description != "Swing era" || found.Slug != "jazz" {
		t.Errorf("unexpected category: %+v", found)
	}

	name := "Bebop"
	if err := s.UpdateCategory(ctx, cid, domain.CategoryUpdate{Name: &name}); err != nil {
		t.Fatalf("UpdateCategory: %v", err)
	}
	if err := s.DeleteCategory(ctx, cid); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	if _, err := s.GetCategory(ctx, cid); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	assertEvents(t, hooks.events, []string{
		"category-created:Jazz",
		"category-updated:Jazz->Bebop",
		"category-delete:Bebop",
	})
}

func TestQueryCategories_MetaAndEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, _ := s.CreateCategory(ctx, "genre_tax", "Jazz", "")
	second, _ := s.CreateCategory(ctx, "genre_tax", "Blues", "")
	s.CreateCategory(ctx, "other_tax", "Jazz", "")
	s.SetMeta(ctx, store.CategoryRef(second), domain.LinkToTypeKey("genre"), "pri-1")

	all, err := s.QueryCategories(ctx, "genre_tax", true)
	if err != nil {
		t.Fatalf("QueryCategories: %v", err)
	}
	if len(all) != 2 || all[0].ID != first || all[1].ID != second {
		t.Fatalf("expected creation order, got %d items", len(all))
	}
	if all[1].LinkedPrimaryID("genre") != "pri-1" {
		t.Errorf("meta not loaded: %+v", all[1].Meta)
	}

	nonEmpty, _ := s.QueryCategories(ctx, "genre_tax", false)
	if len(nonEmpty) != 0 {
		t.Errorf("expected no non-empty categories, got %d", len(nonEmpty))
	}

	n, _ := s.CountCategories(ctx, "genre_tax")
	if n != 2 {
		t.Errorf("CountCategories: got %d, want 2", n)
	}
}

func TestMeta_SetGetDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ref := store.PrimaryRef("pri-1")

	if _, ok, err := s.GetMeta(ctx, ref, "k"); ok || err != nil {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}
	s.SetMeta(ctx, ref, "k", "one")
	s.SetMeta(ctx, ref, "k", "two")

	v, ok, err := s.GetMeta(ctx, ref, "k")
	if err != nil || !ok || v != "two" {
		t.Errorf("GetMeta: got %q ok=%v err=%v", v, ok, err)
	}

	if _, ok, _ := s.GetMeta(ctx, store.CategoryRef("pri-1"), "k"); ok {
		t.Error("meta leaked across kinds")
	}

	if err := s.DeleteMeta(ctx, ref, "k"); err != nil {
		t.Fatalf("DeleteMeta: %v", err)
	}
	if err := s.DeleteMeta(ctx, ref, "k"); err != nil {
		t.Errorf("second DeleteMeta: %v", err)
	}
}

func TestSetPrimaryCategories_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pid, _ := s.CreatePrimary(ctx, "song", "Take Five", "", domain.StatusPublished)
	jazz, _ := s.CreateCategory(ctx, "genre_tax", "Jazz", "")
	cool, _ := s.CreateCategory(ctx, "genre_tax", "Cool", "")
	foreign, _ := s.CreateCategory(ctx, "mood_tax", "Calm", "")

	if err := s.SetPrimaryCategories(ctx, pid, "genre_tax", []string{foreign}); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for foreign taxonomy, got %v", err)
	}

	if err := s.SetPrimaryCategories(ctx, pid, "genre_tax", []string{cool, jazz, cool}); err != nil {
		t.Fatalf("SetPrimaryCategories: %v", err)
	}
	got, _ := s.PrimaryCategoryIDs(ctx, pid, "genre_tax")
	if len(got) != 2 || got[0] != jazz || got[1] != cool {
		t.Errorf("expected [jazz cool] in category creation order, got %v", got)
	}

	s.SetPrimaryCategories(ctx, pid, "genre_tax", nil)
	got, _ = s.PrimaryCategoryIDs(ctx, pid, "genre_tax")
	if len(got) != 0 {
		t.Errorf("expected memberships cleared, got %v", got)
	}
}

func names(ps []*domain.Primary) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}

func assertEvents(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFindPrimaryByExactName_SkipsTrashed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pid, _ := s.CreatePrimary(ctx, "genre", "Swing", "", domain.StatusPublished)
	if err := s.DeletePrimary(ctx, pid, false); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	if _, err := s.FindPrimaryByExactName(ctx, "genre", "Swing", ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected trashed primary to be skipped, got %v", err)
	}
	got, err := s.FindPrimaryByExactName(ctx, "genre", "Swing", domain.StatusTrashed)
	if err != nil {
		t.Fatalf("find trashed: %v", err)
	}
	if got.ID != pid {
		t.Errorf("expected %s, got %s", pid, got.ID)
	}
}
