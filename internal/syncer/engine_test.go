package syncer

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/store"
	"github.com/pairsync/pairsync-server/internal/store/sqlite"
)

const (
	testType     = "genre"
	testTaxonomy = "genre_tax"
)

type fixture struct {
	repo     *sqlite.Store
	registry *Registry
	engine   *Engine
	events   []store.LinkChanged
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "sync.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	f := &fixture{repo: repo}
	emitter := store.EmitterFunc(func(event any) {
		if ev, ok := event.(store.LinkChanged); ok {
			f.events = append(f.events, ev)
		}
	})
	f.registry = NewRegistry([]domain.Pair{{Type: testType, Taxonomy: testTaxonomy}}, repo, emitter, logger)
	repo.SetHooks(NewDispatcher(f.registry, logger))

	e, ok := f.registry.Get(domain.PairKey(testType, testTaxonomy))
	require.True(t, ok)
	f.engine = e
	return f
}

func (f *fixture) createPrimary(t *testing.T, name string, status domain.Status) *domain.Primary {
	t.Helper()
	ctx := context.Background()
	pid, err := f.repo.CreatePrimary(ctx, testType, name, "", status)
	require.NoError(t, err)
	p, err := f.repo.GetPrimary(ctx, pid)
	require.NoError(t, err)
	return p
}

func (f *fixture) createCategory(t *testing.T, name string) *domain.Category {
	t.Helper()
	ctx := context.Background()
	cid, err := f.repo.CreateCategory(ctx, testTaxonomy, name, "")
	require.NoError(t, err)
	c, err := f.repo.GetCategory(ctx, cid)
	require.NoError(t, err)
	return c
}

func (f *fixture) categories(t *testing.T) []*domain.Category {
	t.Helper()
	cats, err := f.repo.QueryCategories(context.Background(), testTaxonomy, true)
	require.NoError(t, err)
	return cats
}

func (f *fixture) primaries(t *testing.T) []*domain.Primary {
	t.Helper()
	ps, err := f.repo.QueryPrimaries(context.Background(), store.PrimaryQuery{Type: testType})
	require.NoError(t, err)
	return ps
}

// assertLinked checks both pointers of a primary/category pair.
func (f *fixture) assertLinked(t *testing.T, primaryID, categoryID string) {
	t.Helper()
	ctx := context.Background()
	p, err := f.repo.GetPrimary(ctx, primaryID)
	require.NoError(t, err)
	c, err := f.repo.GetCategory(ctx, categoryID)
	require.NoError(t, err)
	assert.Equal(t, categoryID, p.LinkedCategoryID(testTaxonomy))
	assert.Equal(t, primaryID, c.LinkedPrimaryID(testType))
}

func TestPrimaryCreated_CreatesAndLinksCategory(t *testing.T) {
	f := newFixture(t)

	p := f.createPrimary(t, "Jazz", domain.StatusPublished)

	cats := f.categories(t)
	require.Len(t, cats, 1)
	assert.Equal(t, "Jazz", cats[0].Name)
	f.assertLinked(t, p.ID, cats[0].ID)
	assert.NotEmpty(t, f.events)
}

func TestPrimaryCreated_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.createPrimary(t, "Jazz", domain.StatusPublished)
	p, err := f.repo.GetPrimary(ctx, created.ID)
	require.NoError(t, err)
	before := p.LinkedCategoryID(testTaxonomy)

	f.engine.OnPrimaryCreated(ctx, p)
	f.engine.OnPrimaryCreated(ctx, p)

	assert.Len(t, f.categories(t), 1)
	p, err = f.repo.GetPrimary(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, before, p.LinkedCategoryID(testTaxonomy))
}

func TestPrimaryCreated_LinksExistingUnlinkedCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Created while suppressed, so the category has no primary yet.
	sctx, release := f.engine.Suppress(ctx, KindCreate)
	cid, err := f.repo.CreateCategory(sctx, testTaxonomy, "Blues", "")
	release()
	require.NoError(t, err)
	assert.Empty(t, f.primaries(t))

	p := f.createPrimary(t, "Blues", domain.StatusPublished)

	cats := f.categories(t)
	require.Len(t, cats, 1)
	assert.Equal(t, cid, cats[0].ID)
	f.assertLinked(t, p.ID, cid)
}

func TestPrimaryCreated_SkipsDrafts(t *testing.T) {
	f := newFixture(t)

	f.createPrimary(t, "Jazz", domain.StatusDraft)

	assert.Empty(t, f.categories(t))
}

func TestPrimaryUpdated_PublishingDraftCreatesCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.createPrimary(t, "Swing", domain.StatusDraft)
	published := domain.StatusPublished
	require.NoError(t, f.repo.UpdatePrimary(ctx, p.ID, domain.PrimaryUpdate{Status: &published}))

	cats := f.categories(t)
	require.Len(t, cats, 1)
	assert.Equal(t, "Swing", cats[0].Name)
	f.assertLinked(t, p.ID, cats[0].ID)
}

func TestPrimaryCreated_DisambiguatesSameNamedCategory(t *testing.T) {
	f := newFixture(t)

	first := f.createPrimary(t, "Rock", domain.StatusPublished)
	second := f.createPrimary(t, "Rock", domain.StatusPublished)

	cats := f.categories(t)
	require.Len(t, cats, 2)
	f.assertLinked(t, first.ID, cats[0].ID)
	assert.Equal(t, "Rock", cats[0].Name)

	require.Equal(t, "rock-2", second.Slug)
	assert.Equal(t, "Rock (rock-2)", cats[1].Name)
	f.assertLinked(t, second.ID, cats[1].ID)
}

func TestPrimaryCreated_DisambiguatesWithIDWhenSlugMatchesName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The draft takes the plain slug; the category then gets its own primary.
	draft := f.createPrimary(t, "Rock", domain.StatusDraft)
	require.Equal(t, "rock", draft.Slug)
	rock := f.createCategory(t, "Rock")
	owner := rock.LinkedPrimaryID(testType)
	require.NotEmpty(t, owner)
	require.NotEqual(t, draft.ID, owner)

	published := domain.StatusPublished
	require.NoError(t, f.repo.UpdatePrimary(ctx, draft.ID, domain.PrimaryUpdate{Status: &published}))

	c, err := f.repo.FindCategoryByExactName(ctx, testTaxonomy, "Rock (ID: "+draft.ID+")")
	require.NoError(t, err)
	f.assertLinked(t, draft.ID, c.ID)
	f.assertLinked(t, owner, rock.ID)
}

func TestPrimaryRenamed_KeepsCategoryID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.createPrimary(t, "Jazz", domain.StatusPublished)
	cats := f.categories(t)
	require.Len(t, cats, 1)
	categoryID := cats[0].ID

	name := "Bebop"
	require.NoError(t, f.repo.UpdatePrimary(ctx, p.ID, domain.PrimaryUpdate{Name: &name}))

	c, err := f.repo.GetCategory(ctx, categoryID)
	require.NoError(t, err)
	assert.Equal(t, "Bebop", c.Name)
	assert.Len(t, f.categories(t), 1)
	f.assertLinked(t, p.ID, categoryID)
}

func TestPrimaryRenamed_FallsBackToFindOrCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sctx, release := f.engine.Suppress(ctx, KindCreate)
	pid, err := f.repo.CreatePrimary(sctx, testType, "Funk", "", domain.StatusPublished)
	release()
	require.NoError(t, err)
	require.Empty(t, f.categories(t))

	p, err := f.repo.GetPrimary(ctx, pid)
	require.NoError(t, err)
	f.engine.OnPrimaryRenamed(ctx, p, "Soul", "Funk")

	cats := f.categories(t)
	require.Len(t, cats, 1)
	assert.Equal(t, "Funk", cats[0].Name)
	f.assertLinked(t, pid, cats[0].ID)
}

func TestPrimaryUpdated_BodyBecomesDescription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.createPrimary(t, "Jazz", domain.StatusPublished)
	body := "<p>Born in <strong>New Orleans</strong>.</p>"
	require.NoError(t, f.repo.UpdatePrimary(ctx, p.ID, domain.PrimaryUpdate{Body: &body}))

	cats := f.categories(t)
	require.Len(t, cats, 1)
	assert.Equal(t, "Born in **New Orleans**.", cats[0].Description)
}

func TestPrimaryDeleted_CascadesToCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.createPrimary(t, "Jazz", domain.StatusPublished)
	require.Len(t, f.categories(t), 1)

	require.NoError(t, f.repo.DeletePrimary(ctx, p.ID, true))

	assert.Empty(t, f.categories(t))
	_, err := f.repo.FindCategoryByExactName(ctx, testTaxonomy, "Jazz")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPrimaryTrashed_DoesNotCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.createPrimary(t, "Jazz", domain.StatusPublished)
	require.NoError(t, f.repo.DeletePrimary(ctx, p.ID, false))

	assert.Len(t, f.categories(t), 1)
}

func TestPrimaryDeleted_LeavesRelinkedCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.createPrimary(t, "Jazz", domain.StatusPublished)
	b := f.createPrimary(t, "Blues", domain.StatusPublished)
	cats := f.categories(t)
	require.Len(t, cats, 2)
	jazz := cats[0]

	// a still points at jazz, but jazz now belongs to b.
	require.NoError(t, f.repo.SetMeta(ctx, store.CategoryRef(jazz.ID), domain.LinkToTypeKey(testType), b.ID))
	require.NoError(t, f.repo.SetMeta(ctx, store.PrimaryRef(b.ID), domain.LinkToTaxonomyKey(testTaxonomy), jazz.ID))

	require.NoError(t, f.repo.DeletePrimary(ctx, a.ID, true))

	_, err := f.repo.GetCategory(ctx, jazz.ID)
	assert.NoError(t, err)
}

func TestJazzScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.createPrimary(t, "Jazz", domain.StatusPublished)
	c, err := f.repo.FindCategoryByExactName(ctx, testTaxonomy, "Jazz")
	require.NoError(t, err)
	f.assertLinked(t, p.ID, c.ID)

	name := "Bebop"
	require.NoError(t, f.repo.UpdatePrimary(ctx, p.ID, domain.PrimaryUpdate{Name: &name}))
	renamed, err := f.repo.GetCategory(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bebop", renamed.Name)

	require.NoError(t, f.repo.DeletePrimary(ctx, p.ID, true))
	_, err = f.repo.GetCategory(ctx, c.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, f.primaries(t))
}

func TestCategoryCreated_CreatesPublishedPrimary(t *testing.T) {
	f := newFixture(t)

	c := f.createCategory(t, "Techno")

	ps := f.primaries(t)
	require.Len(t, ps, 1)
	assert.Equal(t, "Techno", ps[0].Name)
	assert.Equal(t, domain.StatusPublished, ps[0].Status)
	f.assertLinked(t, ps[0].ID, c.ID)
	assert.Len(t, f.categories(t), 1)
}

func TestCategoryCreated_LinksExistingPrimary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sctx, release := f.engine.Suppress(ctx, KindCreate)
	pid, err := f.repo.CreatePrimary(sctx, testType, "House", "", domain.StatusPublished)
	release()
	require.NoError(t, err)

	c := f.createCategory(t, "House")

	assert.Len(t, f.primaries(t), 1)
	f.assertLinked(t, pid, c.ID)
}

func TestCategoryCreated_DoesNotStealLinkedPrimary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.createPrimary(t, "Disco", domain.StatusPublished)
	first := f.categories(t)[0]

	// Rename the category without touching the primary, then add a new
	// category carrying the primary's name.
	sctx, release := f.engine.Suppress(ctx, KindUpdate, KindCreate)
	other := "Nu Disco"
	require.NoError(t, f.repo.UpdateCategory(sctx, first.ID, domain.CategoryUpdate{Name: &other}))
	release()

	c := f.createCategory(t, "Disco")

	f.assertLinked(t, p.ID, first.ID)
	ps := f.primaries(t)
	require.Len(t, ps, 2)
	assert.Equal(t, "Disco", ps[1].Name)
	f.assertLinked(t, ps[1].ID, c.ID)
}

func TestCategoryRenamed_UpdatesLinkedPrimary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.createCategory(t, "Ambient")
	ps := f.primaries(t)
	require.Len(t, ps, 1)
	primaryID := ps[0].ID

	name := "Drone"
	desc := "Long tones."
	require.NoError(t, f.repo.UpdateCategory(ctx, c.ID, domain.CategoryUpdate{Name: &name, Description: &desc}))

	p, err := f.repo.GetPrimary(ctx, primaryID)
	require.NoError(t, err)
	assert.Equal(t, "Drone", p.Name)
	assert.Equal(t, "Long tones.", p.Body)
	f.assertLinked(t, primaryID, c.ID)
}

func TestCategoryDeleted_HardDeletesPrimary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.createCategory(t, "Gospel")
	require.Len(t, f.primaries(t), 1)

	require.NoError(t, f.repo.DeleteCategory(ctx, c.ID))

	ps, err := f.repo.QueryPrimaries(ctx, store.PrimaryQuery{Type: testType, Status: domain.StatusTrashed})
	require.NoError(t, err)
	assert.Empty(t, ps)
	assert.Empty(t, f.primaries(t))
}

func TestLinkedCategory_RemovesStalePointer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.createPrimary(t, "Jazz", domain.StatusPublished)
	require.NoError(t, f.repo.SetMeta(ctx, store.PrimaryRef(p.ID), domain.LinkToTaxonomyKey(testTaxonomy), "cat-missing"))

	p, err := f.repo.GetPrimary(ctx, p.ID)
	require.NoError(t, err)
	c, ok := f.engine.LinkedCategory(ctx, p)
	assert.False(t, ok)
	assert.Nil(t, c)

	_, found, err := f.repo.GetMeta(ctx, store.PrimaryRef(p.ID), domain.LinkToTaxonomyKey(testTaxonomy))
	require.NoError(t, err)
	assert.False(t, found)

	// A later create event repairs the link to the existing category.
	f.engine.OnPrimaryCreated(ctx, p)
	cats := f.categories(t)
	require.Len(t, cats, 1)
	f.assertLinked(t, p.ID, cats[0].ID)
}

func TestLink_DetachesFormerPartners(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.createPrimary(t, "Jazz", domain.StatusPublished)
	b := f.createPrimary(t, "Blues", domain.StatusPublished)
	cats := f.categories(t)
	require.Len(t, cats, 2)

	a, err := f.repo.GetPrimary(ctx, a.ID)
	require.NoError(t, err)
	blues, err := f.repo.GetCategory(ctx, cats[1].ID)
	require.NoError(t, err)

	changed, err := f.engine.Link(ctx, a, blues)
	require.NoError(t, err)
	assert.True(t, changed)

	f.assertLinked(t, a.ID, blues.ID)
	jazz, err := f.repo.GetCategory(ctx, cats[0].ID)
	require.NoError(t, err)
	assert.Empty(t, jazz.LinkedPrimaryID(testType))
	b, err = f.repo.GetPrimary(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, b.LinkedCategoryID(testTaxonomy))

	changed, err = f.engine.Link(ctx, a, blues)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestOtherTypesAreIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.repo.CreatePrimary(ctx, "page", "Jazz", "", domain.StatusPublished)
	require.NoError(t, err)
	_, err = f.repo.CreateCategory(ctx, "post_tag", "Jazz", "")
	require.NoError(t, err)

	assert.Empty(t, f.categories(t))
	assert.Empty(t, f.primaries(t))
}

func TestPrimaryCreated_WaitsForConcurrentCreation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Another request holds the create guard while its category "Rock" is
	// becoming a primary of the same name.
	held, release, ok := f.engine.Enter(ctx, KindCreate)
	require.True(t, ok)
	held = f.engine.withCreation(held, fromCategory, "cat-pending", "Rock")

	done := make(chan error, 1)
	go func() {
		_, err := f.repo.CreatePrimary(ctx, testType, "Rock", "", domain.StatusPublished)
		done <- err
	}()

	// Let the published primary reach its create hook.
	require.Eventually(t, func() bool {
		ps, err := f.repo.QueryPrimaries(ctx, store.PrimaryQuery{Type: testType})
		return err == nil && len(ps) == 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	cid, err := f.repo.CreateCategory(held, testTaxonomy, "Rock", "")
	require.NoError(t, err)
	rock, err := f.repo.GetCategory(held, cid)
	require.NoError(t, err)
	owner, err := f.engine.CreatePrimaryFor(held, rock)
	require.NoError(t, err)
	release()

	require.NoError(t, <-done)

	ps := f.primaries(t)
	require.Len(t, ps, 2)
	f.assertLinked(t, owner.ID, cid)

	for _, p := range ps {
		if p.ID == owner.ID {
			continue
		}
		linked := p.LinkedCategoryID(testTaxonomy)
		require.NotEmpty(t, linked, "concurrently published primary must be linked")
		f.assertLinked(t, p.ID, linked)
		c, err := f.repo.GetCategory(ctx, linked)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(c.Name, "Rock ("), "got %q", c.Name)
	}
	assert.Len(t, f.categories(t), 2)
}

func TestCreation_IsScopedToRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	marked := f.engine.withCreation(ctx, fromPrimary, "pri-1", "Jazz")
	assert.True(t, f.engine.creating(marked, fromPrimary, "Jazz"))
	assert.False(t, f.engine.creating(marked, fromCategory, "Jazz"))
	assert.False(t, f.engine.creating(marked, fromPrimary, "Blues"))
	assert.False(t, f.engine.creating(ctx, fromPrimary, "Jazz"))

	other := NewEngine(domain.Pair{Type: testType, Taxonomy: "style_tax"}, f.repo, NewGuards(), nil, nil)
	assert.False(t, other.creating(marked, fromPrimary, "Jazz"))
}
