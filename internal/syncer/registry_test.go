package syncer

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/errors"
	"github.com/pairsync/pairsync-server/internal/store/sqlite"
)

func testPair() domain.Pair {
	return domain.Pair{Type: testType, Taxonomy: testTaxonomy}
}

func TestRegistry(t *testing.T) {
	pairs := []domain.Pair{
		{Type: "genre", Taxonomy: "genre_tax", Redirect: true},
		{Type: "artist", Taxonomy: "artist_tax"},
		{Type: "genre", Taxonomy: "genre_tax"},
	}
	r := NewRegistry(pairs, nil, nil, nil)

	assert.Len(t, r.Pairs(), 2)
	assert.True(t, r.Pairs()[0].Redirect)

	e, err := r.Lookup("artist", "artist_tax")
	require.NoError(t, err)
	assert.Equal(t, "artist_artist_tax", e.Pair().Key())

	_, err = r.Lookup("artist", "genre_tax")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	assert.Len(t, r.ForType("genre"), 1)
	assert.Empty(t, r.ForType("page"))
	assert.True(t, r.HasTaxonomy("artist_tax"))
	assert.False(t, r.HasTaxonomy("post_tag"))
}

func TestDispatcher_RecoversFromPanics(t *testing.T) {
	// A nil repository makes the engine panic on its first read.
	r := NewRegistry([]domain.Pair{testPair()}, nil, nil, nil)
	d := NewDispatcher(r, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.NotPanics(t, func() {
		d.PrimaryCreated(context.Background(), &domain.Primary{
			Syncable: domain.Syncable{ID: "pri-1"},
			Type:     testType,
			Name:     "Jazz",
			Status:   domain.StatusPublished,
		})
	})
}

func TestRegistry_TypeSharedByTwoTaxonomies(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "shared.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	pairs := []domain.Pair{
		{Type: "genre", Taxonomy: "genre_tax"},
		{Type: "genre", Taxonomy: "style_tax"},
	}
	r := NewRegistry(pairs, repo, nil, logger)
	repo.SetHooks(NewDispatcher(r, logger))
	assert.Len(t, r.ForType("genre"), 2)

	pid, err := repo.CreatePrimary(ctx, "genre", "Jazz", "", domain.StatusPublished)
	require.NoError(t, err)

	p, err := repo.GetPrimary(ctx, pid)
	require.NoError(t, err)
	for _, tax := range []string{"genre_tax", "style_tax"} {
		cats, err := repo.QueryCategories(ctx, tax, true)
		require.NoError(t, err)
		require.Len(t, cats, 1, tax)
		assert.Equal(t, "Jazz", cats[0].Name)
		assert.Equal(t, cats[0].ID, p.LinkedCategoryID(tax))
		assert.Equal(t, pid, cats[0].LinkedPrimaryID("genre"))
	}

	renamed := "Cool Jazz"
	require.NoError(t, repo.UpdatePrimary(ctx, pid, domain.PrimaryUpdate{Name: &renamed}))
	for _, tax := range []string{"genre_tax", "style_tax"} {
		cats, err := repo.QueryCategories(ctx, tax, true)
		require.NoError(t, err)
		require.Len(t, cats, 1, tax)
		assert.Equal(t, "Cool Jazz", cats[0].Name)
	}

	require.NoError(t, repo.DeletePrimary(ctx, pid, true))
	for _, tax := range []string{"genre_tax", "style_tax"} {
		cats, err := repo.QueryCategories(ctx, tax, true)
		require.NoError(t, err)
		assert.Empty(t, cats, tax)
	}
}
