package api

import (
	"context"
	"encoding/json/v2"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairsync/pairsync-server/internal/auth"
	"github.com/pairsync/pairsync-server/internal/batch"
	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/reconcile"
	"github.com/pairsync/pairsync-server/internal/relation"
	"github.com/pairsync/pairsync-server/internal/service"
	"github.com/pairsync/pairsync-server/internal/store"
	"github.com/pairsync/pairsync-server/internal/store/sqlite"
	"github.com/pairsync/pairsync-server/internal/syncer"
)

// testEnvelope mirrors the response envelope with typed data.
type testEnvelope[T any] struct {
	V       int    `json:"v"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

type testServer struct {
	*Server
	api    humatest.TestAPI
	db     *sqlite.Store
	edit   string
	admin  string
	tokens *auth.TokenService
}

func setupTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	db, err := sqlite.Open(filepath.Join(dir, "sync.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	progress, err := store.NewInMemory(logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = progress.Close() })

	bus := store.NewBus()
	registry := syncer.NewRegistry([]domain.Pair{{Type: "genre", Taxonomy: "genre_tax", Redirect: true}}, db, bus, logger)
	db.SetHooks(syncer.NewDispatcher(registry, logger))

	listings := relation.NewListings(registry, db, relation.CacheConfig{}, logger)
	bus.Subscribe(listings)

	reconciler := reconcile.New(registry, db, logger)
	coordinator := batch.NewCoordinator(reconciler, progress, batch.Config{ChunkSize: 2, TTL: time.Hour}, logger)
	links := service.Permalinks{BaseURL: "https://example.com"}

	services := &Services{
		Sync:         service.NewSyncService(db, registry, reconciler, coordinator, bus, links, logger),
		Relationship: service.NewRelationshipService(db, registry, relation.NewResolver(registry, db, bus, logger), listings, links, logger),
	}

	key, err := auth.LoadOrGenerateKey(filepath.Join(dir, "auth.key"))
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(key, time.Hour)
	require.NoError(t, err)

	edit, err := tokens.GenerateAccessToken("editor", auth.RoleEdit)
	require.NoError(t, err)
	admin, err := tokens.GenerateAccessToken("root", auth.RoleAdmin)
	require.NoError(t, err)

	if opts.HealthChecks == nil {
		opts.HealthChecks = []HealthCheck{{Name: "database", Check: db.Ping}}
	}
	s := NewServer(services, tokens, opts, logger)
	t.Cleanup(s.Close)

	return &testServer{
		Server: s,
		api:    humatest.Wrap(t, s.API()),
		db:     db,
		edit:   "Authorization: Bearer " + edit,
		admin:  "Authorization: Bearer " + admin,
		tokens: tokens,
	}
}

func decode[T any](t *testing.T, body []byte) testEnvelope[T] {
	t.Helper()
	var env testEnvelope[T]
	require.NoError(t, json.Unmarshal(body, &env), string(body))
	return env
}

var genreBody = map[string]any{"cpt_slug": "genre", "taxonomy_slug": "genre_tax"}

func with(extra map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range genreBody {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t, Options{})

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	env := decode[HealthResponse](t, resp.Body.Bytes())
	assert.Equal(t, 1, env.V)
	assert.True(t, env.Success)
	assert.Equal(t, "healthy", env.Data.Status)
	assert.Equal(t, "healthy", env.Data.Components["database"].Status)
}

func TestHealthCheck_Unhealthy(t *testing.T) {
	ts := setupTestServer(t, Options{HealthChecks: []HealthCheck{{
		Name:  "progress",
		Check: func(context.Context) error { return assert.AnError },
	}}})

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	env := decode[HealthResponse](t, resp.Body.Bytes())
	assert.Equal(t, "unhealthy", env.Data.Status)
	assert.Equal(t, "unhealthy", env.Data.Components["progress"].Status)
}

func TestAuth_MissingAndInvalidTokens(t *testing.T) {
	ts := setupTestServer(t, Options{})

	resp := ts.api.Post("/api/v1/create-term", with(map[string]any{"name": "Jazz"}))
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	env := decode[any](t, resp.Body.Bytes())
	assert.Equal(t, 1, env.V)
	assert.False(t, env.Success)
	assert.Equal(t, "UNAUTHORIZED", env.Code)

	resp = ts.api.Post("/api/v1/create-term", "Authorization: Bearer nope", with(map[string]any{"name": "Jazz"}))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = ts.api.Post("/api/v1/create-term", "Authorization: Token abc", with(map[string]any{"name": "Jazz"}))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAuth_EditCannotRunBulkSync(t *testing.T) {
	ts := setupTestServer(t, Options{})

	resp := ts.api.Post("/api/v1/sync-posts-to-terms", ts.edit, genreBody)
	require.Equal(t, http.StatusForbidden, resp.Code, resp.Body.String())
	assert.Equal(t, "FORBIDDEN", decode[any](t, resp.Body.Bytes()).Code)

	resp = ts.api.Get("/api/v1/relationships", ts.edit)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestCreateTerm(t *testing.T) {
	ts := setupTestServer(t, Options{})

	resp := ts.api.Post("/api/v1/create-term", ts.edit, with(map[string]any{"name": "Jazz", "description": "Swing"}))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	env := decode[service.CreateCategoryResult](t, resp.Body.Bytes())
	assert.True(t, env.Data.Success)
	assert.Equal(t, "Term created and synced successfully.", env.Data.Message)
	require.NotNil(t, env.Data.Category)
	assert.Equal(t, "Jazz", env.Data.Category.Name)
	require.NotEmpty(t, env.Data.Category.PrimaryID)

	p, err := ts.db.GetPrimary(context.Background(), env.Data.Category.PrimaryID)
	require.NoError(t, err)
	assert.Equal(t, "Jazz", p.Name)

	// Same name again reports the existing term.
	resp = ts.api.Post("/api/v1/create-term", ts.edit, with(map[string]any{"name": "Jazz"}))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	again := decode[service.CreateCategoryResult](t, resp.Body.Bytes())
	assert.True(t, again.Success)
	assert.False(t, again.Data.Success)
	assert.Equal(t, env.Data.Category.ID, again.Data.Category.ID)
}

func TestCreatePost_Validation(t *testing.T) {
	ts := setupTestServer(t, Options{})

	resp := ts.api.Post("/api/v1/create-post", ts.edit, with(map[string]any{"title": ""}))
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code, resp.Body.String())
	env := decode[any](t, resp.Body.Bytes())
	assert.False(t, env.Success)
	assert.Equal(t, "VALIDATION", env.Code)

	resp = ts.api.Post("/api/v1/create-post", ts.edit, map[string]any{
		"cpt_slug": "movie", "taxonomy_slug": "genre_tax", "title": "Jazz",
	})
	assert.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())
}

func TestRecordRoutes_RenameAndCascade(t *testing.T) {
	ts := setupTestServer(t, Options{})
	ctx := context.Background()

	resp := ts.api.Post("/api/v1/create-post", ts.edit, with(map[string]any{"title": "Jazz"}))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	created := decode[service.CreatePrimaryResult](t, resp.Body.Bytes()).Data.Primary
	require.NotEmpty(t, created.CategoryID)

	resp = ts.api.Patch("/api/v1/primaries/"+created.ID, ts.edit, map[string]any{"title": "Bebop"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "Bebop", decode[service.PrimaryView](t, resp.Body.Bytes()).Data.Title)

	c, err := ts.db.GetCategory(ctx, created.CategoryID)
	require.NoError(t, err)
	assert.Equal(t, "Bebop", c.Name)

	resp = ts.api.Delete("/api/v1/categories/"+created.CategoryID, ts.edit)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	_, err = ts.db.GetPrimary(ctx, created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	resp = ts.api.Delete("/api/v1/categories/"+created.CategoryID, ts.edit)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSyncRoutes_BulkAndBatch(t *testing.T) {
	ts := setupTestServer(t, Options{})
	ctx := context.Background()

	for _, name := range []string{"Blues", "Funk", "Soul"} {
		_, err := ts.db.CreatePrimary(ctx, "genre", name, "", domain.StatusPublished)
		require.NoError(t, err)
	}

	resp := ts.api.Post("/api/v1/sync-terms-to-posts", ts.admin, genreBody)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = ts.api.Post("/api/v1/batch-sync/init", ts.admin, with(map[string]any{"operation": "posts-to-terms"}))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	started := decode[batch.Started](t, resp.Body.Bytes()).Data
	assert.Equal(t, 3, started.Total)

	var st batch.Status
	for range 3 {
		resp = ts.api.Post("/api/v1/batch-sync/process", ts.admin, map[string]any{"batch_id": started.BatchID})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		st = decode[batch.Status](t, resp.Body.Bytes()).Data
		if st.Complete {
			break
		}
	}
	assert.True(t, st.Complete)
	assert.Equal(t, 3, st.Synced)

	resp = ts.api.Get("/api/v1/batch-sync/progress?batch_id="+started.BatchID, ts.admin)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.InDelta(t, 100.0, decode[batch.Status](t, resp.Body.Bytes()).Data.Percentage, 0.001)

	resp = ts.api.Post("/api/v1/batch-sync/cleanup", ts.admin, map[string]any{"batch_id": started.BatchID})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = ts.api.Get("/api/v1/batch-sync/progress?batch_id="+started.BatchID, ts.admin)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = ts.api.Post("/api/v1/verify", ts.admin, genreBody)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	report := decode[reconcile.Report](t, resp.Body.Bytes()).Data
	assert.Equal(t, 3, report.Linked)
	assert.Zero(t, report.Broken)
}

func TestSyncRoutes_RateLimited(t *testing.T) {
	ts := setupTestServer(t, Options{BulkRatePerMinute: 1, BulkBurst: 1})

	resp := ts.api.Post("/api/v1/sync-posts-to-terms", ts.admin, genreBody)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = ts.api.Post("/api/v1/sync-posts-to-terms", ts.admin, genreBody)
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	env := decode[any](t, resp.Body.Bytes())
	assert.Equal(t, "RATE_LIMITED", env.Code)

	// Non-bulk routes are not throttled.
	resp = ts.api.Get("/api/v1/pairs", ts.edit)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestListPairs(t *testing.T) {
	ts := setupTestServer(t, Options{})

	resp := ts.api.Get("/api/v1/pairs", ts.edit)
	require.Equal(t, http.StatusOK, resp.Code)

	pairs := decode[ListPairsResponse](t, resp.Body.Bytes()).Data.Pairs
	require.Len(t, pairs, 1)
	assert.Equal(t, "genre", pairs[0].Type)
	assert.True(t, pairs[0].Redirect)
}

func TestRedirect(t *testing.T) {
	ts := setupTestServer(t, Options{})

	resp := ts.api.Post("/api/v1/create-post", ts.edit, with(map[string]any{"title": "Jazz"}))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = ts.api.Get("/api/v1/redirect/genre_tax/jazz")
	require.Equal(t, http.StatusMovedPermanently, resp.Code, resp.Body.String())
	assert.Equal(t, "https://example.com/genre/jazz/", resp.Header().Get("Location"))

	resp = ts.api.Get("/api/v1/redirect/genre_tax/missing")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRelationshipRoutes(t *testing.T) {
	ts := setupTestServer(t, Options{})
	ctx := context.Background()

	resp := ts.api.Post("/api/v1/create-post", ts.edit, with(map[string]any{"title": "Jazz"}))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	parent := decode[service.CreatePrimaryResult](t, resp.Body.Bytes()).Data.Primary

	var members []string
	for _, name := range []string{"Alpha", "Beta"} {
		id, err := ts.db.CreatePrimary(ctx, "genre", name, "", domain.StatusPublished)
		require.NoError(t, err)
		resp = ts.api.Put("/api/v1/primaries/"+id+"/categories", ts.edit, map[string]any{
			"taxonomy": "genre_tax", "term_ids": []string{parent.CategoryID},
		})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		members = append(members, id)
	}

	resp = ts.api.Post("/api/v1/relationship-order", ts.edit, map[string]any{
		"parent_post_id": parent.ID, "taxonomy": "genre_tax", "order": []string{members[1], members[0]},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = ts.api.Get("/api/v1/primaries/"+parent.ID+"/siblings?taxonomy=genre_tax", ts.edit)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	siblings := decode[SiblingsResponse](t, resp.Body.Bytes()).Data.Siblings
	require.Len(t, siblings, 2)
	assert.Equal(t, members[1], siblings[0].ID)
	assert.Equal(t, members[0], siblings[1].ID)

	resp = ts.api.Get("/api/v1/primaries/"+members[1]+"/adjacent?taxonomy=genre_tax&direction=next", ts.edit)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	next := decode[AdjacentResponse](t, resp.Body.Bytes()).Data.Primary
	require.NotNil(t, next)
	assert.Equal(t, members[0], next.ID)

	resp = ts.api.Get("/api/v1/primaries/"+members[0]+"/adjacent?taxonomy=genre_tax&direction=next", ts.edit)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Nil(t, decode[AdjacentResponse](t, resp.Body.Bytes()).Data.Primary)

	resp = ts.api.Get("/api/v1/relationships?search=jaz", ts.admin)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	page := decode[relation.Page[relation.Relationship]](t, resp.Body.Bytes()).Data
	assert.Equal(t, 1, page.Total)

	resp = ts.api.Get("/api/v1/post-type-relationships?post_type=genre&taxonomy=genre_tax", ts.edit)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
}

func TestOpenAPI_BatchInitDescribesCount(t *testing.T) {
	ts := setupTestServer(t, Options{})

	item := ts.api.OpenAPI().Paths["/api/v1/batch-sync/init"]
	require.NotNil(t, item)
	require.NotNil(t, item.Post)
	assert.Contains(t, item.Post.Description, "Counts the source records")
}
