package providers

import (
	"github.com/samber/do/v2"

	"github.com/pairsync/pairsync-server/internal/batch"
	"github.com/pairsync/pairsync-server/internal/config"
	"github.com/pairsync/pairsync-server/internal/reconcile"
	"github.com/pairsync/pairsync-server/internal/relation"
	"github.com/pairsync/pairsync-server/internal/service"
	"github.com/pairsync/pairsync-server/internal/store"
	"github.com/pairsync/pairsync-server/internal/syncer"
)

func providePermalinks(cfg *config.Config) service.Permalinks {
	return service.Permalinks{BaseURL: cfg.Server.PublicURL}
}

// ProvideSyncService provides the sync service.
func ProvideSyncService(i do.Injector) (*service.SyncService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)
	repo := do.MustInvoke[*RepositoryHandle](i)
	registry := do.MustInvoke[*syncer.Registry](i)
	reconciler := do.MustInvoke[*reconcile.Reconciler](i)
	coordinator := do.MustInvoke[*batch.Coordinator](i)
	bus := do.MustInvoke[*store.Bus](i)

	return service.NewSyncService(repo.Store, registry, reconciler, coordinator, bus, providePermalinks(cfg), log.Logger.Logger), nil
}

// ProvideRelationshipService provides the relationship service.
func ProvideRelationshipService(i do.Injector) (*service.RelationshipService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)
	repo := do.MustInvoke[*RepositoryHandle](i)
	registry := do.MustInvoke[*syncer.Registry](i)
	resolver := do.MustInvoke[*relation.Resolver](i)
	listings := do.MustInvoke[*relation.Listings](i)

	return service.NewRelationshipService(repo.Store, registry, resolver, listings, providePermalinks(cfg), log.Logger.Logger), nil
}
