package providers

import (
	"github.com/samber/do/v2"

	"github.com/pairsync/pairsync-server/internal/batch"
	"github.com/pairsync/pairsync-server/internal/config"
	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/reconcile"
	"github.com/pairsync/pairsync-server/internal/relation"
	"github.com/pairsync/pairsync-server/internal/store"
	"github.com/pairsync/pairsync-server/internal/syncer"
)

// ProvideRegistry builds one sync engine per configured pair and installs
// the lifecycle dispatcher on the repository.
func ProvideRegistry(i do.Injector) (*syncer.Registry, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)
	repo := do.MustInvoke[*RepositoryHandle](i)
	bus := do.MustInvoke[*store.Bus](i)

	pairs := make([]domain.Pair, len(cfg.Sync.Pairs))
	for n, p := range cfg.Sync.Pairs {
		pairs[n] = domain.Pair{Type: p.Type, Taxonomy: p.Taxonomy, Redirect: p.Redirect}
	}

	registry := syncer.NewRegistry(pairs, repo.Store, bus, log.Logger.Logger)
	repo.SetHooks(syncer.NewDispatcher(registry, log.Logger.Logger))

	for _, p := range pairs {
		log.Info("Pair registered", "pair", p.Key(), "redirect", p.Redirect)
	}
	if len(pairs) == 0 {
		log.Warn("No pairs configured; lifecycle hooks are inert")
	}
	return registry, nil
}

// ProvideReconciler provides the bulk reconciler.
func ProvideReconciler(i do.Injector) (*reconcile.Reconciler, error) {
	log := do.MustInvoke[*LoggerHandle](i)
	repo := do.MustInvoke[*RepositoryHandle](i)
	registry := do.MustInvoke[*syncer.Registry](i)

	return reconcile.New(registry, repo.Store, log.Logger.Logger), nil
}

// ProvideCoordinator provides the batch coordinator backed by the progress store.
func ProvideCoordinator(i do.Injector) (*batch.Coordinator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)
	reconciler := do.MustInvoke[*reconcile.Reconciler](i)
	progress := do.MustInvoke[*ProgressHandle](i)

	return batch.NewCoordinator(reconciler, progress.Store, batch.Config{
		ChunkSize: cfg.Sync.ChunkSize,
		TTL:       cfg.Sync.BatchTTL,
	}, log.Logger.Logger), nil
}

// ProvideResolver provides the relationship query resolver.
func ProvideResolver(i do.Injector) (*relation.Resolver, error) {
	log := do.MustInvoke[*LoggerHandle](i)
	repo := do.MustInvoke[*RepositoryHandle](i)
	registry := do.MustInvoke[*syncer.Registry](i)
	bus := do.MustInvoke[*store.Bus](i)

	return relation.NewResolver(registry, repo.Store, bus, log.Logger.Logger), nil
}

// ProvideListings provides the cached relationship listings and subscribes
// them to link changes.
func ProvideListings(i do.Injector) (*relation.Listings, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)
	repo := do.MustInvoke[*RepositoryHandle](i)
	registry := do.MustInvoke[*syncer.Registry](i)
	bus := do.MustInvoke[*store.Bus](i)

	listings := relation.NewListings(registry, repo.Store, relation.CacheConfig{
		Size: cfg.Sync.CacheSize,
		TTL:  cfg.Sync.CacheTTL,
	}, log.Logger.Logger)
	bus.Subscribe(listings)
	return listings, nil
}
