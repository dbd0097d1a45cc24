// Package di provides dependency injection configuration for the pairsync server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/pairsync/pairsync-server/internal/auth"
	"github.com/pairsync/pairsync-server/internal/batch"
	"github.com/pairsync/pairsync-server/internal/config"
	"github.com/pairsync/pairsync-server/internal/di/providers"
	"github.com/pairsync/pairsync-server/internal/reconcile"
	"github.com/pairsync/pairsync-server/internal/relation"
	"github.com/pairsync/pairsync-server/internal/service"
	"github.com/pairsync/pairsync-server/internal/store"
	"github.com/pairsync/pairsync-server/internal/syncer"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Storage layer
	do.Provide(injector, providers.ProvideRepository)
	do.Provide(injector, providers.ProvideProgressStore)
	do.Provide(injector, providers.ProvideBus)

	// Sync core
	do.Provide(injector, providers.ProvideRegistry)
	do.Provide(injector, providers.ProvideReconciler)
	do.Provide(injector, providers.ProvideCoordinator)
	do.Provide(injector, providers.ProvideResolver)
	do.Provide(injector, providers.ProvideListings)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)

	// Business services
	do.Provide(injector, providers.ProvideSyncService)
	do.Provide(injector, providers.ProvideRelationshipService)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services in dependency order.
// The registry must exist before the server accepts writes, since it
// installs the lifecycle hooks on the repository.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*providers.LoggerHandle](injector)
	_ = do.MustInvoke[*providers.RepositoryHandle](injector)
	_ = do.MustInvoke[*providers.ProgressHandle](injector)
	_ = do.MustInvoke[*store.Bus](injector)
	_ = do.MustInvoke[*syncer.Registry](injector)
	_ = do.MustInvoke[*reconcile.Reconciler](injector)
	_ = do.MustInvoke[*batch.Coordinator](injector)
	_ = do.MustInvoke[*relation.Resolver](injector)
	_ = do.MustInvoke[*relation.Listings](injector)
	_ = do.MustInvoke[*auth.TokenService](injector)

	// Business services
	_ = do.MustInvoke[*service.SyncService](injector)
	_ = do.MustInvoke[*service.RelationshipService](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
