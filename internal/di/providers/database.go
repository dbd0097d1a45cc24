package providers

import (
	"fmt"
	"os"

	"github.com/samber/do/v2"

	"github.com/pairsync/pairsync-server/internal/config"
	"github.com/pairsync/pairsync-server/internal/store"
	"github.com/pairsync/pairsync-server/internal/store/sqlite"
)

// RepositoryHandle wraps the sqlite repository with shutdown capability.
type RepositoryHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *RepositoryHandle) Shutdown() error {
	return h.Close()
}

// ProvideRepository provides the sqlite record repository.
func ProvideRepository(i do.Injector) (*RepositoryHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)

	if err := os.MkdirAll(cfg.Metadata.BasePath, 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sqlite.Open(cfg.Metadata.DatabasePath(), log.Logger.Logger)
	if err != nil {
		return nil, err
	}
	return &RepositoryHandle{Store: db}, nil
}

// ProgressHandle wraps the badger progress store with shutdown capability.
type ProgressHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *ProgressHandle) Shutdown() error {
	return h.Close()
}

// ProvideProgressStore provides the badger store holding batch progress records.
func ProvideProgressStore(i do.Injector) (*ProgressHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)

	path := cfg.Metadata.ProgressPath()
	st, err := store.New(path, log.Logger.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Progress store opened", "path", path)
	return &ProgressHandle{Store: st}, nil
}

// ProvideBus provides the in-process event bus.
func ProvideBus(i do.Injector) (*store.Bus, error) {
	return store.NewBus(), nil
}
