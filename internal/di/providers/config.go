// Package providers contains dependency injection providers for the pairsync server.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/pairsync/pairsync-server/internal/config"
	"github.com/pairsync/pairsync-server/internal/logger"
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// LoggerHandle wraps the logger so the rotated log file is closed on shutdown.
type LoggerHandle struct {
	*logger.Logger
}

// Shutdown implements do.Shutdownable.
func (h *LoggerHandle) Shutdown() error {
	return h.Close()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*LoggerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.Logger.AddSource || cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
		File: logger.FileConfig{
			Path:       cfg.Logger.File,
			MaxSizeMB:  cfg.Logger.MaxSizeMB,
			MaxBackups: cfg.Logger.MaxBackups,
			MaxAgeDays: cfg.Logger.MaxAgeDays,
		},
	})

	log.Info("Starting pairsync server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"metadata_path", cfg.Metadata.BasePath,
		"pairs", len(cfg.Sync.Pairs),
	)

	return &LoggerHandle{Logger: log}, nil
}
