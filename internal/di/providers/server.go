package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/pairsync/pairsync-server/internal/api"
	"github.com/pairsync/pairsync-server/internal/auth"
	"github.com/pairsync/pairsync-server/internal/config"
	"github.com/pairsync/pairsync-server/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	handler *api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	defer h.handler.Close()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)
	repo := do.MustInvoke[*RepositoryHandle](i)
	progress := do.MustInvoke[*ProgressHandle](i)
	tokens := do.MustInvoke[*auth.TokenService](i)

	services := &api.Services{
		Sync:         do.MustInvoke[*service.SyncService](i),
		Relationship: do.MustInvoke[*service.RelationshipService](i),
	}

	handler := api.NewServer(services, tokens, api.Options{
		CORSOrigins:       cfg.Server.CORSOrigins,
		BulkRatePerMinute: cfg.Server.BulkRatePerMinute,
		BulkBurst:         cfg.Server.BulkBurst,
		HealthChecks: []api.HealthCheck{
			{Name: "repository", Check: repo.Ping},
			{Name: "progress", Check: progress.Ping},
		},
	}, log.Logger.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv, handler: handler}, nil
}
