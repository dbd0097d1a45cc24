package api

import (
	"context"

	"github.com/pairsync/pairsync-server/internal/service"
)

// Services groups the business logic used by the API server.
type Services struct {
	Sync         *service.SyncService
	Relationship *service.RelationshipService
}

// HealthCheck probes one dependency for the health endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}
