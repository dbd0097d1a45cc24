// Package main provides the entry point for the pairsync server.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/pairsync/pairsync-server/internal/di"
	"github.com/pairsync/pairsync-server/internal/di/providers"
)

func main() {
	// Create DI container
	injector := di.NewContainer()

	// Bootstrap all services
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap server: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*providers.LoggerHandle](injector)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server gracefully...")

	// The container shuts services down in reverse dependency order:
	// HTTP server first, then the stores, then the logger.
	if report := injector.Shutdown(); report != nil && !report.Succeed {
		fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", report)
		os.Exit(1)
	}
}
