// Package main prints the link health of every configured pair and the
// batches still held in the progress store. It never modifies data.
// Badger locks the progress directory, so stop the server first.
//
// Usage:
//
//	go run ./cmd/dbinspect --pairs genre:genre_tax
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"

	"github.com/pairsync/pairsync-server/internal/config"
	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/reconcile"
	"github.com/pairsync/pairsync-server/internal/store"
	"github.com/pairsync/pairsync-server/internal/store/sqlite"
	"github.com/pairsync/pairsync-server/internal/syncer"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	db, err := sqlite.Open(cfg.Metadata.DatabasePath(), quiet)
	if err != nil {
		log.Fatalf("Failed to open repository: %v", err)
	}
	defer db.Close()

	pairs := make([]domain.Pair, len(cfg.Sync.Pairs))
	for i, p := range cfg.Sync.Pairs {
		pairs[i] = domain.Pair{Type: p.Type, Taxonomy: p.Taxonomy, Redirect: p.Redirect}
	}
	// No hooks are installed, so nothing here triggers a sync.
	registry := syncer.NewRegistry(pairs, db, store.NewBus(), quiet)
	reconciler := reconcile.New(registry, db, quiet)

	fmt.Println("=== Pair Inspection ===")
	fmt.Println()

	for _, p := range pairs {
		report, err := reconciler.Verify(ctx, p, false)
		if err != nil {
			log.Fatalf("Failed to verify %s: %v", p.Key(), err)
		}

		status := "healthy"
		if !report.Healthy() {
			status = "needs attention"
		}
		fmt.Printf("Pair %s (%s)\n", p.Key(), status)
		fmt.Printf("  Primaries: %d  Categories: %d  Linked: %d\n", report.Primaries, report.Categories, report.Linked)
		fmt.Printf("  Unlinked primaries: %d  Unlinked categories: %d  Broken: %d\n",
			report.UnlinkedPrimaries, report.UnlinkedCategories, report.Broken)
		for i, issue := range report.Issues {
			if i == 10 {
				fmt.Printf("  ... and %d more\n", len(report.Issues)-10)
				break
			}
			fmt.Printf("  - %s %s: %s\n", issue.Kind, issue.ID, issue.Reason)
		}
		fmt.Println()
	}

	progress, err := store.New(cfg.Metadata.ProgressPath(), quiet)
	if err != nil {
		log.Fatalf("Failed to open progress store: %v", err)
	}
	defer progress.Close()

	batches, err := progress.ListProgress(ctx)
	if err != nil {
		log.Fatalf("Failed to list batches: %v", err)
	}

	fmt.Printf("=== Batches (%d) ===\n", len(batches))
	for _, b := range batches {
		fmt.Printf("%s %s %s: %d/%d processed, %d synced, %d errors, started %s\n",
			b.BatchID, b.Pair().Key(), b.Operation, b.Processed, b.Total, b.Synced, b.Errors,
			b.StartedAt.Format("2006-01-02 15:04:05"))
	}
}
