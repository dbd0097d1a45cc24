// Package main seeds the repository with demo records for local testing.
//
// Primaries are created through the repository with the sync hooks
// installed, so every primary arrives with its linked category. A few
// extra primaries are then assigned to the first category to give the
// relationship listings something to show.
//
// Usage:
//
//	go run ./cmd/seed --pairs genre:genre_tax
//	go run ./cmd/seed --pairs genre:genre_tax --count 50
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"

	"github.com/pairsync/pairsync-server/internal/config"
	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/store"
	"github.com/pairsync/pairsync-server/internal/store/sqlite"
	"github.com/pairsync/pairsync-server/internal/syncer"
)

var names = []string{
	"Blues", "Jazz", "Soul", "Funk", "Reggae", "Techno", "House", "Ambient",
	"Folk", "Country", "Gospel", "Disco", "Punk", "Metal", "Grunge", "Ska",
}

func main() {
	count := flag.Int("count", 8, "Number of primaries to create per pair")
	members := flag.Int("members", 3, "Primaries assigned to the first category of each pair")
	// LoadConfig calls flag.Parse.
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if len(cfg.Sync.Pairs) == 0 {
		log.Fatal("No pairs configured. Pass --pairs or set SYNC_PAIRS.")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	if err := os.MkdirAll(cfg.Metadata.BasePath, 0o750); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	db, err := sqlite.Open(cfg.Metadata.DatabasePath(), logger)
	if err != nil {
		log.Fatalf("Failed to open repository: %v", err)
	}
	defer db.Close()

	pairs := make([]domain.Pair, len(cfg.Sync.Pairs))
	for i, p := range cfg.Sync.Pairs {
		pairs[i] = domain.Pair{Type: p.Type, Taxonomy: p.Taxonomy, Redirect: p.Redirect}
	}
	registry := syncer.NewRegistry(pairs, db, store.NewBus(), logger)
	db.SetHooks(syncer.NewDispatcher(registry, logger))

	for _, p := range pairs {
		fmt.Printf("Seeding %s...\n", p.Key())

		var created []string
		for i := range *count {
			name := names[i%len(names)]
			if i >= len(names) {
				name = fmt.Sprintf("%s %d", name, i/len(names)+1)
			}
			id, err := db.CreatePrimary(ctx, p.Type, name, "", domain.StatusPublished)
			if err != nil {
				log.Printf("  skip %q: %v", name, err)
				continue
			}
			created = append(created, id)
		}
		if len(created) == 0 {
			continue
		}

		parent, err := db.GetPrimary(ctx, created[0])
		if err != nil {
			log.Fatalf("Failed to load %s: %v", created[0], err)
		}
		categoryID := parent.LinkedCategoryID(p.Taxonomy)
		if categoryID == "" {
			log.Fatalf("Primary %s has no linked category; are the hooks installed?", parent.ID)
		}

		rest := created[1:]
		rand.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
		for _, id := range rest[:min(*members, len(rest))] {
			if err := db.SetPrimaryCategories(ctx, id, p.Taxonomy, []string{categoryID}); err != nil {
				log.Fatalf("Failed to assign %s: %v", id, err)
			}
		}

		fmt.Printf("  %d primaries, %d assigned to %q\n", len(created), min(*members, len(rest)), parent.Name)
	}
}
