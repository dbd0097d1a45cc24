// Package main mints a role token for the admin API.
//
// Usage:
//
//	go run ./cmd/token --role admin --subject ops
//	METADATA_PATH=/srv/pairsync go run ./cmd/token --role edit
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/pairsync/pairsync-server/internal/auth"
)

func main() {
	role := flag.String("role", "edit", "Token role (edit or admin)")
	subject := flag.String("subject", "cli", "Token subject")
	ttl := flag.Duration("ttl", 30*24*time.Hour, "Token lifetime")
	keyPath := flag.String("key", "", "Path to the auth key (default: $METADATA_PATH/auth.key)")
	flag.Parse()

	r, ok := auth.ParseRole(*role)
	if !ok {
		log.Fatalf("Unknown role %q: expected edit or admin", *role)
	}

	path := *keyPath
	if path == "" {
		base := os.Getenv("METADATA_PATH")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				log.Fatalf("Failed to get home directory: %v", err)
			}
			base = filepath.Join(home, ".pairsync")
		}
		path = filepath.Join(base, "auth.key")
	}

	key, err := auth.LoadKey(path)
	if err != nil {
		log.Fatalf("Failed to load key (start the server once to create it): %v", err)
	}

	tokens, err := auth.NewTokenService(key, *ttl)
	if err != nil {
		log.Fatalf("Failed to create token service: %v", err)
	}

	token, err := tokens.GenerateAccessToken(*subject, r)
	if err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}

	fmt.Fprintf(os.Stderr, "role=%s subject=%s expires=%s\n", r, *subject, time.Now().Add(*ttl).Format(time.RFC3339))
	fmt.Println(token)
}
