// Package id mints identifiers for primaries, categories, and batches.
package id

import (
	"fmt"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Record prefixes.
const (
	PrefixPrimary  = "pri"
	PrefixCategory = "cat"
	prefixBatch    = "batch"
)

// Generate creates a prefixed unique ID using NanoID.
// Format: prefix-nanoid (e.g., "pri-V1StGXR8_Z5jdHi6B-myT").
//
// Returns an error if the system has insufficient entropy for secure random generation.
func Generate(prefix string) (string, error) {
	n, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + n, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	v, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return v
}

// Batch mints a batch identifier: "batch-" followed by a random UUID.
func Batch() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate batch id: %w", err)
	}
	return prefixBatch + "-" + u.String(), nil
}
