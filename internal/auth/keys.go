// Package auth issues and verifies the role tokens guarding the REST API.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadOrGenerateKey reads the hex-encoded token key at keyPath, creating
// one when the file does not exist. The decoded 32-byte key is returned.
func LoadOrGenerateKey(keyPath string) ([]byte, error) {
	//#nosec G304 -- key path comes from validated configuration
	if raw, err := os.ReadFile(keyPath); err == nil {
		return decodeKey(strings.TrimSpace(string(raw)))
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read auth key: %w", err)
	}

	key := make([]byte, keyBytesSize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate auth key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("failed to save auth key: %w", err)
	}
	return key, nil
}

// LoadKey reads an existing key without creating one.
func LoadKey(keyPath string) ([]byte, error) {
	//#nosec G304 -- key path comes from the operator
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read auth key: %w", err)
	}
	return decodeKey(strings.TrimSpace(string(raw)))
}

func decodeKey(keyHex string) ([]byte, error) {
	if len(keyHex) != keyHexSize {
		return nil, fmt.Errorf("invalid auth key length: expected %d hex chars, got %d", keyHexSize, len(keyHex))
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid auth key format: not valid hex: %w", err)
	}
	return key, nil
}
