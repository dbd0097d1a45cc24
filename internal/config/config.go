// Package config loads server configuration from command-line flags,
// environment variables, a .env file, and an optional YAML pairs file.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Metadata MetadataConfig
	Server   ServerConfig
	Auth     AuthConfig
	Sync     SyncConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
// File is optional; when set, logs are also written there with size-based rotation.
type LoggerConfig struct {
	Level      string
	AddSource  bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// MetadataConfig holds the data directory. The sqlite database, the badger
// progress store, and the token key all live under BasePath.
type MetadataConfig struct {
	BasePath string
}

// DatabasePath is the sqlite repository file.
func (m MetadataConfig) DatabasePath() string {
	return filepath.Join(m.BasePath, "sync.db")
}

// ProgressPath is the badger directory for batch progress records.
func (m MetadataConfig) ProgressPath() string {
	return filepath.Join(m.BasePath, "progress")
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// PublicURL prefixes permalinks in category redirects (default: "").
	PublicURL string
	// CORSOrigins lists allowed browser origins for the admin UI.
	CORSOrigins []string
	// BulkRatePerMinute and BulkBurst limit admin sync endpoints per client IP.
	BulkRatePerMinute int
	BulkBurst         int
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// PASETO v4 symmetric key (32 bytes), set by auth.LoadOrGenerateKey.
	AccessTokenKey      []byte
	AccessTokenDuration time.Duration
}

// KeyPath is where the token key is persisted.
func (c *Config) KeyPath() string {
	return filepath.Join(c.Metadata.BasePath, "auth.key")
}

// SyncConfig holds the sync core settings.
type SyncConfig struct {
	// ChunkSize is the number of items a batch process call examines (default: 100).
	ChunkSize int
	// BatchTTL is how long an idle progress record survives (default: 1h).
	BatchTTL time.Duration
	// CacheTTL and CacheSize bound the relationship listing cache.
	CacheTTL  time.Duration
	CacheSize int
	// PairsFile is an optional YAML file listing pairs.
	PairsFile string
	Pairs     []PairConfig
}

// PairConfig is one configured (type, taxonomy, redirect) triple.
type PairConfig struct {
	Type     string `yaml:"type"`
	Taxonomy string `yaml:"taxonomy"`
	Redirect bool   `yaml:"redirect"`
}

// Key identifies a pair as "type_taxonomy".
func (p PairConfig) Key() string {
	return p.Type + "_" + p.Taxonomy
}

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
//
// Pairs from PAIRS_FILE are read first; SYNC_PAIRS entries are appended.
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFile := flag.String("log-file", "", "Optional log file with rotation")
	metadataPath := flag.String("metadata-path", "", "Base path for the data directory")

	serverPort := flag.String("port", "", "Server port (default: 8080)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 60s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	publicURL := flag.String("public-url", "", "Prefix for redirect permalinks")

	accessTokenDuration := flag.String("access-token-duration", "", "Issued token lifetime (default: 720h)")

	chunkSize := flag.String("chunk-size", "", "Items per batch process call (default: 100)")
	batchTTL := flag.String("batch-ttl", "", "Progress record expiry (default: 1h)")
	pairsFile := flag.String("pairs-file", "", "YAML file listing type/taxonomy pairs")
	pairs := flag.String("pairs", "", "Pairs as type:taxonomy[:redirect], comma separated")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level:      getConfigValue(*logLevel, "LOG_LEVEL", "info"),
			AddSource:  getBoolConfigValue("", "LOG_ADD_SOURCE", false),
			File:       getConfigValue(*logFile, "LOG_FILE", ""),
			MaxSizeMB:  getIntConfigValue("", "LOG_MAX_SIZE_MB", 50),
			MaxBackups: getIntConfigValue("", "LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getIntConfigValue("", "LOG_MAX_AGE_DAYS", 28),
		},
		Metadata: MetadataConfig{
			BasePath: getConfigValue(*metadataPath, "METADATA_PATH", ""),
		},
		Server: ServerConfig{
			Port:              getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			PublicURL:         strings.TrimRight(getConfigValue(*publicURL, "PUBLIC_URL", ""), "/"),
			CORSOrigins:       splitList(getConfigValue("", "CORS_ORIGINS", "")),
			BulkRatePerMinute: getIntConfigValue("", "BULK_RATE_PER_MINUTE", 120),
			BulkBurst:         getIntConfigValue("", "BULK_BURST", 20),
		},
		Sync: SyncConfig{
			ChunkSize: getIntConfigValue(*chunkSize, "SYNC_CHUNK_SIZE", 100),
			CacheSize: getIntConfigValue("", "SYNC_CACHE_SIZE", 256),
			PairsFile: getConfigValue(*pairsFile, "PAIRS_FILE", ""),
		},
	}

	durations := []struct {
		flagValue, envKey, def string
		dst                    *time.Duration
	}{
		{*readTimeout, "SERVER_READ_TIMEOUT", "15s", &cfg.Server.ReadTimeout},
		{*writeTimeout, "SERVER_WRITE_TIMEOUT", "60s", &cfg.Server.WriteTimeout},
		{*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", &cfg.Server.IdleTimeout},
		{*accessTokenDuration, "ACCESS_TOKEN_DURATION", "720h", &cfg.Auth.AccessTokenDuration},
		{*batchTTL, "SYNC_BATCH_TTL", "1h", &cfg.Sync.BatchTTL},
		{"", "SYNC_CACHE_TTL", "15m", &cfg.Sync.CacheTTL},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.def)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.envKey, raw, err)
		}
		*d.dst = parsed
	}

	if err := cfg.expandMetadataPath(); err != nil {
		return nil, fmt.Errorf("invalid metadata path: %w", err)
	}
	if err := cfg.expandLogFile(); err != nil {
		return nil, fmt.Errorf("invalid log file: %w", err)
	}

	if cfg.Sync.PairsFile != "" {
		path, err := expandPath(cfg.Sync.PairsFile, "")
		if err != nil {
			return nil, fmt.Errorf("invalid pairs file: %w", err)
		}
		filePairs, err := LoadPairsFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Sync.PairsFile = path
		cfg.Sync.Pairs = append(cfg.Sync.Pairs, filePairs...)
	}

	inline, err := ParsePairs(getConfigValue(*pairs, "SYNC_PAIRS", ""))
	if err != nil {
		return nil, err
	}
	cfg.Sync.Pairs = append(cfg.Sync.Pairs, inline...)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Metadata.BasePath == "" {
		return errors.New("metadata base path cannot be empty after expansion")
	}

	if c.Sync.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be at least 1, got %d", c.Sync.ChunkSize)
	}
	if c.Sync.BatchTTL <= 0 {
		return errors.New("batch ttl must be positive")
	}

	return ValidatePairs(c.Sync.Pairs)
}

// ValidatePairs rejects malformed names and duplicate pairs. A type may be
// paired with several taxonomies and the other way round: link pointers
// are keyed by the other side's name.
// An empty list is valid: the server runs with no engines registered.
func ValidatePairs(pairs []PairConfig) error {
	seen := make(map[string]bool, len(pairs))
	for i, p := range pairs {
		if !slugPattern.MatchString(p.Type) {
			return fmt.Errorf("pair %d: invalid type name %q", i, p.Type)
		}
		if !slugPattern.MatchString(p.Taxonomy) {
			return fmt.Errorf("pair %d: invalid taxonomy name %q", i, p.Taxonomy)
		}
		if seen[p.Key()] {
			return fmt.Errorf("pair %d: duplicate pair %s", i, p.Key())
		}
		seen[p.Key()] = true
	}
	return nil
}

// ParsePairs parses "type:taxonomy[:redirect]" entries separated by commas.
func ParsePairs(raw string) ([]PairConfig, error) {
	var pairs []PairConfig
	for _, entry := range splitList(raw) {
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid pair %q (want type:taxonomy[:redirect])", entry)
		}
		p := PairConfig{
			Type:     strings.TrimSpace(parts[0]),
			Taxonomy: strings.TrimSpace(parts[1]),
		}
		if len(parts) == 3 {
			p.Redirect = parseBool(parts[2])
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned unchanged.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

func (c *Config) expandMetadataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	expanded, err := expandPath(c.Metadata.BasePath, filepath.Join(homeDir, ".pairsync"))
	if err != nil {
		return err
	}
	c.Metadata.BasePath = expanded
	return nil
}

func (c *Config) expandLogFile() error {
	expanded, err := expandPath(c.Logger.File, "")
	if err != nil {
		return err
	}
	c.Logger.File = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	return parseBool(strValue)
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// parseBool accepts "true", "1", "yes" (case-insensitive) as true.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Real environment variables take precedence over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
