// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Storage backend selectors.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageS3     = "s3"
)

// Config holds application configuration
type Config struct {
	DataDir       string // Base directory for local storage (sqlite database, CSV exports)
	Port          int
	DevMode       bool
	LogLevel      string
	Storage       string // memory | sqlite | s3
	CheckInterval int    // Scheduler poll interval, in seconds

	// S3-compatible object storage (only used when Storage == "s3")
	S3 *S3Config

	// Default target for the HTTP data sender (optional, can be overridden per request)
	ExportTargetURL string
}

// S3Config holds settings for the S3-compatible storage adapter.
// Endpoint is optional; when set it points at a MinIO/R2-style deployment.
type S3Config struct {
	Bucket         string
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("STOCKROOM_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		Port:            getEnvAsInt("STOCKROOM_PORT", 8000),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Storage:         getEnv("STOCKROOM_STORAGE", StorageSQLite),
		CheckInterval:   getEnvAsInt("SCHEDULER_CHECK_INTERVAL", 60),
		ExportTargetURL: getEnv("EXPORT_TARGET_URL", ""),
	}

	if cfg.Storage == StorageS3 {
		cfg.S3 = &S3Config{
			Bucket:         getEnv("S3_BUCKET", ""),
			Region:         getEnv("S3_REGION", "us-east-1"),
			Endpoint:       getEnv("S3_ENDPOINT", ""),
			AccessKey:      getEnv("S3_ACCESS_KEY", ""),
			SecretKey:      getEnv("S3_SECRET_KEY", ""),
			ForcePathStyle: getEnvAsBool("S3_FORCE_PATH_STYLE", true),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory, StorageSQLite, StorageS3:
	default:
		return fmt.Errorf("unknown storage backend %q (expected memory, sqlite or s3)", c.Storage)
	}

	if c.CheckInterval <= 0 {
		return fmt.Errorf("scheduler check interval must be positive, got %d", c.CheckInterval)
	}

	if c.Storage == StorageS3 && (c.S3 == nil || c.S3.Bucket == "") {
		return fmt.Errorf("S3_BUCKET is required when STOCKROOM_STORAGE=s3")
	}

	return nil
}

// SQLitePath returns the path of the key-value database file.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "stockroom.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
