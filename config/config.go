package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration. Every field has a working
// default so the tool runs with no environment at all; a .env file or
// FLACSWEEP_* variables override individual values, and CLI flags override
// both.
type Config struct {
	LibraryPath string // default scan root when no argument is given
	CacheDir    string // overrides the per-user cache directory when set
	LogLevel    string
	LogFile     string

	WorkerCount         int // duplicate scan metadata readers
	DurationToleranceMs int
	ScanBatchSize       int

	SearchLimit            int // catalog results fetched per query
	SearchDelayMs          int // minimum gap between catalog search calls
	SearchTimeoutSec       int
	AvailabilityTimeoutSec int
	UpgradeConcurrency     int
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or
// defaults. godotenv.Load never overrides variables already set in the
// environment, so exported values win over the file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		LibraryPath: getEnv("FLACSWEEP_LIBRARY", ""),
		CacheDir:    getEnv("FLACSWEEP_CACHE_DIR", ""),
		LogLevel:    getEnv("FLACSWEEP_LOG_LEVEL", "info"),
		LogFile:     getEnv("FLACSWEEP_LOG_FILE", ""),

		WorkerCount:         getEnvInt("FLACSWEEP_WORKERS", 4),
		DurationToleranceMs: getEnvInt("FLACSWEEP_DURATION_TOLERANCE_MS", 3000),
		ScanBatchSize:       getEnvInt("FLACSWEEP_SCAN_BATCH_SIZE", 50),

		SearchLimit:            getEnvInt("FLACSWEEP_SEARCH_LIMIT", 5),
		SearchDelayMs:          getEnvInt("FLACSWEEP_SEARCH_DELAY_MS", 250),
		SearchTimeoutSec:       getEnvInt("FLACSWEEP_SEARCH_TIMEOUT_S", 15),
		AvailabilityTimeoutSec: getEnvInt("FLACSWEEP_AVAILABILITY_TIMEOUT_S", 20),
		UpgradeConcurrency:     getEnvInt("FLACSWEEP_UPGRADE_CONCURRENCY", 4),
	}
}
