package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the gateway
type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Admin
	AdminSecret string

	// Ollama backend
	OllamaBaseURL string
	OllamaTimeout int // seconds
	DefaultModel  string

	// Key defaults
	APIKeyPrefix         string
	DefaultRateLimit     int
	DefaultMonthlyTokens int64

	// Rate limiter
	MaxRateLimitPerMin int // per-key window capacity ceiling
	SweepIntervalMin   int

	// Caching
	CacheEnabled    bool
	CacheTTLSeconds int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		Env:                  getEnv("ENV", "development"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379"),
		AdminSecret:          getEnv("ADMIN_SECRET", ""),
		OllamaBaseURL:        getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaTimeout:        getEnvInt("OLLAMA_TIMEOUT_SECONDS", 120),
		DefaultModel:         getEnv("OLLAMA_DEFAULT_MODEL", "qwen2.5:7b"),
		APIKeyPrefix:         getEnv("API_KEY_PREFIX", "llm"),
		DefaultRateLimit:     getEnvInt("DEFAULT_RATE_LIMIT_PER_MIN", 20),
		DefaultMonthlyTokens: getEnvInt64("DEFAULT_MONTHLY_TOKEN_LIMIT", 1_000_000),
		MaxRateLimitPerMin:   getEnvInt("MAX_RATE_LIMIT_PER_MIN", 10_000),
		SweepIntervalMin:     getEnvInt("SWEEP_INTERVAL_MINUTES", 5),
		CacheEnabled:         getEnvBool("CACHE_ENABLED", true),
		CacheTTLSeconds:      getEnvInt("CACHE_TTL_SECONDS", 3600),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AdminSecret == "" {
		return nil, fmt.Errorf("ADMIN_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
