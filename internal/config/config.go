package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	ModeCompat = "compat"
	ModeStrict = "strict"
)

type Config struct {
	DatabaseURL   string
	RedisURL      string
	ServerPort    string
	TenantLimit   int64
	AdmissionMode string
	AppendTimeout time.Duration
	LogLevel      string
	LogFormat     string
	SeedFile      string
	SeedOnStart   bool
}

func Load() (*Config, error) {
	// A missing .env file is fine; the process environment still applies.
	_ = godotenv.Load()

	limit, err := strconv.ParseInt(getEnv("TENANT_LIMIT", "5"), 10, 64)
	if err != nil || limit < 0 {
		return nil, fmt.Errorf("invalid TENANT_LIMIT %q", os.Getenv("TENANT_LIMIT"))
	}

	appendTimeout, err := time.ParseDuration(getEnv("APPEND_TIMEOUT", "5s"))
	if err != nil || appendTimeout <= 0 {
		return nil, fmt.Errorf("invalid APPEND_TIMEOUT %q", os.Getenv("APPEND_TIMEOUT"))
	}

	seedOnStart, err := strconv.ParseBool(getEnv("SEED_ON_START", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid SEED_ON_START %q", os.Getenv("SEED_ON_START"))
	}

	mode := getEnv("ADMISSION_MODE", ModeCompat)
	if mode != ModeCompat && mode != ModeStrict {
		return nil, fmt.Errorf("invalid ADMISSION_MODE %q: want %q or %q", mode, ModeCompat, ModeStrict)
	}

	return &Config{
		DatabaseURL:   getEnv("DATABASE_URL", "sqlite://quota-gateway.db"),
		RedisURL:      getEnv("REDIS_URL", ""),
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		TenantLimit:   limit,
		AdmissionMode: mode,
		AppendTimeout: appendTimeout,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		SeedFile:      getEnv("SEED_FILE", ""),
		SeedOnStart:   seedOnStart,
	}, nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}
