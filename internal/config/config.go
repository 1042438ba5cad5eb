// Package config loads runtime settings from the environment, with a .env
// file honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Generator GeneratorConfig
	Run       RunConfig
	Store     StoreConfig
	Publish   PublishConfig
}

type GeneratorConfig struct {
	Provider     string // fake, gemini, openai
	Model        string
	OpenAIAPIKey string
	CacheSize    int
}

type RunConfig struct {
	Workers     int
	MaxAttempts int
	BackoffBase time.Duration
	OutDir      string
	WatchAddr   string // empty disables the progress endpoint
}

type StoreConfig struct {
	Driver      string // memory, sqlite, postgres
	DataDir     string
	PostgresDSN string
}

type PublishConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Load reads the environment into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Generator: GeneratorConfig{
			Provider:     strings.ToLower(envOr("DOCWEAVE_GENERATOR", "fake")),
			Model:        os.Getenv("DOCWEAVE_MODEL"),
			OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
			CacheSize:    envInt("DOCWEAVE_CACHE_SIZE", 128),
		},
		Run: RunConfig{
			Workers:     envInt("DOCWEAVE_WORKERS", 4),
			MaxAttempts: envInt("DOCWEAVE_MAX_ATTEMPTS", 3),
			BackoffBase: envDuration("DOCWEAVE_BACKOFF_BASE", 500*time.Millisecond),
			OutDir:      envOr("DOCWEAVE_OUT_DIR", "out"),
			WatchAddr:   os.Getenv("DOCWEAVE_WATCH_ADDR"),
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(envOr("DOCWEAVE_STORE", "sqlite")),
			DataDir:     envOr("DOCWEAVE_DATA_DIR", "data"),
			PostgresDSN: os.Getenv("DOCWEAVE_POSTGRES_DSN"),
		},
		Publish: PublishConfig{
			Enabled:   envBool("DOCWEAVE_PUBLISH", false),
			Endpoint:  os.Getenv("DOCWEAVE_S3_ENDPOINT"),
			Region:    envOr("DOCWEAVE_S3_REGION", "us-east-1"),
			AccessKey: firstNonEmpty(os.Getenv("DOCWEAVE_S3_ACCESS_KEY"), os.Getenv("MINIO_ROOT_USER")),
			SecretKey: firstNonEmpty(os.Getenv("DOCWEAVE_S3_SECRET_KEY"), os.Getenv("MINIO_ROOT_PASSWORD")),
			Bucket:    envOr("DOCWEAVE_S3_BUCKET", "docweave-documents"),
			UseSSL:    envBool("DOCWEAVE_S3_USE_SSL", false),
		},
	}

	switch cfg.Store.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	switch cfg.Generator.Provider {
	case "fake", "gemini", "openai":
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Generator.Provider)
	}
	if cfg.Store.Driver == "postgres" && cfg.Store.PostgresDSN == "" {
		return nil, fmt.Errorf("DOCWEAVE_POSTGRES_DSN is required for the postgres store")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
