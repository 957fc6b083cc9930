package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/JhonesBR/go-ome/internal/engine"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	HTTPAddr    string
	Store       string
	DatabaseURL string
	Migrate     bool
	LogLevel    string
	Retry       engine.RetryPolicy
	// KafkaBrokers is empty when fill publication is off.
	KafkaBrokers []string
	KafkaTopic   string
	SeedDemo     bool
}

func Default() Config {
	return Config{
		HTTPAddr:   ":8000",
		Store:      StoreMemory,
		LogLevel:   "info",
		Retry:      engine.DefaultRetryPolicy(),
		KafkaTopic: "fills",
		SeedDemo:   true,
	}
}

// Load starts from Default, then applies envPath (or ./.env when empty) and
// finally the process environment. Only a missing default ./.env is ignored.
func Load(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			return Config{}, fmt.Errorf("loading %s: %w", envPath, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("STORE"); v != "" {
		cfg.Store = strings.ToLower(v)
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.KafkaTopic = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	var err error
	if cfg.Migrate, err = boolEnv("DB_MIGRATE", cfg.Migrate); err != nil {
		return Config{}, err
	}
	if cfg.SeedDemo, err = boolEnv("SEED_DEMO", cfg.SeedDemo); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("MATCH_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("MATCH_MAX_ATTEMPTS: %q must be a positive integer", v)
		}
		cfg.Retry.MaxAttempts = n
	}
	if v := os.Getenv("MATCH_BACKOFF_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			return Config{}, fmt.Errorf("MATCH_BACKOFF_MS: %q must be a non-negative integer", v)
		}
		cfg.Retry.Backoff = time.Duration(ms) * time.Millisecond
	}

	switch cfg.Store {
	case StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required when STORE=%s", StorePostgres)
		}
	default:
		return Config{}, fmt.Errorf("STORE: unknown store %q", cfg.Store)
	}
	return cfg, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %q is not a boolean", key, v)
	}
	return b, nil
}
