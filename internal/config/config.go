package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the storage core.
type Config struct {
	Environment  string
	DBPath       string
	KVPath       string
	LogMode      string
	SeedTags     bool
	RelatedLimit int
}

// Load reads configuration from environment variables.
// A .env file is loaded first unless running in production.
func Load() (*Config, error) {
	env := os.Getenv("MATLOG_ENV")
	if env == "" {
		env = "development"
	}

	if env != "production" {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: .env file couldn't be loaded: %v", err)
		}
	}

	cfg := &Config{
		Environment:  env,
		DBPath:       envString("MATLOG_DB_PATH", "matlog.db"),
		KVPath:       envString("MATLOG_KV_PATH", "matlog-kv.db"),
		LogMode:      envString("MATLOG_LOG_MODE", env),
		SeedTags:     envBool("MATLOG_SEED_TAGS", true),
		RelatedLimit: envInt("MATLOG_RELATED_LIMIT", 5),
	}
	if cfg.RelatedLimit <= 0 {
		cfg.RelatedLimit = 5
	}

	return cfg, nil
}

// InMemory returns a configuration backed by in-memory databases.
func InMemory() *Config {
	return &Config{
		Environment:  "test",
		DBPath:       ":memory:",
		KVPath:       ":memory:",
		LogMode:      "development",
		SeedTags:     true,
		RelatedLimit: 5,
	}
}

func envString(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

func envInt(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
