// Package config loads runtime configuration from the environment,
// optionally seeded from a .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/sentry-msgr/e2ee/internal/vault"
)

// Config is the full set of runtime settings the CLI needs to open a
// device, talk to a transport, and wrap/unwrap the master key.
type Config struct {
	DataDir    string
	AblyAPIKey string
	DeviceID   string
	Argon2     vault.Params
}

// Load reads environment variables, first loading envFile if it exists
// (a missing file is not an error; an env var always wins over the
// file). Unset numeric fields fall back to vault.DefaultParams.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
			}
		}
	}

	cfg := Config{
		DataDir:    envOr("SENTRY_DATA_DIR", defaultDataDir()),
		AblyAPIKey: os.Getenv("SENTRY_ABLY_API_KEY"),
		DeviceID:   os.Getenv("SENTRY_DEVICE_ID"),
		Argon2:     vault.DefaultParams,
	}

	if v := os.Getenv("SENTRY_ARGON2_ITERATIONS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("config: SENTRY_ARGON2_ITERATIONS: %w", err)
		}
		cfg.Argon2.Iterations = uint32(n)
	}
	if v := os.Getenv("SENTRY_ARGON2_MEMORY_MIB"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("config: SENTRY_ARGON2_MEMORY_MIB: %w", err)
		}
		cfg.Argon2.MemoryMiB = uint32(n)
	}

	if cfg.DeviceID == "" {
		return Config{}, fmt.Errorf("config: SENTRY_DEVICE_ID is required")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sentry-e2ee"
	}
	return home + "/.sentry-e2ee"
}
