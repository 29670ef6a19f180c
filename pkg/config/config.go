// Package config loads the shielded-pool validator's process configuration
// from environment variables, with an optional YAML file overlaying
// defaults before the environment is applied. Grounded on the teacher's
// pkg/config env-var idiom (getEnv/getEnvInt/getEnvBool helpers reading
// os.Getenv with typed defaults), trimmed to this domain's fields.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the shielded-pool validator process.
type Config struct {
	// Node identity and network
	ChainID     string
	ListenAddr  string // ABCI/RPC listen address
	P2PAddr     string
	MetricsAddr string
	HealthAddr  string

	// Storage
	DataDir         string
	SubstoreNames   []string // additional named substores beyond the main store
	EpochDuration   uint64   // heights per epoch
	UnbondingEpochs uint64   // epochs an undelegation is quarantined for

	// FMD
	FMDPrecisionBits uint32

	// Optional Postgres archival sink for pkg/events (empty disables it)
	EventsDatabaseURL string

	LogLevel string
}

// defaultConfig returns the baseline before any YAML file or environment
// variable is applied.
func defaultConfig() *Config {
	return &Config{
		ChainID:          "shieldedpool-devnet",
		ListenAddr:       "0.0.0.0:26658",
		P2PAddr:          "0.0.0.0:26656",
		MetricsAddr:      "0.0.0.0:9090",
		HealthAddr:       "0.0.0.0:8081",
		DataDir:          "./data",
		SubstoreNames:    []string{"ibc", "dex", "misc"},
		EpochDuration:    720,
		UnbondingEpochs:  21,
		FMDPrecisionBits: 0,
		LogLevel:         "info",
	}
}

// Load reads configuration from an optional YAML file at path (if path is
// non-empty and exists) and then overlays environment variables, which
// always take precedence. Call Validate after Load.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := applyYAMLFile(cfg, path); err != nil {
			return nil, err
		}
	}

	cfg.ChainID = getEnv("SHIELDEDPOOL_CHAIN_ID", cfg.ChainID)
	cfg.ListenAddr = getEnv("SHIELDEDPOOL_LISTEN_ADDR", cfg.ListenAddr)
	cfg.P2PAddr = getEnv("SHIELDEDPOOL_P2P_ADDR", cfg.P2PAddr)
	cfg.MetricsAddr = getEnv("SHIELDEDPOOL_METRICS_ADDR", cfg.MetricsAddr)
	cfg.HealthAddr = getEnv("SHIELDEDPOOL_HEALTH_ADDR", cfg.HealthAddr)
	cfg.DataDir = getEnv("SHIELDEDPOOL_DATA_DIR", cfg.DataDir)
	if names := getEnv("SHIELDEDPOOL_SUBSTORES", ""); names != "" {
		cfg.SubstoreNames = splitCSV(names)
	}
	cfg.EpochDuration = getEnvUint64("SHIELDEDPOOL_EPOCH_DURATION", cfg.EpochDuration)
	cfg.UnbondingEpochs = getEnvUint64("SHIELDEDPOOL_UNBONDING_EPOCHS", cfg.UnbondingEpochs)
	cfg.FMDPrecisionBits = uint32(getEnvInt("SHIELDEDPOOL_FMD_PRECISION_BITS", int(cfg.FMDPrecisionBits)))
	cfg.EventsDatabaseURL = getEnv("SHIELDEDPOOL_EVENTS_DATABASE_URL", cfg.EventsDatabaseURL)
	cfg.LogLevel = getEnv("SHIELDEDPOOL_LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

// applyYAMLFile overlays path's contents onto cfg; a missing file is not an
// error (the YAML override is always optional).
func applyYAMLFile(cfg *Config, path string) error {
	body, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(body, cfg); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

// Validate checks that configuration is internally consistent.
func (c *Config) Validate() error {
	var errs []string
	if c.ChainID == "" {
		errs = append(errs, "chain ID must not be empty")
	}
	if c.EpochDuration == 0 {
		errs = append(errs, "epoch duration must be positive")
	}
	if c.UnbondingEpochs == 0 {
		errs = append(errs, "unbonding epochs must be positive")
	}
	if c.DataDir == "" {
		errs = append(errs, "data directory must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
