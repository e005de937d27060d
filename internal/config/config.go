package config

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"
)

// Config holds all agent configuration
type Config struct {
	ServerAddress string     `json:"serverAddress"`
	DatabasePath  string     `json:"databasePath"`
	APIBaseURL    string     `json:"apiBaseUrl"`
	Security      Security   `json:"security"`
	Sync          SyncConfig `json:"sync"`
}

// Security configuration for the agent's local control API
type Security struct {
	APIKey       string `json:"apiKey"`
	APIKeyHeader string `json:"apiKeyHeader"`
}

// SyncConfig tunes the sync engine and the agent's scheduling policy
type SyncConfig struct {
	BatchSize           int    `json:"batchSize"`
	RetentionDays       int    `json:"retentionDays"`
	CleanupLimit        int    `json:"cleanupLimit"`
	IntervalSeconds     int    `json:"intervalSeconds"`
	PhotoPlaceholderURL string `json:"photoPlaceholderUrl"`
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		ServerAddress: ":5080",
		DatabasePath:  "attendance.db",
		Security: Security{
			APIKeyHeader: "X-API-Key",
		},
		Sync: SyncConfig{
			BatchSize:       10,
			RetentionDays:   7,
			CleanupLimit:    100,
			IntervalSeconds: 0,
		},
	}
}

// Load loads configuration from file or environment
func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// Override from environment variables
	if addr := os.Getenv("SERVER_ADDRESS"); addr != "" {
		cfg.ServerAddress = addr
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if base := os.Getenv("API_BASE_URL"); base != "" {
		cfg.APIBaseURL = base
	}
	if key := os.Getenv("AGENT_API_KEY"); key != "" {
		cfg.Security.APIKey = key
	}
	if v := os.Getenv("SYNC_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Sync.BatchSize = n
		}
	}
	if v := os.Getenv("RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Sync.RetentionDays = n
		}
	}
	if v := os.Getenv("SYNC_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Sync.IntervalSeconds = n
		}
	}
	if url := os.Getenv("PHOTO_PLACEHOLDER_URL"); url != "" {
		cfg.Sync.PhotoPlaceholderURL = url
	}

	return cfg, nil
}

// Validate checks the startup-fatal settings. The remote API base has no
// usable default; without it the sync engine cannot be constructed.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("API_BASE_URL is not set")
	}
	return nil
}
