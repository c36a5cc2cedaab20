package agent

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Sync    SyncConfig    `toml:"sync"`
	Storage StorageConfig `toml:"storage"`
}

type ServerConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
}

type SyncConfig struct {
	PollIntervalSeconds  int `toml:"poll_interval_seconds"`
	ProbeIntervalSeconds int `toml:"probe_interval_seconds"`
	RetryCap             int `toml:"retry_cap"`
	ExpiryMinutes        int `toml:"expiry_minutes"`
}

type StorageConfig struct {
	QueuePath string `toml:"queue_path"`
}

func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			BaseURL: "http://localhost:8080",
		},
		Sync: SyncConfig{
			PollIntervalSeconds:  10,
			ProbeIntervalSeconds: 30,
			RetryCap:             3,
			ExpiryMinutes:        120,
		},
	}
}

func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".config", "shiftsync"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

func LoadConfig() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return &cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHIFTSYNC_SERVER_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := os.Getenv("SHIFTSYNC_TOKEN"); v != "" {
		cfg.Server.Token = v
	}
	if v := os.Getenv("SHIFTSYNC_QUEUE_PATH"); v != "" {
		cfg.Storage.QueuePath = v
	}
}

// QueuePath resolves the durable queue location, defaulting to the config
// directory when unset.
func (c *Config) QueuePath() (string, error) {
	if c.Storage.QueuePath != "" {
		return c.Storage.QueuePath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.db"), nil
}
