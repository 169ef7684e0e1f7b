package app

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerURL     string `yaml:"server_url"`
	Token         string `yaml:"token"`
	UserID        string `yaml:"user_id"`
	DefaultModel  string `yaml:"default_model"`
	DefaultBudget string `yaml:"default_budget"`
	// ModelBaseURL and ModelAPIKey configure a custom provider for
	// DefaultModel; both empty means a platform-hosted model.
	ModelBaseURL string `yaml:"model_base_url"`
	ModelAPIKey  string `yaml:"model_api_key"`
	// PollIntervalMs drives Arena progress polling.
	PollIntervalMs int    `yaml:"poll_interval_ms"`
	ArchivePath    string `yaml:"archive_path"`
	LogPath        string `yaml:"log_path"`
}

func DefaultConfig() Config {
	return Config{
		ServerURL:      "http://localhost:8080",
		UserID:         "1",
		DefaultBudget:  "HIGH",
		PollIntervalMs: 2500,
	}
}

func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultConfigPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return cfg, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	// Environment overrides win over the file.
	if v := os.Getenv("DEEP_RESEARCH_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("DEEP_RESEARCH_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("DEEP_RESEARCH_USER_ID"); v != "" {
		cfg.UserID = v
	}

	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://localhost:8080"
	}
	if cfg.UserID == "" {
		cfg.UserID = "1"
	}
	if cfg.DefaultBudget == "" {
		cfg.DefaultBudget = "HIGH"
	}
	if cfg.PollIntervalMs <= 0 {
		cfg.PollIntervalMs = 2500
	}
	if cfg.ArchivePath == "" {
		cfg.ArchivePath = defaultArchivePath()
	}
	return cfg, nil
}

func SaveConfig(cfg Config, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if path == "" {
		return errors.New("no path provided for config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "deep-research", "config.yml")
}

func defaultArchivePath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "deep-research", "reports.db")
}
