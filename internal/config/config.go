// Package config loads the HQ configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/holdinghq/hq/internal/ai"
	"github.com/holdinghq/hq/internal/approval"
	"github.com/holdinghq/hq/internal/gateway"
	"github.com/holdinghq/hq/internal/kpi"
	"github.com/holdinghq/hq/internal/logging"
	"github.com/holdinghq/hq/internal/scheduler"
)

// Config represents the main configuration.
type Config struct {
	Version   string            `yaml:"version"`
	Gateway   *gateway.Config   `yaml:"gateway"`
	Logging   *logging.Config   `yaml:"logging"`
	AI        *ai.Config        `yaml:"ai"`
	GitHub    *GitHubConfig     `yaml:"github"`
	Stripe    *StripeConfig     `yaml:"stripe"`
	Telegram  *TelegramConfig   `yaml:"telegram"`
	Platforms []kpi.Platform    `yaml:"platforms"`
	Autopilot *AutopilotConfig  `yaml:"autopilot"`
	Scheduler *scheduler.Config `yaml:"scheduler"`
	Approvals *approval.Config  `yaml:"approvals"`
	Storage   *StorageConfig    `yaml:"storage"`
}

// GitHubConfig holds GitHub adapter settings.
type GitHubConfig struct {
	Token string `yaml:"token"`
}

// StripeConfig holds Stripe adapter settings.
type StripeConfig struct {
	APIKey string `yaml:"api_key"`
}

// TelegramConfig holds Telegram notification settings.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// AutopilotConfig holds autopilot process settings. The gating policy
// itself (enabled flag, allow-list, quota) lives in the config store
// and is edited from the dashboard, not this file.
type AutopilotConfig struct {
	Timezone string `yaml:"timezone"`
}

// StorageConfig holds local storage paths.
type StorageConfig struct {
	DataPath string `yaml:"data_path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Version: "1.0",
		Gateway: &gateway.Config{
			Host: "127.0.0.1",
			Port: 8090,
		},
		Logging: &logging.Config{
			Level:  "info",
			Format: "text",
		},
		AI: &ai.Config{
			BaseURL: "https://api.openai.com",
			Model:   "gpt-4o",
		},
		GitHub:   &GitHubConfig{},
		Stripe:   &StripeConfig{},
		Telegram: &TelegramConfig{},
		Autopilot: &AutopilotConfig{
			Timezone: "Europe/Paris",
		},
		Scheduler: scheduler.DefaultConfig(),
		Approvals: approval.DefaultConfig(),
		Storage: &StorageConfig{
			DataPath: filepath.Join(homeDir, ".hq", "data"),
		},
	}
}

// Load loads configuration from a file. Environment variables in the
// file are expanded, so secrets can stay out of it.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.Storage != nil {
		config.Storage.DataPath = expandPath(config.Storage.DataPath)
	}
	return config, nil
}

// Save saves configuration to a file.
func Save(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// DefaultConfigPath returns the default configuration path.
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".hq", "config.yaml")
}

// expandPath expands ~ to the home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Gateway == nil {
		return fmt.Errorf("gateway configuration is required")
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}
	if c.Scheduler != nil {
		switch c.Scheduler.Mode {
		case "", scheduler.ModeStatus, scheduler.ModeAIDecide:
		default:
			return fmt.Errorf("invalid scheduler mode: %s", c.Scheduler.Mode)
		}
		if c.Scheduler.Mode == scheduler.ModeAIDecide && (c.AI == nil || c.AI.APIKey == "") {
			return fmt.Errorf("scheduler mode ai_decide requires an AI API key")
		}
	}
	if c.Telegram != nil && c.Telegram.Enabled {
		if c.Telegram.BotToken == "" || c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram requires bot_token and chat_id")
		}
	}
	for _, p := range c.Platforms {
		if p.Key == "" {
			return fmt.Errorf("platform with empty key")
		}
	}
	return nil
}
