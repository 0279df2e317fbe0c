package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models devquest.yml.
type Config struct {
	Projects struct {
		InitialStatus string `yaml:"initial_status"`
	} `yaml:"projects"`
	Rewards struct {
		DefaultTaskXP     int `yaml:"default_task_xp"`
		ContributorSeedXP int `yaml:"contributor_seed_xp"`
	} `yaml:"rewards"`
	Leaderboard struct {
		DefaultLimit int `yaml:"default_limit"`
	} `yaml:"leaderboard"`
	Storage struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"storage"`
	Webhooks []Webhook `yaml:"webhooks"`
}

// Webhook is an outbound event subscription.
type Webhook struct {
	URL     string        `yaml:"url"`
	Secret  string        `yaml:"secret"`
	Events  []string      `yaml:"events"`
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with devquest init: %w", path, err)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Projects.InitialStatus {
	case "proposed", "active":
	default:
		return fmt.Errorf("config.projects.initial_status must be 'proposed' or 'active', got %q", c.Projects.InitialStatus)
	}
	if c.Rewards.DefaultTaskXP <= 0 {
		return fmt.Errorf("config.rewards.default_task_xp must be positive")
	}
	if c.Rewards.ContributorSeedXP < 0 {
		return fmt.Errorf("config.rewards.contributor_seed_xp must not be negative")
	}
	if c.Leaderboard.DefaultLimit <= 0 {
		return fmt.Errorf("config.leaderboard.default_limit must be positive")
	}
	if c.Storage.Timeout <= 0 {
		return fmt.Errorf("config.storage.timeout must be positive")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("config.webhooks[%d] has empty event type", i)
			}
		}
		if hook.Timeout < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout must not be negative", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "devquest.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns Default() if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys left out
// keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const defaultTemplate = `projects:
  # proposed: clients propose, a manager accepts.
  # active: skip the proposal stage; a manager still accepts to take ownership.
  initial_status: proposed

rewards:
  default_task_xp: 50
  contributor_seed_xp: 150

leaderboard:
  default_limit: 5

storage:
  timeout: 5s

# webhooks:
#   - url: https://example.test/hooks/devquest
#     secret: change-me
#     events: [reward.awarded, task.status.updated]
#     timeout: 5s
`
