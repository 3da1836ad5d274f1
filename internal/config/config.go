package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"taskpilot/internal/agent"
)

// Config models taskpilot.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		TokenTTLHours int `yaml:"token_ttl_hours"`
	} `yaml:"auth"`
	Analyst agent.Thresholds `yaml:"analyst"`
}

// Load reads and validates config from the workspace, falling back to
// defaults when taskpilot.yml does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath == "" || c.Server.BasePath[0] != '/' {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Auth.TokenTTLHours <= 0 {
		return fmt.Errorf("config.auth.token_ttl_hours must be positive")
	}
	a := c.Analyst
	if a.RecentWindowDays <= 0 || a.RecentActivityMin <= 0 {
		return fmt.Errorf("config.analyst recent activity settings must be positive")
	}
	if a.MaxRecommendations <= 0 {
		return fmt.Errorf("config.analyst.max_recommendations must be positive")
	}
	if a.TopThemes <= 0 || a.MinThemeCount < 2 {
		return fmt.Errorf("config.analyst theme settings invalid: top_themes must be positive and min_theme_count at least 2")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskpilot.yml")
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = "127.0.0.1:8080"
	cfg.Server.BasePath = "/v1"
	cfg.Auth.TokenTTLHours = 168
	cfg.Analyst = agent.DefaultThresholds()
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Omitted
// sections keep their defaults.
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

// GenerateDefault returns the default config as YAML, for `tp config init`.
func GenerateDefault() string {
	b, _ := yaml.Marshal(Default())
	return string(b)
}
