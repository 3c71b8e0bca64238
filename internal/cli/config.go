// Package cli holds the gatewayctl configuration file and output formatting.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file.
const (
	EnvBaseURL = "ACTIVITYGATE_BASE_URL"
	EnvAPIKey  = "ACTIVITYGATE_API_KEY"
)

// Config represents the CLI configuration
type Config struct {
	DefaultProfile string             `yaml:"default_profile"`
	Profiles       map[string]Profile `yaml:"profiles"`
}

// Profile is one gateway the CLI can talk to.
type Profile struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".activitygate", "config.yaml"), nil
}

// LoadConfig loads the configuration from file
func LoadConfig() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadConfigFrom(configPath)
}

// LoadConfigFrom loads the configuration at path. A missing file yields an
// empty configuration.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Config{DefaultProfile: "default", Profiles: make(map[string]Profile)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]Profile)
	}
	return &cfg, nil
}

// SaveConfig saves the configuration to file
func SaveConfig(cfg *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveConfigTo(configPath, cfg)
}

// SaveConfigTo writes cfg to path with owner-only permissions.
func SaveConfigTo(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Resolve picks the connection settings for a command.
// Priority: command flags > environment variables > config file profile.
func Resolve(cfg *Config, profileName, baseURLFlag, apiKeyFlag string) (Profile, error) {
	p := Profile{}
	if cfg != nil {
		if profileName == "" {
			profileName = cfg.DefaultProfile
		}
		p = cfg.Profiles[profileName]
	}

	if v := os.Getenv(EnvBaseURL); v != "" {
		p.BaseURL = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		p.APIKey = v
	}
	if baseURLFlag != "" {
		p.BaseURL = baseURLFlag
	}
	if apiKeyFlag != "" {
		p.APIKey = apiKeyFlag
	}

	if p.BaseURL == "" || p.APIKey == "" {
		return Profile{}, fmt.Errorf("base_url and api_key must be configured (profile %q, --base-url/--api-key or %s/%s)",
			profileName, EnvBaseURL, EnvAPIKey)
	}
	return p, nil
}

// DefaultConfig is written by "config init".
func DefaultConfig() *Config {
	return &Config{
		DefaultProfile: "local",
		Profiles: map[string]Profile{
			"local": {
				BaseURL: "http://localhost:8080",
				APIKey:  "admin-123",
			},
		},
	}
}

// MaskKey hides all but the first four characters of an API key.
func MaskKey(key string) string {
	if len(key) > 4 {
		return key[:4] + "***"
	}
	return "***"
}
