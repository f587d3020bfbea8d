// Package config loads tessa server configuration from a YAML file with
// TESSA_* environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// ProviderType identifies an LLM provider.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
)

// Config is the top-level tessa configuration, corresponding to tessa.yml.
type Config struct {
	Port            int          `yaml:"port" koanf:"port"`
	DataDir         string       `yaml:"data_dir" koanf:"data_dir"`
	JWTSecret       string       `yaml:"jwt_secret" koanf:"jwt_secret"`
	TokenTTLHours   int          `yaml:"token_ttl_hours" koanf:"token_ttl_hours"`
	BcryptCost      int          `yaml:"bcrypt_cost" koanf:"bcrypt_cost"`
	Provider        ProviderType `yaml:"provider" koanf:"provider"`
	Model           string       `yaml:"model" koanf:"model"`
	EmbeddingModel  string       `yaml:"embedding_model" koanf:"embedding_model"`
	AllowAllOrigins bool         `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}

// DefaultConfig returns a Config with sensible defaults. The JWT secret
// default exists for local development only; deployments must override it.
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		DataDir:        "data",
		JWTSecret:      "tessa-dev-secret-do-not-use-in-production",
		TokenTTLHours:  24 * 7,
		BcryptCost:     10,
		Provider:       ProviderAnthropic,
		Model:          "claude-sonnet-4-20250514",
		EmbeddingModel: "text-embedding-3-small",
	}
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (TESSA_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: TESSA_PORT -> port, etc.
	if err := k.Load(env.Provider("TESSA_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "TESSA_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validProviders is the set of recognized provider values.
var validProviders = map[ProviderType]bool{
	ProviderAnthropic: true,
	ProviderOpenAI:    true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.TokenTTLHours <= 0 {
		return fmt.Errorf("token_ttl_hours must be positive")
	}
	if !validProviders[c.Provider] {
		return fmt.Errorf("invalid provider %q: must be one of anthropic, openai", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}
