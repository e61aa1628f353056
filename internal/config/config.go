// Package config provides YAML-based configuration loading for Parley.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Parley configuration, loaded from parley.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Sweeper   SweeperConfig   `yaml:"sweeper"`
	Cases     []CaseConfig    `yaml:"cases"`
}

// DatabaseConfig holds connection settings for the conversation/session store.
// Driver "memory" selects the volatile in-process store and needs no DSN.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // sqlite, mysql or memory
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// ServerConfig holds settings for the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// ProviderCredentials holds API access settings for one LLM vendor.
// A provider with an empty api_key is not registered.
type ProviderCredentials struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
}

// ProvidersConfig lists the supported LLM vendors.
type ProvidersConfig struct {
	OpenAI ProviderCredentials `yaml:"openai"`
	Gemini ProviderCredentials `yaml:"gemini"`
}

// GatewayConfig controls the per-attempt retry policy of the provider gateway.
type GatewayConfig struct {
	MaxRetries         int     `yaml:"max_retries"`
	TimeoutSeconds     float64 `yaml:"timeout_seconds"`
	BackoffSeconds     float64 `yaml:"backoff_seconds"`
	MaxConcurrentCalls int64   `yaml:"max_concurrent_calls"`
}

// Timeout returns the per-attempt timeout as a duration.
func (g GatewayConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds * float64(time.Second))
}

// Backoff returns the base retry backoff as a duration.
func (g GatewayConfig) Backoff() time.Duration {
	return time.Duration(g.BackoffSeconds * float64(time.Second))
}

// SweeperConfig controls the retention sweep of closed conversations.
type SweeperConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"` // 5-field cron expression
	RetentionDays int    `yaml:"retention_days"`
}

// AttemptConfig is one (provider, model) entry of a fallback chain.
type AttemptConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// CaseConfig defines one training case: its provider chains, completion
// budgets and the opaque prompt strings supplied by the prompt authors.
type CaseConfig struct {
	ID                     string          `yaml:"id"`
	Dialogue               []AttemptConfig `yaml:"dialogue"`
	Reviewer               []AttemptConfig `yaml:"reviewer"`
	RequiredComponents     int             `yaml:"required_components"`
	MinTurns               int             `yaml:"min_turns"`
	MaxTurns               int             `yaml:"max_turns"`
	ComponentKeys          []string        `yaml:"component_keys"`
	UserLabel              string          `yaml:"user_label"`
	CounterpartLabel       string          `yaml:"counterpart_label"`
	SystemPrompt           string          `yaml:"system_prompt"`
	UserPromptTemplate     string          `yaml:"user_prompt_template"`
	ReviewerSystemPrompt   string          `yaml:"reviewer_system_prompt"`
	ReviewerPromptTemplate string          `yaml:"reviewer_prompt_template"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values. The gateway defaults
// match the provider policy the product shipped with: 3 attempts, 30s per
// attempt, 1.5s base backoff.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "parley.db"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 1
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Gateway.MaxRetries == 0 {
		c.Gateway.MaxRetries = 3
	}
	if c.Gateway.TimeoutSeconds == 0 {
		c.Gateway.TimeoutSeconds = 30
	}
	if c.Gateway.BackoffSeconds == 0 {
		c.Gateway.BackoffSeconds = 1.5
	}
	if c.Gateway.MaxConcurrentCalls == 0 {
		c.Gateway.MaxConcurrentCalls = 5
	}
	if c.Providers.OpenAI.DefaultModel == "" {
		c.Providers.OpenAI.DefaultModel = "gpt-4o-mini"
	}
	if c.Providers.Gemini.DefaultModel == "" {
		c.Providers.Gemini.DefaultModel = "gemini-2.0-flash"
	}
	if c.Sweeper.Schedule == "" {
		c.Sweeper.Schedule = "0 4 * * *"
	}
	if c.Sweeper.RetentionDays == 0 {
		c.Sweeper.RetentionDays = 30
	}
	for i := range c.Cases {
		cc := &c.Cases[i]
		if cc.MinTurns == 0 {
			cc.MinTurns = 2
		}
		if cc.MaxTurns == 0 {
			cc.MaxTurns = 6
		}
		if cc.RequiredComponents == 0 {
			cc.RequiredComponents = len(cc.ComponentKeys)
		}
		if cc.UserLabel == "" {
			cc.UserLabel = "user"
		}
		if cc.CounterpartLabel == "" {
			cc.CounterpartLabel = "counterpart"
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql", "memory":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not one of sqlite, mysql, memory", c.Database.Driver))
	}
	if c.Database.Driver == "mysql" && c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required for the mysql driver")
	}
	if len(c.Cases) == 0 {
		errs = append(errs, "at least one case is required")
	}
	for i, cc := range c.Cases {
		if cc.ID == "" {
			errs = append(errs, fmt.Sprintf("cases[%d].id is required", i))
		}
		if len(cc.Dialogue) == 0 {
			errs = append(errs, fmt.Sprintf("cases[%d].dialogue chain must not be empty", i))
		}
		if len(cc.Reviewer) == 0 {
			errs = append(errs, fmt.Sprintf("cases[%d].reviewer chain must not be empty", i))
		}
		for j, a := range cc.Dialogue {
			if a.Provider == "" || a.Model == "" {
				errs = append(errs, fmt.Sprintf("cases[%d].dialogue[%d] needs provider and model", i, j))
			}
		}
		for j, a := range cc.Reviewer {
			if a.Provider == "" || a.Model == "" {
				errs = append(errs, fmt.Sprintf("cases[%d].reviewer[%d] needs provider and model", i, j))
			}
		}
		if cc.MinTurns > cc.MaxTurns {
			errs = append(errs, fmt.Sprintf("cases[%d]: min_turns %d exceeds max_turns %d", i, cc.MinTurns, cc.MaxTurns))
		}
		if cc.RequiredComponents > len(cc.ComponentKeys) {
			errs = append(errs, fmt.Sprintf("cases[%d]: required_components %d exceeds the %d component keys", i, cc.RequiredComponents, len(cc.ComponentKeys)))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
