// Package config loads the assistant configuration from YAML with
// environment variable expansion for secrets.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the full assistant configuration.
type Config struct {
	// SystemPrompt is prepended to every model request.
	SystemPrompt string `yaml:"system_prompt"`

	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Budget   BudgetConfig   `yaml:"budget"`
	Agent    AgentConfig    `yaml:"agent"`

	// Providers are tried in order: the first entry is the primary
	// model, the rest are fallbacks.
	Providers []ProviderConfig `yaml:"providers"`

	// MCPServers lists remote tool servers to bridge at startup.
	MCPServers []MCPServerConfig `yaml:"mcp_servers"`
}

// ServerConfig holds HTTP gateway settings.
type ServerConfig struct {
	Listen string `yaml:"listen"` // host:port
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BudgetConfig holds context window accounting knobs.
type BudgetConfig struct {
	ContextTokens   int `yaml:"context_tokens"`   // model window estimate
	ResponseReserve int `yaml:"response_reserve"` // tokens held back for the reply
	HistoryCharCap  int `yaml:"history_char_cap"` // per-turn truncation length
}

// AgentConfig holds agent loop settings.
type AgentConfig struct {
	MaxRounds int `yaml:"max_rounds"` // tool-call rounds per request
}

// ProviderConfig holds configuration for a single model provider.
type ProviderConfig struct {
	Name    string `yaml:"name"`               // "anthropic", "openai", "ollama", "gemini"
	Model   string `yaml:"model"`              // model identifier
	APIKey  string `yaml:"api_key,omitempty"`  // supports ${ENV} expansion
	BaseURL string `yaml:"base_url,omitempty"` // for ollama / self-hosted endpoints
}

// MCPServerConfig identifies a remote MCP tool server.
type MCPServerConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SystemPrompt: "You are Perch, a helpful personal assistant.",
		Server:       ServerConfig{Listen: "127.0.0.1:27850"},
		Database:     DatabaseConfig{Path: "./data/perch.db"},
		Budget: BudgetConfig{
			ContextTokens:   200000,
			ResponseReserve: 8000,
			HistoryCharCap:  1000,
		},
		Agent: AgentConfig{MaxRounds: 10},
	}
}

// LoadFromBytes loads configuration from YAML bytes on top of the
// defaults, expanding ${ENV} references first.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.validate()
}

// LoadFrom loads configuration from a file path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadFromBytes(data)
}

func (c *Config) validate() error {
	if c.Budget.ContextTokens <= 0 {
		return fmt.Errorf("budget.context_tokens must be positive, got %d", c.Budget.ContextTokens)
	}
	if c.Budget.ResponseReserve < 0 {
		return fmt.Errorf("budget.response_reserve must not be negative, got %d", c.Budget.ResponseReserve)
	}
	if c.Agent.MaxRounds <= 0 {
		c.Agent.MaxRounds = 10
	}
	seen := map[string]bool{}
	for _, p := range c.Providers {
		key := p.Name + "/" + p.Model
		if seen[key] {
			return fmt.Errorf("duplicate provider entry %q", key)
		}
		seen[key] = true
	}
	return nil
}

// Primary returns the first configured provider, or nil when none exist.
func (c *Config) Primary() *ProviderConfig {
	if len(c.Providers) == 0 {
		return nil
	}
	return &c.Providers[0]
}

// Fallbacks returns the providers after the primary, in declared order.
func (c *Config) Fallbacks() []ProviderConfig {
	if len(c.Providers) <= 1 {
		return nil
	}
	return c.Providers[1:]
}
