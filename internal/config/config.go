// Package config loads CLI configuration for the reagent command:
// defaults, then a TOML file, then env vars (env wins).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	LLM      LLMConfig      `toml:"llm"`
	Run      RunConfig      `toml:"run"`
	Tools    ToolsConfig    `toml:"tools"`
	Token    TokenConfig    `toml:"token"`
	Database DatabaseConfig `toml:"database"`
	Observer ObserverConfig `toml:"observer"`
}

type LLMConfig struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
	// Timeout for one model call, in seconds.
	TimeoutSeconds int  `toml:"timeout_seconds"`
	Streaming      bool `toml:"streaming"`
}

type RunConfig struct {
	SystemPrompt  string `toml:"system_prompt"`
	MaxIterations int    `toml:"max_iterations"`
	MaxTokens     int    `toml:"max_tokens"`
}

type ToolsConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
	MaxRetries     int `toml:"max_retries"`
	BackoffMS      int `toml:"backoff_ms"`
	Concurrency    int `toml:"concurrency"`
	// Workspace is the directory file tools operate in.
	Workspace string `toml:"workspace"`
}

type TokenConfig struct {
	SigningSecret string `toml:"signing_secret"`
	TTLSeconds    int    `toml:"ttl_seconds"`
	Compress      bool   `toml:"compress"`
}

type DatabaseConfig struct {
	// Path of the SQLite checkpoint database. Empty disables persistence.
	Path string `toml:"path"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Run:      RunConfig{MaxIterations: 10},
		Database: DatabaseConfig{Path: "reagent.db"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "reagent.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("REAGENT_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("REAGENT_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("REAGENT_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("REAGENT_SIGNING_SECRET"); v != "" {
		cfg.Token.SigningSecret = v
	}
	if v := os.Getenv("REAGENT_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("REAGENT_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}
