package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.LLM.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("base url = %s", cfg.LLM.BaseURL)
	}
	if cfg.Run.MaxIterations != 10 {
		t.Errorf("max iterations = %d", cfg.Run.MaxIterations)
	}
	if cfg.Database.Path != "reagent.db" {
		t.Errorf("db path = %s", cfg.Database.Path)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[llm]
model = "gpt-4o"
streaming = true

[token]
signing_secret = "file-secret"
ttl_seconds = 7200

[tools]
concurrency = 8
`), 0644)

	cfg := Load(path)
	if cfg.LLM.Model != "gpt-4o" || !cfg.LLM.Streaming {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Token.SigningSecret != "file-secret" || cfg.Token.TTLSeconds != 7200 {
		t.Errorf("token = %+v", cfg.Token)
	}
	if cfg.Tools.Concurrency != 8 {
		t.Errorf("concurrency = %d", cfg.Tools.Concurrency)
	}
	// Defaults preserved
	if cfg.LLM.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("default base url lost: %s", cfg.LLM.BaseURL)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("REAGENT_API_KEY", "env-key")
	t.Setenv("REAGENT_MODEL", "env-model")
	t.Setenv("REAGENT_SIGNING_SECRET", "env-secret")

	cfg := Load("/nonexistent/path.toml")
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("api key = %s", cfg.LLM.APIKey)
	}
	if cfg.LLM.Model != "env-model" {
		t.Errorf("model = %s", cfg.LLM.Model)
	}
	if cfg.Token.SigningSecret != "env-secret" {
		t.Errorf("secret = %s", cfg.Token.SigningSecret)
	}
}
