package reagent

import (
	"errors"
	"testing"
	"time"
)

func TestBuildConfigDefaults(t *testing.T) {
	cfg, err := BuildConfig(ConfigInput{
		Model:       "m1",
		Provider:    &mockProvider{},
		TokenPolicy: TokenPolicy{SigningSecret: "s"},
	})
	if err != nil {
		t.Fatalf("BuildConfig: %v", err)
	}
	if cfg.MaxIterations != defaultMaxIterations {
		t.Errorf("MaxIterations = %d, want %d", cfg.MaxIterations, defaultMaxIterations)
	}
	if cfg.LLMTimeout != defaultLLMTimeout {
		t.Errorf("LLMTimeout = %s, want %s", cfg.LLMTimeout, defaultLLMTimeout)
	}
	if cfg.ToolPolicy.Timeout != defaultToolTimeout {
		t.Errorf("tool Timeout = %s, want %s", cfg.ToolPolicy.Timeout, defaultToolTimeout)
	}
	if cfg.ToolPolicy.Concurrency != defaultConcurrency {
		t.Errorf("Concurrency = %d, want %d", cfg.ToolPolicy.Concurrency, defaultConcurrency)
	}
	if cfg.TokenPolicy.TTL != defaultTokenTTL {
		t.Errorf("TTL = %s, want %s", cfg.TokenPolicy.TTL, defaultTokenTTL)
	}
	if !cfg.Observability.EmitEvents || !cfg.Observability.CaptureDeltas {
		t.Errorf("observability defaults not applied: %+v", cfg.Observability)
	}
	if cfg.Fingerprint() == "" {
		t.Error("empty fingerprint")
	}
}

func TestBuildConfigRejects(t *testing.T) {
	base := func() ConfigInput {
		return ConfigInput{
			Model:       "m1",
			Provider:    &mockProvider{},
			TokenPolicy: TokenPolicy{SigningSecret: "s"},
		}
	}

	cases := []struct {
		name   string
		mutate func(*ConfigInput)
	}{
		{"missing model", func(in *ConfigInput) { in.Model = "" }},
		{"missing provider", func(in *ConfigInput) { in.Provider = nil }},
		{"missing secret", func(in *ConfigInput) { in.TokenPolicy.SigningSecret = "" }},
		{"iterations too large", func(in *ConfigInput) { in.MaxIterations = maxMaxIterations + 1 }},
		{"negative iterations", func(in *ConfigInput) { in.MaxIterations = -1 }},
		{"retries too large", func(in *ConfigInput) { in.ToolPolicy.MaxRetries = maxToolRetries + 1 }},
		{"concurrency too large", func(in *ConfigInput) { in.ToolPolicy.Concurrency = maxToolConcurrency + 1 }},
		{"timeout too large", func(in *ConfigInput) { in.LLMTimeout = maxTimeout + time.Second }},
		{"ttl too large", func(in *ConfigInput) { in.TokenPolicy.TTL = maxTokenTTL + time.Second }},
		{"duplicate tool name", func(in *ConfigInput) {
			in.Tools = []Tool{echoTool("dup"), echoTool("dup")}
		}},
		{"nil tool", func(in *ConfigInput) { in.Tools = []Tool{nil} }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base()
			tc.mutate(&in)
			_, err := BuildConfig(in)
			if !errors.Is(err, ErrConfigInvalid) {
				t.Fatalf("err = %v, want ErrConfigInvalid", err)
			}
		})
	}
}

func TestConfigFingerprintStability(t *testing.T) {
	build := func(model string, tools ...Tool) *Config {
		cfg, err := BuildConfig(ConfigInput{
			Model:       model,
			Provider:    &mockProvider{},
			Tools:       tools,
			TokenPolicy: TokenPolicy{SigningSecret: "s"},
		})
		if err != nil {
			t.Fatalf("BuildConfig: %v", err)
		}
		return cfg
	}

	a := build("m1", echoTool("alpha"), echoTool("beta"))
	// Same definitions, reversed registration order, different callables.
	b := build("m1", echoTool("beta"), echoTool("alpha"))
	if a.Fingerprint() != b.Fingerprint() {
		t.Errorf("fingerprints differ for equivalent configs: %s vs %s", a.Fingerprint(), b.Fingerprint())
	}

	c := build("m2", echoTool("alpha"), echoTool("beta"))
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("fingerprints equal despite different model")
	}

	d := build("m1", echoTool("alpha"))
	if a.Fingerprint() == d.Fingerprint() {
		t.Error("fingerprints equal despite different catalog")
	}
}

func TestConfigToolLookup(t *testing.T) {
	cfg := testConfig(&mockProvider{}, echoTool("alpha"), echoTool("beta"))
	if _, ok := cfg.Tool("alpha"); !ok {
		t.Error("alpha not found")
	}
	if _, ok := cfg.Tool("missing"); ok {
		t.Error("missing tool resolved")
	}
	defs := cfg.ToolDefinitions()
	if len(defs) != 2 || defs[0].Name != "alpha" || defs[1].Name != "beta" {
		t.Errorf("definitions not sorted by name: %+v", defs)
	}
}
