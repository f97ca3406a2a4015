package reagent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Validation ceilings. Values above these are rejected as misconfiguration
// rather than silently accepted.
const (
	maxMaxIterations   = 1000
	maxMaxTokens       = 1 << 20
	maxToolRetries     = 10
	maxToolConcurrency = 256
	maxTimeout         = time.Hour
	maxTokenTTL        = 90 * 24 * time.Hour
)

// Defaults applied by BuildConfig for zero-valued fields.
const (
	defaultMaxIterations = 10
	defaultLLMTimeout    = 2 * time.Minute
	defaultToolTimeout   = 30 * time.Second
	defaultToolRetries   = 2
	defaultToolBackoff   = 200 * time.Millisecond
	defaultConcurrency   = 4
	defaultTokenTTL      = time.Hour
)

// ToolPolicy bounds the execution of a single tool round.
//
// There is deliberately no overall round deadline: the worst case is bounded
// by (MaxRetries+1) * Timeout per call, and callers who need a harder cap
// set it on the run context.
type ToolPolicy struct {
	// Timeout is the hard per-attempt limit for one tool call.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt for
	// timeouts, panics, and tool-reported execution errors. Validation
	// failures and unknown tools are never retried.
	MaxRetries int
	// RetryBackoff is the sleep between attempts.
	RetryBackoff time.Duration
	// Concurrency caps how many calls of one round run at once. Minimum 1.
	Concurrency int
}

// TokenPolicy controls checkpoint token issuance.
type TokenPolicy struct {
	// SigningSecret keys the HMAC over the token payload. Required.
	SigningSecret string
	// TTL is the validity window of issued tokens.
	TTL time.Duration
	// Compress gzips the payload segment of issued tokens.
	Compress bool
}

// Observability toggles what the run reports.
type Observability struct {
	// EmitEvents enables intermediate events. Terminal and checkpoint
	// events are always emitted so Collect and resume keep working.
	EmitEvents bool
	// RedactToolArgs replaces tool arguments in tool_started events.
	RedactToolArgs bool
	// CaptureDeltas enables llm_delta events on streaming runs.
	CaptureDeltas bool
	// CaptureThinking records provider thinking content in assistant
	// entries and llm_completed events.
	CaptureThinking bool
	// CaptureMessages includes the projected message list in llm_started
	// events (debugging aid; payloads get large).
	CaptureMessages bool
}

// ConfigInput is the caller-facing, unvalidated form of a run Config.
type ConfigInput struct {
	Model        string
	SystemPrompt string
	Provider     Provider
	Tools        []Tool

	MaxIterations int
	MaxTokens     int
	Temperature   *float64
	LLMTimeout    time.Duration
	Streaming     bool

	ToolPolicy  ToolPolicy
	TokenPolicy TokenPolicy
	// Observability defaults to events on, deltas on, thinking on when nil.
	Observability *Observability
}

// Config holds immutable, validated run parameters. Build one with
// BuildConfig; never mutate it afterwards. A Config is safe to share across
// concurrent runs and tool calls.
type Config struct {
	Model        string
	SystemPrompt string
	Provider     Provider

	MaxIterations int
	MaxTokens     int
	Temperature   *float64
	LLMTimeout    time.Duration
	Streaming     bool

	ToolPolicy    ToolPolicy
	TokenPolicy   TokenPolicy
	Observability Observability

	catalog     map[string]Tool
	defs        []ToolDefinition
	fingerprint string
}

// BuildConfig validates input and produces an immutable Config with a
// deterministic fingerprint. All failures wrap ErrConfigInvalid.
func BuildConfig(in ConfigInput) (*Config, error) {
	if in.Model == "" {
		return nil, fmt.Errorf("%w: model is required", ErrConfigInvalid)
	}
	if in.Provider == nil {
		return nil, fmt.Errorf("%w: provider is required", ErrConfigInvalid)
	}
	if in.TokenPolicy.SigningSecret == "" {
		return nil, fmt.Errorf("%w: token signing secret is required", ErrConfigInvalid)
	}

	cfg := &Config{
		Model:         in.Model,
		SystemPrompt:  in.SystemPrompt,
		Provider:      in.Provider,
		MaxIterations: in.MaxIterations,
		MaxTokens:     in.MaxTokens,
		Temperature:   in.Temperature,
		LLMTimeout:    in.LLMTimeout,
		Streaming:     in.Streaming,
		ToolPolicy:    in.ToolPolicy,
		TokenPolicy:   in.TokenPolicy,
	}
	if in.Observability != nil {
		cfg.Observability = *in.Observability
	} else {
		cfg.Observability = Observability{EmitEvents: true, CaptureDeltas: true, CaptureThinking: true}
	}

	// Defaults.
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.LLMTimeout == 0 {
		cfg.LLMTimeout = defaultLLMTimeout
	}
	if cfg.ToolPolicy.Timeout == 0 {
		cfg.ToolPolicy.Timeout = defaultToolTimeout
	}
	if cfg.ToolPolicy.MaxRetries == 0 {
		cfg.ToolPolicy.MaxRetries = defaultToolRetries
	}
	if cfg.ToolPolicy.RetryBackoff == 0 {
		cfg.ToolPolicy.RetryBackoff = defaultToolBackoff
	}
	if cfg.ToolPolicy.Concurrency == 0 {
		cfg.ToolPolicy.Concurrency = defaultConcurrency
	}
	if cfg.TokenPolicy.TTL == 0 {
		cfg.TokenPolicy.TTL = defaultTokenTTL
	}

	// Bounds.
	switch {
	case cfg.MaxIterations < 0 || cfg.MaxIterations > maxMaxIterations:
		return nil, fmt.Errorf("%w: max_iterations %d out of range [1,%d]", ErrConfigInvalid, cfg.MaxIterations, maxMaxIterations)
	case cfg.MaxTokens < 0 || cfg.MaxTokens > maxMaxTokens:
		return nil, fmt.Errorf("%w: max_tokens %d out of range", ErrConfigInvalid, cfg.MaxTokens)
	case cfg.LLMTimeout < 0 || cfg.LLMTimeout > maxTimeout:
		return nil, fmt.Errorf("%w: llm_timeout %s out of range", ErrConfigInvalid, cfg.LLMTimeout)
	case cfg.ToolPolicy.Timeout < 0 || cfg.ToolPolicy.Timeout > maxTimeout:
		return nil, fmt.Errorf("%w: tool timeout %s out of range", ErrConfigInvalid, cfg.ToolPolicy.Timeout)
	case cfg.ToolPolicy.MaxRetries < 0 || cfg.ToolPolicy.MaxRetries > maxToolRetries:
		return nil, fmt.Errorf("%w: tool max_retries %d out of range [0,%d]", ErrConfigInvalid, cfg.ToolPolicy.MaxRetries, maxToolRetries)
	case cfg.ToolPolicy.RetryBackoff < 0 || cfg.ToolPolicy.RetryBackoff > maxTimeout:
		return nil, fmt.Errorf("%w: tool retry_backoff %s out of range", ErrConfigInvalid, cfg.ToolPolicy.RetryBackoff)
	case cfg.ToolPolicy.Concurrency < 1 || cfg.ToolPolicy.Concurrency > maxToolConcurrency:
		return nil, fmt.Errorf("%w: tool concurrency %d out of range [1,%d]", ErrConfigInvalid, cfg.ToolPolicy.Concurrency, maxToolConcurrency)
	case cfg.TokenPolicy.TTL < 0 || cfg.TokenPolicy.TTL > maxTokenTTL:
		return nil, fmt.Errorf("%w: token ttl %s out of range", ErrConfigInvalid, cfg.TokenPolicy.TTL)
	}

	// Catalog: names unique, every tool fully described.
	cfg.catalog = make(map[string]Tool, len(in.Tools))
	for _, t := range in.Tools {
		if t == nil {
			return nil, fmt.Errorf("%w: nil tool in catalog", ErrConfigInvalid)
		}
		name := t.Name()
		if name == "" {
			return nil, fmt.Errorf("%w: tool with empty name", ErrConfigInvalid)
		}
		if _, dup := cfg.catalog[name]; dup {
			return nil, fmt.Errorf("%w: duplicate tool name %q", ErrConfigInvalid, name)
		}
		cfg.catalog[name] = t
		cfg.defs = append(cfg.defs, toolDefinition(t))
	}
	sort.Slice(cfg.defs, func(i, j int) bool { return cfg.defs[i].Name < cfg.defs[j].Name })

	cfg.fingerprint = computeFingerprint(cfg)
	return cfg, nil
}

// Tool resolves a catalog entry by name.
func (c *Config) Tool(name string) (Tool, bool) {
	t, ok := c.catalog[name]
	return t, ok
}

// ToolDefinitions returns the catalog projected for the model, sorted by name.
func (c *Config) ToolDefinitions() []ToolDefinition { return c.defs }

// Fingerprint returns the stable hash of the normalized Config. Tokens embed
// it so a checkpoint cannot be resumed under a different model or catalog.
func (c *Config) Fingerprint() string { return c.fingerprint }

// computeFingerprint hashes the canonical field set. Tool callables do not
// participate, only their definitions; two Configs with behaviorally
// identical catalogs fingerprint the same.
func computeFingerprint(c *Config) string {
	canon := struct {
		Model         string           `json:"model"`
		SystemPrompt  string           `json:"system_prompt"`
		MaxIterations int              `json:"max_iterations"`
		MaxTokens     int              `json:"max_tokens"`
		Temperature   *float64         `json:"temperature"`
		Streaming     bool             `json:"streaming"`
		Tools         []ToolDefinition `json:"tools"`
	}{
		Model:         c.Model,
		SystemPrompt:  c.SystemPrompt,
		MaxIterations: c.MaxIterations,
		MaxTokens:     c.MaxTokens,
		Temperature:   c.Temperature,
		Streaming:     c.Streaming,
		Tools:         c.defs,
	}
	// defs are sorted by name in BuildConfig, so the encoding is stable.
	b, _ := json.Marshal(canon)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:16])
}
