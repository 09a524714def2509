// Package config loads the ConfigModel of spec §4.1: an immutable snapshot
// consumed by every other component -- the ordered tier list, per-tier
// retry policy, the long-context threshold, the preset table, the routing
// flags, and the SSE buffer size. Grounded on CLASP's internal/config
// (env-var Config struct, per-tier provider/model/key/base-URL fields,
// provider-default base URLs), generalized from CLASP's fixed
// opus/sonnet/haiku tiers to an arbitrary ordered tier list loaded from an
// optional YAML file, the way spec §4.1's "ordered tier list" of arbitrary
// length requires.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jedarden/clasp-cascade/internal/protocol"
)

// RetryPolicy is spec §4.1's per-tier retry policy.
type RetryPolicy struct {
	MaxRetries        int     `yaml:"max_retries"`
	BaseBackoffMillis int64   `yaml:"base_backoff_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	MaxBackoffMillis  int64   `yaml:"max_backoff_ms"`
}

// DefaultRetryPolicy matches CLASP's historical three-attempt fallback
// behavior before per-tier retry policy existed.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, BaseBackoffMillis: 200, BackoffMultiplier: 2.0, MaxBackoffMillis: 8000}
}

// TransformerSpec is one named, parameterized transformer entry as it
// appears in a tier's request or response chain (spec §4.2).
type TransformerSpec struct {
	Name   string                 `yaml:"name"`
	Params map[string]interface{} `yaml:"params,omitempty"`
}

// TierSpec is spec §3's "Tier": an immutable (provider, model) pair bound
// to a cascade position, plus the dialect and retry policy it dispatches
// with.
type TierSpec struct {
	Label        string            `yaml:"label,omitempty"` // defaults to "provider,model"
	Provider     string            `yaml:"provider"`
	Model        string            `yaml:"model"`
	Dialect      string            `yaml:"dialect"` // "anthropic" | "openai_chat" | "openai_responses"
	BaseURL      string            `yaml:"base_url,omitempty"`
	APIKeyEnv    string            `yaml:"api_key_env,omitempty"`
	AuthHeader   string            `yaml:"auth_header,omitempty"`
	Retry        RetryPolicy       `yaml:"retry,omitempty"`
	Transformers []TransformerSpec `yaml:"transformers,omitempty"`

	apiKey string // resolved from APIKeyEnv or a provider default, not serialized
}

// RouteLabel returns the "providerName,modelId" string spec §4.1 resolves
// direct-routing requests against.
func (t TierSpec) RouteLabel() string {
	if t.Label != "" {
		return t.Label
	}
	return t.Provider + "," + t.Model
}

// APIKey returns the resolved credential for this tier.
func (t TierSpec) APIKey() string { return t.apiKey }

// ProtocolDialect parses Dialect into protocol.Dialect, defaulting to
// openai_chat (the most common aggregator wire shape) when unset.
func (t TierSpec) ProtocolDialect() protocol.Dialect {
	switch t.Dialect {
	case string(protocol.Anthropic):
		return protocol.Anthropic
	case string(protocol.OpenAIResponses):
		return protocol.OpenAIResponses
	default:
		return protocol.OpenAIChat
	}
}

// Preset is spec §4.1's preset table entry: a named route plus parameter
// overrides (e.g. a narrower set of tiers, or transformer params tuned for
// a particular client use case such as a "fast" or "thinking" preset
// surfaced at /preset/{name}/v1/messages).
type Preset struct {
	Route     string                 `yaml:"route,omitempty"`      // "providerName,modelId", hoisted to front of the tier order
	Overrides map[string]interface{} `yaml:"overrides,omitempty"`
}

// Config is the immutable ConfigModel of spec §4.1.
type Config struct {
	Tiers                 []TierSpec        `yaml:"tiers"`
	Presets               map[string]Preset `yaml:"presets,omitempty"`
	LongContextThreshold  int               `yaml:"long_context_threshold,omitempty"`
	IgnoreDirectRouting   bool              `yaml:"ignore_direct_routing,omitempty"`
	ForceNonStreaming     bool              `yaml:"force_non_streaming,omitempty"`
	SSEBufferSize         int               `yaml:"sse_buffer_size,omitempty"`
	BaselineMillis        float64           `yaml:"baseline_millis,omitempty"`

	// Ambient settings (spec §6/§10.1/§10.3), loaded from environment only
	// -- these never appear in the tiers YAML file.
	Port                      int
	LogLevel                  string
	Debug                     bool
	DebugRequests             bool
	DebugResponses            bool
	AuthEnabled               bool
	AuthAPIKey                string
	AuthAllowAnonymousHealth  bool
	AuthAllowAnonymousMetrics bool
	RateLimitEnabled          bool
	RateLimitRequestsPerSec   float64
	RateLimitBurst            int
	HTTPClientTimeoutSec      int
	RedisURL                  string // internal/state persistence, optional
}

// providerDefaultBaseURL mirrors CLASP's per-provider default endpoint
// table, used when a tier YAML entry omits base_url.
var providerDefaultBaseURL = map[string]string{
	"openai":     "https://api.openai.com/v1/chat/completions",
	"openrouter": "https://openrouter.ai/api/v1/chat/completions",
	"ollama":     "http://localhost:11434/v1/chat/completions",
	"gemini":     "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions",
	"deepseek":   "https://api.deepseek.com/v1/chat/completions",
	"anthropic":  "https://api.anthropic.com/v1/messages",
}

// providerDefaultAPIKeyEnv mirrors CLASP's per-provider default API key
// environment variable, used when a tier YAML entry omits api_key_env.
var providerDefaultAPIKeyEnv = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"azure":      "AZURE_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"ollama":     "OLLAMA_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
	"custom":     "CUSTOM_API_KEY",
}

// DefaultConfig returns a single-tier OpenAI default, matching CLASP's
// historical single-provider default before multi-tier cascades existed.
func DefaultConfig() *Config {
	return &Config{
		Tiers: []TierSpec{
			{Provider: "openai", Model: "gpt-4o", Dialect: string(protocol.OpenAIChat), Retry: DefaultRetryPolicy()},
		},
		SSEBufferSize:  64,
		BaselineMillis: 500,
		Port:           8080,
		LogLevel:       "info",

		RateLimitRequestsPerSec: 1,
		RateLimitBurst:          10,
		AuthAllowAnonymousHealth: true,
		HTTPClientTimeoutSec:     300,
	}
}

// Load reads the tiers file (if CLASP_CONFIG_FILE is set), a .env file (if
// present), and environment variables, and returns a validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional; missing .env is not an error

	cfg := DefaultConfig()

	if path := os.Getenv("CLASP_CONFIG_FILE"); path != "" {
		loaded, err := loadTiersYAML(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		cfg = loaded
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	resolveTierCredentials(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadTiersYAML(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	cfg.Tiers = nil // the file is authoritative for tiers
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides layers ambient (non-tier) environment settings onto
// cfg, in the teacher's CLASP_* naming style.
func applyEnvOverrides(cfg *Config) error {
	if port := os.Getenv("CLASP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid CLASP_PORT: %w", err)
		}
		cfg.Port = p
	}
	if logLevel := os.Getenv("CLASP_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	cfg.Debug = boolEnv("CLASP_DEBUG", cfg.Debug)
	cfg.DebugRequests = cfg.Debug || boolEnv("CLASP_DEBUG_REQUESTS", cfg.DebugRequests)
	cfg.DebugResponses = cfg.Debug || boolEnv("CLASP_DEBUG_RESPONSES", cfg.DebugResponses)

	cfg.AuthEnabled = boolEnv("CLASP_AUTH", cfg.AuthEnabled)
	if k := os.Getenv("CLASP_AUTH_API_KEY"); k != "" {
		cfg.AuthAPIKey = k
	}
	cfg.AuthAllowAnonymousHealth = boolEnv("CLASP_AUTH_ALLOW_ANONYMOUS_HEALTH", cfg.AuthAllowAnonymousHealth)
	cfg.AuthAllowAnonymousMetrics = boolEnv("CLASP_AUTH_ALLOW_ANONYMOUS_METRICS", cfg.AuthAllowAnonymousMetrics)

	cfg.RateLimitEnabled = boolEnv("CLASP_RATE_LIMIT", cfg.RateLimitEnabled)
	if rps := os.Getenv("CLASP_RATE_LIMIT_RPS"); rps != "" {
		f, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			return fmt.Errorf("invalid CLASP_RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimitRequestsPerSec = f
	}
	if burst := os.Getenv("CLASP_RATE_LIMIT_BURST"); burst != "" {
		b, err := strconv.Atoi(burst)
		if err != nil {
			return fmt.Errorf("invalid CLASP_RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateLimitBurst = b
	}

	if timeout := os.Getenv("CLASP_HTTP_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return fmt.Errorf("invalid CLASP_HTTP_TIMEOUT: %w", err)
		}
		cfg.HTTPClientTimeoutSec = t
	}

	cfg.IgnoreDirectRouting = boolEnv("CLASP_IGNORE_DIRECT_ROUTING", cfg.IgnoreDirectRouting)
	cfg.ForceNonStreaming = boolEnv("CLASP_FORCE_NON_STREAMING", cfg.ForceNonStreaming)
	if buf := os.Getenv("CLASP_SSE_BUFFER_SIZE"); buf != "" {
		b, err := strconv.Atoi(buf)
		if err != nil {
			return fmt.Errorf("invalid CLASP_SSE_BUFFER_SIZE: %w", err)
		}
		cfg.SSEBufferSize = b
	}
	if threshold := os.Getenv("CLASP_LONG_CONTEXT_THRESHOLD"); threshold != "" {
		t, err := strconv.Atoi(threshold)
		if err != nil {
			return fmt.Errorf("invalid CLASP_LONG_CONTEXT_THRESHOLD: %w", err)
		}
		cfg.LongContextThreshold = t
	}

	cfg.RedisURL = os.Getenv("CLASP_REDIS_URL")

	return nil
}

func boolEnv(name string, fallback bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	return v == "true" || v == "1"
}

// resolveTierCredentials fills in each tier's base URL (provider default
// when omitted) and resolves its API key from APIKeyEnv, or the provider's
// conventional environment variable when APIKeyEnv is unset.
func resolveTierCredentials(cfg *Config) {
	for i := range cfg.Tiers {
		t := &cfg.Tiers[i]
		if t.BaseURL == "" {
			t.BaseURL = providerDefaultBaseURL[strings.ToLower(t.Provider)]
		}
		if t.Retry == (RetryPolicy{}) {
			t.Retry = DefaultRetryPolicy()
		}
		envVar := t.APIKeyEnv
		if envVar == "" {
			envVar = providerDefaultAPIKeyEnv[strings.ToLower(t.Provider)]
		}
		if envVar != "" {
			t.apiKey = os.Getenv(envVar)
		}
	}
}

// Validate checks the loaded ConfigModel's structural invariants: at least
// one tier, every tier naming a provider and model, every preset's route
// resolving to a configured tier, and every tier dialect being one of the
// three known wire dialects (spec §4.1: "resolution MUST verify the
// provider exists and lists the model").
func (c *Config) Validate() error {
	if len(c.Tiers) == 0 {
		return fmt.Errorf("config: at least one tier is required")
	}
	seen := make(map[string]bool, len(c.Tiers))
	for _, t := range c.Tiers {
		if t.Provider == "" || t.Model == "" {
			return fmt.Errorf("config: tier %q missing provider or model", t.RouteLabel())
		}
		switch t.Dialect {
		case "", string(protocol.Anthropic), string(protocol.OpenAIChat), string(protocol.OpenAIResponses):
		default:
			return fmt.Errorf("config: tier %q has unknown dialect %q", t.RouteLabel(), t.Dialect)
		}
		seen[t.RouteLabel()] = true
	}
	for name, p := range c.Presets {
		if p.Route != "" && !seen[p.Route] {
			return fmt.Errorf("config: preset %q routes to unconfigured tier %q", name, p.Route)
		}
	}
	return nil
}

// ResolvePreset returns the named preset's route (empty if the preset is
// unknown or names no specific route), for hoisting per spec §6's
// /preset/{name}/v1/messages endpoint.
func (c *Config) ResolvePreset(name string) (Preset, bool) {
	p, ok := c.Presets[name]
	return p, ok
}

// PresetNames returns every configured preset name, for /v1/presets.
func (c *Config) PresetNames() []string {
	names := make([]string, 0, len(c.Presets))
	for name := range c.Presets {
		names = append(names, name)
	}
	return names
}
