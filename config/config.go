// Package config loads process configuration from the environment, with an
// optional YAML file layered underneath for values that aren't secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every knob the server needs at boot. It is loaded once in
// main and passed down explicitly; nothing in this repository reaches for
// package-level global configuration.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string `yaml:"addr"`

	// SigningSecret signs session tokens (C3). Required; startup aborts
	// without it.
	SigningSecret string `yaml:"-"`

	// ProvenanceSecret keys the provenance digest HMAC (C1). Required.
	ProvenanceSecret string `yaml:"-"`

	// CacheBackend selects the Cache API backend: "inmem" or "redis".
	CacheBackend string `yaml:"cache_backend"`
	// RedisAddr is used when CacheBackend is "redis".
	RedisAddr string `yaml:"redis_addr"`

	// StoreBackend selects the Paused-State Store backend: "inmem" (layered
	// on CacheBackend) or "mongo" (durable independent of the cache).
	StoreBackend string `yaml:"store_backend"`
	// MongoURI/MongoDatabase are used when StoreBackend is "mongo".
	MongoURI      string `yaml:"-"`
	MongoDatabase string `yaml:"mongo_database"`

	// DefaultMaxWallClock bounds a single execution turn before it must
	// pause or complete.
	DefaultMaxWallClock time.Duration `yaml:"default_max_wall_clock"`
	// DefaultMaxLLMCalls bounds the number of atp.llm calls per execution.
	DefaultMaxLLMCalls int `yaml:"default_max_llm_calls"`
	// DefaultMaxMemoryBytes bounds the interpreter's approximate live-value
	// heap per execution; 0 disables the check.
	DefaultMaxMemoryBytes int64 `yaml:"default_max_memory_bytes"`
	// DefaultMaxPauseDuration bounds how long a paused execution record
	// survives before the Paused-State Store garbage collects it.
	DefaultMaxPauseDuration time.Duration `yaml:"default_max_pause_duration"`

	// TokenTTL is the lifetime of an issued session token before it must
	// be rotated.
	TokenTTL time.Duration `yaml:"token_ttl"`

	// AnthropicAPIKey, when set, wires an inline model gateway
	// (model.AnthropicClient) so atp.llm pausing calls resolve
	// server-side instead of always round-tripping to the caller. Left
	// empty, Core.Models stays nil and every atp.llm call pauses.
	AnthropicAPIKey string `yaml:"-"`
	// AnthropicModel is the default model ID used when a request doesn't
	// name one.
	AnthropicModel string `yaml:"anthropic_model"`

	// ProvenanceMode selects how aggressively the Provenance Registry
	// tracks taint: "none", "proxy" or "ast".
	ProvenanceMode string `yaml:"provenance_mode"`

	// PolicyRateLimitRPS/PolicyRateLimitBurst configure the Policy
	// Engine's built-in per-tool-group rate limit; RPS<=0 disables it.
	PolicyRateLimitRPS   float64 `yaml:"policy_rate_limit_rps"`
	PolicyRateLimitBurst int     `yaml:"policy_rate_limit_burst"`
}

// defaults mirrors the zero-config posture a developer gets when only the
// two required secrets are set.
func defaults() Config {
	return Config{
		Addr:                    ":8080",
		CacheBackend:            "inmem",
		StoreBackend:            "inmem",
		MongoDatabase:           "atp",
		DefaultMaxWallClock:     30 * time.Second,
		DefaultMaxLLMCalls:      50,
		DefaultMaxMemoryBytes:   64 * 1024 * 1024,
		DefaultMaxPauseDuration: 24 * time.Hour,
		TokenTTL:                15 * time.Minute,
		AnthropicModel:          "claude-3-5-sonnet-latest",
		ProvenanceMode:          "proxy",
		PolicyRateLimitRPS:      5,
		PolicyRateLimitBurst:    10,
	}
}

// Load reads configuration from environment variables, optionally layering
// an ATP_CONFIG_FILE YAML document underneath, and validates required
// secrets are present.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("ATP_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if v := os.Getenv("ATP_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("ATP_CACHE_BACKEND"); v != "" {
		cfg.CacheBackend = v
	}
	if v := os.Getenv("ATP_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("ATP_STORE_BACKEND"); v != "" {
		cfg.StoreBackend = v
	}
	if v := os.Getenv("ATP_MONGO_DATABASE"); v != "" {
		cfg.MongoDatabase = v
	}
	if v := os.Getenv("ATP_MAX_WALL_CLOCK_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("ATP_MAX_WALL_CLOCK_MS: %w", err)
		}
		cfg.DefaultMaxWallClock = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("ATP_MAX_LLM_CALLS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("ATP_MAX_LLM_CALLS: %w", err)
		}
		cfg.DefaultMaxLLMCalls = n
	}
	if v := os.Getenv("ATP_MAX_MEMORY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("ATP_MAX_MEMORY_BYTES: %w", err)
		}
		cfg.DefaultMaxMemoryBytes = n
	}
	if v := os.Getenv("ATP_TOKEN_TTL_SECONDS"); v != "" {
		s, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("ATP_TOKEN_TTL_SECONDS: %w", err)
		}
		cfg.TokenTTL = time.Duration(s) * time.Second
	}

	if v := os.Getenv("ATP_ANTHROPIC_MODEL"); v != "" {
		cfg.AnthropicModel = v
	}
	if v := os.Getenv("ATP_PROVENANCE_MODE"); v != "" {
		cfg.ProvenanceMode = v
	}

	cfg.SigningSecret = os.Getenv("ATP_SIGNING_SECRET")
	cfg.ProvenanceSecret = os.Getenv("ATP_PROVENANCE_SECRET")
	cfg.AnthropicAPIKey = os.Getenv("ATP_ANTHROPIC_API_KEY")
	cfg.MongoURI = os.Getenv("ATP_MONGO_URI")

	if cfg.SigningSecret == "" {
		return Config{}, fmt.Errorf("ATP_SIGNING_SECRET is required")
	}
	if cfg.ProvenanceSecret == "" {
		return Config{}, fmt.Errorf("ATP_PROVENANCE_SECRET is required")
	}
	if cfg.StoreBackend == "mongo" && cfg.MongoURI == "" {
		return Config{}, fmt.Errorf("ATP_MONGO_URI is required when ATP_STORE_BACKEND=mongo")
	}

	return cfg, nil
}
