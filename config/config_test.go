package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequiredSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("ATP_SIGNING_SECRET", "sign-secret")
	t.Setenv("ATP_PROVENANCE_SECRET", "prov-secret")
}

func TestLoadAppliesDefaultsWithOnlySecretsSet(t *testing.T) {
	setRequiredSecrets(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, "inmem", cfg.CacheBackend)
	require.Equal(t, 30*time.Second, cfg.DefaultMaxWallClock)
	require.Equal(t, 15*time.Minute, cfg.TokenTTL)
	require.Equal(t, "proxy", cfg.ProvenanceMode)
	require.Equal(t, int64(64*1024*1024), cfg.DefaultMaxMemoryBytes)
	require.Empty(t, cfg.AnthropicAPIKey)
}

func TestLoadFailsWithoutSigningSecret(t *testing.T) {
	t.Setenv("ATP_PROVENANCE_SECRET", "prov-secret")

	_, err := Load()
	require.ErrorContains(t, err, "ATP_SIGNING_SECRET")
}

func TestLoadFailsWithoutProvenanceSecret(t *testing.T) {
	t.Setenv("ATP_SIGNING_SECRET", "sign-secret")

	_, err := Load()
	require.ErrorContains(t, err, "ATP_PROVENANCE_SECRET")
}

func TestLoadOverridesFromEnv(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("ATP_ADDR", ":9090")
	t.Setenv("ATP_CACHE_BACKEND", "redis")
	t.Setenv("ATP_REDIS_ADDR", "localhost:6379")
	t.Setenv("ATP_MAX_WALL_CLOCK_MS", "5000")
	t.Setenv("ATP_MAX_LLM_CALLS", "10")
	t.Setenv("ATP_MAX_MEMORY_BYTES", "1048576")
	t.Setenv("ATP_TOKEN_TTL_SECONDS", "60")
	t.Setenv("ATP_ANTHROPIC_MODEL", "claude-3-opus")
	t.Setenv("ATP_PROVENANCE_MODE", "ast")
	t.Setenv("ATP_ANTHROPIC_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Addr)
	require.Equal(t, "redis", cfg.CacheBackend)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)
	require.Equal(t, 5*time.Second, cfg.DefaultMaxWallClock)
	require.Equal(t, 10, cfg.DefaultMaxLLMCalls)
	require.Equal(t, int64(1048576), cfg.DefaultMaxMemoryBytes)
	require.Equal(t, 60*time.Second, cfg.TokenTTL)
	require.Equal(t, "claude-3-opus", cfg.AnthropicModel)
	require.Equal(t, "ast", cfg.ProvenanceMode)
	require.Equal(t, "sk-test", cfg.AnthropicAPIKey)
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("ATP_MAX_WALL_CLOCK_MS", "not-a-number")

	_, err := Load()
	require.ErrorContains(t, err, "ATP_MAX_WALL_CLOCK_MS")
}

func TestLoadRequiresMongoURIWhenStoreBackendIsMongo(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("ATP_STORE_BACKEND", "mongo")

	_, err := Load()
	require.ErrorContains(t, err, "ATP_MONGO_URI")
}

func TestLoadAcceptsMongoStoreBackendWithURI(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("ATP_STORE_BACKEND", "mongo")
	t.Setenv("ATP_MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("ATP_MONGO_DATABASE", "atp_test")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "mongo", cfg.StoreBackend)
	require.Equal(t, "mongodb://localhost:27017", cfg.MongoURI)
	require.Equal(t, "atp_test", cfg.MongoDatabase)
}
