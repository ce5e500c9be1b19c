// Command server boots the Pausable Execution Core and serves every route
// spec.md's external-interfaces section names over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"goa.design/clue/log"

	"github.com/look4regev/agent-tool-protocol-sub002/cache"
	cacheinmem "github.com/look4regev/agent-tool-protocol-sub002/cache/inmem"
	cacheredis "github.com/look4regev/agent-tool-protocol-sub002/cache/redis"
	"github.com/look4regev/agent-tool-protocol-sub002/catalog"
	"github.com/look4regev/agent-tool-protocol-sub002/config"
	"github.com/look4regev/agent-tool-protocol-sub002/core"
	"github.com/look4regev/agent-tool-protocol-sub002/model"
	"github.com/look4regev/agent-tool-protocol-sub002/policy"
	"github.com/look4regev/agent-tool-protocol-sub002/provenance"
	"github.com/look4regev/agent-tool-protocol-sub002/session"
	sessioninmem "github.com/look4regev/agent-tool-protocol-sub002/session/inmem"
	"github.com/look4regev/agent-tool-protocol-sub002/store"
	storeinmem "github.com/look4regev/agent-tool-protocol-sub002/store/inmem"
	storemongo "github.com/look4regev/agent-tool-protocol-sub002/store/mongo"
	"github.com/look4regev/agent-tool-protocol-sub002/telemetry"
	transporthttp "github.com/look4regev/agent-tool-protocol-sub002/transport/http"

	goredis "github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
)

func main() {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf(ctx, err, "invalid configuration")
	}

	cacheProvider, err := buildCache(cfg)
	if err != nil {
		log.Fatalf(ctx, err, "failed to build cache backend")
	}

	pausedStore, err := buildStore(cfg, cacheProvider)
	if err != nil {
		log.Fatalf(ctx, err, "failed to build paused-execution store")
	}

	cat := catalog.New()
	sessions := sessioninmem.New()
	tokens := session.NewTokenService(cfg.SigningSecret, cfg.TokenTTL)

	c := &core.Core{
		Store:   pausedStore,
		Catalog: cat,
		Policy: policy.New(
			[]policy.Policy{
				policy.ExfiltrationPolicy{AllowedDestinations: map[string]bool{}},
				policy.UserOriginRequiredPolicy{},
			},
			cfg.PolicyRateLimitRPS,
			cfg.PolicyRateLimitBurst,
		),
		Cache:                 cacheProvider,
		Models:                buildModelGateway(cfg),
		ProvenanceMode:        provenance.Mode(cfg.ProvenanceMode),
		ProvenanceSecret:      cfg.ProvenanceSecret,
		DefaultMaxWallClock:   cfg.DefaultMaxWallClock,
		DefaultMaxLLMCalls:    cfg.DefaultMaxLLMCalls,
		DefaultMaxMemoryBytes: cfg.DefaultMaxMemoryBytes,
		PauseTTL:              cfg.DefaultMaxPauseDuration,
		Logger:                telemetry.NewClueLogger(),
		Metrics:               telemetry.NoopMetrics{},
		Tracer:                telemetry.NoopTracer{},
	}

	srv := transporthttp.New(c, cat, sessions, tokens, cfg.TokenTTL)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	if err := srv.ListenAndServe(ctx, cfg.Addr); err != nil {
		log.Fatalf(ctx, err, "server exited with error")
	}
}

func buildCache(cfg config.Config) (cache.Provider, error) {
	switch cfg.CacheBackend {
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		return cacheredis.New(client), nil
	case "", "inmem":
		return cacheinmem.New(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// buildStore selects the Paused-State Store backend. "mongo" gives
// durability independent of the cache; "inmem" (the default) layers directly
// on whichever Cache API backend is configured.
func buildStore(cfg config.Config, c cache.Provider) (store.Store, error) {
	switch cfg.StoreBackend {
	case "mongo":
		client, err := mongodriver.Connect(mongooptions.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connecting to mongo: %w", err)
		}
		return storemongo.New(client, cfg.MongoDatabase, "")
	case "", "inmem":
		return storeinmem.New(c), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// buildModelGateway wires an inline model.Client only when an API key was
// configured; left nil, every atp.llm pausing call round-trips to the
// caller instead of resolving server-side.
func buildModelGateway(cfg config.Config) model.Client {
	if cfg.AnthropicAPIKey == "" {
		return nil
	}
	return model.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
}
