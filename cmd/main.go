package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/config"
	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/fallback"
	"github.com/davidbz/hearth/internal/gateway"
	"github.com/davidbz/hearth/internal/http"
	"github.com/davidbz/hearth/internal/http/middleware"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/provider/anthropic"
	"github.com/davidbz/hearth/internal/provider/echo"
	"github.com/davidbz/hearth/internal/provider/openai"
	"github.com/davidbz/hearth/internal/provider/registry"
	"github.com/davidbz/hearth/internal/resilience"
	"github.com/davidbz/hearth/internal/routing"
	"github.com/davidbz/hearth/internal/sse"
	"github.com/davidbz/hearth/internal/stream"
)

// ErrProviderNotConfigured indicates that a provider is not configured and should be skipped.
var ErrProviderNotConfigured = errors.New("provider not configured")

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *http.Server, janitor *sse.Janitor) {
		janitor.Start()
		defer janitor.Stop()

		if err := server.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	if err := container.Provide(observability.NewMetrics); err != nil {
		log.Fatalf("Failed to provide metrics: %v", err)
	}

	// Provider Registry
	if err := container.Provide(func() domain.ProviderRegistry {
		return registry.NewRegistry()
	}); err != nil {
		log.Fatalf("Failed to provide registry: %v", err)
	}

	// OpenAI Provider
	if err := container.Provide(func(cfg *openai.Config) (*openai.Provider, error) {
		if cfg.APIKey == "" {
			return nil, ErrProviderNotConfigured
		}
		return openai.NewProvider(*cfg)
	}); err != nil {
		log.Fatalf("Failed to provide OpenAI provider: %v", err)
	}

	// Anthropic Provider
	if err := container.Provide(func(cfg *anthropic.Config) (*anthropic.Provider, error) {
		if cfg.APIKey == "" {
			return nil, ErrProviderNotConfigured
		}
		return anthropic.NewProvider(*cfg)
	}); err != nil {
		log.Fatalf("Failed to provide Anthropic provider: %v", err)
	}

	// Register providers with registry (invoked for side effects). Missing
	// API keys are expected for optional providers; routing falls back to
	// whatever is registered.
	registerProviders(container)

	// Routing
	if err := container.Provide(func(cfg *config.RoutingConfig) *routing.Router {
		return routing.NewRouter(routing.DefaultAliasTable(), cfg.DefaultProvider, cfg.DefaultModel)
	}); err != nil {
		log.Fatalf("Failed to provide router: %v", err)
	}

	// Resilience
	if err := container.Provide(func(cfg *config.ResilienceConfig, metrics *observability.Metrics) *resilience.Executor {
		return resilience.NewExecutor(resilience.BreakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			RecoveryTimeout:  time.Duration(cfg.RecoverySeconds) * time.Second,
		}, metrics)
	}); err != nil {
		log.Fatalf("Failed to provide executor: %v", err)
	}
	if err := container.Provide(func(cfg *config.ResilienceConfig) resilience.Policy {
		return resilience.Policy{
			MaxAttempts:       cfg.MaxAttempts,
			BaseDelay:         time.Duration(cfg.BaseDelayMillis) * time.Millisecond,
			MaxDelay:          time.Duration(cfg.MaxDelayMillis) * time.Millisecond,
			BackoffMultiplier: cfg.BackoffMultiplier,
			JitterFactor:      cfg.JitterFactor,
			Timeout:           time.Duration(cfg.TimeoutSeconds) * time.Second,
		}
	}); err != nil {
		log.Fatalf("Failed to provide retry policy: %v", err)
	}

	// Fallback store. Without a Redis address the manager degrades to a
	// permanent cache miss.
	if err := container.Provide(func(cfg *config.RedisConfig) domain.FallbackStore {
		var client *redis.Client
		if cfg.Addr != "" {
			client = redis.NewClient(&redis.Options{
				Addr:     cfg.Addr,
				Password: cfg.Password,
				DB:       cfg.DB,
			})
		}
		return fallback.NewManager(client, time.Duration(cfg.TTLSeconds)*time.Second)
	}); err != nil {
		log.Fatalf("Failed to provide fallback store: %v", err)
	}

	// Streaming
	if err := container.Provide(func(cfg *config.StreamConfig, metrics *observability.Metrics) *stream.Emitter {
		return stream.NewEmitter(cfg.SliceCount, time.Duration(cfg.SliceDelayMilli)*time.Millisecond, metrics)
	}); err != nil {
		log.Fatalf("Failed to provide emitter: %v", err)
	}

	// Connection registry and its periodic tasks
	if err := container.Provide(func(cfg *config.SSEConfig, metrics *observability.Metrics) *sse.Registry {
		return sse.NewRegistry(sse.Config{
			MaxPerSession:     cfg.MaxPerSession,
			IdleTimeout:       time.Duration(cfg.IdleTimeoutSec) * time.Second,
			HeartbeatInterval: time.Duration(cfg.HeartbeatSec) * time.Second,
			SweepInterval:     time.Duration(cfg.SweepSec) * time.Second,
			HandshakeDelay:    time.Duration(cfg.HandshakeDelayMS) * time.Millisecond,
		}, metrics)
	}); err != nil {
		log.Fatalf("Failed to provide connection registry: %v", err)
	}
	if err := container.Provide(sse.NewJanitor); err != nil {
		log.Fatalf("Failed to provide janitor: %v", err)
	}

	// Gateway Service
	if err := container.Provide(gateway.NewService); err != nil {
		log.Fatalf("Failed to provide gateway service: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(middleware.BuildMiddlewareChain); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(http.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}

// registerProviders registers each configured provider with the registry.
// Each provider is invoked separately so a missing API key for one does not
// keep the others out.
func registerProviders(container *dig.Container) {
	register := func(name string, invoke any) {
		if err := container.Invoke(invoke); err != nil {
			// Ignore ErrProviderNotConfigured as it's expected for optional providers
			if !errors.Is(err, ErrProviderNotConfigured) {
				log.Fatalf("Failed to register %s provider: %v", name, err)
			}
		}
	}

	register("OpenAI", func(reg domain.ProviderRegistry, logger *zap.Logger, p *openai.Provider) error {
		if err := reg.Register(context.Background(), p); err != nil {
			return fmt.Errorf("failed to register OpenAI provider: %w", err)
		}
		logger.Info("registered provider", zap.String("provider", p.Name()))
		return nil
	})

	register("Anthropic", func(reg domain.ProviderRegistry, logger *zap.Logger, p *anthropic.Provider) error {
		if err := reg.Register(context.Background(), p); err != nil {
			return fmt.Errorf("failed to register Anthropic provider: %w", err)
		}
		logger.Info("registered provider", zap.String("provider", p.Name()))
		return nil
	})

	register("echo", func(reg domain.ProviderRegistry, logger *zap.Logger, cfg *config.EchoConfig) error {
		if !cfg.Enabled {
			return nil
		}
		p := echo.NewProvider()
		if err := reg.Register(context.Background(), p); err != nil {
			return fmt.Errorf("failed to register echo provider: %w", err)
		}
		logger.Info("registered provider", zap.String("provider", p.Name()))
		return nil
	})
}
