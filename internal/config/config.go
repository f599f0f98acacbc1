package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/hearth/internal/provider/anthropic"
	"github.com/davidbz/hearth/internal/provider/openai"
)

// Config represents the gateway configuration.
type Config struct {
	Server     ServerConfig
	CORS       CORSConfig
	Routing    RoutingConfig
	Resilience ResilienceConfig
	Stream     StreamConfig
	SSE        SSEConfig
	Redis      RedisConfig
	OpenAI     openai.Config
	Anthropic  anthropic.Config
	Echo       EchoConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int   `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int   `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int   `env:"SERVER_WRITE_TIMEOUT" envDefault:"300"`
	MaxBodyBytes int64 `env:"SERVER_MAX_BODY_BYTES" envDefault:"10485760"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization,X-Session-ID,Anthropic-Version,X-Api-Key"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// RoutingConfig selects the catch-all route for unrecognized model names.
type RoutingConfig struct {
	DefaultProvider string `env:"ROUTING_DEFAULT_PROVIDER" envDefault:"openai"`
	DefaultModel    string `env:"ROUTING_DEFAULT_MODEL"    envDefault:"gpt-4o-mini"`
}

// ResilienceConfig tunes the circuit breaker and retry behavior shared by all
// backend operations.
type ResilienceConfig struct {
	FailureThreshold  int     `env:"BREAKER_FAILURE_THRESHOLD" envDefault:"5"`
	RecoverySeconds   int     `env:"BREAKER_RECOVERY_SECONDS"  envDefault:"30"`
	MaxAttempts       int     `env:"RETRY_MAX_ATTEMPTS"        envDefault:"3"`
	BaseDelayMillis   int     `env:"RETRY_BASE_DELAY_MS"       envDefault:"500"`
	MaxDelayMillis    int     `env:"RETRY_MAX_DELAY_MS"        envDefault:"10000"`
	BackoffMultiplier float64 `env:"RETRY_BACKOFF_MULTIPLIER"  envDefault:"2.0"`
	JitterFactor      float64 `env:"RETRY_JITTER_FACTOR"       envDefault:"0.2"`
	TimeoutSeconds    int     `env:"RETRY_ATTEMPT_TIMEOUT_SECONDS" envDefault:"60"`
}

// StreamConfig tunes simulated streaming.
type StreamConfig struct {
	SliceCount      int `env:"STREAM_SLICE_COUNT"    envDefault:"5"`
	SliceDelayMilli int `env:"STREAM_SLICE_DELAY_MS" envDefault:"50"`
}

// SSEConfig bounds the connection registry and its periodic tasks.
type SSEConfig struct {
	MaxPerSession     int `env:"SSE_MAX_PER_SESSION"      envDefault:"3"`
	IdleTimeoutSec    int `env:"SSE_IDLE_TIMEOUT_SECONDS" envDefault:"300"`
	HeartbeatSec      int `env:"SSE_HEARTBEAT_SECONDS"    envDefault:"30"`
	SweepSec          int `env:"SSE_SWEEP_SECONDS"        envDefault:"60"`
	HandshakeDelayMS  int `env:"SSE_HANDSHAKE_DELAY_MS"   envDefault:"100"`
}

// RedisConfig configures the fallback response store. An empty address
// disables it.
type RedisConfig struct {
	Addr       string `env:"REDIS_ADDR"`
	Password   string `env:"REDIS_PASSWORD"`
	DB         int    `env:"REDIS_DB"          envDefault:"0"`
	TTLSeconds int    `env:"REDIS_FALLBACK_TTL_SECONDS" envDefault:"3600"`
}

// EchoConfig toggles the local echo backend, useful for development and
// exercising the simulated streaming path.
type EchoConfig struct {
	Enabled bool `env:"ECHO_ENABLED" envDefault:"true"`
}

// DepConfig is used for dependency injection with dig. Fields are named
// because the two provider configs share the type name Config.
type DepConfig struct {
	dig.Out

	Server     *ServerConfig
	CORS       *CORSConfig
	Routing    *RoutingConfig
	Resilience *ResilienceConfig
	Stream     *StreamConfig
	SSE        *SSEConfig
	Redis      *RedisConfig
	OpenAI     *openai.Config
	Anthropic  *anthropic.Config
	Echo       *EchoConfig
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		Server:     &cfg.Server,
		CORS:       &cfg.CORS,
		Routing:    &cfg.Routing,
		Resilience: &cfg.Resilience,
		Stream:     &cfg.Stream,
		SSE:        &cfg.SSE,
		Redis:      &cfg.Redis,
		OpenAI:     &cfg.OpenAI,
		Anthropic:  &cfg.Anthropic,
		Echo:       &cfg.Echo,
	}
}
