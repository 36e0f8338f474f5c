package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process-wide configuration for the federator. NewConfig
// builds it in three layers:
//  1. Default values (lowest priority)
//  2. Environment variables (applied by LoadFromEnv)
//  3. Functional options passed to NewConfig (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithHTTPPort(8080),
//	    WithLLMProvider("anthropic", os.Getenv("ANTHROPIC_API_KEY")),
//	)
type Config struct {
	// ServiceName identifies this process in logs and traces.
	ServiceName string `json:"service_name" env:"FEDERATOR_SERVICE_NAME" default:"query-federator"`

	// HTTPPort is the port the optional ingress server listens on.
	HTTPPort int `json:"http_port" env:"FEDERATOR_HTTP_PORT" default:"8080"`

	// RegistryFile optionally points at a YAML file describing the backend
	// manifests to pre-register at startup (see registry.LoadManifestsFromYAML).
	RegistryFile string `json:"registry_file" env:"FEDERATOR_REGISTRY_FILE"`

	// Registry bootstrap configuration
	Registry RegistryConfig `json:"registry"`

	// Dispatch configuration
	Dispatch DispatchConfig `json:"dispatch"`

	// Catalog configuration
	Catalog CatalogConfig `json:"catalog"`

	// LLM configuration (optional: falls back to heuristic planning)
	LLM LLMConfig `json:"llm"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	logger Logger `json:"-"`
}

// DispatchConfig controls the tool dispatcher's network behavior.
type DispatchConfig struct {
	Timeout        time.Duration `json:"timeout" env:"FEDERATOR_DISPATCH_TIMEOUT" default:"20s"`
	CircuitBreaker bool          `json:"circuit_breaker" env:"FEDERATOR_DISPATCH_CIRCUIT_BREAKER" default:"true"`
}

// RegistryConfig controls the optional Redis-backed manifest bootstrap that
// lets several federator processes share one operator-maintained source
// list instead of each carrying its own registry file.
type RegistryConfig struct {
	RedisURL     string `json:"redis_url" env:"FEDERATOR_REGISTRY_REDIS_URL"`
	BootstrapKey string `json:"bootstrap_key" env:"FEDERATOR_REGISTRY_BOOTSTRAP_KEY" default:"registry:manifests"`
}

// CatalogConfig controls schema-catalog refresh behavior.
type CatalogConfig struct {
	SchemaFetchTimeout time.Duration `json:"schema_fetch_timeout" env:"FEDERATOR_SCHEMA_TIMEOUT" default:"10s"`
	// RedisURL, when set, backs the catalog's cache with Redis so multiple
	// orchestrator processes share one populated catalog instead of each
	// paying the get_schema fan-out on its own first request.
	RedisURL string `json:"redis_url" env:"FEDERATOR_REDIS_URL"`
}

// LLMConfig selects and configures the planner's language model client.
type LLMConfig struct {
	Provider string `json:"provider" env:"FEDERATOR_LLM_PROVIDER" default:"anthropic"`
	APIKey   string `json:"api_key" env:"FEDERATOR_LLM_API_KEY"`
	Model    string `json:"model" env:"FEDERATOR_LLM_MODEL"`
}

// LoggingConfig controls the ProductionLogger.
type LoggingConfig struct {
	Level  string `json:"level" env:"FEDERATOR_LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"FEDERATOR_LOG_FORMAT" default:"text"`
	Output string `json:"output" env:"FEDERATOR_LOG_OUTPUT" default:"stdout"`
}

// Option configures a Config during NewConfig.
type Option func(*Config)

// WithServiceName sets the service name used in logs.
func WithServiceName(name string) Option {
	return func(c *Config) { c.ServiceName = name }
}

// WithHTTPPort sets the ingress server port.
func WithHTTPPort(port int) Option {
	return func(c *Config) { c.HTTPPort = port }
}

// WithRegistryFile points the registry bootstrap at a YAML manifest file.
func WithRegistryFile(path string) Option {
	return func(c *Config) { c.RegistryFile = path }
}

// WithRegistryRedisBootstrap points the registry bootstrap at a shared Redis
// key. When the Redis fetch succeeds its manifest set is used alone; the
// local YAML manifest file is read only if the Redis fetch fails.
func WithRegistryRedisBootstrap(redisURL, key string) Option {
	return func(c *Config) {
		c.Registry.RedisURL = redisURL
		if key != "" {
			c.Registry.BootstrapKey = key
		}
	}
}

// WithDispatchTimeout overrides the default 20s tool-dispatch timeout.
func WithDispatchTimeout(d time.Duration) Option {
	return func(c *Config) { c.Dispatch.Timeout = d }
}

// WithCatalogRedis backs the schema catalog with a shared Redis cache.
func WithCatalogRedis(redisURL string) Option {
	return func(c *Config) { c.Catalog.RedisURL = redisURL }
}

// WithLLMProvider configures the planner's LLM client.
func WithLLMProvider(provider, apiKey string) Option {
	return func(c *Config) {
		c.LLM.Provider = provider
		c.LLM.APIKey = apiKey
	}
}

// WithLogLevel overrides the default "info" log level.
func WithLogLevel(level string) Option {
	return func(c *Config) { c.Logging.Level = level }
}

// WithLogFormat overrides the default "text" log format ("json" for
// structured, aggregation-friendly output).
func WithLogFormat(format string) Option {
	return func(c *Config) { c.Logging.Format = format }
}

// WithLogger injects an explicit logger instead of building a
// ProductionLogger from Logging.
func WithLogger(logger Logger) Option {
	return func(c *Config) { c.logger = logger }
}

// DefaultConfig returns a Config populated with defaults only.
func DefaultConfig() *Config {
	return &Config{
		ServiceName: "query-federator",
		HTTPPort:    8080,
		Dispatch: DispatchConfig{
			Timeout:        20 * time.Second,
			CircuitBreaker: true,
		},
		Catalog: CatalogConfig{
			SchemaFetchTimeout: 10 * time.Second,
		},
		Registry: RegistryConfig{
			BootstrapKey: "registry:manifests",
		},
		LLM: LLMConfig{
			Provider: "anthropic",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// LoadFromEnv overlays environment variables onto c, following the env tags
// documented on each field.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("FEDERATOR_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("FEDERATOR_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTPPort = port
		} else {
			return fmt.Errorf("invalid FEDERATOR_HTTP_PORT: %w", err)
		}
	}
	if v := os.Getenv("FEDERATOR_REGISTRY_FILE"); v != "" {
		c.RegistryFile = v
	}
	if v := os.Getenv("FEDERATOR_REGISTRY_REDIS_URL"); v != "" {
		c.Registry.RedisURL = v
	}
	if v := os.Getenv("FEDERATOR_REGISTRY_BOOTSTRAP_KEY"); v != "" {
		c.Registry.BootstrapKey = v
	}
	if v := os.Getenv("FEDERATOR_DISPATCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FEDERATOR_DISPATCH_TIMEOUT: %w", err)
		}
		c.Dispatch.Timeout = d
	}
	if v := os.Getenv("FEDERATOR_DISPATCH_CIRCUIT_BREAKER"); v != "" {
		c.Dispatch.CircuitBreaker = parseBool(v)
	}
	if v := os.Getenv("FEDERATOR_SCHEMA_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FEDERATOR_SCHEMA_TIMEOUT: %w", err)
		}
		c.Catalog.SchemaFetchTimeout = d
	}
	if v := os.Getenv("FEDERATOR_REDIS_URL"); v != "" {
		c.Catalog.RedisURL = v
	}
	if v := os.Getenv("FEDERATOR_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("FEDERATOR_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("FEDERATOR_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("FEDERATOR_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("FEDERATOR_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("FEDERATOR_LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}
	return nil
}

// Validate checks invariants NewConfig must hold before returning.
func (c *Config) Validate() error {
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("%w: http_port %d out of range", ErrInvalidConfiguration, c.HTTPPort)
	}
	if c.Dispatch.Timeout <= 0 {
		return fmt.Errorf("%w: dispatch timeout must be positive", ErrInvalidConfiguration)
	}
	return nil
}

// Logger returns the configured logger, building a ProductionLogger from
// Logging if none was set explicitly via WithLogger.
func (c *Config) Logger() Logger {
	if c.logger == nil {
		c.logger = NewProductionLogger(c.Logging, c.ServiceName)
	}
	return c.logger
}

// NewConfig builds a Config from defaults, then environment variables, then
// functional options, in that priority order (each layer overrides the one
// before it).
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading environment configuration: %w", err)
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func parseBool(s string) bool {
	v, _ := strconv.ParseBool(s)
	return v
}
