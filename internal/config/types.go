package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Host            string           `json:"host" env:"HOST"`
	RPCPort         int              `json:"rpcPort" env:"RPC_PORT"`
	WSPort          int              `json:"wsPort" env:"WS_PORT"`
	LogLevel        string           `json:"logLevel" env:"LOG_LEVEL"`
	MaxBodySize     int64            `json:"maxBodySize" env:"MAX_BODY_SIZE"`
	DispatchTimeout int              `json:"dispatchTimeout" env:"DISPATCH_TIMEOUT"` // ms, measured from the moment the body is parsed
	UpstreamTimeout int              `json:"upstreamTimeout" env:"UPSTREAM_TIMEOUT"` // ms, per upstream HTTP request
	MaxBatchSize    int              `json:"maxBatchSize" env:"MAX_BATCH_SIZE"`
	ClientVersion   string           `json:"clientVersion" env:"CLIENT_VERSION"`
	ChainID         uint64           `json:"chainId" env:"CHAIN_ID"`
	NetworkID       uint64           `json:"networkId" env:"NETWORK_ID"`
	FailureLimit    int              `json:"upstreamFailureThreshold" env:"UPSTREAM_FAILURE_THRESHOLD"`
	Cooldown        int              `json:"upstreamCooldown" env:"UPSTREAM_COOLDOWN"` // ms
	RateLimit       RateLimitConfig  `json:"rateLimit" envPrefix:"RATE_LIMIT_"`
	Cache           CacheConfig      `json:"cache" envPrefix:"CACHE_"`
	Plugins         PluginConfig     `json:"plugins" envPrefix:"PLUGINS_"`
	Tracing         TracingConfig    `json:"tracing" envPrefix:"TRACING_"`
	Upstreams       []UpstreamConfig `json:"upstreams"`
}

// RateLimitConfig limits the request rate of the RPC and WS endpoints.
// A zero rate disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requestsPerSecond" env:"RPS"`
	Burst             int     `json:"burst" env:"BURST"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	Enabled bool     `json:"enabled" env:"ENABLED"`
	TTL     int      `json:"ttl" env:"TTL"`   // seconds
	Size    int      `json:"size" env:"SIZE"` // number of entries
	Methods []string `json:"methods" env:"METHODS"`
}

// PluginConfig represents plugin configuration
type PluginConfig struct {
	Enabled   bool   `json:"enabled" env:"ENABLED"`
	Directory string `json:"directory" env:"DIRECTORY"` // path to plugins directory
	Timeout   int    `json:"timeout" env:"TIMEOUT"`     // execution timeout in milliseconds
}

// TracingConfig represents OpenTelemetry exporter configuration
type TracingConfig struct {
	Enabled      bool    `json:"enabled" env:"ENABLED"`
	ServiceName  string  `json:"serviceName" env:"SERVICE_NAME"`
	Environment  string  `json:"environment" env:"ENVIRONMENT"`
	OTLPEndpoint string  `json:"otlpEndpoint" env:"OTLP_ENDPOINT"` // host:port
	SampleRatio  float64 `json:"sampleRatio" env:"SAMPLE_RATIO"`
}

// UpstreamConfig represents a single upstream configuration
type UpstreamConfig struct {
	Name   string `json:"name"`
	RPCURL string `json:"rpcUrl"`
	Weight int    `json:"weight"`
}

// EnvPrefix is prepended to every environment override
const EnvPrefix = "RPCDISPATCH_"

// Default values
const (
	DefaultHost               = "localhost"
	DefaultRPCPort            = 8545
	DefaultWSPort             = 8546
	DefaultLogLevel           = "info"
	DefaultMaxBodySize        = int64(5 * 1024 * 1024)
	DefaultDispatchTimeout    = 5000 // ms
	DefaultUpstreamTimeout    = 4000 // ms
	DefaultMaxBatchSize       = 100
	DefaultClientVersion      = "rpcdispatch/v1.0.0"
	DefaultChainID            = uint64(1)
	DefaultFailureLimit       = 5
	DefaultCooldown           = 30000 // ms
	DefaultUpstreamWeight     = 1
	DefaultCacheTTL           = 5 // seconds
	DefaultCacheSize          = 10000
	DefaultPluginDirectory    = "./plugins"
	DefaultPluginTimeout      = 3000 // ms
	DefaultServiceName        = "rpcdispatch"
	DefaultEnvironment        = "development"
	DefaultOTLPEndpoint       = "127.0.0.1:4318"
	DefaultTracingSampleRatio = 1.0
)

// GetDispatchTimeoutDuration returns the dispatch budget as time.Duration
func (c *Config) GetDispatchTimeoutDuration() time.Duration {
	return time.Duration(c.DispatchTimeout) * time.Millisecond
}

// GetUpstreamTimeoutDuration returns upstream request timeout as time.Duration
func (c *Config) GetUpstreamTimeoutDuration() time.Duration {
	return time.Duration(c.UpstreamTimeout) * time.Millisecond
}

// GetCooldownDuration returns how long a failing upstream stays out of rotation
func (c *Config) GetCooldownDuration() time.Duration {
	return time.Duration(c.Cooldown) * time.Millisecond
}

// RateLimitEnabled returns true if a request rate is configured
func (c *Config) RateLimitEnabled() bool {
	return c.RateLimit.RequestsPerSecond > 0
}

// GetTTLDuration returns cache TTL as time.Duration
func (c *CacheConfig) GetTTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// GetTimeoutDuration returns plugin timeout as time.Duration
func (c *PluginConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}
