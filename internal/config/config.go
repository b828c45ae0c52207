package config

import (
	"time"
)

// Config represents the complete application configuration. Values come from
// defaults set in code, an optional YAML file, and TEXTLENS_* environment
// variables, in increasing order of precedence.
type Config struct {
	Backend      BackendConfig      `mapstructure:"backend"`
	Dispatch     DispatchConfig     `mapstructure:"dispatch"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Store        StoreConfig        `mapstructure:"store"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Health       HealthConfig       `mapstructure:"health"`
}

// Backend modes
const (
	BackendHTTP = "http"
	BackendMock = "mock"
)

// BackendConfig describes the analysis service the dispatcher talks to.
type BackendConfig struct {
	// Mode selects the transport: "http" or "mock"
	Mode      string        `mapstructure:"mode"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	CSRFToken string        `mapstructure:"csrf_token"`
	MockDelay time.Duration `mapstructure:"mock_delay"`

	// RateLimits paces outbound requests per endpoint, in requests per
	// second. The "*" key applies to endpoints without their own entry.
	RateLimits map[string]float64 `mapstructure:"rate_limits"`
}

// DispatchConfig controls queueing and throttling.
type DispatchConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	ThrottleDelay time.Duration `mapstructure:"throttle_delay"`
}

// CacheConfig contains response cache configuration.
type CacheConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	Namespace     string        `mapstructure:"namespace"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// Connectivity modes
const (
	ConnectivityStatic = "static"
	ConnectivityProbe  = "probe"
)

// ConnectivityConfig decides how the client learns whether it is online.
type ConnectivityConfig struct {
	Mode string `mapstructure:"mode"`

	// Online is the fixed answer in static mode
	Online bool `mapstructure:"online"`

	// ProbeURL defaults to the backend base URL when empty
	ProbeURL      string        `mapstructure:"probe_url"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles per Fulmen Forge Workhorse Standard:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}
