// Package config provides centralized configuration management for textlens.
// Settings are layered with viper: defaults from SetDefaults, an optional
// YAML file, then TEXTLENS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName names the XDG config and data directories.
	AppName = "textlens"

	// EnvPrefix is prepended to environment variable names, e.g.
	// TEXTLENS_BACKEND_BASE_URL for backend.base_url.
	EnvPrefix = "TEXTLENS"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// NewViper returns a viper instance with defaults and environment binding
// applied.
func NewViper() *viper.Viper {
	v := viper.New()
	BindEnv(v)
	SetDefaults(v)
	return v
}

// BindEnv maps nested keys onto TEXTLENS_* variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Backend defaults
	v.SetDefault("backend.mode", BackendHTTP)
	v.SetDefault("backend.base_url", "http://localhost:8080/api")
	v.SetDefault("backend.timeout", "30s")
	v.SetDefault("backend.csrf_token", "")
	v.SetDefault("backend.mock_delay", "500ms")
	v.SetDefault("backend.rate_limits", map[string]float64{})

	// Dispatch defaults
	v.SetDefault("dispatch.max_concurrent", 2)
	v.SetDefault("dispatch.throttle_delay", "1s")

	// Cache defaults
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.namespace", "api_cache_")
	v.SetDefault("cache.sweep_interval", "1h")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Connectivity defaults
	v.SetDefault("connectivity.mode", ConnectivityProbe)
	v.SetDefault("connectivity.online", true)
	v.SetDefault("connectivity.probe_url", "")
	v.SetDefault("connectivity.probe_interval", "30s")
	v.SetDefault("connectivity.probe_timeout", "3s")

	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)
}

// Load decodes the settings held by v, applies runtime overrides, validates
// the result and makes it the current configuration.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(v *viper.Viper, runtimeOverrides ...map[string]any) (*Config, error) {
	if v == nil {
		v = NewViper()
	}

	for _, overrides := range runtimeOverrides {
		if len(overrides) == 0 {
			continue
		}
		if err := v.MergeConfigMap(overrides); err != nil {
			return nil, fmt.Errorf("failed to apply runtime overrides: %w", err)
		}
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(cfg)
	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.Backend.Mode = strings.ToLower(strings.TrimSpace(cfg.Backend.Mode))
	cfg.Backend.BaseURL = strings.TrimSpace(cfg.Backend.BaseURL)
	cfg.Connectivity.Mode = strings.ToLower(strings.TrimSpace(cfg.Connectivity.Mode))
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
}

// Validate reports every invalid setting in one error.
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend.Mode {
	case BackendHTTP:
		if _, err := url.ParseRequestURI(c.Backend.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("backend.base_url %q is not a valid URL", c.Backend.BaseURL))
		}
	case BackendMock:
	default:
		errs = append(errs, fmt.Errorf("backend.mode must be %q or %q, got %q", BackendHTTP, BackendMock, c.Backend.Mode))
	}
	if c.Backend.Timeout < 0 {
		errs = append(errs, errors.New("backend.timeout must not be negative"))
	}
	for name, rps := range c.Backend.RateLimits {
		if rps < 0 {
			errs = append(errs, fmt.Errorf("backend.rate_limits.%s must not be negative", name))
		}
	}

	if c.Dispatch.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("dispatch.max_concurrent must be at least 1, got %d", c.Dispatch.MaxConcurrent))
	}
	if c.Dispatch.ThrottleDelay < 0 {
		errs = append(errs, errors.New("dispatch.throttle_delay must not be negative"))
	}

	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL))
	}
	if strings.TrimSpace(c.Cache.Namespace) == "" {
		errs = append(errs, errors.New("cache.namespace must not be empty"))
	}

	switch c.Store.Driver {
	case "", "libsql", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not supported", c.Store.Driver))
	}

	switch c.Connectivity.Mode {
	case ConnectivityStatic, ConnectivityProbe:
	default:
		errs = append(errs, fmt.Errorf("connectivity.mode must be %q or %q, got %q", ConnectivityStatic, ConnectivityProbe, c.Connectivity.Mode))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ProbeURL returns the URL used to check connectivity.
func (c *Config) ProbeURL() string {
	if u := strings.TrimSpace(c.Connectivity.ProbeURL); u != "" {
		return u
	}
	return c.Backend.BaseURL
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// SearchPaths returns the directories searched for config.yaml.
func SearchPaths() []string {
	var paths []string
	if dir := gfconfig.GetAppConfigDir(AppName); strings.TrimSpace(dir) != "" {
		paths = append(paths, dir)
	}
	return append(paths, "./config")
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := gfconfig.GetAppDataDir(AppName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
