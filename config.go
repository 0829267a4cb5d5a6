package goSession

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/inactivity"
	"github.com/MrEthical07/goSession/token"
)

// Config is the complete client configuration.
//
// Config values are intended to be assembled during initialization and then
// treated as immutable. Build clones the value it receives.
type Config struct {
	API        APIConfig
	Routes     RoutesConfig
	Token      TokenConfig
	Redis      RedisConfig
	Inactivity InactivityConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig locates the authentication backend.
type APIConfig struct {
	BaseURL string
	// Timeout bounds every request issued through the session's HTTP client.
	// Zero disables the client-level timeout.
	Timeout time.Duration
}

/*
====================================
ROUTES CONFIG
====================================
*/

// RoutesConfig names the navigation targets used by the session layer.
type RoutesConfig struct {
	LoginPath   string
	HomePath    string
	ReturnParam string
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls token persistence and renewal.
type TokenConfig struct {
	RefreshKey string
	// ExpirationBuffer > 0 refreshes proactively when the access token's exp
	// is closer than the buffer.
	ExpirationBuffer time.Duration
}

// RedisConfig configures the Redis-backed refresh-token storage. It is only
// consulted when a Redis client is supplied to the builder.
type RedisConfig struct {
	Addr   string
	Prefix string
	Scope  string
	TTL    time.Duration
}

/*
====================================
INACTIVITY CONFIG
====================================
*/

// InactivityConfig controls the auto-logout monitor.
type InactivityConfig struct {
	Enabled        bool
	Timeout        time.Duration
	DebounceWindow time.Duration
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls asynchronous audit dispatching.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

const (
	DefaultBaseURL     = "http://localhost:8080"
	DefaultLoginPath   = "/auth/login"
	DefaultHomePath    = "/dashboard"
	DefaultReturnParam = "returnUrl"
)

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL: DefaultBaseURL,
			Timeout: 30 * time.Second,
		},
		Routes: RoutesConfig{
			LoginPath:   DefaultLoginPath,
			HomePath:    DefaultHomePath,
			ReturnParam: DefaultReturnParam,
		},
		Token: TokenConfig{
			RefreshKey: token.DefaultRefreshKey,
		},
		Redis: RedisConfig{
			Prefix: token.DefaultRedisPrefix,
			TTL:    token.DefaultRedisTTL,
		},
		Inactivity: InactivityConfig{
			Enabled:        true,
			Timeout:        inactivity.DefaultTimeout,
			DebounceWindow: inactivity.DefaultDebounceWindow,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem, wrapped in
// ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("API BaseURL must be an absolute http(s) URL")
	}
	if c.API.Timeout < 0 {
		return errors.New("API Timeout must be >= 0")
	}

	if !strings.HasPrefix(c.Routes.LoginPath, "/") {
		return errors.New("Routes LoginPath must start with /")
	}
	if !strings.HasPrefix(c.Routes.HomePath, "/") {
		return errors.New("Routes HomePath must start with /")
	}
	if c.Routes.ReturnParam == "" {
		return errors.New("Routes ReturnParam must not be empty")
	}

	if strings.TrimSpace(c.Token.RefreshKey) == "" {
		return errors.New("Token RefreshKey must not be empty")
	}
	if c.Token.ExpirationBuffer < 0 {
		return errors.New("Token ExpirationBuffer must be >= 0")
	}

	if c.Redis.TTL < 0 {
		return errors.New("Redis TTL must be >= 0")
	}
	if strings.Contains(c.Redis.Prefix, ":") {
		return errors.New("Redis Prefix must not contain ':'")
	}

	if c.Inactivity.Enabled {
		if c.Inactivity.Timeout <= 0 {
			return errors.New("Inactivity Timeout must be > 0")
		}
		if c.Inactivity.DebounceWindow <= 0 {
			return errors.New("Inactivity DebounceWindow must be > 0")
		}
		if c.Inactivity.DebounceWindow >= c.Inactivity.Timeout {
			return errors.New("Inactivity DebounceWindow must be shorter than Timeout")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}
	return nil
}

/*
====================================
ENVIRONMENT
====================================
*/

// Environment variables read by ConfigFromEnv.
const (
	EnvAPIURL                = "GOSESSION_API_URL"
	EnvAPITimeout            = "GOSESSION_API_TIMEOUT"
	EnvLoginPath             = "GOSESSION_LOGIN_PATH"
	EnvHomePath              = "GOSESSION_HOME_PATH"
	EnvInactivityEnabled     = "GOSESSION_INACTIVITY_ENABLED"
	EnvInactivityTimeout     = "GOSESSION_INACTIVITY_TIMEOUT"
	EnvInactivityDebounce    = "GOSESSION_INACTIVITY_DEBOUNCE"
	EnvTokenExpirationBuffer = "GOSESSION_TOKEN_EXPIRATION_BUFFER"
	EnvRefreshKey            = "GOSESSION_REFRESH_KEY"
	EnvRedisAddr             = "REDIS_ADDR"
	EnvRedisPrefix           = "GOSESSION_REDIS_PREFIX"
	EnvRedisScope            = "GOSESSION_REDIS_SCOPE"
	EnvAuditEnabled          = "GOSESSION_AUDIT_ENABLED"
	EnvMetricsEnabled        = "GOSESSION_METRICS_ENABLED"
)

// defaultEnvExpirationBuffer matches the deployed environment files.
const defaultEnvExpirationBuffer = 60 * time.Second

// ConfigFromEnv overlays environment variables on DefaultConfig. Durations
// accept Go syntax ("90s") or a bare number of seconds. The result is
// validated.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	cfg.Token.ExpirationBuffer = defaultEnvExpirationBuffer

	var errs []error
	cfg.API.BaseURL = getEnv(EnvAPIURL, cfg.API.BaseURL)
	cfg.API.Timeout = getEnvDuration(EnvAPITimeout, cfg.API.Timeout, &errs)
	cfg.Routes.LoginPath = getEnv(EnvLoginPath, cfg.Routes.LoginPath)
	cfg.Routes.HomePath = getEnv(EnvHomePath, cfg.Routes.HomePath)
	cfg.Inactivity.Enabled = getEnvBool(EnvInactivityEnabled, cfg.Inactivity.Enabled, &errs)
	cfg.Inactivity.Timeout = getEnvDuration(EnvInactivityTimeout, cfg.Inactivity.Timeout, &errs)
	cfg.Inactivity.DebounceWindow = getEnvDuration(EnvInactivityDebounce, cfg.Inactivity.DebounceWindow, &errs)
	cfg.Token.ExpirationBuffer = getEnvDuration(EnvTokenExpirationBuffer, cfg.Token.ExpirationBuffer, &errs)
	cfg.Token.RefreshKey = getEnv(EnvRefreshKey, cfg.Token.RefreshKey)
	cfg.Redis.Addr = getEnv(EnvRedisAddr, cfg.Redis.Addr)
	cfg.Redis.Prefix = getEnv(EnvRedisPrefix, cfg.Redis.Prefix)
	cfg.Redis.Scope = getEnv(EnvRedisScope, cfg.Redis.Scope)
	cfg.Audit.Enabled = getEnvBool(EnvAuditEnabled, cfg.Audit.Enabled, &errs)
	cfg.Metrics.Enabled = getEnvBool(EnvMetricsEnabled, cfg.Metrics.Enabled, &errs)
	if !cfg.Metrics.Enabled {
		cfg.Metrics.EnableLatencyHistograms = false
	}

	if err := errors.Join(errs...); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg = cloneConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %v", key, err))
		return defaultValue
	}
	return d
}

func getEnvBool(key string, defaultValue bool, errs *[]error) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %v", key, err))
		return defaultValue
	}
	return b
}
