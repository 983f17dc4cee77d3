package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Auth      AuthConfig      `yaml:"auth"`
	Actions   ActionsConfig   `yaml:"actions"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Uploads   UploadsConfig   `yaml:"uploads"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	// RequestTimeout bounds one pipeline run, upstream retries included.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type TelemetryConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// AuthConfig lists the bearer tokens accepted by the HTTP surface. Tokens are stored as SHA-256
// hex digests; APISecret is accepted in clear for local setups.
type AuthConfig struct {
	APISecret string      `yaml:"api_secret"`
	Keys      []KeyConfig `yaml:"keys"`
}

type KeyConfig struct {
	Name  string `yaml:"name"`
	Hash  string `yaml:"hash"`
	Admin bool   `yaml:"admin"`
}

// Enabled reports whether any token is configured.
func (a AuthConfig) Enabled() bool {
	return a.APISecret != "" || len(a.Keys) > 0
}

type ActionsConfig struct {
	// Source is "file" or "postgres".
	Source          string `yaml:"source"`
	Path            string `yaml:"path"`
	Strict          bool   `yaml:"strict"`
	DefaultAction   string `yaml:"default_action"`
	PersistDefaults bool   `yaml:"persist_defaults"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type CacheConfig struct {
	// Backend is "memory", "redis" or "none".
	Backend         string        `yaml:"backend"`
	TTL             time.Duration `yaml:"ttl"`
	MaxEntries      int           `yaml:"max_entries"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	Prefix          string        `yaml:"prefix"`
}

type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`
	// Backend is "memory" or "redis".
	Backend       string        `yaml:"backend"`
	Limit         int64         `yaml:"limit"`
	Window        time.Duration `yaml:"window"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

type UpstreamConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Provider             string               `yaml:"provider"`
	BaseURL              string               `yaml:"base_url"`
	APIKey               string               `yaml:"api_key"`
	Model                string               `yaml:"model"`
	Temperature          float64              `yaml:"temperature"`
	Timeout              time.Duration        `yaml:"timeout"`
	MaxRetries           int                  `yaml:"max_retries"`
	RetryInitialInterval time.Duration        `yaml:"retry_initial_interval"`
	RetryMaxInterval     time.Duration        `yaml:"retry_max_interval"`
	Headers              map[string]string    `yaml:"headers"`
	CircuitBreaker       CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

type UploadsConfig struct {
	MaxBytes          int64    `yaml:"max_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8000,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
			RequestTimeout:   90 * time.Second,
		},
		Telemetry: TelemetryConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
		Actions: ActionsConfig{
			Source:          "file",
			Path:            "configs/actions.yaml",
			DefaultAction:   "default",
			PersistDefaults: true,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "dentassist",
			User:            "dentassist",
			MaxOpenConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			PoolSize:  20,
		},
		Cache: CacheConfig{
			Backend:         "memory",
			TTL:             30 * time.Minute,
			MaxEntries:      10_000,
			CleanupInterval: 30 * time.Minute,
			Prefix:          "dentassist:cache:",
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			Backend:       "memory",
			Limit:         100,
			Window:        time.Hour,
			PruneInterval: 10 * time.Minute,
		},
		Upstream: UpstreamConfig{
			Provider:             "openai",
			BaseURL:              "http://localhost:1234/v1",
			Model:                "openai/gpt-oss-20b",
			Temperature:          0.7,
			Timeout:              30 * time.Second,
			MaxRetries:           1,
			RetryInitialInterval: 500 * time.Millisecond,
			RetryMaxInterval:     5 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:      5,
				RecoveryProbeInterval: 30 * time.Second,
			},
		},
		Uploads: UploadsConfig{
			MaxBytes:          50 << 20,
			AllowedExtensions: []string{".pdf", ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".txt", ".doc", ".docx"},
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if !oneOf(c.Actions.Source, "file", "postgres") {
		errs = append(errs, fmt.Errorf("actions.source %q must be file or postgres", c.Actions.Source))
	}
	if c.Actions.Source == "file" && c.Actions.Path == "" {
		errs = append(errs, errors.New("actions.path is required for the file source"))
	}
	if strings.TrimSpace(c.Actions.DefaultAction) == "" {
		errs = append(errs, errors.New("actions.default_action is empty"))
	}
	if !oneOf(c.Cache.Backend, "memory", "redis", "none") {
		errs = append(errs, fmt.Errorf("cache.backend %q must be memory, redis or none", c.Cache.Backend))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if !oneOf(c.RateLimit.Backend, "memory", "redis") {
		errs = append(errs, fmt.Errorf("ratelimit.backend %q must be memory or redis", c.RateLimit.Backend))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("ratelimit.limit and ratelimit.window must be positive"))
	}
	if (c.Cache.Backend == "redis" || (c.RateLimit.Enabled && c.RateLimit.Backend == "redis")) && len(c.Redis.Addresses) == 0 {
		errs = append(errs, errors.New("redis.addresses is required by the redis backends"))
	}
	if c.Upstream.MaxRetries < 0 {
		errs = append(errs, errors.New("upstream.max_retries must not be negative"))
	}
	if c.Uploads.MaxBytes <= 0 {
		errs = append(errs, errors.New("uploads.max_bytes must be positive"))
	}
	return errors.Join(errs...)
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
