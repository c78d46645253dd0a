// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Identity      IdentityConfig      `yaml:"identity"`
	Definitions   DefinitionsConfig   `yaml:"definitions"`
	Specs         SpecsConfig         `yaml:"specs"`
	Datasets      DatasetsConfig      `yaml:"datasets"`
	Views         ViewsConfig         `yaml:"views"`
	Capability    CapabilityConfig    `yaml:"capability"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// Identity modes.
const (
	IdentityHMAC = "hmac"
	IdentityNone = "none"
)

// IdentityConfig describes JWT verification settings. Mode "none" skips
// token checks and runs every request as DevIdentity.
type IdentityConfig struct {
	Mode        string            `yaml:"mode"`
	Issuer      string            `yaml:"issuer"`
	Audience    string            `yaml:"audience"`
	SecretEnv   string            `yaml:"secret_env"`
	Algorithms  []string          `yaml:"algorithms"`
	ClaimPaths  map[string]string `yaml:"claim_paths"`
	DevIdentity DevIdentityConfig `yaml:"dev_identity"`
}

// DevIdentityConfig is the identity assumed when authentication is off.
type DevIdentityConfig struct {
	SubjectID string   `yaml:"subject_id"`
	TenantID  string   `yaml:"tenant_id"`
	Roles     []string `yaml:"roles"`
}

// DefinitionsConfig describes where to find table definition YAML files.
type DefinitionsConfig struct {
	Directories []string `yaml:"directories"`
}

// SpecsConfig describes where to find the OpenAPI documents that type
// table records.
type SpecsConfig struct {
	Directory string   `yaml:"directory"`
	Files     []string `yaml:"files"`
}

// DatasetsConfig describes record sources, caching and failure handling.
type DatasetsConfig struct {
	BaseDir     string               `yaml:"base_dir"`
	LoadTimeout time.Duration        `yaml:"load_timeout"`
	Postgres    PostgresConfig       `yaml:"postgres"`
	Cache       DatasetCacheConfig   `yaml:"cache"`
	Breaker     CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// PostgresConfig describes the connection pool for postgres sources.
type PostgresConfig struct {
	DSNEnv          string        `yaml:"dsn_env"`
	MaxConns        int32         `yaml:"max_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Cache drivers.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// DatasetCacheConfig describes the loaded-records cache.
type DatasetCacheConfig struct {
	Driver     string        `yaml:"driver"`
	AddrEnv    string        `yaml:"addr_env"`
	DB         int           `yaml:"db"`
	KeyPrefix  string        `yaml:"key_prefix"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// CircuitBreakerConfig describes the breaker guarding source loads.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// ViewsConfig describes open view limits.
type ViewsConfig struct {
	IdleTTL            time.Duration `yaml:"idle_ttl"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	MaxViews           int           `yaml:"max_views"`
	MaxViewsPerSubject int           `yaml:"max_views_per_subject"`
	DefaultPageSize    int           `yaml:"default_page_size"`
	MaxPageSize        int           `yaml:"max_page_size"`
	PageSizeOptions    []int         `yaml:"page_size_options"`
}

// CapabilityConfig describes authorization settings.
type CapabilityConfig struct {
	StaticPolicyFile string      `yaml:"static_policy_file"`
	Cache            CacheConfig `yaml:"cache"`
}

// CacheConfig describes cache settings.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"` // json or console
	Tracing   TracingConfig `yaml:"tracing"`
	Metrics   MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Partition-Id",
					"X-Correlation-Id"},
				MaxAge: 86400,
			},
		},
		Identity: IdentityConfig{
			Mode:       IdentityHMAC,
			SecretEnv:  "GRIDVIEW_JWT_SECRET",
			Algorithms: []string{"HS256"},
			ClaimPaths: map[string]string{
				"subject_id": "sub",
				"tenant_id":  "tenant_id",
				"email":      "email",
				"roles":      "roles",
				"locale":     "locale",
			},
			DevIdentity: DevIdentityConfig{
				SubjectID: "dev",
				TenantID:  "dev",
				Roles:     []string{"admin"},
			},
		},
		Definitions: DefinitionsConfig{
			Directories: []string{"/definitions"},
		},
		Specs: SpecsConfig{
			Directory: "/specs",
		},
		Datasets: DatasetsConfig{
			LoadTimeout: 10 * time.Second,
			Postgres: PostgresConfig{
				DSNEnv:          "GRIDVIEW_POSTGRES_DSN",
				MaxConns:        10,
				ConnMaxLifetime: 30 * time.Minute,
			},
			Cache: DatasetCacheConfig{
				Driver:     CacheMemory,
				AddrEnv:    "GRIDVIEW_REDIS_ADDR",
				KeyPrefix:  "gridview:dataset:",
				DefaultTTL: 5 * time.Minute,
				MaxEntries: 256,
			},
			Breaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          30 * time.Second,
			},
		},
		Views: ViewsConfig{
			IdleTTL:            30 * time.Minute,
			SweepInterval:      time.Minute,
			MaxViews:           10000,
			MaxViewsPerSubject: 50,
			DefaultPageSize:    10,
			MaxPageSize:        500,
			PageSizeOptions:    []int{10, 20, 50, 100},
		},
		Capability: CapabilityConfig{
			Cache: CacheConfig{
				TTL:        5 * time.Minute,
				MaxEntries: 10000,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	switch c.Identity.Mode {
	case IdentityHMAC:
		if c.Identity.Issuer == "" {
			errs = append(errs, "identity.issuer is required")
		}
		if c.Identity.Audience == "" {
			errs = append(errs, "identity.audience is required")
		}
		if c.Identity.SecretEnv == "" {
			errs = append(errs, "identity.secret_env is required")
		}
	case IdentityNone:
		if c.Identity.DevIdentity.SubjectID == "" || c.Identity.DevIdentity.TenantID == "" {
			errs = append(errs, "identity.dev_identity needs subject_id and tenant_id")
		}
	default:
		errs = append(errs, fmt.Sprintf("identity.mode %q must be %q or %q", c.Identity.Mode, IdentityHMAC, IdentityNone))
	}

	if len(c.Definitions.Directories) == 0 {
		errs = append(errs, "definitions.directories must list at least one directory")
	}

	switch c.Datasets.Cache.Driver {
	case CacheMemory, CacheRedis:
	default:
		errs = append(errs, fmt.Sprintf("datasets.cache.driver %q must be %q or %q", c.Datasets.Cache.Driver, CacheMemory, CacheRedis))
	}
	if c.Datasets.Cache.Driver == CacheRedis && c.Datasets.Cache.AddrEnv == "" {
		errs = append(errs, "datasets.cache.addr_env is required for the redis driver")
	}
	if c.Datasets.Breaker.FailureThreshold < 1 {
		errs = append(errs, "datasets.circuit_breaker.failure_threshold must be positive")
	}

	if c.Views.DefaultPageSize < 1 {
		errs = append(errs, "views.default_page_size must be positive")
	}
	if c.Views.MaxPageSize < c.Views.DefaultPageSize {
		errs = append(errs, "views.max_page_size must be at least views.default_page_size")
	}
	for _, n := range c.Views.PageSizeOptions {
		if n < 1 || n > c.Views.MaxPageSize {
			errs = append(errs, fmt.Sprintf("views.page_size_options entry %d must be between 1 and max_page_size", n))
		}
	}
	if c.Views.IdleTTL <= 0 {
		errs = append(errs, "views.idle_ttl must be positive")
	}

	if f := c.Observability.LogFormat; f != "" && f != "json" && f != "console" {
		errs = append(errs, fmt.Sprintf("observability.log_format %q must be json or console", f))
	}
	if r := c.Observability.Tracing.SamplingRate; r < 0 || r > 1 {
		errs = append(errs, "observability.tracing.sampling_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads GRIDVIEW_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRIDVIEW_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GRIDVIEW_IDENTITY_MODE"); v != "" {
		cfg.Identity.Mode = v
	}
	if v := os.Getenv("GRIDVIEW_IDENTITY_ISSUER"); v != "" {
		cfg.Identity.Issuer = v
	}
	if v := os.Getenv("GRIDVIEW_IDENTITY_AUDIENCE"); v != "" {
		cfg.Identity.Audience = v
	}
	if v := os.Getenv("GRIDVIEW_DEFINITIONS_DIRS"); v != "" {
		cfg.Definitions.Directories = strings.Split(v, ",")
	}
	if v := os.Getenv("GRIDVIEW_DATASETS_CACHE_DRIVER"); v != "" {
		cfg.Datasets.Cache.Driver = v
	}
	if v := os.Getenv("GRIDVIEW_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("GRIDVIEW_OBSERVABILITY_LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
