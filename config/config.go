// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/artpar/awsapigw/domain/provision"
)

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	KeyService   KeyServiceConfig   `yaml:"key_service"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Cache        CacheConfig        `yaml:"cache"`
	API          APIConfig          `yaml:"api"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	OpenAPI      OpenAPIConfig      `yaml:"openapi"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DatabaseConfig configures the record store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`

	// ParentTable is the billing platform's service table (postgres only).
	// When set, records cascade-delete with their service.
	ParentTable string `yaml:"parent_table,omitempty"`

	MaxOpenConns    int           `yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime,omitempty"`
}

// KeyServiceConfig configures the API gateway client.
// Use "aws" for AWS API Gateway, "remote" for an HTTP control plane, or
// "memory" for a sandbox gateway.
type KeyServiceConfig struct {
	Mode string `yaml:"mode"`

	// Default credentials and target, overridden per callback.
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	Region          string `yaml:"region,omitempty"`
	EndpointURL     string `yaml:"endpoint_url,omitempty"`

	RateLimitPerSec  float64       `yaml:"rate_limit_per_sec"`
	Burst            int           `yaml:"burst"`
	RetryMaxAttempts int           `yaml:"retry_max_attempts"`
	Timeout          time.Duration `yaml:"timeout"`
}

// ProvisioningConfig holds lifecycle defaults. Reloadable.
type ProvisioningConfig struct {
	KeyNamePrefix   string           `yaml:"key_name_prefix"`
	Region          string           `yaml:"region"`
	UsagePlans      string           `yaml:"usage_plans,omitempty"` // comma or newline separated
	PlanConcurrency int              `yaml:"plan_concurrency"`
	CreateLock      CreateLockConfig `yaml:"create_lock"`
	DisplayTimezone string           `yaml:"display_timezone,omitempty"`
}

// CreateLockConfig guards concurrent creates of the same service.
// The lock lives in Redis when the cache is enabled, in process otherwise.
type CreateLockConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// CacheConfig configures the Redis key state cache.
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	DBIndex        int           `yaml:"db_index"`
	Auth           string        `yaml:"auth,omitempty"`
	Prefix         string        `yaml:"prefix"`
	PersistentConn bool          `yaml:"persistent_conn"`
	PoolSize       int           `yaml:"pool_size,omitempty"`
	Timeout        time.Duration `yaml:"timeout"`
	TTL            time.Duration `yaml:"ttl"`
}

// APIConfig configures the callback API.
type APIConfig struct {
	// TokenHash is the bcrypt hash of the bearer token callers must present.
	// Empty disables authentication.
	TokenHash string `yaml:"token_hash,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// OpenAPIConfig configures OpenAPI/Swagger documentation.
type OpenAPIConfig struct {
	Enabled bool `yaml:"enabled"` // Enable /swagger endpoints
}

// Endpoint returns the default endpoint callbacks start from.
func (k KeyServiceConfig) Endpoint() provision.Endpoint {
	return provision.Endpoint{
		AccessKeyID:     k.AccessKeyID,
		SecretAccessKey: k.SecretAccessKey,
		Region:          k.Region,
		EndpointURL:     k.EndpointURL,
	}
}

// Location returns the display zone for key timestamps.
func (p ProvisioningConfig) Location() *time.Location {
	if p.DisplayTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds a configuration from YAML with ${VAR} references expanded.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	cfg := newConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	AWSAPIGW_SERVER_HOST             - Server host (default: 0.0.0.0)
//	AWSAPIGW_SERVER_PORT             - Server port (default: 8080)
//	AWSAPIGW_DATABASE_DRIVER         - sqlite or postgres (default: sqlite)
//	AWSAPIGW_DATABASE_DSN            - Database path or DSN (default: awsapigw.db)
//	AWSAPIGW_DATABASE_PARENT_TABLE   - Parent service table for cascade deletes
//	AWSAPIGW_KEY_SERVICE_MODE        - aws, remote or memory (default: aws)
//	AWSAPIGW_AWS_ACCESS_KEY_ID       - Default access key id
//	AWSAPIGW_AWS_SECRET_ACCESS_KEY   - Default secret access key
//	AWSAPIGW_AWS_REGION              - Default region
//	AWSAPIGW_AWS_ENDPOINT_URL        - Endpoint override
//	AWSAPIGW_KEY_NAME_PREFIX         - Key name prefix (default: whmcs_)
//	AWSAPIGW_USAGE_PLANS             - Default usage plans
//	AWSAPIGW_CACHE_ENABLED           - Enable the Redis cache
//	AWSAPIGW_CACHE_HOST              - Redis host
//	AWSAPIGW_CACHE_PORT              - Redis port
//	AWSAPIGW_CACHE_AUTH              - Redis password
//	AWSAPIGW_API_TOKEN_HASH          - bcrypt hash of the callback token
//	AWSAPIGW_LOG_LEVEL               - debug, info, warn, error (default: info)
//	AWSAPIGW_LOG_FORMAT              - json or console (default: json)
//	AWSAPIGW_METRICS_ENABLED         - Enable /metrics (default: true)
//	AWSAPIGW_OPENAPI_ENABLED         - Enable /swagger (default: true)
func LoadFromEnv() (*Config, error) {
	cfg := newConfig()
	cfg.Metrics.Enabled = true
	cfg.OpenAPI.Enabled = true

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// newConfig presets defaults whose zero value is also valid.
func newConfig() Config {
	return Config{Cache: CacheConfig{DBIndex: 1}}
}

// LoadWithFallback loads from file when it exists, otherwise from the environment.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies AWSAPIGW_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("AWSAPIGW_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("AWSAPIGW_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Database configuration
	if v := os.Getenv("AWSAPIGW_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("AWSAPIGW_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("AWSAPIGW_DATABASE_PARENT_TABLE"); v != "" {
		cfg.Database.ParentTable = v
	}

	// Key service configuration
	if v := os.Getenv("AWSAPIGW_KEY_SERVICE_MODE"); v != "" {
		cfg.KeyService.Mode = v
	}
	if v := os.Getenv("AWSAPIGW_AWS_ACCESS_KEY_ID"); v != "" {
		cfg.KeyService.AccessKeyID = v
	}
	if v := os.Getenv("AWSAPIGW_AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.KeyService.SecretAccessKey = v
	}
	if v := os.Getenv("AWSAPIGW_AWS_REGION"); v != "" {
		cfg.KeyService.Region = v
	}
	if v := os.Getenv("AWSAPIGW_AWS_ENDPOINT_URL"); v != "" {
		cfg.KeyService.EndpointURL = v
	}

	// Provisioning defaults
	if v := os.Getenv("AWSAPIGW_KEY_NAME_PREFIX"); v != "" {
		cfg.Provisioning.KeyNamePrefix = v
	}
	if v := os.Getenv("AWSAPIGW_USAGE_PLANS"); v != "" {
		cfg.Provisioning.UsagePlans = v
	}

	// Cache configuration
	if v := os.Getenv("AWSAPIGW_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("AWSAPIGW_CACHE_HOST"); v != "" {
		cfg.Cache.Host = v
	}
	if v := os.Getenv("AWSAPIGW_CACHE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Cache.Port = port
		}
	}
	if v := os.Getenv("AWSAPIGW_CACHE_AUTH"); v != "" {
		cfg.Cache.Auth = v
	}

	// API configuration
	if v := os.Getenv("AWSAPIGW_API_TOKEN_HASH"); v != "" {
		cfg.API.TokenHash = v
	}

	// Logging configuration
	if v := os.Getenv("AWSAPIGW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AWSAPIGW_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("AWSAPIGW_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}

	// OpenAPI configuration
	if v := os.Getenv("AWSAPIGW_OPENAPI_ENABLED"); v != "" {
		cfg.OpenAPI.Enabled = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "awsapigw.db"
	}

	if cfg.KeyService.Mode == "" {
		cfg.KeyService.Mode = "aws"
	}
	if cfg.KeyService.Burst == 0 {
		cfg.KeyService.Burst = 5
	}
	if cfg.KeyService.Timeout == 0 {
		cfg.KeyService.Timeout = 10 * time.Second
	}

	if cfg.Provisioning.KeyNamePrefix == "" {
		cfg.Provisioning.KeyNamePrefix = provision.DefaultKeyNamePrefix
	}
	if cfg.Provisioning.Region == "" {
		cfg.Provisioning.Region = provision.DefaultRegion
	}
	if cfg.Provisioning.PlanConcurrency == 0 {
		cfg.Provisioning.PlanConcurrency = 4
	}
	if cfg.Provisioning.CreateLock.TTL == 0 {
		cfg.Provisioning.CreateLock.TTL = time.Minute
	}

	if cfg.Cache.Host == "" {
		cfg.Cache.Host = "127.0.0.1"
	}
	if cfg.Cache.Port == 0 {
		cfg.Cache.Port = 6379
	}
	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = "awsapigw:"
	}
	if cfg.Cache.Timeout == 0 {
		cfg.Cache.Timeout = 3 * time.Second
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	validDrivers := map[string]bool{"sqlite": true, "postgres": true}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be 'sqlite' or 'postgres', got %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if cfg.Database.ParentTable != "" && cfg.Database.Driver != "postgres" {
		return fmt.Errorf("database.parent_table requires the postgres driver")
	}

	validModes := map[string]bool{"aws": true, "remote": true, "memory": true}
	if !validModes[cfg.KeyService.Mode] {
		return fmt.Errorf("key_service.mode must be one of: aws, remote, memory")
	}
	if cfg.KeyService.RateLimitPerSec < 0 {
		return fmt.Errorf("key_service.rate_limit_per_sec must not be negative")
	}
	if cfg.KeyService.RetryMaxAttempts < 0 {
		return fmt.Errorf("key_service.retry_max_attempts must not be negative")
	}

	if len(cfg.Provisioning.Region) > provision.MaxRegionLen {
		return fmt.Errorf("provisioning.region must be at most %d characters", provision.MaxRegionLen)
	}
	if len(cfg.KeyService.Region) > provision.MaxRegionLen {
		return fmt.Errorf("key_service.region must be at most %d characters", provision.MaxRegionLen)
	}
	if cfg.Provisioning.PlanConcurrency < 1 {
		return fmt.Errorf("provisioning.plan_concurrency must be at least 1")
	}
	if cfg.Provisioning.DisplayTimezone != "" {
		if _, err := time.LoadLocation(cfg.Provisioning.DisplayTimezone); err != nil {
			return fmt.Errorf("provisioning.display_timezone: %w", err)
		}
	}

	if cfg.Cache.DBIndex < 0 {
		return fmt.Errorf("cache.db_index must not be negative")
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	return nil
}

// ReloadableFields returns which fields can be changed without restart.
func ReloadableFields() []string {
	return []string{
		"provisioning.key_name_prefix",
		"provisioning.region",
		"provisioning.usage_plans",
		"provisioning.plan_concurrency",
		"key_service.access_key_id",
		"key_service.secret_access_key",
		"key_service.region",
		"key_service.endpoint_url",
		"logging.level",
	}
}

// NonReloadableFields returns which fields require a restart.
func NonReloadableFields() []string {
	return []string{
		"server.host",
		"server.port",
		"database.driver",
		"database.dsn",
		"key_service.mode",
		"cache",
		"api.token_hash",
	}
}
