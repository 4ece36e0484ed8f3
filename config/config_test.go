package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/awsapigw/config"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9090

database:
  driver: "postgres"
  dsn: "postgres://billing@localhost/billing"
  parent_table: "public.tblhosting"

key_service:
  mode: "aws"
  access_key_id: "AKIA"
  secret_access_key: "secret"
  region: "eu-west-1"
  rate_limit_per_sec: 8
  retry_max_attempts: 2

provisioning:
  key_name_prefix: "acme_"
  usage_plans: "plan-a, plan-b"
  plan_concurrency: 2
  create_lock:
    enabled: true
    ttl: 30s

cache:
  enabled: true
  host: "redis.local"
  db_index: 1
  ttl: 2m
`

	cfg := writeAndLoad(t, content)

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9090 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.ParentTable != "public.tblhosting" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.KeyService.RateLimitPerSec != 8 || cfg.KeyService.RetryMaxAttempts != 2 {
		t.Errorf("KeyService = %+v", cfg.KeyService)
	}
	ep := cfg.KeyService.Endpoint()
	if ep.AccessKeyID != "AKIA" || ep.SecretAccessKey != "secret" || ep.Region != "eu-west-1" {
		t.Errorf("Endpoint = %+v", ep)
	}
	if cfg.Provisioning.KeyNamePrefix != "acme_" || cfg.Provisioning.PlanConcurrency != 2 {
		t.Errorf("Provisioning = %+v", cfg.Provisioning)
	}
	if !cfg.Provisioning.CreateLock.Enabled || cfg.Provisioning.CreateLock.TTL != 30*time.Second {
		t.Errorf("CreateLock = %+v", cfg.Provisioning.CreateLock)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Host != "redis.local" || cfg.Cache.DBIndex != 1 || cfg.Cache.TTL != 2*time.Minute {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, "{}\n")

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8080 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "awsapigw.db" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.KeyService.Mode != "aws" {
		t.Errorf("KeyService.Mode = %s, want aws", cfg.KeyService.Mode)
	}
	if cfg.Provisioning.KeyNamePrefix != "whmcs_" {
		t.Errorf("KeyNamePrefix = %s, want whmcs_", cfg.Provisioning.KeyNamePrefix)
	}
	if cfg.Provisioning.Region != "us-east-1" {
		t.Errorf("Region = %s, want us-east-1", cfg.Provisioning.Region)
	}
	if cfg.Provisioning.CreateLock.Enabled {
		t.Error("create lock should be off by default")
	}
	if cfg.Cache.Enabled {
		t.Error("cache should be off by default")
	}
	if cfg.Cache.Prefix != "awsapigw:" || cfg.Cache.Port != 6379 || cfg.Cache.Timeout != 3*time.Second || cfg.Cache.DBIndex != 1 {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Provisioning.Location() != time.UTC {
		t.Error("default display zone should be UTC")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_AWS_SECRET", "from-env")

	cfg := writeAndLoad(t, `
key_service:
  secret_access_key: "${TEST_AWS_SECRET}"
`)

	if cfg.KeyService.SecretAccessKey != "from-env" {
		t.Errorf("SecretAccessKey = %s, want from-env", cfg.KeyService.SecretAccessKey)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"driver", "database:\n  driver: mysql\n"},
		{"parent table on sqlite", "database:\n  parent_table: tblhosting\n"},
		{"postgres without dsn", "database:\n  driver: postgres\n"},
		{"mode", "key_service:\n  mode: gcp\n"},
		{"negative rate", "key_service:\n  rate_limit_per_sec: -1\n"},
		{"region too long", "provisioning:\n  region: this-region-name-is-too-long\n"},
		{"concurrency", "provisioning:\n  plan_concurrency: -2\n"},
		{"timezone", "provisioning:\n  display_timezone: Mars/Olympus\n"},
		{"cache ttl", "cache:\n  ttl: -1s\n"},
		{"log format", "logging:\n  format: xml\n"},
		{"yaml", "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := writeAndLoadErr(t, tt.content); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("AWSAPIGW_SERVER_PORT", "9000")
	t.Setenv("AWSAPIGW_DATABASE_DSN", "/tmp/keys.db")
	t.Setenv("AWSAPIGW_KEY_SERVICE_MODE", "memory")
	t.Setenv("AWSAPIGW_AWS_REGION", "ap-south-1")
	t.Setenv("AWSAPIGW_USAGE_PLANS", "p1\np2")
	t.Setenv("AWSAPIGW_CACHE_ENABLED", "yes")
	t.Setenv("AWSAPIGW_CACHE_PORT", "6380")
	t.Setenv("AWSAPIGW_LOG_LEVEL", "debug")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Database.DSN != "/tmp/keys.db" {
		t.Errorf("DSN = %s", cfg.Database.DSN)
	}
	if cfg.KeyService.Mode != "memory" || cfg.KeyService.Region != "ap-south-1" {
		t.Errorf("KeyService = %+v", cfg.KeyService)
	}
	if cfg.Provisioning.UsagePlans != "p1\np2" {
		t.Errorf("UsagePlans = %q", cfg.Provisioning.UsagePlans)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Port != 6380 {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %s", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled || !cfg.OpenAPI.Enabled {
		t.Error("metrics and openapi should default on without a file")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("AWSAPIGW_KEY_NAME_PREFIX", "env_")
	t.Setenv("AWSAPIGW_SERVER_PORT", "not-a-port")

	cfg := writeAndLoad(t, `
server:
  port: 7000
provisioning:
  key_name_prefix: "file_"
`)

	if cfg.Provisioning.KeyNamePrefix != "env_" {
		t.Errorf("KeyNamePrefix = %s, want env_", cfg.Provisioning.KeyNamePrefix)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("invalid env port should be ignored, Port = %d", cfg.Server.Port)
	}
}

func TestLoadWithFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7100\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadWithFallback(path)
	if err != nil {
		t.Fatalf("LoadWithFallback error: %v", err)
	}
	if cfg.Server.Port != 7100 {
		t.Errorf("Port = %d, want 7100 from file", cfg.Server.Port)
	}

	cfg, err = config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadWithFallback env error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestLocation(t *testing.T) {
	cfg := writeAndLoad(t, "provisioning:\n  display_timezone: Europe/Berlin\n")
	if got := cfg.Provisioning.Location().String(); got != "Europe/Berlin" {
		t.Errorf("Location = %s, want Europe/Berlin", got)
	}
}

func TestReloadableFields(t *testing.T) {
	reloadable := map[string]bool{}
	for _, f := range config.ReloadableFields() {
		reloadable[f] = true
	}
	for _, f := range []string{"provisioning.usage_plans", "logging.level"} {
		if !reloadable[f] {
			t.Errorf("%s should be reloadable", f)
		}
	}
	for _, f := range config.NonReloadableFields() {
		if reloadable[f] {
			t.Errorf("%s listed as both reloadable and not", f)
		}
	}
}

// Helpers

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := writeAndLoadErr(t, content)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}

func writeAndLoadErr(t *testing.T, content string) (*config.Config, error) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return config.Load(path)
}
