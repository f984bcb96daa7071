// Package config loads engine configuration from config.yaml and INTAKE_ environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tjfontaine/intake-engine/internal/auth"
	"github.com/tjfontaine/intake-engine/internal/domain"
)

// DefaultPath is read when no explicit config path is given.
const DefaultPath = "config.yaml"

// EnvPrefix marks environment overrides; "__" separates nesting levels.
const EnvPrefix = "INTAKE_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Storage   StorageConfig   `koanf:"storage"`
	Relay     RelayConfig     `koanf:"relay"`
	Tenants   TenantsConfig   `koanf:"tenants"`
	Funnel    FunnelConfig    `koanf:"funnel"`
	Admin     AdminConfig     `koanf:"admin"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port            int             `koanf:"port"`
	RequestTimeout  time.Duration   `koanf:"request_timeout"`
	ShutdownTimeout time.Duration   `koanf:"shutdown_timeout"`
	AdminHosts      []string        `koanf:"admin_hosts"`
	SecureCookies   bool            `koanf:"secure_cookies"`
	RateLimit       RateLimitConfig `koanf:"rate_limit"`
}

// RateLimitConfig bounds POST /api/intake per client address. Requests <= 0 disables it.
type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Period   time.Duration `koanf:"period"`
	Clients  int           `koanf:"clients"`
}

type LogConfig struct {
	Level      string `koanf:"level"`  // debug, info, warn, error
	Format     string `koanf:"format"` // json, text
	File       string `koanf:"file"`   // empty logs to stdout
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, postgres, memory, file
	SQLite SQLiteConfig `koanf:"sqlite"`
	// Database is the generic database configuration for multi-dialect support
	Database DatabaseConfig `koanf:"database"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// DatabaseConfig is the generic database configuration supporting multiple dialects.
type DatabaseConfig struct {
	Driver string `koanf:"driver"` // sqlite, postgres
	DSN    string `koanf:"dsn"`
}

type RelayConfig struct {
	WebhookURL          string            `koanf:"webhook_url"`
	APIKey              string            `koanf:"api_key"`
	Mode                string            `koanf:"mode"` // async, sync
	Timeout             time.Duration     `koanf:"timeout"`
	StatusTimeout       time.Duration     `koanf:"status_timeout"`
	Retries             int               `koanf:"retries"`
	Workers             int               `koanf:"workers"`
	QueueSize           int               `koanf:"queue_size"`
	AllowPrivateTargets bool              `koanf:"allow_private_targets"`
	Headers             map[string]string `koanf:"headers"`
}

type TenantsConfig struct {
	CacheTTL  time.Duration `koanf:"cache_ttl"`
	CacheSize int           `koanf:"cache_size"`
	// Definitions are served directly when storage.type is file, and seeded by cmd/seed.
	Definitions []TenantConfig `koanf:"definitions"`
}

// TenantConfig is a tenant written in YAML. Config and Questions use the same camelCase keys
// as the stored JSON.
type TenantConfig struct {
	ID        string           `koanf:"id"`
	Name      string           `koanf:"name"`
	Domains   []string         `koanf:"domains"`
	Config    map[string]any   `koanf:"config"`
	Questions []map[string]any `koanf:"questions"`
}

type FunnelConfig struct {
	SessionScope string        `koanf:"session_scope"`
	SessionTTL   time.Duration `koanf:"session_ttl"`
	MaxSessions  int           `koanf:"max_sessions"`
	PollInterval time.Duration `koanf:"poll_interval"`
	// IntakeURL points funnels at a remote intake API instead of the in-process one.
	IntakeURL string `koanf:"intake_url"`
}

type AdminConfig struct {
	APIKeys []auth.Key `koanf:"api_keys"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var defaults = map[string]any{
	"server.port":               8080,
	"server.request_timeout":    "30s",
	"server.shutdown_timeout":   "15s",
	"server.admin_hosts":        []string{"localhost"},
	"server.rate_limit.period":  "1m",
	"server.rate_limit.clients": 10000,
	"log.level":                 "info",
	"log.format":                "json",
	"log.max_size_mb":           100,
	"log.max_backups":           5,
	"log.max_age_days":          28,
	"storage.type":              "sqlite",
	"storage.sqlite.path":       "intake.db",
	"relay.mode":                "async",
	"relay.timeout":             "15s",
	"relay.status_timeout":      "10s",
	"relay.workers":             4,
	"relay.queue_size":          256,
	"tenants.cache_ttl":         "60s",
	"tenants.cache_size":        512,
	"funnel.session_scope":      "tab",
	"funnel.session_ttl":        "2h",
	"funnel.max_sessions":       10000,
	"funnel.poll_interval":      "2s",
	"telemetry.enabled":         true,
	"telemetry.service_name":    "intake-engine",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (DefaultPath when empty), then INTAKE_ environment overrides, then fills
// defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, v); err != nil {
				return nil, fmt.Errorf("default %s: %w", key, err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Relay.WebhookURL = substituteEnvVars(cfg.Relay.WebhookURL)
	cfg.Relay.APIKey = substituteEnvVars(cfg.Relay.APIKey)
	cfg.Storage.Database.DSN = substituteEnvVars(cfg.Storage.Database.DSN)
	cfg.Funnel.IntakeURL = substituteEnvVars(cfg.Funnel.IntakeURL)
	for name, v := range cfg.Relay.Headers {
		cfg.Relay.Headers[name] = substituteEnvVars(v)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Storage.Type {
	case "sqlite", "postgres", "memory", "file":
	default:
		return fmt.Errorf("storage.type %q is not one of sqlite, postgres, memory, file", c.Storage.Type)
	}
	if c.Storage.Type == "postgres" && c.Storage.Database.DSN == "" {
		return fmt.Errorf("storage.database.dsn is required for postgres")
	}
	switch c.Relay.Mode {
	case "async", "sync":
	default:
		return fmt.Errorf("relay.mode %q is not async or sync", c.Relay.Mode)
	}
	if !domain.SessionScope(c.Funnel.SessionScope).Valid() {
		return fmt.Errorf("funnel.session_scope %q is not tab or load", c.Funnel.SessionScope)
	}
	return nil
}

// Tenant converts the YAML definition into a validated tenant.
func (t TenantConfig) Tenant() (domain.Tenant, error) {
	tn := domain.Tenant{ID: t.ID, Name: t.Name}
	if t.Config != nil {
		raw, err := json.Marshal(t.Config)
		if err != nil {
			return tn, fmt.Errorf("tenant %q config: %w", t.Name, err)
		}
		if err := json.Unmarshal(raw, &tn.Config); err != nil {
			return tn, fmt.Errorf("tenant %q config: %w", t.Name, err)
		}
	}
	if t.Questions != nil {
		raw, err := json.Marshal(t.Questions)
		if err != nil {
			return tn, fmt.Errorf("tenant %q questions: %w", t.Name, err)
		}
		if err := json.Unmarshal(raw, &tn.Questions); err != nil {
			return tn, fmt.Errorf("tenant %q questions: %w", t.Name, err)
		}
	}
	tn.Questions = domain.NormalizeQuestions(tn.Questions)
	if err := tn.Validate(); err != nil {
		return tn, fmt.Errorf("tenant %q: %w", t.Name, err)
	}
	return tn, nil
}

// LoadTenants reads a YAML file holding a top-level tenants list.
func LoadTenants(path string) ([]TenantConfig, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	var out struct {
		Tenants []TenantConfig `koanf:"tenants"`
	}
	if err := k.Unmarshal("", &out); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return out.Tenants, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
