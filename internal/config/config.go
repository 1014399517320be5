package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/tripnest/service-booking/internal/common/config"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Provider adapter types.
const (
	ProviderFixture = "fixture"
	ProviderREST    = "rest"
)

// Payment modes.
const (
	PaymentSandbox = "sandbox"
	PaymentHTTP    = "http"
)

// ServiceConfig holds all configuration for the booking service.
type ServiceConfig struct {
	Port        string
	AppEnv      string
	Storage     string
	DBConfig    config.DatabaseConfig
	RedisConfig config.RedisConfig
	KafkaConfig config.KafkaConfig
	Search      SearchConfig
	Session     SessionConfig
	Commit      CommitConfig
	Payment     PaymentConfig
	Providers   []ProviderConfig
	AdminIDs    []string
}

// SearchConfig bounds provider calls.
type SearchConfig struct {
	Deadline          time.Duration
	ProviderTimeout   time.Duration
	CommitTimeout     time.Duration
	RateLimitInterval time.Duration
	QuoteTTL          time.Duration
}

// SessionConfig controls session lifetime.
type SessionConfig struct {
	IdleTimeout   time.Duration
	Retention     time.Duration
	SweepInterval time.Duration
}

// CommitConfig controls stale commit recovery.
type CommitConfig struct {
	StaleAfter       time.Duration
	RecoveryInterval time.Duration
}

// PaymentConfig selects the payment authorizer.
type PaymentConfig struct {
	Mode    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ProviderConfig describes one inventory provider.
type ProviderConfig struct {
	ID      string `mapstructure:"id"`
	Kind    string `mapstructure:"kind"`
	Type    string `mapstructure:"type"`
	Path    string `mapstructure:"path"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// Load reads configuration from environment variables and the optional
// BOOKING_CONFIG_FILE.
func Load() (*ServiceConfig, error) {
	v, err := config.Load("BOOKING")
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper builds the configuration from a prepared viper instance.
func FromViper(v *viper.Viper) (*ServiceConfig, error) {
	setDefaults(v)

	cfg := &ServiceConfig{
		Port:        config.GetServicePort(v, "service_port"),
		AppEnv:      config.GetAppEnv(v),
		Storage:     v.GetString("storage"),
		DBConfig:    config.LoadDatabaseConfig(v, "db.name"),
		RedisConfig: config.LoadRedisConfig(v),
		KafkaConfig: config.LoadKafkaConfig(v),
		Search: SearchConfig{
			Deadline:          v.GetDuration("search.deadline"),
			ProviderTimeout:   v.GetDuration("search.provider_timeout"),
			CommitTimeout:     v.GetDuration("search.commit_timeout"),
			RateLimitInterval: v.GetDuration("search.rate_limit_interval"),
			QuoteTTL:          v.GetDuration("search.quote_ttl"),
		},
		Session: SessionConfig{
			IdleTimeout:   v.GetDuration("session.idle_timeout"),
			Retention:     v.GetDuration("session.retention"),
			SweepInterval: v.GetDuration("session.sweep_interval"),
		},
		Commit: CommitConfig{
			StaleAfter:       v.GetDuration("commit.stale_after"),
			RecoveryInterval: v.GetDuration("commit.recovery_interval"),
		},
		Payment: PaymentConfig{
			Mode:    v.GetString("payment.mode"),
			BaseURL: v.GetString("payment.base_url"),
			APIKey:  v.GetString("payment.api_key"),
			Timeout: v.GetDuration("payment.timeout"),
		},
		AdminIDs: config.GetList(v, "admin_ids"),
	}

	if err := v.UnmarshalKey("providers", &cfg.Providers); err != nil {
		return nil, fmt.Errorf("failed to decode providers: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage", StoragePostgres)
	v.SetDefault("search.deadline", "2s")
	v.SetDefault("search.provider_timeout", "1500ms")
	v.SetDefault("search.commit_timeout", "15s")
	v.SetDefault("search.rate_limit_interval", "0s")
	v.SetDefault("search.quote_ttl", "3m")
	v.SetDefault("session.idle_timeout", "24h")
	v.SetDefault("session.retention", "168h")
	v.SetDefault("session.sweep_interval", "1m")
	v.SetDefault("commit.stale_after", "10m")
	v.SetDefault("commit.recovery_interval", "1m")
	v.SetDefault("payment.mode", PaymentSandbox)
	v.SetDefault("payment.timeout", "10s")
	v.SetDefault("admin_ids", "")
	v.SetDefault("providers", []map[string]interface{}{
		{"id": "skyline", "kind": "flight", "type": ProviderFixture, "path": "catalogs/skyline.yaml"},
		{"id": "nomad-air", "kind": "flight", "type": ProviderFixture, "path": "catalogs/nomad-air.yaml"},
		{"id": "staywell", "kind": "hotel", "type": ProviderFixture, "path": "catalogs/staywell.yaml"},
	})
}

// Validate rejects settings the service cannot start with.
func (c *ServiceConfig) Validate() error {
	switch c.Storage {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage)
	}
	switch c.Payment.Mode {
	case PaymentSandbox:
	case PaymentHTTP:
		if c.Payment.BaseURL == "" {
			return fmt.Errorf("payment.base_url is required in http mode")
		}
	default:
		return fmt.Errorf("unknown payment mode %q", c.Payment.Mode)
	}
	if c.Search.Deadline <= 0 || c.Search.CommitTimeout <= 0 {
		return fmt.Errorf("search deadline and commit timeout must be positive")
	}
	if c.Commit.StaleAfter <= c.Search.CommitTimeout*3 {
		return fmt.Errorf("commit.stale_after must exceed three provider commit timeouts")
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one inventory provider is required")
	}

	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.ID == "" || seen[p.ID] {
			return fmt.Errorf("provider %q: missing or duplicate id", p.ID)
		}
		seen[p.ID] = true
		switch p.Type {
		case ProviderFixture:
			if p.Path == "" {
				return fmt.Errorf("provider %s: fixture providers need a path", p.ID)
			}
		case ProviderREST:
			if p.BaseURL == "" || (p.Kind != "flight" && p.Kind != "hotel") {
				return fmt.Errorf("provider %s: rest providers need a base_url and a kind", p.ID)
			}
		default:
			return fmt.Errorf("provider %s: unknown type %q", p.ID, p.Type)
		}
	}
	return nil
}
