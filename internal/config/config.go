package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Venue    VenueConfig    `mapstructure:"venue"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	ReadOnly bool   `mapstructure:"read_only"`
}

type AuthConfig struct {
	RequireAPIKey bool              `mapstructure:"require_api_key"`
	AdminKey      string            `mapstructure:"admin_key"`
	Principals    []PrincipalConfig `mapstructure:"principals"`
}

// PrincipalConfig binds an API key to the ledger identity that signs its
// batches.
type PrincipalConfig struct {
	ID        string  `mapstructure:"id"`
	APIKey    string  `mapstructure:"api_key"`
	Identity  string  `mapstructure:"identity"`
	RateLimit float64 `mapstructure:"rate_limit"` // requests per second, 0 = default
	Burst     int     `mapstructure:"burst"`
}

type DatabaseConfig struct {
	DSN                       string `mapstructure:"dsn"`
	Driver                    string `mapstructure:"driver"` // postgres | sqlite
	JournalRetentionDays      int    `mapstructure:"journal_retention_days"`
	IdempotencyRetentionHours int    `mapstructure:"idempotency_retention_hours"`
	IdempotencyLockSeconds    int    `mapstructure:"idempotency_lock_seconds"`
	CleanupIntervalMinutes    int    `mapstructure:"cleanup_interval_minutes"`
}

type RedisConfig struct {
	Addr                  string `mapstructure:"addr"`
	Password              string `mapstructure:"password"`
	DB                    int    `mapstructure:"db"`
	IdempotencyTTLSeconds int    `mapstructure:"idempotency_ttl_seconds"`
	AuditListKey          string `mapstructure:"audit_list_key"`
	AuditListMax          int    `mapstructure:"audit_list_max"`
	KeyPrefix             string `mapstructure:"key_prefix"` // namespace for every gateway key
}

type LedgerConfig struct {
	Store                        string `mapstructure:"store"` // memory | sql
	OracleMaxAgeSeconds          int64  `mapstructure:"oracle_max_age_seconds"`
	MaxConfidenceBps             uint16 `mapstructure:"max_confidence_bps"`
	MaxActiveDca                 int    `mapstructure:"max_active_dca"`
	DefaultRebalanceThresholdBps uint16 `mapstructure:"default_rebalance_threshold_bps"`
	JournalBuffer                int    `mapstructure:"journal_buffer"`
}

type OracleConfig struct {
	FeedURL   string   `mapstructure:"feed_url"`
	ProgramID string   `mapstructure:"program_id"`
	Feeds     []string `mapstructure:"feeds"`
}

type VenueConfig struct {
	Name   string `mapstructure:"name"`
	FeeBps uint16 `mapstructure:"fee_bps"`
	// Rates maps "<in mint>:<out mint>" to a decimal string of output units
	// per input unit.
	Rates map[string]string `mapstructure:"rates"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// Environment variables support
	// e.g. FUNDGATE_AUTH_ADMIN_KEY
	v.SetEnvPrefix("fundgate")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_only", false)
	v.SetDefault("auth.require_api_key", true)
	v.SetDefault("auth.admin_key", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.journal_retention_days", 90)
	v.SetDefault("database.idempotency_retention_hours", 168)
	v.SetDefault("database.idempotency_lock_seconds", 60)
	v.SetDefault("database.cleanup_interval_minutes", 60)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.idempotency_ttl_seconds", 86400)
	v.SetDefault("redis.audit_list_key", "audit_logs")
	v.SetDefault("redis.audit_list_max", 10000)
	v.SetDefault("redis.key_prefix", "fundgate")
	v.SetDefault("ledger.store", "memory")
	v.SetDefault("ledger.oracle_max_age_seconds", 60)
	v.SetDefault("ledger.max_confidence_bps", 200)
	v.SetDefault("ledger.max_active_dca", 20)
	v.SetDefault("ledger.default_rebalance_threshold_bps", 100)
	v.SetDefault("ledger.journal_buffer", 1000)
	v.SetDefault("oracle.feed_url", "")
	v.SetDefault("oracle.program_id", "")
	v.SetDefault("venue.name", "router")
	v.SetDefault("venue.fee_bps", 0)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("log.level", "info")
}
