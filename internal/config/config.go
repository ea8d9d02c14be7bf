// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Daily     DailyConfig     `mapstructure:"daily"`
	Rewards   RewardsConfig   `mapstructure:"rewards"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
	Timezone  string          `mapstructure:"timezone"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
// URL, when set, takes precedence over the individual fields.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// RetryConfig holds the per-call timeout and backoff budget for database calls.
type RetryConfig struct {
	MaxAttempts     uint          `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// AuthConfig holds JWT verification settings.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// DailyConfig holds daily reward configuration.
type DailyConfig struct {
	Coins   int64 `mapstructure:"coins"`
	Exp     int64 `mapstructure:"exp"`
	Tickets int64 `mapstructure:"tickets"`
}

// RewardsConfig holds per-game reward rules. An empty Games map keeps the built-in table.
// Events maps analytics event types to a coin-neutral reward granted once per account.
type RewardsConfig struct {
	Games   map[string]RewardRuleConfig  `mapstructure:"games"`
	Default RewardRuleConfig             `mapstructure:"default"`
	Events  map[string]EventRewardConfig `mapstructure:"events"`
}

// EventRewardConfig is the reward for the first event of one type.
type EventRewardConfig struct {
	Exp     int64 `mapstructure:"exp"`
	Tickets int64 `mapstructure:"tickets"`
}

// RewardRuleConfig is the configuration form of a reward rule.
// Rates are decimal strings so fractional yields survive YAML/env parsing exactly.
type RewardRuleConfig struct {
	XPPerScore        string  `mapstructure:"xp_per_score"`
	CoinsPerScore     string  `mapstructure:"coins_per_score"`
	TicketsPerPlay    int64   `mapstructure:"tickets_per_play"`
	MinScoreForReward float64 `mapstructure:"min_score_for_reward"`
}

// TelemetryConfig holds OpenTelemetry exporter configuration.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	if strings.TrimSpace(d.URL) != "" {
		return strings.TrimSpace(d.URL)
	}
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase
	// e.g., DATABASE_URL, AUTH_JWT_SECRET, SERVER_ADDR
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional - env vars can provide all config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Keys without a real default are still registered so AutomaticEnv can fill them.
	v.SetDefault("database.url", "")
	v.SetDefault("database.password", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("telemetry.otlp_endpoint", "")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "arcade")
	v.SetDefault("database.name", "arcade")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.migrate_on_start", true)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_interval", "100ms")
	v.SetDefault("retry.max_interval", "2s")
	v.SetDefault("retry.query_timeout", "5s")

	v.SetDefault("auth.issuer", "arcade-backend")
	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("daily.coins", 100)
	v.SetDefault("daily.exp", 50)
	v.SetDefault("daily.tickets", 1)

	v.SetDefault("telemetry.service_name", "arcade-backend")

	v.SetDefault("log.level", "info")
	v.SetDefault("timezone", "UTC")
}
