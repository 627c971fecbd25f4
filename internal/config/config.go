package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"

	"github.com/tradeops/riskgate/internal/model"
)

type Config struct {
	Server     ServerConfig           `mapstructure:"server"`
	Auth       AuthConfig             `mapstructure:"auth"`
	Database   DatabaseConfig         `mapstructure:"database"`
	Redis      RedisConfig            `mapstructure:"redis"`
	Crypto     CryptoConfig           `mapstructure:"crypto"`
	Controls   ControlsConfig         `mapstructure:"controls"`
	Metrics    MetricsConfig          `mapstructure:"metrics"`
	Execution  ExecutionConfig        `mapstructure:"execution"`
	Strategies []model.StrategyParams `mapstructure:"strategies"`
	Profiles   []model.RiskProfile    `mapstructure:"risk_profiles"`
	Users      []model.User           `mapstructure:"users"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type AuthConfig struct {
	AdminKey       string  `mapstructure:"admin_key"`
	AdminSecretKey string  `mapstructure:"admin_secret_key"`
	RateQPS        float64 `mapstructure:"rate_qps"`
	RateBurst      int     `mapstructure:"rate_burst"`
}

type DatabaseConfig struct {
	DSN                       string `mapstructure:"dsn"`
	IdempotencyRetentionHours int    `mapstructure:"idempotency_retention_hours"`
	RiskRetentionDays         int    `mapstructure:"risk_retention_days"`
	CleanupIntervalMinutes    int    `mapstructure:"cleanup_interval_minutes"`
}

type RedisConfig struct {
	Addr                  string `mapstructure:"addr"`
	Password              string `mapstructure:"password"`
	DB                    int    `mapstructure:"db"`
	IdempotencyTTLSeconds int    `mapstructure:"idempotency_ttl_seconds"`
}

type CryptoConfig struct {
	// EncryptionKey is the active credential-encryption passphrase.
	// Rotation replaces it via the rotate operation, not config reload.
	EncryptionKey string `mapstructure:"encryption_key"`
	// SigningKey is the server-held MAC key for audit records.
	SigningKey string `mapstructure:"signing_key"`
	// OpTimeoutMs bounds decrypt/persist calls on execution paths.
	OpTimeoutMs int `mapstructure:"op_timeout_ms"`
}

type ControlsConfig struct {
	// TradingEnabledDefault applies when no persisted kill-switch row
	// exists. Safe default is disabled.
	TradingEnabledDefault bool `mapstructure:"trading_enabled_default"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type ExecutionConfig struct {
	SubmitTimeoutMs int    `mapstructure:"submit_timeout_ms"`
	Mode            string `mapstructure:"mode"` // paper | live
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support, e.g. RISKGATE_CRYPTO_ENCRYPTION_KEY
	viper.SetEnvPrefix("riskgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if len(cfg.Strategies) == 0 {
		cfg.Strategies = DefaultStrategies()
	}
	if len(cfg.Profiles) == 0 {
		cfg.Profiles = DefaultProfiles()
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("auth.rate_qps", 20.0)
	viper.SetDefault("auth.rate_burst", 40)
	viper.SetDefault("database.idempotency_retention_hours", 168)
	viper.SetDefault("database.risk_retention_days", 90)
	viper.SetDefault("database.cleanup_interval_minutes", 60)
	viper.SetDefault("redis.idempotency_ttl_seconds", 86400)
	viper.SetDefault("crypto.op_timeout_ms", 3000)
	viper.SetDefault("controls.trading_enabled_default", false)
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("execution.submit_timeout_ms", 5000)
	viper.SetDefault("execution.mode", "paper")
}

// DefaultStrategies mirrors the thresholds the desk ran in production.
// All of them are overridable from config; none are baked into the
// policy engine.
func DefaultStrategies() []model.StrategyParams {
	return []model.StrategyParams{
		{
			ID:               "SWING_V1",
			MinRR:            1.5,
			TrendTFs:         []string{"4H", "1D"},
			SignalTFs:        []string{"1H", "30M"},
			TimingTFs:        []string{"15M", "5M"},
			MinVolume24hUSDT: 50_000_000,
			MaxSpreadBps:     10,
			MaxSlippageBps:   15,
			MaxHoldMinutes:   480,
		},
		{
			ID:               "INTRADAY_V1",
			MinRR:            1.3,
			TrendTFs:         []string{"1H"},
			SignalTFs:        []string{"15M"},
			TimingTFs:        []string{"5M", "15M"},
			MinVolume24hUSDT: 80_000_000,
			MaxSpreadBps:     8,
			MaxSlippageBps:   12,
			MaxHoldMinutes:   240,
		},
	}
}

func DefaultProfiles() []model.RiskProfile {
	return []model.RiskProfile{
		{Name: "conservative", MaxTradesPerDay: 3, DailyStopPct: -1.5},
		{Name: "loose", MaxTradesPerDay: 4, DailyStopPct: -2.0},
	}
}

// StrategyByID returns the configured parameters for a strategy.
func (c *Config) StrategyByID(id string) (model.StrategyParams, bool) {
	for _, s := range c.Strategies {
		if strings.EqualFold(s.ID, id) {
			return s, true
		}
	}
	return model.StrategyParams{}, false
}

// ProfileByName falls back to the first (most conservative) profile.
func (c *Config) ProfileByName(name string) model.RiskProfile {
	for _, p := range c.Profiles {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return c.Profiles[0]
}

// UserByAPIKey resolves a caller identity.
func (c *Config) UserByAPIKey(key string) (*model.User, bool) {
	if key == "" {
		return nil, false
	}
	for i := range c.Users {
		if c.Users[i].APIKey == key {
			return &c.Users[i], true
		}
	}
	return nil, false
}
