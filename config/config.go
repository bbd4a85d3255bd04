package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the monitoring server.
// Tags use mapstructure for Viper unmarshalling and env variable binding.
type Config struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	// RedisAddr enables the pub/sub alert publisher when non-empty.
	RedisAddr         string `mapstructure:"REDIS_ADDR"`
	RedisAlertChannel string `mapstructure:"REDIS_ALERT_CHANNEL"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	// Session lifecycle knobs.
	SessionTTLHours  int `mapstructure:"SESSION_TTL_HOURS"`
	RetentionDays    int `mapstructure:"RETENTION_DAYS"`
	SweepIntervalSec int `mapstructure:"SWEEP_INTERVAL_SEC"`
	SweepProbability int `mapstructure:"SWEEP_PROBABILITY"`

	// Anomaly thresholds.
	RequestRateLimit       int `mapstructure:"REQUEST_RATE_LIMIT"`
	BruteForceLimit        int `mapstructure:"BRUTE_FORCE_LIMIT"`
	BusinessHoursStart     int `mapstructure:"BUSINESS_HOURS_START"`
	BusinessHoursEnd       int `mapstructure:"BUSINESS_HOURS_END"`
	ConcurrentSessionLimit int `mapstructure:"CONCURRENT_SESSION_LIMIT"`

	OperatorCacheTTLMin int `mapstructure:"OPERATOR_CACHE_TTL_MIN"`
}

// SessionTTL is the absolute session deadline applied on creation.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// Retention is how long terminated sessions are kept before purging.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// SweepInterval is the housekeeping timer period.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

// OperatorCacheTTL is how long the alert-recipient list is cached.
func (c *Config) OperatorCacheTTL() time.Duration {
	return time.Duration(c.OperatorCacheTTLMin) * time.Minute
}

// LoadConfig reads configuration from file, environment variables, and
// defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/sentinel/")
	v.AddConfigPath("$HOME/.sentinel")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/sentinel_dev")
	v.SetDefault("MONGO_DB_NAME", "sentinel_dev")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_ALERT_CHANNEL", "sentinel:security_alerts")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("SESSION_TTL_HOURS", 336) // 14 days
	v.SetDefault("RETENTION_DAYS", 30)
	v.SetDefault("SWEEP_INTERVAL_SEC", 60)
	v.SetDefault("SWEEP_PROBABILITY", 100)
	v.SetDefault("REQUEST_RATE_LIMIT", 100)
	v.SetDefault("BRUTE_FORCE_LIMIT", 5)
	v.SetDefault("BUSINESS_HOURS_START", 6)
	v.SetDefault("BUSINESS_HOURS_END", 22)
	v.SetDefault("CONCURRENT_SESSION_LIMIT", 2)
	v.SetDefault("OPERATOR_CACHE_TTL_MIN", 5)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, we run on defaults and env vars.
		// Anything else (malformed file, permissions) is a real error.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return &cfg, nil
}
