// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/popvault/pricewatch/internal/catalog"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	DB         DBConfig         `mapstructure:"db"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// SchedulerConfig governs discovery and dispatch behavior.
type SchedulerConfig struct {
	StalenessWindowHours  int `mapstructure:"staleness_window_hours"`
	DiscoveryLimit        int `mapstructure:"discovery_limit"`
	DispatchLimit         int `mapstructure:"dispatch_limit"`
	RetryBackoffMinutes   int `mapstructure:"retry_backoff_minutes"`
	MaxRetries            int `mapstructure:"max_retries"`
	AdapterTimeoutSeconds int `mapstructure:"adapter_timeout_seconds"`
}

// AggregatorConfig controls the pricing aggregation window.
type AggregatorConfig struct {
	WindowDays int `mapstructure:"window_days"`
}

// SourcesConfig selects which marketplace adapters run and how often a
// successfully scraped pair is revisited.
type SourcesConfig struct {
	Enabled             []string       `mapstructure:"enabled"`
	SuccessIntervalDays map[string]int `mapstructure:"success_interval_days"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("scheduler.staleness_window_hours", 24)
	v.SetDefault("scheduler.discovery_limit", 50)
	v.SetDefault("scheduler.dispatch_limit", 10)
	v.SetDefault("scheduler.retry_backoff_minutes", 60)
	v.SetDefault("scheduler.max_retries", 0)
	v.SetDefault("scheduler.adapter_timeout_seconds", 30)
	v.SetDefault("aggregator.window_days", 30)
	v.SetDefault("sources.enabled", []string{"ebay", "funko_store"})
	v.SetDefault("sources.success_interval_days", map[string]int{
		"ebay":        7,
		"funko_store": 14,
	})
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scheduler.StalenessWindowHours <= 0 {
		return fmt.Errorf("scheduler.staleness_window_hours must be > 0")
	}
	if c.Scheduler.DiscoveryLimit <= 0 {
		return fmt.Errorf("scheduler.discovery_limit must be > 0")
	}
	if c.Scheduler.DispatchLimit <= 0 {
		return fmt.Errorf("scheduler.dispatch_limit must be > 0")
	}
	if c.Scheduler.AdapterTimeoutSeconds <= 0 {
		return fmt.Errorf("scheduler.adapter_timeout_seconds must be > 0")
	}
	if c.Aggregator.WindowDays <= 0 {
		return fmt.Errorf("aggregator.window_days must be > 0")
	}
	if len(c.Sources.Enabled) == 0 {
		return fmt.Errorf("sources.enabled must list at least one source")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// StalenessWindow returns the staleness window as a duration.
func (c Config) StalenessWindow() time.Duration {
	return time.Duration(c.Scheduler.StalenessWindowHours) * time.Hour
}

// RetryBackoff returns the failed-job retry delay as a duration.
func (c Config) RetryBackoff() time.Duration {
	return time.Duration(c.Scheduler.RetryBackoffMinutes) * time.Minute
}

// AdapterTimeout returns the per-adapter invocation deadline.
func (c Config) AdapterTimeout() time.Duration {
	return time.Duration(c.Scheduler.AdapterTimeoutSeconds) * time.Second
}

// AggregationWindow returns the trailing observation window as a duration.
func (c Config) AggregationWindow() time.Duration {
	return time.Duration(c.Aggregator.WindowDays) * 24 * time.Hour
}

// EnabledSources returns the configured sources as typed identifiers.
func (c Config) EnabledSources() []catalog.SourceID {
	out := make([]catalog.SourceID, 0, len(c.Sources.Enabled))
	for _, s := range c.Sources.Enabled {
		out = append(out, catalog.SourceID(s))
	}
	return out
}

// SuccessInterval returns how long to wait before rescraping a pair after a
// successful scrape. Defaults to 7 days for unlisted sources.
func (c Config) SuccessInterval(source catalog.SourceID) time.Duration {
	if days, ok := c.Sources.SuccessIntervalDays[string(source)]; ok && days > 0 {
		return time.Duration(days) * 24 * time.Hour
	}
	return 7 * 24 * time.Hour
}
