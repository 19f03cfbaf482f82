// Package engine is the narrow façade of spec §6: it wires the registry,
// schema bootstrapper, prepared-statement cache, component cache, hook
// dispatcher, and entity/query layers into one constructed value, and
// exposes entity create/load/save/delete, query build+execute, a
// per-request loader factory, and hook registration to external
// collaborators (GraphQL/HTTP/scheduler layers in the source system,
// explicitly out of scope here).
package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/ecsdb/ecsdb/internal/registry"
	"github.com/ecsdb/ecsdb/internal/storage"
)

// CacheScopeConfig is one of entity/component/query's {enabled, ttl}
// settings under cache.* (spec §6).
type CacheScopeConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// CacheConfig is the cache.* config tree of spec §6.
type CacheConfig struct {
	Enabled   bool              `mapstructure:"enabled"`
	Provider  string            `mapstructure:"provider"` // "memory" | "external"
	Strategy  string            `mapstructure:"strategy"` // "write-through"
	Entity    CacheScopeConfig  `mapstructure:"entity"`
	Component CacheScopeConfig  `mapstructure:"component"`
	Query     CacheScopeConfig  `mapstructure:"query"`
}

// Config is the full set of recognized options from spec §6. The
// connection shape itself (URL-or-discrete-fields, pool sizing, timeouts)
// is storage.ConnConfig, shared with storage.PostgresDSN rather than
// re-specified here.
type Config struct {
	Conn storage.ConnConfig `mapstructure:"conn"`

	PartitionStrategy  registry.PartitionStrategy `mapstructure:"partitionStrategy"`
	HashPartitionCount int                        `mapstructure:"hashPartitionCount"`
	UseDirectPartition bool                       `mapstructure:"useDirectPartition"`

	Cache CacheConfig `mapstructure:"cache"`

	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	PreparedCacheSize int `mapstructure:"preparedCacheSize"`
	SaveTimeoutMs     int `mapstructure:"saveTimeoutMs"`

	// MaxConcurrentHooks bounds async hook concurrency (internal/hooks.New's
	// maxConcurrency); not named in spec §6's option list but needed to
	// construct the dispatcher, so it defaults to unbounded (0).
	MaxConcurrentHooks int `mapstructure:"maxConcurrentHooks"`

	// LogLevel controls the slog.Logger internal/engine.Open builds:
	// "debug" | "info" | "warn" | "error". Defaults to "info".
	LogLevel string `mapstructure:"logLevel"`
}

// DefaultConfig returns spec §6's documented defaults.
func DefaultConfig() Config {
	return Config{
		Conn: storage.ConnConfig{
			Host: "localhost", Port: 5432,
			PoolSize: 20, MinPoolSize: 2,
			ConnectionLifetime: time.Hour, IdleTimeout: 10 * time.Minute,
			ConnectTimeout: 5 * time.Second,
		},
		PartitionStrategy:  registry.StrategyList,
		HashPartitionCount: 16,
		Cache: CacheConfig{
			Enabled: true, Provider: "memory", Strategy: "write-through",
			Entity:    CacheScopeConfig{Enabled: true, TTL: 5 * time.Minute},
			Component: CacheScopeConfig{Enabled: true, TTL: 5 * time.Minute},
			Query:     CacheScopeConfig{Enabled: false},
		},
		Telemetry: TelemetryConfig{Enabled: false, TraceStdout: true, MetricStdout: true},

		PreparedCacheSize: 50,
		SaveTimeoutMs:     30_000,
		LogLevel:          "info",
	}
}

// SaveTimeout converts SaveTimeoutMs to a time.Duration, falling back to
// entity.DefaultSaveTimeout's value (30s) when unset.
func (c Config) SaveTimeout() time.Duration {
	if c.SaveTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.SaveTimeoutMs) * time.Millisecond
}

// LoadConfig reads a TOML config file at path into Config, starting from
// DefaultConfig and overriding with whatever the file sets, the same
// layering cmd/bd/config.go's validateSyncConfig does with
// viper.New/SetConfigType/SetConfigFile/ReadInConfig — adapted from that
// function's YAML file format to TOML per this engine's ambient stack
// (viper decodes the TOML itself; github.com/BurntSushi/toml is only used
// by WriteDefaultConfig to encode).
//
// Environment variables prefixed ECSDB_ override file values, using "_" in
// place of the dotted config path (e.g. ECSDB_CACHE_ENABLED).
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix("ECSDB")
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("engine: reading config %q: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("engine: decoding config: %w", err)
	}
	return cfg, nil
}

// setDefaults seeds viper with cfg's zero-file values so Unmarshal still
// produces DefaultConfig's values for keys the file (or environment)
// doesn't set — viper.Unmarshal only fills what's been Set/bound, it
// doesn't fall back to a caller-supplied struct on its own.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("conn.host", cfg.Conn.Host)
	v.SetDefault("conn.port", cfg.Conn.Port)
	v.SetDefault("conn.user", cfg.Conn.User)
	v.SetDefault("conn.password", cfg.Conn.Password)
	v.SetDefault("conn.database", cfg.Conn.Database)
	v.SetDefault("conn.maxConns", cfg.Conn.PoolSize)
	v.SetDefault("conn.minConns", cfg.Conn.MinPoolSize)
	v.SetDefault("conn.maxConnLifetime", cfg.Conn.ConnectionLifetime)
	v.SetDefault("conn.maxConnIdleTime", cfg.Conn.IdleTimeout)
	v.SetDefault("conn.connectTimeout", cfg.Conn.ConnectTimeout)

	v.SetDefault("partitionStrategy", string(cfg.PartitionStrategy))
	v.SetDefault("hashPartitionCount", cfg.HashPartitionCount)
	v.SetDefault("useDirectPartition", cfg.UseDirectPartition)

	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.provider", cfg.Cache.Provider)
	v.SetDefault("cache.strategy", cfg.Cache.Strategy)
	v.SetDefault("cache.entity.enabled", cfg.Cache.Entity.Enabled)
	v.SetDefault("cache.entity.ttl", cfg.Cache.Entity.TTL)
	v.SetDefault("cache.component.enabled", cfg.Cache.Component.Enabled)
	v.SetDefault("cache.component.ttl", cfg.Cache.Component.TTL)
	v.SetDefault("cache.query.enabled", cfg.Cache.Query.Enabled)
	v.SetDefault("cache.query.ttl", cfg.Cache.Query.TTL)

	v.SetDefault("telemetry.enabled", cfg.Telemetry.Enabled)
	v.SetDefault("telemetry.traceStdout", cfg.Telemetry.TraceStdout)
	v.SetDefault("telemetry.metricStdout", cfg.Telemetry.MetricStdout)

	v.SetDefault("preparedCacheSize", cfg.PreparedCacheSize)
	v.SetDefault("saveTimeoutMs", cfg.SaveTimeoutMs)
	v.SetDefault("maxConcurrentHooks", cfg.MaxConcurrentHooks)
	v.SetDefault("logLevel", cfg.LogLevel)
}

// WriteDefaultConfig renders DefaultConfig (or cfg, if the caller already
// has one loaded) to path as TOML, for `ecsctl config init`. Viper owns
// reading config back in (LoadConfig); BurntSushi/toml owns writing it out,
// since viper has no writer for a format it didn't read the file as.
func WriteDefaultConfig(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("engine: creating config %q: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("engine: encoding config %q: %w", path, err)
	}
	return nil
}
