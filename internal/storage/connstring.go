package storage

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// ConnConfig is the `{user, password, host, port, database}` connection
// shape spec §6 names, plus the pool sizing and timeout knobs it also
// names. A non-empty URL overrides every other field.
type ConnConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`

	PoolSize           int           `mapstructure:"maxConns"`
	MinPoolSize        int           `mapstructure:"minConns"`
	IdleTimeout        time.Duration `mapstructure:"maxConnIdleTime"`
	ConnectionLifetime time.Duration `mapstructure:"maxConnLifetime"`
	ConnectTimeout     time.Duration `mapstructure:"connectTimeout"`
}

// PostgresDSN builds a pgxpool-compatible connection string, honoring the
// same "env var overrides a struct default" pattern the teacher's
// SQLiteConnString uses for BD_LOCK_TIMEOUT. ECSDB_CONNECT_TIMEOUT overrides
// cfg.ConnectTimeout when set and parseable.
func PostgresDSN(cfg ConnConfig) string {
	if strings.TrimSpace(cfg.URL) != "" {
		return appendPoolParams(cfg.URL, cfg)
	}

	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	database := cfg.Database
	if database == "" {
		database = "postgres"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
		Path:   "/" + database,
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}
	return appendPoolParams(u.String(), cfg)
}

func appendPoolParams(dsn string, cfg ConnConfig) string {
	connectTimeout := cfg.ConnectTimeout
	if v := strings.TrimSpace(os.Getenv("ECSDB_CONNECT_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			connectTimeout = d
		}
	}
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += fmt.Sprintf("%sconnect_timeout=%d", sep, int64(connectTimeout/time.Second))

	if cfg.PoolSize > 0 {
		dsn += fmt.Sprintf("&pool_max_conns=%d", cfg.PoolSize)
	}
	if cfg.MinPoolSize > 0 {
		dsn += fmt.Sprintf("&pool_min_conns=%d", cfg.MinPoolSize)
	}
	if cfg.IdleTimeout > 0 {
		dsn += fmt.Sprintf("&pool_max_conn_idle_time=%s", cfg.IdleTimeout.String())
	}
	if cfg.ConnectionLifetime > 0 {
		dsn += fmt.Sprintf("&pool_max_conn_lifetime=%s", cfg.ConnectionLifetime.String())
	}
	return dsn
}
