package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPostgresDSNPrefersURLOverride(t *testing.T) {
	dsn := PostgresDSN(ConnConfig{URL: "postgres://explicit:5432/db", Host: "ignored", Database: "ignored"})
	assert.Contains(t, dsn, "postgres://explicit:5432/db")
}

func TestPostgresDSNBuildsFromDiscreteFields(t *testing.T) {
	dsn := PostgresDSN(ConnConfig{Host: "h", Port: 5432, User: "u", Password: "p", Database: "d"})
	assert.Contains(t, dsn, "postgres://u:p@h:5432/d")
}

func TestPostgresDSNDefaultsHostPortDatabase(t *testing.T) {
	dsn := PostgresDSN(ConnConfig{})
	assert.Contains(t, dsn, "postgres://localhost:5432/postgres")
}

func TestPostgresDSNAppendsPoolParams(t *testing.T) {
	dsn := PostgresDSN(ConnConfig{
		Host: "h", Database: "d",
		PoolSize: 20, MinPoolSize: 2,
		IdleTimeout: 10 * time.Minute, ConnectionLifetime: time.Hour,
	})
	assert.Contains(t, dsn, "pool_max_conns=20")
	assert.Contains(t, dsn, "pool_min_conns=2")
	assert.Contains(t, dsn, "pool_max_conn_idle_time=10m0s")
	assert.Contains(t, dsn, "pool_max_conn_lifetime=1h0m0s")
}
