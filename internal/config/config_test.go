package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV", "development")
	t.Setenv("SECRET_KEY", "")
	t.Setenv("DB_DRIVER", "mariadb")
	t.Setenv("SESSION_STORE", "redis")
	t.Setenv("SESSION_TTL", "24h")
	t.Setenv("DATABASE_URL", "")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, DriverMariaDB, cfg.Database.Driver)
	assert.Equal(t, DriverRedis, cfg.Auth.SessionStore)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL)
	assert.NotEmpty(t, cfg.Auth.SecretKey, "dev secret should be filled in")
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ENV", "Production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SECRET_KEY is required")

	t.Setenv("SECRET_KEY", "too-short")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")

	t.Setenv("SECRET_KEY", "0123456789abcdef0123456789abcdef")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_RejectsUnknownBackends(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DB_DRIVER", "sqlite")
	_, err := Load()
	assert.Error(t, err)

	setBaseEnv(t)
	t.Setenv("SESSION_STORE", "filesystem")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_MemoryBackends(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DB_DRIVER", "MEMORY")
	t.Setenv("SESSION_STORE", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, DriverMemory, cfg.Auth.SessionStore)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", User: "keystone", Password: "p@ss", Name: "keystone"}
	dsn := d.DSN()
	assert.Contains(t, dsn, "tcp(db:3306)")
	assert.Contains(t, dsn, "/keystone")
	assert.Contains(t, dsn, "parseTime=true")

	d.Host = "db:3307"
	assert.Contains(t, d.DSN(), "tcp(db:3307)")

	d.dsnOverride = "root@tcp(other:3306)/x"
	assert.Equal(t, "root@tcp(other:3306)/x", d.DSN())
}

func TestLoad_TrustedProxies(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Contains(t, cfg.TrustedProxies, "10.0.0.0/8")

	t.Setenv("TRUSTED_PROXIES", " 192.0.2.0/24 , ,198.51.100.0/24")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"192.0.2.0/24", "198.51.100.0/24"}, cfg.TrustedProxies)

	t.Setenv("TRUSTED_PROXIES", "")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestConfig_IsHTTPS(t *testing.T) {
	assert.True(t, (&Config{BaseURL: "HTTPS://keystone.example"}).IsHTTPS())
	assert.False(t, (&Config{BaseURL: "http://localhost:8080"}).IsHTTPS())
}
