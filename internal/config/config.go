// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Storage backend names accepted by DB_DRIVER and SESSION_STORE.
const (
	DriverMariaDB = "mariadb"
	DriverRedis   = "redis"
	DriverMemory  = "memory"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL used for links and redirects.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// TrustedProxies lists the CIDRs whose X-Forwarded-For is believed.
	TrustedProxies []string

	// Database holds users table connection settings.
	Database DatabaseConfig

	// Redis holds session backend connection settings.
	Redis RedisConfig

	// Auth holds session and secret settings.
	Auth AuthConfig
}

// DatabaseConfig holds MariaDB connection parameters. If DATABASE_URL is
// set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Driver selects the credential store: "mariadb" (default) or "memory".
	Driver string

	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	// User is the MariaDB username (default: "keystone").
	User string

	// Password is the MariaDB password (default: "keystone").
	Password string

	// Name is the database name (default: "keystone").
	Name string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	// MigrationsPath is the directory holding golang-migrate SQL files.
	MigrationsPath string

	// MaxOpenConns is the maximum number of open connections in the pool.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// fields using the driver's Config.FormatDSN() so special characters in
// passwords are escaped.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// AuthConfig holds session settings.
type AuthConfig struct {
	// SecretKey keys the HMAC that turns session tokens into storage keys.
	SecretKey string

	// SessionStore selects the session backend: "redis" (default) or "memory".
	SessionStore string

	// SessionTTL is the idle timeout of a stored session. Every saved
	// request slides it forward.
	SessionTTL time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing or values are unknown.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		BaseURL:  getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel: getEnv("LOG_LEVEL", ""),

		TrustedProxies: getEnvList("TRUSTED_PROXIES", []string{
			"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fd00::/8",
		}),

		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnv("DB_DRIVER", DriverMariaDB)),
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "keystone"),
			Password:        getEnv("DB_PASSWORD", "keystone"),
			Name:            getEnv("DB_NAME", "keystone"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MigrationsPath:  getEnv("MIGRATIONS_PATH", "db/migrations"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Auth: AuthConfig{
			SecretKey:    getEnv("SECRET_KEY", ""),
			SessionStore: strings.ToLower(getEnv("SESSION_STORE", DriverRedis)),
			SessionTTL:   getEnvDuration("SESSION_TTL", 24*time.Hour),
		},
	}

	switch cfg.Database.Driver {
	case DriverMariaDB, DriverMemory:
	default:
		return nil, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverMariaDB, DriverMemory, cfg.Database.Driver)
	}

	switch cfg.Auth.SessionStore {
	case DriverRedis, DriverMemory:
	default:
		return nil, fmt.Errorf("SESSION_STORE must be %q or %q, got %q", DriverRedis, DriverMemory, cfg.Auth.SessionStore)
	}

	if cfg.Auth.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive")
	}

	// Case-insensitive check catches common variants like "Production", "prod".
	if cfg.IsProduction() {
		if cfg.Auth.SecretKey == "" {
			return nil, fmt.Errorf("SECRET_KEY is required in production")
		}
		if len(cfg.Auth.SecretKey) < 32 {
			return nil, fmt.Errorf("SECRET_KEY must be at least 32 characters in production")
		}
	}

	// Dev-only default secret so local runs work without a .env file.
	if cfg.Auth.SecretKey == "" {
		cfg.Auth.SecretKey = "dev-secret-key-do-not-use-in-production!!"
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// IsHTTPS reports whether the public URL is served over TLS.
func (c *Config) IsHTTPS() bool {
	return strings.HasPrefix(strings.ToLower(c.BaseURL), "https://")
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "24h") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var or returns the default. An
// empty value yields an empty list.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
