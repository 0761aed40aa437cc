// Package database provides connection setup for the users table (MariaDB)
// and the session backend (Redis). Both connections are opened once at
// process start and shared via dependency injection; closing them at exit
// is the only teardown.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// MariaDB driver -- imported for side effect of registering the driver.
	_ "github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/keystone/internal/config"
)

// Connection retry policy. MariaDB and Redis may still be starting when the
// app container launches under Docker Compose.
const (
	maxConnectAttempts = 10
	initialBackoff     = 1 * time.Second
	maxBackoff         = 30 * time.Second
	pingTimeout        = 5 * time.Second
)

// NewMariaDB opens a connection pool for the given config and pings it until
// it answers or the retry budget is spent.
func NewMariaDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening mariadb connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := pingWithRetry(ctx, "mariadb", db.PingContext); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// pingWithRetry calls ping with exponential backoff. It gives up early if
// ctx is cancelled.
func pingWithRetry(ctx context.Context, name string, ping func(context.Context) error) error {
	backoff := initialBackoff
	var pingErr error

	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		pingErr = ping(pctx)
		cancel()

		if pingErr == nil {
			return nil
		}
		if attempt == maxConnectAttempts {
			break
		}

		slog.Warn(name+" not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxConnectAttempts),
			slog.Duration("backoff", backoff),
			slog.Any("error", pingErr),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("pinging %s: %w", name, ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}

	return fmt.Errorf("pinging %s after %d attempts: %w", name, maxConnectAttempts, pingErr)
}
