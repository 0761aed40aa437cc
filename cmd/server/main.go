// Package main is the entry point for the Keystone server. It loads
// configuration, connects the credential store and session backend, wires
// the application, and starts the HTTP server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/keyxmakerx/keystone/internal/app"
	"github.com/keyxmakerx/keystone/internal/config"
	"github.com/keyxmakerx/keystone/internal/database"
	"github.com/keyxmakerx/keystone/internal/session"
)

// shutdownTimeout is how long in-flight requests get to finish.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("keystone exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	setupLogging(cfg, os.Stdout)

	// Cancelled on SIGINT/SIGTERM; also aborts connection retries at startup.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Credential store ---
	var db *sql.DB
	if cfg.Database.Driver == config.DriverMariaDB {
		db, err = database.NewMariaDB(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		slog.Info("connected to MariaDB")

		if err := database.RunMigrations(db, cfg.Database.MigrationsPath); err != nil {
			return err
		}
	} else {
		slog.Warn("using in-memory user store; accounts are lost on restart")
	}

	// --- Session backend ---
	var store session.Store
	if cfg.Auth.SessionStore == config.DriverRedis {
		rdb, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		slog.Info("connected to Redis")
		store = session.NewRedisStore(rdb)
	} else {
		slog.Warn("using in-memory session store; sessions are lost on restart")
		store = session.NewMemoryStore()
	}

	// --- Create Application ---
	application := app.New(cfg, db, store)
	application.RegisterRoutes()

	// --- Graceful Shutdown ---
	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// setupLogging configures the global slog logger based on the environment.
// Development uses text format at debug level for readability; everything
// else uses JSON at info for log aggregation. LOG_LEVEL overrides the level.
func setupLogging(cfg *config.Config, w io.Writer) {
	level := slog.LevelInfo
	if cfg.IsDevelopment() {
		level = slog.LevelDebug
	}
	if cfg.LogLevel != "" {
		if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
			level = slog.LevelInfo
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}
