// Package app is the application bootstrap and dependency injection root.
// It holds the shared infrastructure (DB pool, session manager, metrics,
// Echo instance) and wires the plugins together.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/keystone/internal/apperror"
	"github.com/keyxmakerx/keystone/internal/config"
	"github.com/keyxmakerx/keystone/internal/middleware"
	"github.com/keyxmakerx/keystone/internal/observability"
	"github.com/keyxmakerx/keystone/internal/plugins/auth"
	"github.com/keyxmakerx/keystone/internal/session"
	"github.com/keyxmakerx/keystone/internal/templates/layouts"
	"github.com/keyxmakerx/keystone/internal/templates/pages"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB connection pool, or nil when DB_DRIVER=memory.
	DB *sql.DB

	// Users is the credential store used by the auth and home plugins.
	Users auth.UserRepository

	// Sessions loads and commits the per-client session.
	Sessions *session.Manager

	// Metrics is the Prometheus registry served on /metrics.
	Metrics *observability.Metrics

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// Hasher hashes and verifies passwords. Tests swap in cheaper params.
	Hasher auth.PasswordHasher

	renderer      *middleware.Renderer
	errorRenderer *middleware.Renderer
}

// New creates a new App with the given dependencies and configures the Echo
// server with global middleware and error handling. A nil db selects the
// in-process user store.
func New(cfg *config.Config, db *sql.DB, store session.Store) *App {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	middleware.TrustedProxies(e, cfg.TrustedProxies)

	users := auth.NewMemoryUserRepository()
	if db != nil {
		users = auth.NewUserRepository(db)
	}

	app := &App{
		Config:   cfg,
		DB:       db,
		Users:    users,
		Sessions: session.NewManager(store, cfg.Auth.SecretKey, cfg.Auth.SessionTTL, cfg.IsHTTPS()),
		Metrics:  observability.NewMetrics(),
		Echo:     e,
		Hasher:   auth.NewHasher(),
	}
	app.renderer = middleware.NewRenderer(app.injectLayout, app.Sessions.Commit)
	// Error pages show the status as their flash and leave the session alone.
	app.errorRenderer = middleware.NewRenderer(app.injectErrorLayout, nil)

	app.setupMiddleware()

	e.HTTPErrorHandler = app.errorHandler

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: the request ID and logger wrap everything, recovery sits
// inside them so panics are logged with their status, and the session is
// loaded last, right before the route's own middleware.
func (a *App) setupMiddleware() {
	a.Echo.Use(middleware.RequestID())
	a.Echo.Use(middleware.RequestLogger())
	a.Echo.Use(a.Metrics.Middleware())
	a.Echo.Use(middleware.Recovery())

	// Every response, including error pages, is uncacheable.
	a.Echo.Use(middleware.NoCache())
	a.Echo.Use(middleware.SecurityHeaders())
	if a.Config.IsHTTPS() {
		a.Echo.Use(middleware.HSTS())
	}

	// CSRF is applied per route, after the auth guard.
	a.Echo.Use(a.Sessions.Middleware())
}

// injectLayout copies session and CSRF state into the Templ context and
// consumes the pending flash message, so it is shown exactly once.
func (a *App) injectLayout(c echo.Context, ctx context.Context) context.Context {
	sess := session.Get(c)
	_, authed := sess.UserID()

	ctx = layouts.SetIsAuthenticated(ctx, authed)
	ctx = layouts.SetCSRFToken(ctx, middleware.GetCSRFToken(c))
	ctx = layouts.SetActivePath(ctx, c.Request().URL.Path)
	return layouts.SetFlashError(ctx, sess.ConsumeFlash())
}

// injectErrorLayout is injectLayout for error pages: navigation reflects
// the session, the flash is the HTTP status text.
func (a *App) injectErrorLayout(c echo.Context, ctx context.Context) context.Context {
	_, authed := session.Get(c).UserID()

	ctx = layouts.SetIsAuthenticated(ctx, authed)
	ctx = layouts.SetActivePath(ctx, c.Request().URL.Path)
	return layouts.SetFlashError(ctx, http.StatusText(c.Response().Status))
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) and Echo's own HTTP errors to an error page. Internal details
// are logged, never rendered. 401 redirects to the login page.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	// Session changes made before the failure still count; a login that
	// errors out has already logged the previous user out.
	if commitErr := a.Sessions.Commit(c); commitErr != nil {
		slog.Warn("failed to save session on error response",
			slog.Any("error", commitErr),
			slog.String("request_id", middleware.GetRequestID(c)),
		)
	}

	code := http.StatusInternalServerError
	message := defaultErrorMessage(code)

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		message = appErr.Message
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
				slog.String("request_id", middleware.GetRequestID(c)),
			)
		}
	case errors.As(err, &echoErr):
		code = echoErr.Code
		message = defaultErrorMessage(code)
	default:
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
			slog.String("request_id", middleware.GetRequestID(c)),
		)
	}

	if code == http.StatusUnauthorized {
		if middleware.IsHTMX(c) {
			c.Response().Header().Set("HX-Redirect", "/login")
			_ = c.NoContent(http.StatusNoContent)
			return
		}
		_ = c.Redirect(http.StatusSeeOther, "/login")
		return
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}

	// The error layout reads the status from the response.
	c.Response().Status = code
	if renderErr := a.errorRenderer.Render(c, code, pages.ErrorPage(code, message)); renderErr != nil {
		slog.Error("failed to render error page", slog.Any("error", renderErr))
		_ = c.String(code, message)
	}
}

// defaultErrorMessage returns a user-friendly message for common HTTP status codes
// when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusForbidden:
		return "You don't have permission to access this resource."
	case http.StatusNotFound:
		return "The page you're looking for doesn't exist."
	case http.StatusMethodNotAllowed:
		return "This action is not allowed."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "An unexpected error occurred. Please try again."
	}
}

// Start begins listening for HTTP requests on the configured port. It
// returns http.ErrServerClosed after Shutdown.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting Keystone server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
		slog.String("db_driver", a.Config.Database.Driver),
		slog.String("session_store", a.Config.Auth.SessionStore),
	)
	return a.Echo.Start(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}
