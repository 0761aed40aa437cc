package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/keystone/internal/middleware"
	"github.com/keyxmakerx/keystone/internal/plugins/auth"
	"github.com/keyxmakerx/keystone/internal/plugins/home"
)

// healthTimeout bounds each dependency ping in /healthz.
const healthTimeout = 2 * time.Second

// RegisterRoutes sets up all application routes. This is the single place
// where plugins are wired to their dependencies.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// --- Ambient endpoints ---
	e.GET("/healthz", a.healthz)
	e.GET("/metrics", a.Metrics.Handler())

	// --- Plugins ---
	csrf := middleware.CSRF(a.Config.IsHTTPS())
	authService := auth.NewAuthService(a.Users, a.Hasher, a.Metrics)
	auth.RegisterRoutes(e, auth.NewHandler(authService, a.renderer), csrf)
	home.RegisterRoutes(e, home.NewHandler(authService, a.renderer), csrf)
}

// healthz pings the user database and the session store. Any failure makes
// the whole check 503 so orchestrators stop routing traffic here.
func (a *App) healthz(c echo.Context) error {
	checks := map[string]string{}
	healthy := true

	check := func(name string, ping func(context.Context) error) {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()
		if err := ping(ctx); err != nil {
			checks[name] = "unavailable"
			healthy = false
			return
		}
		checks[name] = "ok"
	}

	if a.DB != nil {
		check("database", a.DB.PingContext)
	}
	check("sessions", a.Sessions.Store().Ping)

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "unavailable"
	}
	return c.JSON(status, map[string]any{
		"status": overall,
		"checks": checks,
	})
}
