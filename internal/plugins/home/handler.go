// Package home serves the protected landing page.
package home

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/keystone/internal/middleware"
	"github.com/keyxmakerx/keystone/internal/plugins/auth"
	"github.com/keyxmakerx/keystone/internal/templates/pages"
)

// UserLookup resolves the logged-in user. auth.AuthService satisfies it.
type UserLookup interface {
	CurrentUser(ctx context.Context, userID int64) (*auth.User, error)
}

// Handler renders the home page.
type Handler struct {
	users    UserLookup
	renderer *middleware.Renderer
}

// NewHandler creates a new home handler.
func NewHandler(users UserLookup, renderer *middleware.Renderer) *Handler {
	return &Handler{users: users, renderer: renderer}
}

// Index renders the home page for the authenticated user (GET and POST /).
func (h *Handler) Index(c echo.Context) error {
	user, err := h.users.CurrentUser(c.Request().Context(), auth.GetUserID(c))
	if err != nil {
		return err
	}
	return h.renderer.Render(c, http.StatusOK, pages.IndexPage(user.Username))
}

// RegisterRoutes mounts the home page behind RequireAuth, then csrf.
func RegisterRoutes(e *echo.Echo, h *Handler, csrf echo.MiddlewareFunc) {
	e.GET("/", h.Index, auth.RequireAuth(), csrf)
	e.POST("/", h.Index, auth.RequireAuth(), csrf)
}
