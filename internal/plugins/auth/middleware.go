package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/keystone/internal/middleware"
	"github.com/keyxmakerx/keystone/internal/session"
)

// contextKeyUserID is the Echo context key holding the authenticated user's
// id. Other plugins read it through GetUserID.
const contextKeyUserID = "auth_user_id"

// RequireAuth returns middleware that lets a request through only when its
// session carries a user id. It does not touch the store or the session;
// the session middleware has already loaded it.
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := session.Get(c).UserID()
			if !ok {
				return handleUnauthenticated(c)
			}

			c.Set(contextKeyUserID, userID)
			return next(c)
		}
	}
}

// handleUnauthenticated redirects to /login. HTMX requests get a redirect
// header so the full page navigates; boosted navigations get the plain 303.
func handleUnauthenticated(c echo.Context) error {
	if middleware.IsHTMX(c) {
		c.Response().Header().Set("HX-Redirect", "/login")
		return c.NoContent(http.StatusNoContent)
	}
	return c.Redirect(http.StatusSeeOther, "/login")
}

// GetUserID retrieves the authenticated user's id from the Echo context.
// Returns 0 if RequireAuth was not applied.
func GetUserID(c echo.Context) int64 {
	id, _ := c.Get(contextKeyUserID).(int64)
	return id
}
