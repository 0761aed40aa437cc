package auth

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up all auth-related routes on the given Echo instance.
// Login, register, and logout are public; change password sits behind
// RequireAuth. csrf guards the form routes and runs after RequireAuth, so an
// unauthenticated client is sent to /login rather than refused.
func RegisterRoutes(e *echo.Echo, h *Handler, csrf echo.MiddlewareFunc) {
	e.GET("/login", h.LoginForm, csrf)
	e.POST("/login", h.Login, csrf)
	e.GET("/register", h.RegisterForm, csrf)
	e.POST("/register", h.Register, csrf)
	e.GET("/logout", h.Logout)

	e.GET("/change_password", h.ChangePasswordForm, RequireAuth(), csrf)
	e.POST("/change_password", h.ChangePassword, RequireAuth(), csrf)
}
