package auth

import (
	"net/http"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/keystone/internal/apperror"
	"github.com/keyxmakerx/keystone/internal/middleware"
	"github.com/keyxmakerx/keystone/internal/session"
)

// Handler handles HTTP requests for authentication (login, register, logout,
// change password). Handlers are thin: they bind the request, call the
// service, and render the response. No business logic lives here.
type Handler struct {
	service  AuthService
	renderer *middleware.Renderer
}

// NewHandler creates a new auth handler.
func NewHandler(service AuthService, renderer *middleware.Renderer) *Handler {
	return &Handler{service: service, renderer: renderer}
}

// LoginForm renders the login page (GET /login). Visiting it logs out.
func (h *Handler) LoginForm(c echo.Context) error {
	session.Get(c).Clear()
	return h.renderer.Render(c, http.StatusOK, LoginPage())
}

// Login processes the login form submission (POST /login).
func (h *Handler) Login(c echo.Context) error {
	sess := session.Get(c)
	sess.Clear()

	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	user, err := h.service.Login(c.Request().Context(), LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		return h.reject(c, err, LoginPage())
	}

	sess.SetUser(user.ID)
	return h.renderer.Redirect(c, "/")
}

// RegisterForm renders the registration page (GET /register).
func (h *Handler) RegisterForm(c echo.Context) error {
	return h.renderer.Render(c, http.StatusOK, RegisterPage())
}

// Register processes the registration form submission (POST /register).
// A new account is not logged in.
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	_, err := h.service.Register(c.Request().Context(), RegisterInput{
		Username:     req.Username,
		Password:     req.Password,
		Confirmation: req.Confirmation,
	})
	if err != nil {
		return h.reject(c, err, RegisterPage())
	}

	return h.renderer.Redirect(c, "/")
}

// ChangePasswordForm renders the change-password page (GET /change_password).
func (h *Handler) ChangePasswordForm(c echo.Context) error {
	return h.renderer.Render(c, http.StatusOK, ChangePasswordPage())
}

// ChangePassword processes the change-password form (POST /change_password).
// The session stays authenticated afterwards.
func (h *Handler) ChangePassword(c echo.Context) error {
	var req ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	err := h.service.ChangePassword(c.Request().Context(), GetUserID(c), ChangePasswordInput{
		OldPassword:  req.OldPassword,
		NewPassword:  req.NewPassword,
		Confirmation: req.Confirmation,
	})
	if err != nil {
		return h.reject(c, err, ChangePasswordPage())
	}

	return h.renderer.Redirect(c, "/")
}

// Logout destroys the session and redirects home (GET /logout). It works
// the same with or without a session.
func (h *Handler) Logout(c echo.Context) error {
	session.Get(c).Clear()
	return h.renderer.Redirect(c, "/")
}

// reject flashes a validation message and re-renders the form with 200.
// Any other error goes to the app error handler.
func (h *Handler) reject(c echo.Context, err error, form templ.Component) error {
	msg, ok := apperror.ValidationMessage(err)
	if !ok {
		return err
	}
	session.Get(c).SetFlash(msg)
	return h.renderer.Render(c, http.StatusOK, form)
}
