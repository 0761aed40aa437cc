package middleware

import (
	"context"
	"net/http"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// LayoutInjector copies layout-relevant data from the Echo context (session
// state, CSRF token, flash message) into Go's context.Context so Templ
// templates can read it. It may mutate request state, e.g. consume a flash.
type LayoutInjector func(echo.Context, context.Context) context.Context

// CommitFunc persists per-request state (the session) and sets its cookie.
// It runs before the status line is written.
type CommitFunc func(echo.Context) error

// Renderer writes responses for handlers. It is built once in internal/app
// and passed to every handler, so the middleware package imports no plugin
// types.
type Renderer struct {
	inject LayoutInjector
	commit CommitFunc
}

// NewRenderer creates a Renderer. Either argument may be nil.
func NewRenderer(inject LayoutInjector, commit CommitFunc) *Renderer {
	return &Renderer{inject: inject, commit: commit}
}

// IsHTMX returns true if the current request was initiated by HTMX and is NOT
// a boosted navigation. Boosted requests (hx-boost="true") behave like normal
// page navigations and expect full page responses.
func IsHTMX(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true" &&
		c.Request().Header.Get("HX-Boosted") != "true"
}

// Render writes a Templ component to the response with the given status code.
// The layout injector runs first, then the commit, then the header is written.
func (r *Renderer) Render(c echo.Context, statusCode int, component templ.Component) error {
	ctx := c.Request().Context()
	if r.inject != nil {
		ctx = r.inject(c, ctx)
	}
	if err := r.Commit(c); err != nil {
		return err
	}

	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	c.Response().WriteHeader(statusCode)
	return component.Render(ctx, c.Response().Writer)
}

// Redirect commits request state and sends a 303 See Other to url. HTMX
// requests get an HX-Redirect header instead so the whole page navigates.
func (r *Renderer) Redirect(c echo.Context, url string) error {
	if err := r.Commit(c); err != nil {
		return err
	}
	if IsHTMX(c) {
		c.Response().Header().Set("HX-Redirect", url)
		return c.NoContent(http.StatusNoContent)
	}
	return c.Redirect(http.StatusSeeOther, url)
}

// Commit runs the commit func, if any. Error handlers call it directly for
// responses that bypass Render.
func (r *Renderer) Commit(c echo.Context) error {
	if r.commit == nil {
		return nil
	}
	return r.commit(c)
}
