// Package middleware provides HTTP middleware for the Keystone Echo server.
// Middleware is applied globally or per-route depending on the middleware
// type. See internal/app/routes.go for registration.
package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// requestIDKey is the Echo context key holding the request ID.
const requestIDKey = "request_id"

// maxRequestIDLen bounds client-supplied X-Request-ID values.
const maxRequestIDLen = 64

// RequestID returns middleware that assigns every request an ID, reusing a
// sane incoming X-Request-ID (set by the reverse proxy) or generating a
// UUID. The ID is echoed in the response header.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" || len(id) > maxRequestIDLen {
				id = uuid.NewString()
			}
			c.Set(requestIDKey, id)
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}

// GetRequestID returns the ID assigned by RequestID, or "".
func GetRequestID(c echo.Context) string {
	id, _ := c.Get(requestIDKey).(string)
	return id
}

// RequestLogger returns middleware that logs every HTTP request with
// structured fields: method, path, status, latency, remote IP and request
// ID. Query strings are not logged; form bodies never are.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// Run the error handler now so the logged status is the real one.
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", res.Status),
				slog.Duration("latency", time.Since(start)),
				slog.String("remote_ip", c.RealIP()),
			}
			if id := GetRequestID(c); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}

			level := slog.LevelInfo
			if res.Status >= 500 {
				level = slog.LevelError
			} else if res.Status >= 400 {
				level = slog.LevelWarn
			}

			slog.LogAttrs(context.WithoutCancel(req.Context()), level, "request", attrs...)
			return nil
		}
	}
}
