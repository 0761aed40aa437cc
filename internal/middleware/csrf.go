package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/labstack/echo/v4"
)

// csrfTokenLength is the number of random bytes in a CSRF token (32 bytes = 64 hex chars).
const csrfTokenLength = 32

// CSRFCookieName is the name of the cookie that stores the CSRF token.
const CSRFCookieName = "keystone_csrf"

// csrfHeaderName is the header that HTMX sends the CSRF token in.
const csrfHeaderName = "X-CSRF-Token"

// CSRFFormField is the hidden form field carrying the token on form posts.
const CSRFFormField = "csrf_token"

// csrfContextKey is the Echo context key holding the request's CSRF token.
const csrfContextKey = "csrf_token"

// CSRF returns middleware that implements the double-submit cookie pattern
// on all state-changing requests (POST, PUT, PATCH, DELETE).
//
//  1. If no CSRF cookie exists, generate one and set it.
//  2. On mutating requests, compare the cookie value with the X-CSRF-Token
//     header or the csrf_token form field.
//  3. If they don't match, reject with 403 Forbidden.
//
// secure marks the cookie HTTPS-only.
func CSRF(secure bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			cookieToken := ""
			if cookie, err := req.Cookie(CSRFCookieName); err == nil && cookie.Value != "" {
				cookieToken = cookie.Value
			} else {
				token, genErr := generateCSRFToken()
				if genErr != nil {
					return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate CSRF token")
				}
				c.SetCookie(&http.Cookie{
					Name:     CSRFCookieName,
					Value:    token,
					Path:     "/",
					HttpOnly: false, // Must be readable by JS for HTMX to send it.
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
				c.Set(csrfContextKey, token)

				// A request without the cookie cannot carry a matching token.
				if !isSafeMethod(req.Method) {
					return echo.NewHTTPError(http.StatusForbidden, "invalid or missing CSRF token")
				}
				return next(c)
			}
			c.Set(csrfContextKey, cookieToken)

			if isSafeMethod(req.Method) {
				return next(c)
			}

			submitted := req.Header.Get(csrfHeaderName)
			if submitted == "" {
				submitted = req.FormValue(CSRFFormField)
			}
			if submitted == "" || subtle.ConstantTimeCompare([]byte(submitted), []byte(cookieToken)) != 1 {
				return echo.NewHTTPError(http.StatusForbidden, "invalid or missing CSRF token")
			}

			return next(c)
		}
	}
}

// isSafeMethod returns true for HTTP methods that should not change state.
func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

// generateCSRFToken generates a cryptographically random hex-encoded token.
func generateCSRFToken() (string, error) {
	b := make([]byte, csrfTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GetCSRFToken retrieves the CSRF token from the Echo context. The layout
// injector copies it into the Templ context for forms.
func GetCSRFToken(c echo.Context) string {
	token, _ := c.Get(csrfContextKey).(string)
	return token
}
