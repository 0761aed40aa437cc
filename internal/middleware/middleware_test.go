package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/keystone/internal/apperror"
)

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func csrfCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == CSRFCookieName {
			return ck
		}
	}
	return nil
}

func TestCSRF(t *testing.T) {
	e := echo.New()
	e.Use(CSRF(false))
	e.GET("/form", okHandler)
	e.POST("/form", okHandler)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/form", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := csrfCookie(rec)
	require.NotNil(t, cookie)
	assert.Len(t, cookie.Value, csrfTokenLength*2)

	post := func(token string, withCookie bool) int {
		form := url.Values{CSRFFormField: {token}}
		req := httptest.NewRequest(http.MethodPost, "/form", strings.NewReader(form.Encode()))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
		if withCookie {
			req.AddCookie(cookie)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, post(cookie.Value, true))
	assert.Equal(t, http.StatusForbidden, post("wrong", true))
	assert.Equal(t, http.StatusForbidden, post("", true))
	assert.Equal(t, http.StatusForbidden, post(cookie.Value, false), "no cookie, no match")
}

func TestCSRF_SecureCookie(t *testing.T) {
	for _, secure := range []bool{false, true} {
		e := echo.New()
		e.Use(CSRF(secure))
		e.GET("/form", okHandler)

		req := httptest.NewRequest(http.MethodGet, "/form", nil)
		req.Header.Set("X-Forwarded-Proto", "https")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		cookie := csrfCookie(rec)
		require.NotNil(t, cookie)
		assert.Equal(t, secure, cookie.Secure, "follows config, not request headers")
		assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	}
}

func TestCSRF_Header(t *testing.T) {
	e := echo.New()
	e.Use(CSRF(false))
	e.POST("/form", okHandler)

	req := httptest.NewRequest(http.MethodPost, "/form", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "abc"})
	req.Header.Set("X-CSRF-Token", "abc")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNoCacheAndSecurityHeaders(t *testing.T) {
	e := echo.New()
	e.Use(NoCache(), SecurityHeaders())
	e.GET("/", okHandler)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "0", rec.Header().Get("Expires"))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestNoCache_AppliesToNotFound(t *testing.T) {
	e := echo.New()
	e.Use(NoCache())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
}

func TestRenderer_OrderOfOperations(t *testing.T) {
	var order []string
	type key struct{}

	r := NewRenderer(
		func(c echo.Context, ctx context.Context) context.Context {
			order = append(order, "inject")
			return context.WithValue(ctx, key{}, "from-injector")
		},
		func(c echo.Context) error {
			order = append(order, "commit")
			assert.False(t, c.Response().Committed, "commit runs before the header is written")
			return nil
		},
	)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	err := r.Render(c, http.StatusTeapot, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		order = append(order, "render")
		_, err := io.WriteString(w, ctx.Value(key{}).(string))
		return err
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"inject", "commit", "render"}, order)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "from-injector", rec.Body.String())
}

func TestRenderer_CommitFailureAborts(t *testing.T) {
	boom := errors.New("store down")
	r := NewRenderer(nil, func(echo.Context) error { return boom })

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	assert.ErrorIs(t, r.Redirect(c, "/"), boom)
	assert.False(t, c.Response().Committed)
}

func TestRenderer_Redirect(t *testing.T) {
	r := NewRenderer(nil, nil)
	e := echo.New()

	rec := httptest.NewRecorder()
	require.NoError(t, r.Redirect(e.NewContext(httptest.NewRequest(http.MethodPost, "/login", nil), rec), "/"))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Header.Set("HX-Request", "true")
	rec = httptest.NewRecorder()
	require.NoError(t, r.Redirect(e.NewContext(req, rec), "/"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("HX-Redirect"))
}

func TestRequestID(t *testing.T) {
	e := echo.New()
	e.Use(RequestID())
	var seen string
	e.GET("/", func(c echo.Context) error {
		seen = GetRequestID(c)
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36, "generated UUID")
	assert.Equal(t, seen, rec.Header().Get(echo.HeaderXRequestID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXRequestID, "proxy-123")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "proxy-123", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXRequestID, strings.Repeat("x", maxRequestIDLen+1))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Len(t, seen, 36, "oversized incoming IDs are replaced")
}

func TestRecovery(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := Recovery()(func(echo.Context) error { panic("kaboom") })(c)

	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apperror.SafeCode(err))
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.NotContains(t, appErr.Message, "kaboom")
}

func TestTrustedProxies(t *testing.T) {
	e := echo.New()
	TrustedProxies(e, []string{"10.0.0.0/8", "not-a-cidr"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set(echo.HeaderXForwardedFor, "203.0.113.7")
	assert.Equal(t, "203.0.113.7", e.IPExtractor(req))

	req.RemoteAddr = "198.51.100.1:5555"
	assert.Equal(t, "198.51.100.1", e.IPExtractor(req), "untrusted peer cannot spoof")

	TrustedProxies(e, nil)
	req.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", e.IPExtractor(req))
}
