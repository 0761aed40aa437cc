package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/keystone/internal/apperror"
)

// CookieName is the HTTP cookie that carries the session token.
const CookieName = "keystone_session"

// tokenBytes is the number of random bytes in a session token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const tokenBytes = 32

// contextKey is the Echo context key holding the request's *Session.
const contextKey = "session"

// Manager loads sessions at the start of a request and commits them before
// the response is written.
type Manager struct {
	store  Store
	secret []byte
	ttl    time.Duration
	secure bool
}

// NewManager creates a Manager. secret keys the HMAC that maps client tokens
// to storage keys, so a dump of the store does not yield usable cookies.
// secure marks the cookie HTTPS-only; it comes from the configured base URL,
// never from request headers.
func NewManager(store Store, secret string, ttl time.Duration, secure bool) *Manager {
	return &Manager{
		store:  store,
		secret: []byte(secret),
		ttl:    ttl,
		secure: secure,
	}
}

// Store returns the backing store (used by the health check).
func (m *Manager) Store() Store {
	return m.store
}

// Middleware attaches the client's session to the Echo context. Clients
// without a cookie, or with an unknown or expired token, get an empty
// session. Backend failures abort the request with an internal error.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, err := m.load(c)
			if err != nil {
				return apperror.NewInternal(err)
			}
			c.Set(contextKey, sess)
			return next(c)
		}
	}
}

func (m *Manager) load(c echo.Context) (*Session, error) {
	cookie, err := c.Cookie(CookieName)
	if err != nil || !validToken(cookie.Value) {
		return newSession("", Data{}), nil
	}

	data, err := m.store.Load(c.Request().Context(), m.storageKey(cookie.Value), m.ttl)
	if errors.Is(err, ErrNotFound) {
		// Unknown token: drop the stale cookie on the next commit.
		sess := newSession("", Data{})
		sess.staleToken = cookie.Value
		sess.dirty = true
		return sess, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return newSession(cookie.Value, data), nil
}

// Get returns the session attached by Middleware. Outside the middleware
// (e.g. in unit tests of a single handler) it attaches a fresh empty one.
func Get(c echo.Context) *Session {
	if sess, ok := c.Get(contextKey).(*Session); ok {
		return sess
	}
	sess := newSession("", Data{})
	c.Set(contextKey, sess)
	return sess
}

// Commit persists the request's session if it changed and writes the
// matching cookie. It must run before the response status is written.
// Calling it more than once is harmless.
func (m *Manager) Commit(c echo.Context) error {
	sess, ok := c.Get(contextKey).(*Session)
	if !ok || !sess.dirty {
		return nil
	}
	ctx := c.Request().Context()

	if sess.staleToken != "" {
		if err := m.store.Delete(ctx, m.storageKey(sess.staleToken)); err != nil {
			return fmt.Errorf("deleting previous session: %w", err)
		}
	}

	if sess.data.isEmpty() {
		if sess.token != "" {
			if err := m.store.Delete(ctx, m.storageKey(sess.token)); err != nil {
				return fmt.Errorf("deleting empty session: %w", err)
			}
		}
		if sess.token != "" || sess.staleToken != "" {
			m.clearCookie(c)
		}
		sess.token = ""
		sess.staleToken = ""
		sess.dirty = false
		return nil
	}

	if sess.token == "" {
		token, err := generateToken()
		if err != nil {
			return fmt.Errorf("generating session token: %w", err)
		}
		sess.token = token
		m.setCookie(c, token)
	}

	if err := m.store.Save(ctx, m.storageKey(sess.token), sess.data, m.ttl); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	sess.staleToken = ""
	sess.dirty = false
	return nil
}

// storageKey derives the store key for a client token.
func (m *Manager) storageKey(token string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// generateToken creates a cryptographically random hex-encoded token.
func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// validToken rejects cookie values that could not have been issued by
// generateToken before they reach the store.
func validToken(token string) bool {
	if len(token) != tokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

// setCookie writes the session cookie. It has no MaxAge, so the browser
// drops it when it closes; the server side expires after the idle TTL.
func (m *Manager) setCookie(c echo.Context, token string) {
	c.SetCookie(m.cookie(token))
}

// clearCookie removes the session cookie by setting MaxAge to -1.
func (m *Manager) clearCookie(c echo.Context) {
	ck := m.cookie("")
	ck.MaxAge = -1
	c.SetCookie(ck)
}

// cookie returns the session cookie with the attributes shared by setting
// and clearing it.
func (m *Manager) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
