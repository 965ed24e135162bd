// Package session resolves the authenticated user for each request from a
// signed cookie.
package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	cookieName   = "taskboard_session"
	principalKey = "session.username"
)

var ErrInvalidSession = errors.New("invalid session")

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Manager signs and verifies session cookies.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string) *Manager {
	return &Manager{secret: []byte(secret), ttl: 72 * time.Hour}
}

// Issue mints a signed session token for the user.
func (m *Manager) Issue(username string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})
	return token.SignedString(m.secret)
}

// Parse returns the username carried by a valid session token.
func (m *Manager) Parse(tokenString string) (string, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || c.Username == "" {
		return "", ErrInvalidSession
	}
	return c.Username, nil
}

// Login sets the session cookie after successful authentication.
func (m *Manager) Login(c echo.Context, username string) error {
	token, err := m.Issue(username)
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(m.ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Logout clears the session cookie.
func (m *Manager) Logout(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// Resolve is middleware that records the request's identity, if any, in the
// echo context. It never rejects: route groups decide what absence means.
func (m *Manager) Resolve(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(cookieName)
		if err == nil {
			if username, err := m.Parse(cookie.Value); err == nil {
				c.Set(principalKey, username)
			}
		}
		return next(c)
	}
}

// RequireAPI rejects unauthenticated API requests with a uniform 401 body.
func RequireAPI(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := Username(c); !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
		}
		return next(c)
	}
}

// Username returns the identity resolved for this request.
func Username(c echo.Context) (string, bool) {
	username, ok := c.Get(principalKey).(string)
	return username, ok && username != ""
}
