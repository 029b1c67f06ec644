package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hnrobert/lumauth/internal/logger"
	"github.com/hnrobert/lumauth/internal/session"
)

const minSecretLen = 16

var ErrWeakSecret = errors.New("jwt secret must be at least 16 bytes")

// Authenticator decides whether a username/password pair may log in.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) bool
}

// Sessions is the part of the session store the HTTP layer needs.
type Sessions interface {
	Put(user string) (string, error)
	Get(id string) (session.Session, bool)
	Peek(id string) (session.Session, bool)
	Remove(id string) bool
}

type App struct {
	auth       Authenticator
	sessions   Sessions
	secret     []byte
	cookieName string
	tokenTTL   time.Duration
	router     chi.Router
}

func newApp(cfg Config, auth Authenticator, sessions Sessions) (*App, error) {
	secret, err := loadSecret(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	a := &App{
		auth:       auth,
		sessions:   sessions,
		secret:     secret,
		cookieName: cfg.CookieName,
		tokenTTL:   cfg.TokenTTL,
	}
	if a.cookieName == "" {
		a.cookieName = DefaultCookieName
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = 24 * time.Hour
	}
	a.router = a.routes()
	return a, nil
}

// loadSecret accepts base64url or a raw string. Empty generates an
// ephemeral secret, so tokens do not survive a restart.
func loadSecret(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		gen, err := NewRandomSecretB64(32)
		if err != nil {
			return nil, err
		}
		logger.Warn("no jwt secret configured, using an ephemeral one")
		s = gen
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		b = []byte(s)
	}
	if len(b) < minSecretLen {
		return nil, ErrWeakSecret
	}
	return b, nil
}

func (a *App) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(a.withAuthContext)

	r.Get("/api/healthz", a.handleHealthz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", a.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)
			r.Get("/session", a.handleSession)
			r.Post("/logout", a.handleLogout)
		})
	})
	return r
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *App) issueCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(a.tokenTTL.Seconds()),
	})
}

func (a *App) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
