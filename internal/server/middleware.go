package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hnrobert/lumauth/internal/logger"
	"github.com/hnrobert/lumauth/internal/session"
)

type ctxKey int

const ctxSession ctxKey = iota

func (a *App) withAuthContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s, ok := a.readAuth(r); ok {
			r = r.WithContext(context.WithValue(r.Context(), ctxSession, s))
		}
		next.ServeHTTP(w, r)
	})
}

// readAuth resolves the caller's session from the cookie or a bearer token.
// It does not refresh the idle timer; requireAuth does.
func (a *App) readAuth(r *http.Request) (session.Session, bool) {
	tok := ""
	if c, err := r.Cookie(a.cookieName); err == nil {
		tok = c.Value
	}
	if tok == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			tok = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
	}
	if tok == "" {
		return session.Session{}, false
	}
	claims, err := ParseHS256(a.secret, tok)
	if err != nil {
		return session.Session{}, false
	}
	s, ok := a.sessions.Peek(claims.SessionID())
	if !ok || s.User != claims.User() {
		return session.Session{}, false
	}
	return s, true
}

func sessionFrom(r *http.Request) (session.Session, bool) {
	s, ok := r.Context().Value(ctxSession).(session.Session)
	return s, ok
}

// requireAuth rejects anonymous callers and counts the request as session
// activity.
func (a *App) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := sessionFrom(r)
		if ok {
			s, ok = a.sessions.Get(s.ID)
		}
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxSession, s)))
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		args := []any{
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}
		if r.URL.Path == "/api/healthz" {
			logger.Debug("request completed", args...)
			return
		}
		logger.Info("request completed", args...)
	})
}
