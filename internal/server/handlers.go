package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hnrobert/lumauth/internal/logger"
	"github.com/hnrobert/lumauth/internal/session"
)

const maxLoginBody = 8 << 10

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	User  string `json:"user"`
	Token string `json:"token"`
}

type sessionResponse struct {
	User     string    `json:"user"`
	Created  time.Time `json:"created"`
	LastSeen time.Time `json:"last_seen"`
}

func (a *App) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if !a.auth.Authenticate(r.Context(), username, req.Password) {
		logger.Info("login failed", "username", username, "remote", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()))
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	id, err := a.sessions.Put(username)
	if err != nil {
		logger.Error("create session", "username", username, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrStopped) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, "failed to create session")
		return
	}
	tok, err := SignHS256(a.secret, username, id, a.tokenTTL)
	if err != nil {
		a.sessions.Remove(id)
		logger.Error("sign session token", "username", username, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	logger.Info("login", "username", username, "remote", r.RemoteAddr)
	a.issueCookie(w, r, tok)
	writeJSON(w, http.StatusOK, loginResponse{User: username, Token: tok})
}

func (a *App) handleSession(w http.ResponseWriter, r *http.Request) {
	s, _ := sessionFrom(r)
	writeJSON(w, http.StatusOK, sessionResponse{User: s.User, Created: s.Created, LastSeen: s.LastSeen})
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	s, _ := sessionFrom(r)
	a.sessions.Remove(s.ID)
	logger.Info("logout", "username", s.User, "remote", r.RemoteAddr)
	a.clearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("encode response", "error", err)
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
