// Package server exposes login, session and logout over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

type Config struct {
	ListenAddr string
	CookieName string
	// JWTSecret is base64url or raw text; empty means ephemeral.
	JWTSecret string
	TokenTTL  time.Duration
}

type Server struct {
	app  *App
	http *http.Server
}

func New(cfg Config, auth Authenticator, sessions Sessions) (*Server, error) {
	app, err := newApp(cfg, auth, sessions)
	if err != nil {
		return nil, err
	}
	return &Server{
		app: app,
		http: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           app,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *Server) Handler() http.Handler { return s.app }

// ListenAndServe blocks until Shutdown. A clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	err := s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
