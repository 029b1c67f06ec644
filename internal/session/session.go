// Package session issues and tracks opaque login sessions.
//
// A user has at most one live session: issuing a new one removes the old.
// Sessions expire after a period of inactivity; expiry is applied lazily on
// lookup and by Clean. Sessions are only persisted at Stop and restored at
// construction, so persistence never sits on the request path.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

const (
	DefaultTimeout = 30 * time.Minute

	tokenBytes    = 32
	maxTokenTries = 8
)

var (
	ErrStopped    = errors.New("session store stopped")
	ErrTokenSpace = errors.New("could not generate a unique session id")
)

// Session is one authenticated login.
type Session struct {
	ID       string    `json:"id" yaml:"id"`
	User     string    `json:"user" yaml:"user"`
	Created  time.Time `json:"created" yaml:"created"`
	LastSeen time.Time `json:"last_seen" yaml:"last_seen"`
}

// Persistence stores the session set across restarts. Save replaces
// whatever was stored before.
type Persistence interface {
	Load(ctx context.Context) ([]Session, error)
	Save(ctx context.Context, sessions []Session) error
}

// NewToken returns a random URL-safe session id.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
