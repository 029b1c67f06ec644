package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hnrobert/lumauth/internal/logger"
)

type Config struct {
	// Timeout is the idle period after which a session expires.
	Timeout time.Duration
}

type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithTokenGenerator replaces NewToken, for tests.
func WithTokenGenerator(gen func() (string, error)) Option {
	return func(s *Store) { s.newToken = gen }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Store holds the live sessions. All methods are safe for concurrent use.
type Store struct {
	timeout  time.Duration
	persist  Persistence
	now      func() time.Time
	newToken func() (string, error)
	metrics  *Metrics

	mu       sync.Mutex
	sessions map[string]*Session
	stopped  bool
	saved    bool
}

// NewStore restores the sessions held by p (nil means no persistence).
// Sessions idle for longer than cfg.Timeout are dropped rather than
// restored; restored sessions keep their original timestamps.
func NewStore(ctx context.Context, cfg Config, p Persistence, opts ...Option) (*Store, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	s := &Store{
		timeout:  cfg.Timeout,
		persist:  p,
		now:      time.Now,
		newToken: NewToken,
		sessions: make(map[string]*Session),
	}
	for _, o := range opts {
		o(s)
	}
	if p == nil {
		return s, nil
	}

	saved, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	s.restore(saved)
	return s, nil
}

func (s *Store) restore(saved []Session) {
	cutoff := s.now().Add(-s.timeout)
	latest := make(map[string]*Session)
	expired, invalid := 0, 0
	for i := range saved {
		ss := saved[i]
		switch {
		case ss.ID == "" || ss.User == "":
			invalid++
			continue
		case ss.LastSeen.Before(cutoff):
			expired++
			continue
		}
		if cur, ok := latest[ss.User]; ok && !ss.LastSeen.After(cur.LastSeen) {
			continue
		}
		latest[ss.User] = &ss
	}

	for _, ss := range latest {
		s.sessions[ss.ID] = ss
	}
	superseded := len(saved) - expired - invalid - len(s.sessions)
	s.metrics.setActive(len(s.sessions))
	logger.Info("sessions restored",
		"restored", len(s.sessions), "expired", expired, "superseded", superseded, "invalid", invalid)
}

// Put issues a new session for user and ends every other session user had.
func (s *Store) Put(user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return "", ErrStopped
	}

	s.cleanLocked()
	replaced := 0
	for id, ss := range s.sessions {
		if ss.User == user {
			delete(s.sessions, id)
			replaced++
		}
	}
	s.metrics.recordDestroyed(ReasonReplaced, replaced)

	id, err := s.uniqueTokenLocked()
	if err != nil {
		s.metrics.setActive(len(s.sessions))
		return "", err
	}
	now := s.now()
	s.sessions[id] = &Session{ID: id, User: user, Created: now, LastSeen: now}
	s.metrics.recordCreated()
	s.metrics.setActive(len(s.sessions))
	logger.Debug("session created", "username", user, "replaced", replaced)
	return id, nil
}

func (s *Store) uniqueTokenLocked() (string, error) {
	for i := 0; i < maxTokenTries; i++ {
		id, err := s.newToken()
		if err != nil {
			return "", fmt.Errorf("generate session id: %w", err)
		}
		if _, taken := s.sessions[id]; !taken && id != "" {
			return id, nil
		}
	}
	return "", ErrTokenSpace
}

// Get returns the session for id and marks it as used now.
func (s *Store) Get(id string) (Session, bool) {
	return s.lookup(id, true)
}

// Peek is Get without updating LastSeen.
func (s *Store) Peek(id string) (Session, bool) {
	return s.lookup(id, false)
}

func (s *Store) lookup(id string, touch bool) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	now := s.now()
	if s.expired(ss, now) {
		delete(s.sessions, id)
		s.metrics.recordDestroyed(ReasonExpired, 1)
		s.metrics.setActive(len(s.sessions))
		return Session{}, false
	}
	if touch {
		ss.LastSeen = now
	}
	return *ss, true
}

// Remove ends the session id. It reports whether the session existed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	s.metrics.recordDestroyed(ReasonRemoved, 1)
	s.metrics.setActive(len(s.sessions))
	return true
}

// Clean removes every expired session and returns how many it removed.
func (s *Store) Clean() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanLocked()
}

func (s *Store) cleanLocked() int {
	now := s.now()
	n := 0
	for id, ss := range s.sessions {
		if s.expired(ss, now) {
			delete(s.sessions, id)
			n++
		}
	}
	s.metrics.recordDestroyed(ReasonExpired, n)
	s.metrics.setActive(len(s.sessions))
	return n
}

func (s *Store) expired(ss *Session, now time.Time) bool {
	return ss.LastSeen.Before(now.Add(-s.timeout))
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run calls Clean every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Clean(); n > 0 {
				logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}

// Stop cleans, persists the remaining sessions and empties the store. Put
// fails with ErrStopped from the first call on. When the save fails the
// sessions stay in memory and a later Stop retries it; after a successful
// Stop further calls do nothing.
func (s *Store) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved {
		return nil
	}
	s.stopped = true

	s.cleanLocked()
	out := make([]Session, 0, len(s.sessions))
	for _, ss := range s.sessions {
		out = append(out, *ss)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })

	if s.persist != nil {
		if err := s.persist.Save(ctx, out); err != nil {
			return fmt.Errorf("save sessions: %w", err)
		}
		logger.Info("sessions saved", "count", len(out))
	}
	s.sessions = make(map[string]*Session)
	s.metrics.setActive(0)
	s.saved = true
	return nil
}
