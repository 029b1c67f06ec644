// Package credcache remembers recently verified passwords so repeat logins
// do not need a round trip to the privileged worker.
//
// Only a salted PBKDF2-HMAC-SHA512 digest is kept, never the password. The
// salt is random per Cache, so digests are useless outside the process.
// Entries are checked for staleness when read; nothing sweeps them.
package credcache

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	MinIterations     = 1000
	DefaultIterations = 10000

	saltSize = 32
	keySize  = 64
)

var ErrTooFewIterations = fmt.Errorf("hash iterations below %d", MinIterations)

type Result int

const (
	Miss Result = iota
	Stale
	Match
	Mismatch
)

func (r Result) String() string {
	switch r {
	case Miss:
		return "miss"
	case Stale:
		return "stale"
	case Match:
		return "match"
	case Mismatch:
		return "mismatch"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

type Option func(*Cache)

func WithIterations(n int) Option {
	return func(c *Cache) { c.iterations = n }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

type entry struct {
	hash []byte
	time time.Time
}

type Cache struct {
	ttl        time.Duration
	iterations int
	salt       []byte
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

// New returns a cache whose entries are trusted for ttl. A ttl of zero or
// less disables caching: every lookup misses and Store is a no-op.
func New(ttl time.Duration, opts ...Option) (*Cache, error) {
	c := &Cache{
		ttl:        ttl,
		iterations: DefaultIterations,
		now:        time.Now,
		entries:    make(map[string]entry),
	}
	for _, o := range opts {
		o(c)
	}
	if c.iterations < MinIterations {
		return nil, ErrTooFewIterations
	}
	c.salt = make([]byte, saltSize)
	if _, err := rand.Read(c.salt); err != nil {
		return nil, fmt.Errorf("generate cache salt: %w", err)
	}
	return c, nil
}

func (c *Cache) Enabled() bool { return c.ttl > 0 }

// Hash derives the digest stored for password.
func (c *Cache) Hash(password string) []byte {
	return pbkdf2.Key([]byte(password), c.salt, c.iterations, keySize, sha512.New)
}

// Lookup compares password with the cached digest for username. A stale
// entry is removed and reported as Stale.
func (c *Cache) Lookup(username, password string) Result {
	if !c.Enabled() {
		return Miss
	}
	c.mu.Lock()
	e, ok := c.entries[username]
	if ok && e.time.Add(c.ttl).Before(c.now()) {
		delete(c.entries, username)
		c.mu.Unlock()
		return Stale
	}
	c.mu.Unlock()
	if !ok {
		return Miss
	}

	if subtle.ConstantTimeCompare(c.Hash(password), e.hash) == 1 {
		return Match
	}
	return Mismatch
}

// Store records password as verified for username, replacing any previous
// entry.
func (c *Cache) Store(username, password string) {
	if !c.Enabled() {
		return
	}
	h := c.Hash(password)
	c.mu.Lock()
	c.entries[username] = entry{hash: h, time: c.now()}
	c.mu.Unlock()
}

// Len counts entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
