package credcache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newCache(t *testing.T, ttl time.Duration) (*Cache, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c, err := New(ttl, WithIterations(MinIterations), WithClock(clk.Now))
	require.NoError(t, err)
	return c, clk
}

func TestLookup(t *testing.T) {
	c, _ := newCache(t, time.Minute)

	assert.Equal(t, Miss, c.Lookup("alice", "pw1"))
	c.Store("alice", "pw1")
	assert.Equal(t, Match, c.Lookup("alice", "pw1"))
	assert.Equal(t, Mismatch, c.Lookup("alice", "pw2"))
	assert.Equal(t, Miss, c.Lookup("bob", "pw1"))

	c.Store("alice", "pw2")
	assert.Equal(t, Match, c.Lookup("alice", "pw2"))
	assert.Equal(t, Mismatch, c.Lookup("alice", "pw1"))
}

func TestStaleEntriesAreDropped(t *testing.T) {
	c, clk := newCache(t, 2*time.Second)
	c.Store("alice", "pw1")

	clk.Advance(2 * time.Second)
	assert.Equal(t, Match, c.Lookup("alice", "pw1"), "still fresh at exactly ttl")

	clk.Advance(time.Millisecond)
	assert.Equal(t, 1, c.Len(), "staleness is only evaluated on read")
	assert.Equal(t, Stale, c.Lookup("alice", "pw1"))
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, Miss, c.Lookup("alice", "pw1"))
}

func TestDisabled(t *testing.T) {
	c, _ := newCache(t, 0)
	assert.False(t, c.Enabled())
	c.Store("alice", "pw1")
	assert.Equal(t, Miss, c.Lookup("alice", "pw1"))
	assert.Equal(t, 0, c.Len())
}

func TestHashIsSaltedPerCache(t *testing.T) {
	a, _ := newCache(t, time.Minute)
	b, _ := newCache(t, time.Minute)

	assert.Equal(t, a.Hash("pw1"), a.Hash("pw1"))
	assert.NotEqual(t, a.Hash("pw1"), b.Hash("pw1"))
	assert.Len(t, a.Hash("pw1"), keySize)
	assert.NotContains(t, string(a.Hash("pw1")), "pw1")
}

func TestTooFewIterations(t *testing.T) {
	_, err := New(time.Minute, WithIterations(MinIterations-1))
	assert.ErrorIs(t, err, ErrTooFewIterations)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "match", Match.String())
	assert.Equal(t, "Result(9)", Result(9).String())
}
