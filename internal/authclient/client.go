// Package authclient is the unprivileged side of the authentication service
// and the only writer to the worker's request pipe.
//
// Calls are serialized: one request is in flight at a time and responses are
// matched to requests purely by order. When an exchange is abandoned (timeout
// or cancelled context) the client remembers that one response is still
// owed and drops it when it arrives, so a late answer is never credited to a
// later caller.
//
// A dead worker or an unparsable response is terminal. The client then
// denies everything and closes Done; restarting is left to the supervisor
// because the server has already given up the privileges needed to spawn a
// new worker.
package authclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hnrobert/lumauth/internal/credcache"
	"github.com/hnrobert/lumauth/internal/ipc"
	"github.com/hnrobert/lumauth/internal/logger"
)

var (
	ErrUnavailable = errors.New("authentication worker unavailable")
	ErrCorrupt     = errors.New("corrupt response from authentication worker")
	ErrWorkerStuck = errors.New("authentication worker did not exit")
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultStopTimeout = 10 * time.Second
)

// Transport is the parent's end of a worker: *worker.Process satisfies it.
type Transport interface {
	Requests() io.Writer
	Responses() io.Reader
	// CloseRequests closes only the request pipe, which a live worker
	// reads as EOF.
	CloseRequests() error
	Wait() error
	Kill() error
	Close() error
}

type Config struct {
	// Timeout bounds the wait for one worker response.
	Timeout time.Duration
	// CacheTimeout is how long a verified password is trusted without the
	// worker. Zero disables the cache.
	CacheTimeout time.Duration
	// HashIterations is the PBKDF2 work factor of the cache.
	HashIterations int
	// StopTimeout bounds the wait for the worker to exit on Stop before it
	// is killed.
	StopTimeout time.Duration
	Metrics     *Metrics
}

type Client struct {
	cfg   Config
	t     Transport
	enc   *ipc.Encoder
	cache *credcache.Cache

	mu    sync.Mutex // serializes exchanges with the worker
	stale int        // responses still owed to abandoned exchanges; guarded by mu

	results    chan ipc.Response
	readerDone chan struct{}

	doneOnce sync.Once
	done     chan struct{}
	err      error

	stopOnce sync.Once
	stopErr  error
}

// New wraps a running worker. It starts a goroutine that owns the response
// pipe until Stop or a fault.
func New(t Transport, cfg Config, opts ...credcache.Option) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.HashIterations > 0 {
		opts = append([]credcache.Option{credcache.WithIterations(cfg.HashIterations)}, opts...)
	}
	cache, err := credcache.New(cfg.CacheTimeout, opts...)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:        cfg,
		t:          t,
		enc:        ipc.NewEncoder(t.Requests()),
		cache:      cache,
		results:    make(chan ipc.Response),
		readerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
	go c.readLoop(ipc.NewDecoder(t.Responses()))
	return c, nil
}

// Authenticate reports whether username may log in with password. Every
// failure, including an unreachable worker, is false.
func (c *Client) Authenticate(ctx context.Context, username, password string) bool {
	return c.Check(ctx, username, password).OK()
}

// Check is Authenticate with the detailed outcome.
func (c *Client) Check(ctx context.Context, username, password string) Outcome {
	o := c.check(ctx, username, password)
	c.cfg.Metrics.recordAttempt(o)

	switch o {
	case Granted, Cached:
		logger.Info("authentication succeeded", "username", username, "outcome", o)
	case Denied, CacheMismatch, Rejected:
		logger.Info("authentication failed", "username", username, "outcome", o)
	case Timeout, Cancelled:
		logger.Warn("authentication abandoned", "username", username, "outcome", o)
	default:
		logger.Error("authentication backend down", "username", username, "outcome", o, "error", c.Err())
	}
	return o
}

// Done is closed when the client can no longer reach the worker, either
// after Stop or after a fault. Err tells the two apart.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the fault that closed Done, or nil.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// CacheLen reports the number of cached credentials.
func (c *Client) CacheLen() int { return c.cache.Len() }

func (c *Client) check(ctx context.Context, username, password string) Outcome {
	if o, down := c.downOutcome(); down {
		return o
	}
	switch c.cache.Lookup(username, password) {
	case credcache.Match:
		return Cached
	case credcache.Mismatch:
		return CacheMismatch
	}

	o := c.exchange(ctx, ipc.Authenticate(username, password))
	if o == Granted {
		c.cache.Store(username, password)
	}
	return o
}

func (c *Client) exchange(ctx context.Context, req ipc.Request) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o, down := c.downOutcome(); down {
		return o
	}
	if ctx.Err() != nil {
		return Cancelled
	}

	start := time.Now()
	if err := c.write(req); err != nil {
		if errors.Is(err, ipc.ErrTooLong) {
			return Rejected
		}
		c.shutdown(fmt.Errorf("%w: write request: %v", ErrUnavailable, err))
		return Unavailable
	}

	timer := time.NewTimer(c.cfg.Timeout)
	defer timer.Stop()
	for {
		select {
		case r := <-c.results:
			if c.stale > 0 {
				c.stale--
				logger.Debug("discarded late worker response", "owed", c.stale)
				continue
			}
			c.cfg.Metrics.recordWorker(time.Since(start))
			if r.Result {
				return Granted
			}
			return Denied
		case <-c.done:
			o, _ := c.downOutcome()
			return o
		case <-timer.C:
			c.stale++
			return Timeout
		case <-ctx.Done():
			c.stale++
			return Cancelled
		}
	}
}

// write sends one request, bounded by the response timeout when the pipe
// supports deadlines.
func (c *Client) write(req ipc.Request) error {
	if d, ok := c.t.Requests().(interface{ SetWriteDeadline(time.Time) error }); ok {
		if err := d.SetWriteDeadline(time.Now().Add(c.cfg.Timeout)); err == nil {
			defer func() { _ = d.SetWriteDeadline(time.Time{}) }()
		}
	}
	return c.enc.WriteRequest(req)
}

func (c *Client) readLoop(dec *ipc.Decoder) {
	defer close(c.readerDone)
	for {
		r, err := dec.ReadResponse()
		if err != nil {
			if errors.Is(err, ipc.ErrMalformed) {
				c.shutdown(fmt.Errorf("%w: %v", ErrCorrupt, err))
			} else {
				c.shutdown(fmt.Errorf("%w: %v", ErrUnavailable, err))
			}
			return
		}
		select {
		case c.results <- r:
		case <-c.done:
			return
		}
	}
}

func (c *Client) shutdown(err error) {
	c.doneOnce.Do(func() {
		c.err = err
		close(c.done)
		if err != nil {
			logger.Error("authentication worker fault", "error", err)
		}
	})
}

func (c *Client) downOutcome() (Outcome, bool) {
	select {
	case <-c.done:
	default:
		return "", false
	}
	if errors.Is(c.err, ErrCorrupt) {
		return Corrupt, true
	}
	return Unavailable, true
}

// Stop asks the worker to exit, closes the request pipe and waits for it,
// killing it after StopTimeout. If the worker is still there another
// StopTimeout later Stop gives up with ErrWorkerStuck rather than block.
// Both pipes are closed either way. It is safe to call more than once and
// after the worker has died.
func (c *Client) Stop() error {
	c.stopOnce.Do(func() { c.stopErr = c.stop() })
	return c.stopErr
}

func (c *Client) stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	faulted := c.Err() != nil
	c.shutdown(nil)
	if !faulted {
		if err := c.write(ipc.Stop()); err != nil {
			logger.Debug("stop request not delivered", "error", err)
		}
	}

	// A worker that never got Stop, e.g. after a fault, leaves on EOF. Kill
	// alone is not enough: once the server has dropped privileges it may
	// not signal the worker.
	var errs []error
	if err := c.t.CloseRequests(); err != nil {
		errs = append(errs, fmt.Errorf("close request pipe: %w", err))
	}

	exited := make(chan error, 1)
	go func() { exited <- c.t.Wait() }()
	if !c.awaitExit(exited) {
		logger.Warn("authentication worker ignored stop, killing it", "timeout", c.cfg.StopTimeout)
		if err := c.t.Kill(); err != nil {
			errs = append(errs, fmt.Errorf("kill worker: %w", err))
		}
		if !c.awaitExit(exited) {
			logger.Error("authentication worker did not exit", "timeout", c.cfg.StopTimeout)
			errs = append(errs, ErrWorkerStuck)
		}
	}

	if err := c.t.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close worker pipes: %w", err))
	}
	select {
	case <-c.readerDone:
	case <-time.After(c.cfg.StopTimeout):
		logger.Warn("response reader did not exit")
	}
	logger.Info("authentication worker stopped")
	return errors.Join(errs...)
}

// awaitExit waits at most StopTimeout for the worker to be reaped.
func (c *Client) awaitExit(exited <-chan error) bool {
	select {
	case err := <-exited:
		if err != nil {
			logger.Debug("authentication worker exited", "status", err)
		}
		return true
	case <-time.After(c.cfg.StopTimeout):
		return false
	}
}
