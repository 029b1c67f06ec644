// Package worker runs the privileged half of the authentication service.
//
// The worker owns the credential backend and nothing else. It reads one
// request at a time from the request pipe, answers on the response pipe and
// keeps no state between requests. Malformed input is fatal: the worker
// exits and its supervisor decides what happens next.
package worker

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hnrobert/lumauth/internal/ipc"
	"github.com/hnrobert/lumauth/internal/logger"
)

var (
	ErrMalformedRequest = errors.New("malformed request")
	ErrChannelClosed    = errors.New("request channel closed")
)

// CredentialBackend is the host capability the worker guards.
type CredentialBackend interface {
	Verify(username, password string) (bool, error)
	Groups(username string) ([]string, error)
}

// Denial reasons, logged by the worker only.
const (
	ReasonGranted            = "granted"
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonBackendError       = "backend_error"
	ReasonBackendPanic       = "backend_panic"
	ReasonPolicyDenied       = "policy_denied"
	ReasonIdentityUnresolved = "identity_unresolved"
)

type Worker struct {
	backend       CredentialBackend
	requiredGroup string
	log           *slog.Logger
}

// New returns a worker answering with backend. When requiredGroup is not
// empty a valid password is only accepted for members of that group.
func New(backend CredentialBackend, requiredGroup string) *Worker {
	return &Worker{
		backend:       backend,
		requiredGroup: requiredGroup,
		log:           logger.With("component", "worker"),
	}
}

// Serve processes requests from r until a stop request arrives (nil error),
// the stream ends (ErrChannelClosed) or a line cannot be decoded
// (ErrMalformedRequest).
func (w *Worker) Serve(r io.Reader, out io.Writer) error {
	dec := ipc.NewDecoder(r)
	enc := ipc.NewEncoder(out)
	for {
		req, err := dec.ReadRequest()
		switch {
		case err == nil:
		case errors.Is(err, ipc.ErrMalformed):
			w.log.Error("malformed request, shutting down", "error", err)
			return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		case errors.Is(err, io.EOF):
			return ErrChannelClosed
		default:
			return fmt.Errorf("%w: %v", ErrChannelClosed, err)
		}

		if req.Action == ipc.ActionStop {
			w.log.Info("stop requested")
			return nil
		}

		ok, reason := w.authenticate(req.Username, req.Password)
		if ok {
			w.log.Debug("credentials accepted", "username", req.Username)
		} else {
			w.log.Info("credentials rejected", "username", req.Username, "reason", reason)
		}
		if err := enc.WriteResponse(ipc.Response{Result: ok}); err != nil {
			return fmt.Errorf("%w: write response: %v", ErrChannelClosed, err)
		}
	}
}

func (w *Worker) authenticate(username, password string) (ok bool, reason string) {
	defer func() {
		if p := recover(); p != nil {
			w.log.Error("credential backend panicked", "username", username, "panic", fmt.Sprint(p))
			ok, reason = false, ReasonBackendPanic
		}
	}()

	valid, err := w.backend.Verify(username, password)
	if err != nil {
		w.log.Warn("credential backend failed", "username", username, "error", err)
		return false, ReasonBackendError
	}
	if !valid {
		return false, ReasonInvalidCredentials
	}
	if w.requiredGroup == "" {
		return true, ReasonGranted
	}

	groups, err := w.backend.Groups(username)
	if err != nil {
		w.log.Warn("cannot resolve group membership", "username", username, "error", err)
		return false, ReasonIdentityUnresolved
	}
	for _, g := range groups {
		if g == w.requiredGroup {
			return true, ReasonGranted
		}
	}
	return false, ReasonPolicyDenied
}
