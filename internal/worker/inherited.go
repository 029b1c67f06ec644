package worker

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var ErrNoInheritedPipes = errors.New("worker pipes not inherited")

// ServeInherited runs w on the pipes a parent passed in with Spawn. Terminal
// signals are ignored; the worker leaves on a stop request, when the parent
// closes the request pipe or when the parent dies.
func ServeInherited(w *Worker) error {
	req := os.NewFile(RequestFD, "lumauth-requests")
	resp := os.NewFile(ResponseFD, "lumauth-responses")
	if req == nil || resp == nil {
		return ErrNoInheritedPipes
	}
	defer func() { _ = req.Close() }()
	defer func() { _ = resp.Close() }()
	if _, err := req.Stat(); err != nil {
		return fmt.Errorf("%w: fd %d: %v", ErrNoInheritedPipes, RequestFD, err)
	}
	if _, err := resp.Stat(); err != nil {
		return fmt.Errorf("%w: fd %d: %v", ErrNoInheritedPipes, ResponseFD, err)
	}

	signal.Ignore(syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	return w.Serve(req, resp)
}
