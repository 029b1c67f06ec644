package worker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
)

// Descriptor numbers of the pipes inside the worker process. exec.Cmd maps
// ExtraFiles[i] to fd 3+i.
const (
	RequestFD  = 3
	ResponseFD = 4
)

// DefaultEnv is the whole environment handed to the worker.
var DefaultEnv = []string{"PATH=/usr/sbin:/usr/bin:/sbin:/bin", "LANG=C"}

type SpawnConfig struct {
	// Path is the executable to run; defaults to the running binary.
	Path string
	// Args follow argv[0], typically the hidden worker subcommand and its
	// flags.
	Args []string
	// Env defaults to DefaultEnv.
	Env []string
	// Stderr receives the worker's logs; stdin and stdout stay closed.
	Stderr io.Writer
}

// Process is the parent's handle on a running worker: the write end of the
// request pipe, the read end of the response pipe and the child itself.
type Process struct {
	cmd       *exec.Cmd
	requests  *os.File
	responses *os.File

	exited  chan struct{}
	waitErr error

	reqOnce   sync.Once
	reqErr    error
	closeOnce sync.Once
}

// Spawn starts a worker connected by two fresh pipes.
func Spawn(cfg SpawnConfig) (*Process, error) {
	path := cfg.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		path = exe
	}
	env := cfg.Env
	if env == nil {
		env = DefaultEnv
	}

	reqR, reqW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	respR, respW, err := os.Pipe()
	if err != nil {
		_ = reqR.Close()
		_ = reqW.Close()
		return nil, err
	}

	cmd := exec.Command(path, cfg.Args...)
	cmd.Env = env
	cmd.Stderr = cfg.Stderr
	cmd.ExtraFiles = []*os.File{reqR, respW}
	cmd.SysProcAttr = sysProcAttr()

	p := &Process{cmd: cmd, requests: reqW, responses: respR, exited: make(chan struct{})}
	started := make(chan error, 1)
	go p.run(started)
	err = <-started
	// The child holds its own copies now.
	_ = reqR.Close()
	_ = respW.Close()
	if err != nil {
		_ = reqW.Close()
		_ = respR.Close()
		return nil, fmt.Errorf("start worker: %w", err)
	}
	return p, nil
}

// run starts the worker and waits for it on one locked OS thread. Pdeathsig
// fires when the thread that forked the child exits, not the process, and
// the runtime only retires a thread when a goroutine exits while locked to
// it. Holding the lock until the worker is gone keeps that thread alive and
// out of reach of other goroutines.
func (p *Process) run(started chan<- error) {
	runtime.LockOSThread()
	if err := p.cmd.Start(); err != nil {
		runtime.UnlockOSThread()
		started <- err
		return
	}
	started <- nil
	p.waitErr = p.cmd.Wait()
	close(p.exited)
}

func (p *Process) Requests() io.Writer  { return p.requests }
func (p *Process) Responses() io.Reader { return p.responses }
func (p *Process) Pid() int             { return p.cmd.Process.Pid }

// Exited is closed once the worker has been reaped.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// Wait blocks until the worker has exited and returns its exit status. It
// may be called any number of times.
func (p *Process) Wait() error {
	<-p.exited
	return p.waitErr
}

func (p *Process) Kill() error {
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// CloseRequests closes the request pipe only. A worker waiting for a
// request reads EOF and exits.
func (p *Process) CloseRequests() error {
	p.reqOnce.Do(func() { p.reqErr = p.requests.Close() })
	return p.reqErr
}

// Close closes the parent's pipe ends. It does not wait for the worker.
func (p *Process) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = errors.Join(p.CloseRequests(), p.responses.Close())
	})
	return err
}
