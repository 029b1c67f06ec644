package hostauth

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// runSu runs `su -c true username` behind a PTY as cred (nil keeps the
// current identity) and answers the password prompt. A zero exit status
// means the password was accepted.
func runSu(ctx context.Context, cred *syscall.Credential, username, password string) (bool, error) {
	cmd := exec.CommandContext(ctx, "su", "-s", "/bin/sh", "-c", "true", username)
	cmd.Env = []string{"PATH=/usr/sbin:/usr/bin:/sbin:/bin", "LANG=C"}
	f, err := pty.StartWithAttrs(cmd, nil, &syscall.SysProcAttr{Setsid: true, Setctty: true, Credential: cred})
	if err != nil {
		return false, fmt.Errorf("%w: start su: %v", ErrAuthBackend, err)
	}
	defer func() { _ = f.Close() }()

	var once sync.Once
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		var seen strings.Builder
		buf := make([]byte, 4096)
		for {
			_ = f.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
			n, rerr := f.Read(buf)
			if n > 0 && seen.Len() < 64*1024 {
				seen.Write(buf[:n])
				if strings.Contains(strings.ToLower(seen.String()), "password") {
					once.Do(func() { _, _ = io.WriteString(f, password+"\n") })
				}
			}
			if rerr != nil && ctx.Err() != nil {
				return
			}
			if rerr != nil && !isTimeout(rerr) {
				return
			}
		}
	}()

	err = cmd.Wait()
	_ = f.Close()
	<-readerDone

	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, fmt.Errorf("%w: su timed out", ErrAuthBackend)
	}
	return false, nil
}

func isTimeout(err error) bool {
	te, ok := err.(interface{ Timeout() bool })
	return ok && te.Timeout()
}
