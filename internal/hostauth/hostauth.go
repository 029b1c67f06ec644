package hostauth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/hnrobert/lumauth/internal/hostfs"
	"github.com/hnrobert/lumauth/internal/logger"
	"github.com/hnrobert/lumauth/internal/userdb"
)

var (
	ErrUnsupportedHash = errors.New("unsupported password hash")
	ErrAuthBackend     = errors.New("auth backend error")
	ErrUnknownUser     = errors.New("unknown user")
)

const (
	DefaultSuTimeout = 6 * time.Second
	DefaultSuUser    = "nobody"
)

type Options struct {
	// SuFallback enables su(1) for hash formats this package cannot verify.
	// It only takes effect when the root is the real host root, since su
	// reads the real /etc/shadow.
	SuFallback bool
	SuTimeout  time.Duration
	// SuUser is the account su runs as when the caller is root. su started
	// by root never asks for a password.
	SuUser string
}

type Backend struct {
	root hostfs.Root
	opts Options
	suOK bool
	now  func() time.Time
	euid func() int
	su   func(ctx context.Context, cred *syscall.Credential, username, password string) (bool, error)
}

func New(root hostfs.Root, opts Options) *Backend {
	if opts.SuTimeout <= 0 {
		opts.SuTimeout = DefaultSuTimeout
	}
	if opts.SuUser == "" {
		opts.SuUser = DefaultSuUser
	}
	b := &Backend{root: root, opts: opts, now: time.Now, euid: os.Geteuid, su: runSu}
	b.suOK = opts.SuFallback && root.IsHost()
	if opts.SuFallback && !b.suOK {
		logger.Warn("su fallback disabled, host root is not /", "host_root", string(root))
	}
	return b
}

// Verify reports whether password is valid for username. Unknown, locked and
// expired accounts are reported as a plain mismatch so callers cannot tell
// them apart. A non-nil error means the check itself could not be made.
func (b *Backend) Verify(username, password string) (bool, error) {
	if !plausibleName(username) {
		return false, nil
	}
	path, err := b.root.Path(hostfs.EtcShadowRel)
	if err != nil {
		return false, err
	}
	sh, err := userdb.LoadShadow(path)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrAuthBackend, err)
	}
	se, ok := sh.Lookup(username)
	if !ok || se.Locked() || se.Expired(b.now()) {
		return false, nil
	}

	ok, err = verifyHash(se.Hash, password)
	if errors.Is(err, ErrUnsupportedHash) && b.suOK {
		return b.verifyWithSu(username, password)
	}
	return ok, err
}

func (b *Backend) verifyWithSu(username, password string) (bool, error) {
	cred, err := b.suCredential()
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.opts.SuTimeout)
	defer cancel()
	return b.su(ctx, cred, username, password)
}

// suCredential is the identity su runs under: nil when the caller is not
// root, SuUser otherwise.
func (b *Backend) suCredential() (*syscall.Credential, error) {
	if b.euid() != 0 {
		return nil, nil
	}
	path, err := b.root.Path(hostfs.EtcPasswdRel)
	if err != nil {
		return nil, err
	}
	pw, err := userdb.LoadPasswd(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthBackend, err)
	}
	pe, ok := pw.Lookup(b.opts.SuUser)
	if !ok {
		return nil, fmt.Errorf("%w: su user %q not found", ErrAuthBackend, b.opts.SuUser)
	}
	if pe.UID == 0 || pe.GID == 0 {
		return nil, fmt.Errorf("%w: su user %q is privileged", ErrAuthBackend, b.opts.SuUser)
	}
	return &syscall.Credential{Uid: uint32(pe.UID), Gid: uint32(pe.GID), Groups: []uint32{}}, nil
}

// Groups returns the names of every group username belongs to, primary
// group first.
func (b *Backend) Groups(username string) ([]string, error) {
	passwdPath, err := b.root.Path(hostfs.EtcPasswdRel)
	if err != nil {
		return nil, err
	}
	groupPath, err := b.root.Path(hostfs.EtcGroupRel)
	if err != nil {
		return nil, err
	}
	pw, err := userdb.LoadPasswd(passwdPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthBackend, err)
	}
	pe, ok := pw.Lookup(username)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, username)
	}
	gr, err := userdb.LoadGroup(groupPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthBackend, err)
	}
	return gr.MemberOf(username, pe.GID), nil
}

// plausibleName rejects names that cannot appear in the account files or
// could be parsed as an option by su.
func plausibleName(name string) bool {
	if strings.TrimSpace(name) == "" || strings.HasPrefix(name, "-") {
		return false
	}
	return !strings.ContainsAny(name, ":\n\r\x00")
}
