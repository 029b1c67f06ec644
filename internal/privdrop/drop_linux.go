//go:build linux

package privdrop

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Drop permanently switches every thread of the process to id: no
// supplementary groups, real/effective/saved gid and uid set to id. It then
// checks that uid 0 cannot be regained.
func Drop(id Identity) error {
	if unix.Geteuid() != 0 {
		return ErrNotRoot
	}
	if id.UID == 0 {
		return ErrRootTarget
	}
	// syscall.Setgroups applies to all threads.
	if err := syscall.Setgroups([]int{}); err != nil {
		return fmt.Errorf("setgroups: %w", err)
	}
	if err := unix.Setresgid(id.GID, id.GID, id.GID); err != nil {
		return fmt.Errorf("setresgid %d: %w", id.GID, err)
	}
	if err := unix.Setresuid(id.UID, id.UID, id.UID); err != nil {
		return fmt.Errorf("setresuid %d: %w", id.UID, err)
	}

	if err := unix.Setresuid(-1, 0, -1); err == nil {
		return ErrStillRoot
	}
	r, e, s := unix.Getresuid()
	if r != id.UID || e != id.UID || s != id.UID {
		return fmt.Errorf("%w: uids %d/%d/%d", ErrStillRoot, r, e, s)
	}
	return nil
}
