// Package privdrop switches the server process to an unprivileged account
// once the privileged worker has been spawned.
package privdrop

import (
	"errors"
	"fmt"

	"github.com/hnrobert/lumauth/internal/hostfs"
	"github.com/hnrobert/lumauth/internal/userdb"
)

var (
	ErrNotRoot     = errors.New("not running as root")
	ErrUnsupported = errors.New("privilege drop not supported on this platform")
	ErrStillRoot   = errors.New("root privileges still recoverable after drop")
	ErrRootTarget  = errors.New("refusing to drop privileges to uid 0")
)

// Identity is the account the server continues as.
type Identity struct {
	User  string
	Group string
	UID   int
	GID   int
}

func (id Identity) String() string {
	return fmt.Sprintf("%s(%d):%s(%d)", id.User, id.UID, id.Group, id.GID)
}

// Lookup resolves user, and group when not empty, in the host account
// files. Without a group the user's primary group is used.
func Lookup(root hostfs.Root, user, group string) (Identity, error) {
	passwdPath, err := root.Path(hostfs.EtcPasswdRel)
	if err != nil {
		return Identity{}, err
	}
	groupPath, err := root.Path(hostfs.EtcGroupRel)
	if err != nil {
		return Identity{}, err
	}
	pw, err := userdb.LoadPasswd(passwdPath)
	if err != nil {
		return Identity{}, err
	}
	gr, err := userdb.LoadGroup(groupPath)
	if err != nil {
		return Identity{}, err
	}

	pe, ok := pw.Lookup(user)
	if !ok {
		return Identity{}, fmt.Errorf("user %q not found", user)
	}
	id := Identity{User: pe.Name, UID: pe.UID, GID: pe.GID}
	if group != "" {
		ge, ok := gr.Lookup(group)
		if !ok {
			return Identity{}, fmt.Errorf("group %q not found", group)
		}
		id.Group, id.GID = ge.Name, ge.GID
	} else if ge, ok := gr.LookupGID(pe.GID); ok {
		id.Group = ge.Name
	}
	if id.UID == 0 {
		return Identity{}, ErrRootTarget
	}
	return id, nil
}
