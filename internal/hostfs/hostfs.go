package hostfs

import (
	"errors"
	"path/filepath"
	"strings"
)

// DefaultRoot is used when the daemon runs directly on the host.
const DefaultRoot Root = "/"

// Account database files, relative to a Root.
const (
	EtcPasswdRel = "etc/passwd"
	EtcShadowRel = "etc/shadow"
	EtcGroupRel  = "etc/group"
)

var ErrInvalidPath = errors.New("invalid host path")

// Root is the mount point of the host filesystem.
type Root string

// Path joins the root with a relative path (no leading slash).
// Example: Root("/host").Path("etc/passwd") -> /host/etc/passwd
func (r Root) Path(rel string) (string, error) {
	rel = strings.TrimPrefix(rel, "/")
	clean := filepath.Clean(rel)
	if clean == "." || clean == "" {
		return "", ErrInvalidPath
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidPath
	}
	base := string(r)
	if base == "" {
		base = string(DefaultRoot)
	}
	return filepath.Join(base, clean), nil
}

// IsHost reports whether r is the real root of this machine.
func (r Root) IsHost() bool {
	return r == "" || filepath.Clean(string(r)) == "/"
}
