package userdb

import (
	"strconv"
	"strings"
	"time"
)

type Shadow struct {
	entries []ShadowEntry
}

func LoadShadow(path string) (*Shadow, error) {
	entries, err := loadTable(path, 2, func(f []string) (ShadowEntry, error) {
		for len(f) < 9 {
			f = append(f, "")
		}
		return ShadowEntry{Name: f[0], Hash: f[1], LastChange: f[2], Expire: f[7]}, nil
	})
	if err != nil {
		return nil, err
	}
	return &Shadow{entries: entries}, nil
}

func (s *Shadow) Lookup(name string) (ShadowEntry, bool) {
	for _, e := range s.entries {
		if e.Name == name {
			return e, true
		}
	}
	return ShadowEntry{}, false
}

// Locked reports whether the entry cannot be used for password login.
func (e ShadowEntry) Locked() bool {
	return e.Hash == "" || strings.HasPrefix(e.Hash, "!") || strings.HasPrefix(e.Hash, "*")
}

// Expired reports whether the account expiry date (days since the epoch)
// has been reached at now. An empty or unparsable field never expires.
func (e ShadowEntry) Expired(now time.Time) bool {
	if e.Expire == "" {
		return false
	}
	days, err := strconv.ParseInt(e.Expire, 10, 64)
	if err != nil || days < 0 {
		return false
	}
	return now.Unix()/86400 >= days
}
