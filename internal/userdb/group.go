package userdb

import "strings"

type Group struct {
	entries []GroupEntry
}

func LoadGroup(path string) (*Group, error) {
	entries, err := loadTable(path, 4, func(f []string) (GroupEntry, error) {
		gid, err := atoi(f[2], "group.gid")
		if err != nil {
			return GroupEntry{}, err
		}
		var members []string
		for _, m := range strings.Split(f[3], ",") {
			if m = strings.TrimSpace(m); m != "" {
				members = append(members, m)
			}
		}
		return GroupEntry{Name: f[0], GID: gid, Members: members}, nil
	})
	if err != nil {
		return nil, err
	}
	return &Group{entries: entries}, nil
}

func (g *Group) Lookup(name string) (GroupEntry, bool) {
	for _, e := range g.entries {
		if e.Name == name {
			return e, true
		}
	}
	return GroupEntry{}, false
}

func (g *Group) LookupGID(gid int) (GroupEntry, bool) {
	for _, e := range g.entries {
		if e.GID == gid {
			return e, true
		}
	}
	return GroupEntry{}, false
}

// MemberOf returns the names of the groups user belongs to: the group with
// primaryGID followed by every group listing user as a supplementary member.
func (g *Group) MemberOf(user string, primaryGID int) []string {
	var out []string
	seen := map[string]bool{}
	if e, ok := g.LookupGID(primaryGID); ok {
		out = append(out, e.Name)
		seen[e.Name] = true
	}
	for _, e := range g.entries {
		if !seen[e.Name] && e.HasMember(user) {
			out = append(out, e.Name)
			seen[e.Name] = true
		}
	}
	return out
}
