package userdb

type PasswdEntry struct {
	Name  string
	UID   int
	GID   int
	Gecos string
	Home  string
	Shell string
}

type ShadowEntry struct {
	Name       string
	Hash       string
	LastChange string
	Expire     string
}

type GroupEntry struct {
	Name    string
	GID     int
	Members []string
}

func (g GroupEntry) HasMember(user string) bool {
	for _, m := range g.Members {
		if m == user {
			return true
		}
	}
	return false
}
