package userdb

type Passwd struct {
	entries []PasswdEntry
}

func LoadPasswd(path string) (*Passwd, error) {
	entries, err := loadTable(path, 7, func(f []string) (PasswdEntry, error) {
		uid, err := atoi(f[2], "passwd.uid")
		if err != nil {
			return PasswdEntry{}, err
		}
		gid, err := atoi(f[3], "passwd.gid")
		if err != nil {
			return PasswdEntry{}, err
		}
		return PasswdEntry{Name: f[0], UID: uid, GID: gid, Gecos: f[4], Home: f[5], Shell: f[6]}, nil
	})
	if err != nil {
		return nil, err
	}
	return &Passwd{entries: entries}, nil
}

func (p *Passwd) Lookup(name string) (PasswdEntry, bool) {
	for _, e := range p.entries {
		if e.Name == name {
			return e, true
		}
	}
	return PasswdEntry{}, false
}

func (p *Passwd) LookupUID(uid int) (PasswdEntry, bool) {
	for _, e := range p.entries {
		if e.UID == uid {
			return e, true
		}
	}
	return PasswdEntry{}, false
}
