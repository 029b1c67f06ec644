// Package hostfs resolves and accesses files of the host operating system.
//
// A Root is the directory the host filesystem is visible under: "/" when
// the daemon runs directly on the host, "/host" when it runs in a container
// with the host's /etc bind-mounted:
//
//	/etc/passwd  -> /host/etc/passwd
//	/etc/shadow  -> /host/etc/shadow
//	/etc/group   -> /host/etc/group
package hostfs
