// Package userdb reads the host account databases (passwd, shadow, group).
//
// The files are read from a hostfs.Root, so a daemon running in a container
// can authenticate against the host it manages:
//
//	/host/etc/passwd
//	/host/etc/shadow
//	/host/etc/group
//
// Nothing here writes to the account files.
package userdb
