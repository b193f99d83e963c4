//go:build unix

package nativefs

import "golang.org/x/sys/unix"

// RaiseFileLimit raises the process's open-file soft limit to at least
// want (capped at the hard limit), so a multi-file, multi-torrent session
// does not exhaust descriptors under normal load.
func RaiseFileLimit(want uint64) error {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return err
	}
	if rlim.Cur >= want {
		return nil
	}
	target := want
	if rlim.Max < target {
		target = rlim.Max
	}
	rlim.Cur = target
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &rlim)
}
