// Package disk implements the disk engine: asynchronous torrent add/remove,
// block writes with piece-hash verification, and block reads, behind a
// pluggable FileSystem. Grounded on the teacher's
// internal/torrentdata / session's filestorage usage pattern (session.go
// add(): "sto, err := filestorage.New(dest)") generalized into an explicit
// interface so the engine itself never touches the OS directly.
package disk

import "io"

// File is a single open file within a torrent's layout.
type File interface {
	io.ReaderAt
	io.WriterAt
	Size() (int64, error)
	Close() error
}

// FileSystem is the pluggable storage backend the disk engine writes
// through  FileSystem contract.
type FileSystem interface {
	// Open opens or creates path, creating intermediate directories as
	// needed. If the file already exists with a length other than
	// expectedLength (and expectedLength > 0), Open MUST fail rather than
	// silently truncating or extending it, so an existing download is
	// never clobbered by a mismatched re-add.
	Open(path string, expectedLength int64) (File, error)
	// Remove deletes path. Removing a file that does not exist is not an
	// error.
	Remove(path string) error
}
