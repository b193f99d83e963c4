// Package nativefs is the on-disk FileSystem implementation: real files
// under a data directory, adapted from the teacher's filestorage package
// (referenced via session.go's "filestorage.New(dest)" but whose body was
// not part of this retrieval pack, so the open/validate-length contract is
// rebuilt here directly against the disk.FileSystem interface). Home-directory
// expansion mirrors the teacher's use of github.com/mitchellh/go-homedir in
// session.go.
package nativefs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"

	"github.com/ozkant/bitswarm/disk"
)

// FS roots every opened file under Dir.
type FS struct {
	Dir string
}

// New returns a FileSystem rooted at dir, expanding a leading "~" the way
// the teacher's config loader does for its DataDir/Database settings.
func New(dir string) (*FS, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, err
	}
	return &FS{Dir: expanded}, nil
}

// Open implements disk.FileSystem.
func (fs *FS) Open(path string, expectedLength int64) (disk.File, error) {
	full := filepath.Join(fs.Dir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(full, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if expectedLength > 0 {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		if info.Size() != 0 && info.Size() != expectedLength {
			f.Close()
			return nil, fmt.Errorf("nativefs: %s exists with length %d, expected %d", full, info.Size(), expectedLength)
		}
		if info.Size() == 0 {
			if err := f.Truncate(expectedLength); err != nil {
				f.Close()
				return nil, err
			}
		}
	}
	return &osFile{f}, nil
}

// Remove implements disk.FileSystem.
func (fs *FS) Remove(path string) error {
	err := os.Remove(filepath.Join(fs.Dir, path))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

type osFile struct {
	*os.File
}

func (f *osFile) Size() (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
