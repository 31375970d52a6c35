//go:build unix

package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// checkWritable probes write permission without creating anything. A path
// that does not exist yet is checked through its parent directory.
func checkWritable(path string) error {
	target := path
	if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
		target = filepath.Dir(path)
	}
	if err := unix.Access(target, unix.W_OK); err != nil {
		return &fs.PathError{Op: "access", Path: target, Err: err}
	}
	return nil
}

// lockFile takes an exclusive advisory lock on path.
func lockFile(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, err
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}
