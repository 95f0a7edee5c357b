//go:build unix

package file

import (
	"io/fs"
	"os"
	"syscall"
)

// lockFile takes an exclusive flock on path, creating it if needed.
func lockFile(path string, perm fs.FileMode) (release func(), err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, perm)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, err
	}
	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
	}, nil
}
