//go:build !windows

package fs

import (
	"os"

	"github.com/gofrs/flock"
)

// tryLockFile takes a non-blocking exclusive advisory lock on path. flock(2)
// and fcntl locks follow the inode, so the lock also covers file.
func tryLockFile(path string, _ *os.File) (unlock func() error, locked bool, err error) {
	lock := flock.New(path)
	locked, err = lock.TryLock()
	if err != nil || !locked {
		_ = lock.Close()
		return nil, false, err
	}
	return lock.Unlock, true, nil
}
