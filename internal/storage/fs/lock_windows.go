//go:build windows

package fs

import (
	stderr "errors"
	"os"

	"golang.org/x/sys/windows"
)

// lockOffsetHigh places the lock byte far past any settings content. Windows
// byte-range locks are mandatory, so locking the content itself would block
// unlocked readers in other processes.
const lockOffsetHigh = 0x7fffffff

// tryLockFile locks a single byte of file itself. The lock belongs to this
// handle, so reads and writes through file are never refused.
func tryLockFile(_ string, file *os.File) (unlock func() error, locked bool, err error) {
	h := windows.Handle(file.Fd())
	ol := &windows.Overlapped{OffsetHigh: lockOffsetHigh}
	err = windows.LockFileEx(h, windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, ol)
	if stderr.Is(err, windows.ERROR_LOCK_VIOLATION) || stderr.Is(err, windows.ERROR_IO_PENDING) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return func() error {
		return windows.UnlockFileEx(h, 0, 1, 0, &windows.Overlapped{OffsetHigh: lockOffsetHigh})
	}, true, nil
}
