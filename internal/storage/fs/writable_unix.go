//go:build unix

package fs

import "golang.org/x/sys/unix"

// writable asks the kernel whether the real user may write path.
func writable(path string) bool {
	return unix.Access(path, unix.W_OK) == nil
}
