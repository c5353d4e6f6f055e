//go:build !unix

package fs

import (
	"os"
	"path/filepath"
)

// writable probes path by opening it for writing, or by creating a scratch
// file when path is a directory.
func writable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if !info.IsDir() {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			return false
		}
		_ = f.Close()
		return true
	}
	f, err := os.CreateTemp(path, ".viewersettings-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(filepath.Clean(name))
	return true
}
