package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFileName checks that name is a single path element, so joining it
// onto a dataset location cannot escape that location.
func ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("file name cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("file name must not contain path separators: %s", name)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("file name contains directory traversal: %s", name)
	}
	return nil
}

// SecureJoin joins path elements and ensures the result stays within base.
//
//	settingsPath, err := SecureJoin("/data/dataset.n5", "viewer-settings.xml")
func SecureJoin(base string, elements ...string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("base path cannot be empty")
	}

	cleanBase := filepath.Clean(base)
	fullPath := filepath.Join(append([]string{cleanBase}, elements...)...)

	prefix := cleanBase
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if !strings.HasPrefix(fullPath, prefix) && fullPath != cleanBase {
		return "", fmt.Errorf("path escapes base directory")
	}

	return fullPath, nil
}
