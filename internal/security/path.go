package security

import (
	"crypto/subtle"
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilePath rejects empty paths and paths that climb out of their directory.
// Absolute paths are only accepted when allowAbsolute is set.
func ValidateFilePath(path string, allowAbsolute bool) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("path contains NUL byte")
	}

	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("path contains directory traversal: %s", path)
		}
	}

	if !allowAbsolute && filepath.IsAbs(filepath.Clean(path)) {
		return fmt.Errorf("absolute paths not allowed: %s", path)
	}

	return nil
}

// KeysMatch compares a presented shared key with the configured one.
// An empty presented key never matches.
func KeysMatch(presented, expected string) bool {
	if presented == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}
