// Package filex contains filesystem helpers for the client's data directory.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates dir (and parents) if missing and returns its absolute
// path. Relative paths are resolved against the working directory.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}

	if err := os.MkdirAll(abs, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}

	return abs, nil
}

// IsImageFile reports whether name has an extension the upload endpoint
// accepts. Used by the folder watcher to skip editor temp files and the like.
func IsImageFile(name string) bool {
	base := filepath.Base(name)
	if base == "" || base[0] == '.' || base[0] == '~' {
		return false
	}
	switch filepath.Ext(base) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp",
		".PNG", ".JPG", ".JPEG", ".GIF", ".WEBP", ".BMP":
		return true
	}
	return false
}
