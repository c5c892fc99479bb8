// Package fsops provides the filesystem operations used by lndir.
//
// Every read of a source tree and every mutation of the destination tree goes
// through the FS interface, so the walker, planner and engine can be exercised
// against real temporary directories in tests and against the OS in
// production.
//
// Key features:
//   - Symlink-aware operations (Lstat, Readlink, Symlink)
//   - Canonical path resolution
//   - Relative path validation for merge keys
package fsops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FS provides an abstraction for filesystem operations.
type FS interface {
	// Stat returns file info, following symlinks.
	Stat(path string) (os.FileInfo, error)

	// Lstat returns file info without following symlinks.
	Lstat(path string) (os.FileInfo, error)

	// ReadDir lists a directory, sorted by name.
	ReadDir(path string) ([]os.DirEntry, error)

	// Readlink reads the raw target of a symlink.
	Readlink(path string) (string, error)

	// MkdirAll creates a directory and all parent directories.
	MkdirAll(path string, perm os.FileMode) error

	// Remove removes a file, a symlink or an empty directory.
	Remove(path string) error

	// Symlink creates a symbolic link at newname pointing to oldname.
	Symlink(oldname, newname string) error

	// Canonicalize returns the absolute path with every symlink resolved.
	Canonicalize(path string) (string, error)

	// ValidateRelPath validates a relative path for safety.
	ValidateRelPath(relPath string) error
}

// RealFS implements FS using actual OS operations.
type RealFS struct{}

// NewRealFS creates a new RealFS.
func NewRealFS() *RealFS {
	return &RealFS{}
}

// Stat returns file info, following symlinks.
func (fs *RealFS) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// Lstat returns file info without following symlinks.
func (fs *RealFS) Lstat(path string) (os.FileInfo, error) {
	return os.Lstat(path)
}

// ReadDir lists a directory, sorted by name.
func (fs *RealFS) ReadDir(path string) ([]os.DirEntry, error) {
	return os.ReadDir(path)
}

// Readlink reads the raw target of a symlink.
func (fs *RealFS) Readlink(path string) (string, error) {
	return os.Readlink(path)
}

// MkdirAll creates a directory and all parent directories.
func (fs *RealFS) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Remove removes a file, a symlink or an empty directory.
func (fs *RealFS) Remove(path string) error {
	return os.Remove(path)
}

// Symlink creates a symbolic link at newname pointing to oldname.
func (fs *RealFS) Symlink(oldname, newname string) error {
	return os.Symlink(oldname, newname)
}

// Canonicalize returns the absolute path with every symlink resolved.
// The path must exist.
func (fs *RealFS) Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to make %s absolute: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return resolved, nil
}

// ValidateRelPath validates a relative path for safety.
// Returns an error if the path is empty, absolute or escapes its root.
func (fs *RealFS) ValidateRelPath(relPath string) error {
	cleaned := filepath.Clean(relPath)

	if cleaned == "" || cleaned == "." {
		return fmt.Errorf("invalid path: empty or current directory")
	}

	if filepath.IsAbs(cleaned) {
		return fmt.Errorf("invalid path: must be relative, got absolute path %q", cleaned)
	}

	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return fmt.Errorf("invalid path: path traversal not allowed in %q", cleaned)
	}

	return nil
}
