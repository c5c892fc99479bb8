// Package walker enumerates the entries of a single source tree.
//
// An entry is a path that must appear individually in the destination: every
// file, and every directory that ends up with nothing below it. Directories
// that contain entries are not entries themselves; the destination recreates
// them from the parent paths of their leaves.
package walker

import (
	"fmt"
	"path/filepath"

	"github.com/danieljhkim/lndir/internal/fsops"
)

// Unbounded disables the depth bound.
const Unbounded = 0

// Walk returns the entries below root as paths joined onto root.
//
// depth is the level of root's children (1 for a source root). When maxDepth
// is not Unbounded, nothing is returned once depth exceeds it, so a directory
// sitting at the bound collapses into a single entry.
//
// Children are classified with Stat, so a symlink to a directory is walked
// like a directory and a symlink to a file (or a dangling one) is a file entry.
func Walk(fs fsops.FS, root string, depth, maxDepth int) ([]string, error) {
	w := &Walker{FS: fs, MaxDepth: maxDepth}
	return w.Walk(root, depth)
}

// Walker carries the settings of a walk.
type Walker struct {
	FS       fsops.FS
	MaxDepth int

	// Prune, when set, is consulted with the base name of every directory.
	// A pruned directory is not descended into and becomes a leaf entry, the
	// same way a directory at the depth bound does.
	Prune func(name string) bool

	// canonical paths of the directories on the current recursion path
	active map[string]bool
}

// Walk returns the entries below root; see the package level Walk.
func (w *Walker) Walk(root string, depth int) ([]string, error) {
	w.active = make(map[string]bool)
	return w.walk(root, depth)
}

func (w *Walker) walk(dir string, depth int) ([]string, error) {
	if w.MaxDepth != Unbounded && depth > w.MaxDepth {
		return nil, nil
	}

	children, err := w.FS.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	canonical, err := w.FS.Canonicalize(dir)
	if err != nil {
		return nil, err
	}
	w.active[canonical] = true
	defer delete(w.active, canonical)

	var paths []string
	for _, child := range children {
		childPath := filepath.Join(dir, child.Name())

		isDir, err := w.isWalkableDir(childPath)
		if err != nil {
			return nil, err
		}
		if !isDir {
			paths = append(paths, childPath)
			continue
		}

		if w.Prune != nil && w.Prune(child.Name()) {
			paths = append(paths, childPath)
			continue
		}

		childEntries, err := w.walk(childPath, depth+1)
		if err != nil {
			return nil, err
		}
		if len(childEntries) == 0 {
			paths = append(paths, childPath)
		} else {
			paths = append(paths, childEntries...)
		}
	}

	return paths, nil
}

// isWalkableDir reports whether path should be descended into. A symlink that
// leads back into a directory already being walked is treated as a leaf.
func (w *Walker) isWalkableDir(path string) (bool, error) {
	info, err := w.FS.Stat(path)
	if err != nil {
		// dangling or looping symlink
		return false, nil
	}
	if !info.IsDir() {
		return false, nil
	}

	canonical, err := w.FS.Canonicalize(path)
	if err != nil {
		return false, err
	}
	return !w.active[canonical], nil
}
