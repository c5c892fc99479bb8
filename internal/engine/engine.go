// Package engine provides the merge-and-materialize logic behind lndir.
//
// A merge runs in two phases. The collection phase validates the destination
// and asks the planner for a complete mapping of relative paths to owning
// sources. Only when that mapping exists and is free of conflicts does the
// materialization phase start replaying it onto the destination as symbolic
// links, one entry at a time in relative path order.
package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/danieljhkim/lndir/internal/clock"
	"github.com/danieljhkim/lndir/internal/fsops"
	"github.com/danieljhkim/lndir/internal/planner"
)

// Engine orchestrates merges.
// It is the main API surface called by the CLI.
type Engine struct {
	fs     fsops.FS
	clock  clock.Clock
	logger zerolog.Logger
}

// New creates a new Engine with the given dependencies.
func New(fs fsops.FS, clk clock.Clock, logger zerolog.Logger) *Engine {
	return &Engine{
		fs:     fs,
		clock:  clk,
		logger: logger,
	}
}

// checkDestination fails unless path can be read as a directory.
func (e *Engine) checkDestination(path string) error {
	if _, err := e.fs.ReadDir(path); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDestination, path, err)
	}
	return nil
}

// rootResolver canonicalizes source and destination roots, memoizing the
// result so every entry of a run sees the same real path.
type rootResolver struct {
	fs    fsops.FS
	cache map[string]string
}

func newRootResolver(fs fsops.FS) *rootResolver {
	return &rootResolver{fs: fs, cache: make(map[string]string)}
}

func (r *rootResolver) canonical(root string) (string, error) {
	if resolved, ok := r.cache[root]; ok {
		return resolved, nil
	}
	resolved, err := r.fs.Canonicalize(root)
	if err != nil {
		return "", err
	}
	r.cache[root] = resolved
	return resolved, nil
}

// resolveLink computes where entry's link goes and what it points at.
// It only reads the filesystem.
func (e *Engine) resolveLink(roots *rootResolver, entry planner.Entry, destination string, ignoreLinks bool) (Link, error) {
	sourceRoot, err := roots.canonical(entry.Source)
	if err != nil {
		return Link{}, err
	}
	destRoot, err := roots.canonical(destination)
	if err != nil {
		return Link{}, err
	}

	link := Link{
		RelPath:    entry.RelPath,
		Source:     entry.Source,
		SourcePath: filepath.Join(sourceRoot, entry.RelPath),
		DestPath:   filepath.Join(destRoot, entry.RelPath),
	}
	link.Target = link.SourcePath

	if ignoreLinks {
		return link, nil
	}

	info, err := e.fs.Lstat(link.SourcePath)
	if err != nil {
		return Link{}, fmt.Errorf("failed to stat %s: %w", link.SourcePath, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := e.fs.Readlink(link.SourcePath)
		if err != nil {
			return Link{}, fmt.Errorf("failed to read link %s: %w", link.SourcePath, err)
		}
		link.Target = target
		link.Preserved = true
	}

	return link, nil
}

// materialize replaces whatever is at link.DestPath with the link.
func (e *Engine) materialize(destRoot string, link Link) error {
	if err := e.prepareParents(destRoot, link.RelPath); err != nil {
		return err
	}

	if err := e.clearDestination(link.DestPath); err != nil {
		return err
	}

	if err := e.fs.Symlink(link.Target, link.DestPath); err != nil {
		return fmt.Errorf("failed to create symlink %s: %w", link.DestPath, err)
	}

	e.logger.Debug().
		Str("path", link.DestPath).
		Str("target", link.Target).
		Bool("preserved", link.Preserved).
		Msg("Created symlink")
	return nil
}

// prepareParents makes every ancestor of relPath below destRoot a real
// directory. A symlink or file left at an ancestor by an earlier run is
// removed, never followed.
func (e *Engine) prepareParents(destRoot, relPath string) error {
	var dirs []string
	for dir := filepath.Dir(relPath); dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
		dirs = append(dirs, dir)
	}

	for i := len(dirs) - 1; i >= 0; i-- {
		path := filepath.Join(destRoot, dirs[i])

		info, err := e.fs.Lstat(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("failed to stat %s: %w", path, err)
			}
		} else if info.IsDir() {
			continue
		} else {
			e.logger.Debug().Str("path", path).Msg("Replacing non-directory ancestor")
			if err := e.fs.Remove(path); err != nil {
				return fmt.Errorf("failed to remove %s: %w", path, err)
			}
		}

		if err := e.fs.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("failed to create parent directory %s: %w", path, err)
		}
	}

	return nil
}

// clearDestination removes the single node at path, if any. Directories are
// expected to be empty; nothing is removed recursively.
func (e *Engine) clearDestination(path string) error {
	info, err := e.fs.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if info.IsDir() {
		e.logger.Trace().Str("path", path).Msg("Removing existing directory")
		if err := e.fs.Remove(path); err != nil {
			return fmt.Errorf("failed to remove directory %s: %w", path, err)
		}
		return nil
	}

	e.logger.Trace().Str("path", path).Msg("Removing existing entry")
	if err := e.fs.Remove(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
