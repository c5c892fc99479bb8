package integration

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/lndir/internal/clock"
	"github.com/danieljhkim/lndir/internal/engine"
	"github.com/danieljhkim/lndir/internal/fsops"
)

// maxHops bounds symlink resolution, like the kernel's ELOOP limit.
const maxHops = 40

type nodeKind int

const (
	kindDir nodeKind = iota
	kindFile
	kindSymlink
)

type node struct {
	kind   nodeKind
	target string
}

// testFS is an in-memory filesystem with real symlink semantics. Paths are
// absolute and slash separated.
type testFS struct {
	nodes map[string]*node

	// failSymlink makes Symlink fail for the given link paths
	failSymlink map[string]error

	// symlinks counts successful Symlink calls
	symlinks int
}

var _ fsops.FS = (*testFS)(nil)

func newTestFS() *testFS {
	return &testFS{
		nodes:       map[string]*node{"/": {kind: kindDir}},
		failSymlink: make(map[string]error),
	}
}

func pathErr(op, path string, err error) error {
	return &os.PathError{Op: op, Path: path, Err: err}
}

// resolve maps path to the node it names, following symlinks in every
// component and, when followLast is set, in the final one. A missing final
// component resolves to where it would be created.
func (m *testFS) resolve(path string, followLast bool) (string, error) {
	path = filepath.Clean(path)

	for hops := 0; hops <= maxHops; hops++ {
		parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
		cur := "/"
		restarted := false

		for i, part := range parts {
			if part == "" {
				continue
			}
			last := i == len(parts)-1
			next := filepath.Join(cur, part)

			n, ok := m.nodes[next]
			if !ok {
				if last {
					return next, nil
				}
				return "", pathErr("resolve", path, fs.ErrNotExist)
			}

			switch {
			case n.kind == kindSymlink && (!last || followLast):
				target := n.target
				if !filepath.IsAbs(target) {
					target = filepath.Join(cur, target)
				}
				path = filepath.Join(append([]string{target}, parts[i+1:]...)...)
				restarted = true
			case n.kind == kindFile && !last:
				return "", pathErr("resolve", path, syscall.ENOTDIR)
			default:
				cur = next
			}
			if restarted {
				break
			}
		}

		if !restarted {
			return cur, nil
		}
	}

	return "", pathErr("resolve", path, syscall.ELOOP)
}

func (m *testFS) info(path, name string) (os.FileInfo, error) {
	n, ok := m.nodes[path]
	if !ok {
		return nil, pathErr("stat", path, fs.ErrNotExist)
	}
	info := &mockFileInfo{name: name}
	switch n.kind {
	case kindDir:
		info.mode = os.ModeDir | 0755
		info.isDir = true
	case kindSymlink:
		info.mode = os.ModeSymlink | 0777
	default:
		info.mode = 0644
	}
	return info, nil
}

func (m *testFS) Stat(path string) (os.FileInfo, error) {
	resolved, err := m.resolve(path, true)
	if err != nil {
		return nil, err
	}
	return m.info(resolved, filepath.Base(path))
}

func (m *testFS) Lstat(path string) (os.FileInfo, error) {
	resolved, err := m.resolve(path, false)
	if err != nil {
		return nil, err
	}
	return m.info(resolved, filepath.Base(path))
}

func (m *testFS) ReadDir(path string) ([]os.DirEntry, error) {
	resolved, err := m.resolve(path, true)
	if err != nil {
		return nil, err
	}
	n, ok := m.nodes[resolved]
	if !ok {
		return nil, pathErr("readdir", path, fs.ErrNotExist)
	}
	if n.kind != kindDir {
		return nil, pathErr("readdir", path, syscall.ENOTDIR)
	}

	var entries []os.DirEntry
	for _, child := range m.children(resolved) {
		info, err := m.info(child, filepath.Base(child))
		if err != nil {
			return nil, err
		}
		entries = append(entries, fs.FileInfoToDirEntry(info))
	}
	return entries, nil
}

// children returns the direct children of dir, sorted.
func (m *testFS) children(dir string) []string {
	var out []string
	for p := range m.nodes {
		if p != "/" && filepath.Dir(p) == dir {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (m *testFS) Readlink(path string) (string, error) {
	resolved, err := m.resolve(path, false)
	if err != nil {
		return "", err
	}
	n, ok := m.nodes[resolved]
	if !ok {
		return "", pathErr("readlink", path, fs.ErrNotExist)
	}
	if n.kind != kindSymlink {
		return "", pathErr("readlink", path, syscall.EINVAL)
	}
	return n.target, nil
}

func (m *testFS) MkdirAll(path string, perm os.FileMode) error {
	if info, err := m.Stat(path); err == nil {
		if info.IsDir() {
			return nil
		}
		return pathErr("mkdir", path, syscall.ENOTDIR)
	}
	if _, err := m.Lstat(path); err == nil {
		return pathErr("mkdir", path, fs.ErrExist)
	}

	parent := filepath.Dir(path)
	if parent != path {
		if err := m.MkdirAll(parent, perm); err != nil {
			return err
		}
	}
	resolved, err := m.resolve(path, false)
	if err != nil {
		return err
	}
	m.nodes[resolved] = &node{kind: kindDir}
	return nil
}

func (m *testFS) Remove(path string) error {
	resolved, err := m.resolve(path, false)
	if err != nil {
		return err
	}
	n, ok := m.nodes[resolved]
	if !ok {
		return pathErr("remove", path, fs.ErrNotExist)
	}
	if n.kind == kindDir && len(m.children(resolved)) > 0 {
		return pathErr("remove", path, syscall.ENOTEMPTY)
	}
	delete(m.nodes, resolved)
	return nil
}

func (m *testFS) Symlink(oldname, newname string) error {
	if err, ok := m.failSymlink[newname]; ok {
		return pathErr("symlink", newname, err)
	}
	resolved, err := m.resolve(newname, false)
	if err != nil {
		return err
	}
	if _, exists := m.nodes[resolved]; exists {
		return pathErr("symlink", newname, fs.ErrExist)
	}
	if parent, ok := m.nodes[filepath.Dir(resolved)]; !ok || parent.kind != kindDir {
		return pathErr("symlink", newname, fs.ErrNotExist)
	}
	m.nodes[resolved] = &node{kind: kindSymlink, target: oldname}
	m.symlinks++
	return nil
}

func (m *testFS) Canonicalize(path string) (string, error) {
	resolved, err := m.resolve(path, true)
	if err != nil {
		return "", err
	}
	if _, ok := m.nodes[resolved]; !ok {
		return "", pathErr("canonicalize", path, fs.ErrNotExist)
	}
	return resolved, nil
}

func (m *testFS) ValidateRelPath(relPath string) error {
	return fsops.NewRealFS().ValidateRelPath(relPath)
}

// given creates paths the way the directory fixtures are written: names
// ending in ".d" are directories, everything else is a file.
func (m *testFS) given(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if strings.HasSuffix(p, ".d") {
			require.NoError(t, m.MkdirAll(p, 0755))
			continue
		}
		require.NoError(t, m.MkdirAll(filepath.Dir(p), 0755))
		resolved, err := m.resolve(p, false)
		require.NoError(t, err)
		m.nodes[resolved] = &node{kind: kindFile}
	}
}

// link creates a symlink fixture without counting it as engine output.
func (m *testFS) link(t *testing.T, path, target string) {
	t.Helper()
	require.NoError(t, m.MkdirAll(filepath.Dir(path), 0755))
	resolved, err := m.resolve(path, false)
	require.NoError(t, err)
	m.nodes[resolved] = &node{kind: kindSymlink, target: target}
}

// tree describes every node below root: "dir" for directories, "file" for
// files and "→ target" for symlinks.
func (m *testFS) tree(root string) map[string]string {
	out := make(map[string]string)
	prefix := root + "/"
	for p, n := range m.nodes {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rel := strings.TrimPrefix(p, prefix)
		switch n.kind {
		case kindDir:
			out[rel] = "dir"
		case kindFile:
			out[rel] = "file"
		default:
			out[rel] = "→ " + n.target
		}
	}
	return out
}

// mockFileInfo implements os.FileInfo
type mockFileInfo struct {
	name  string
	size  int64
	mode  os.FileMode
	isDir bool
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() os.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return time.Time{} }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() interface{}   { return nil }

func setupTestEngine(t *testing.T) (*engine.Engine, *testFS, *bytes.Buffer) {
	t.Helper()
	mem := newTestFS()
	clk := clock.NewSteppingClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), time.Millisecond)
	eng := engine.New(mem, clk, zerolog.Nop())
	return eng, mem, &bytes.Buffer{}
}
