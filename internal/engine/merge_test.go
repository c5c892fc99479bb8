package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/lndir/internal/clock"
	"github.com/danieljhkim/lndir/internal/config"
	"github.com/danieljhkim/lndir/internal/fsops"
	"github.com/danieljhkim/lndir/internal/planner"
)

func newTestEngine() *Engine {
	return New(fsops.NewRealFS(), clock.NewFakeClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)), zerolog.Nop())
}

// writeTree creates files below root; paths ending in "/" become empty
// directories.
func writeTree(t *testing.T, root string, paths ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(root, 0755))
	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))
		if strings.HasSuffix(p, "/") {
			require.NoError(t, os.MkdirAll(full, 0755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(p), 0644))
	}
}

// snapshot describes every node below root: "d" for directories, "f" for
// files and "-> target" for symlinks.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	nodes := make(map[string]string)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			nodes[rel] = "-> " + target
		case info.IsDir():
			nodes[rel] = "d"
		default:
			nodes[rel] = "f"
		}
		return nil
	})
	require.NoError(t, err)
	return nodes
}

func canonical(t *testing.T, path string) string {
	t.Helper()
	resolved, err := fsops.NewRealFS().Canonicalize(path)
	require.NoError(t, err)
	return resolved
}

func TestMerge_TwoSourceScenario(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "A")
	b := filepath.Join(base, "B")
	d := filepath.Join(base, "D")
	writeTree(t, a, "x/1.txt")
	writeTree(t, b, "x/2.txt")
	require.NoError(t, os.MkdirAll(d, 0755))

	var progress bytes.Buffer
	result, err := newTestEngine().Merge(context.Background(), &MergeRequest{
		Sources:     []string{a, b},
		Destination: d,
		Progress:    &progress,
	})
	require.NoError(t, err)

	want1 := filepath.Join(canonical(t, a), "x", "1.txt")
	want2 := filepath.Join(canonical(t, b), "x", "2.txt")

	assert.Equal(t, map[string]string{
		"x":       "d",
		"x/1.txt": "-> " + want1,
		"x/2.txt": "-> " + want2,
	}, snapshot(t, d))

	assert.Equal(t, want1+"\n"+want2+"\n", progress.String())
	require.Len(t, result.Links, 2)
	assert.False(t, result.DryRun)
}

func TestMerge_Silent(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "A")
	d := filepath.Join(base, "D")
	writeTree(t, a, "f.txt")
	require.NoError(t, os.MkdirAll(d, 0755))

	var progress bytes.Buffer
	_, err := newTestEngine().Merge(context.Background(), &MergeRequest{
		Sources:     []string{a},
		Destination: d,
		Options:     config.Options{Silent: true},
		Progress:    &progress,
	})
	require.NoError(t, err)
	assert.Empty(t, progress.String())
	assert.Contains(t, snapshot(t, d), "f.txt")
}

func TestMerge_Idempotent(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "A")
	b := filepath.Join(base, "B")
	d := filepath.Join(base, "D")
	writeTree(t, a, "bin/tool", "share/doc/README", "empty/")
	writeTree(t, b, "lib/libx.so", "share/man/tool.1")
	require.NoError(t, os.Symlink("../lib/libx.so", filepath.Join(b, "bin-link")))
	require.NoError(t, os.MkdirAll(d, 0755))

	req := &MergeRequest{Sources: []string{a, b}, Destination: d}

	_, err := newTestEngine().Merge(context.Background(), req)
	require.NoError(t, err)
	first := snapshot(t, d)

	_, err = newTestEngine().Merge(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, snapshot(t, d))
}

func TestMerge_RerunAfterEmptyDirectoryIsPopulated(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "A")
	d := filepath.Join(base, "D")
	writeTree(t, a, "lib/")
	require.NoError(t, os.MkdirAll(d, 0755))

	req := &MergeRequest{Sources: []string{a}, Destination: d}

	_, err := newTestEngine().Merge(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "-> "+filepath.Join(canonical(t, a), "lib"), snapshot(t, d)["lib"])

	source := filepath.Join(a, "lib", "x.txt")
	require.NoError(t, os.WriteFile(source, []byte("payload"), 0644))

	_, err = newTestEngine().Merge(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"lib":       "d",
		"lib/x.txt": "-> " + filepath.Join(canonical(t, a), "lib", "x.txt"),
	}, snapshot(t, d))

	info, err := os.Lstat(source)
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular(), "source file must stay a regular file")
	content, err := os.ReadFile(source)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))
}

func TestMerge_UnboundedRerunAfterBoundedRun(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "A")
	d := filepath.Join(base, "D")
	writeTree(t, a, "top/mid/deep.txt", "top/side.txt")
	require.NoError(t, os.MkdirAll(d, 0755))

	_, err := newTestEngine().Merge(context.Background(), &MergeRequest{
		Sources:     []string{a},
		Destination: d,
		Options:     config.Options{MaxDepth: 1},
	})
	require.NoError(t, err)
	require.Equal(t, "-> "+filepath.Join(canonical(t, a), "top"), snapshot(t, d)["top"])

	_, err = newTestEngine().Merge(context.Background(), &MergeRequest{Sources: []string{a}, Destination: d})
	require.NoError(t, err)

	root := canonical(t, a)
	assert.Equal(t, map[string]string{
		"top":              "d",
		"top/mid":          "d",
		"top/mid/deep.txt": "-> " + filepath.Join(root, "top", "mid", "deep.txt"),
		"top/side.txt":     "-> " + filepath.Join(root, "top", "side.txt"),
	}, snapshot(t, d))

	assert.Equal(t, map[string]string{
		"top":              "d",
		"top/mid":          "d",
		"top/mid/deep.txt": "f",
		"top/side.txt":     "f",
	}, snapshot(t, a), "source tree must be unchanged")
}

func TestMerge_ReplacesFileAncestor(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "A")
	d := filepath.Join(base, "D")
	writeTree(t, a, "lib/x.txt")
	writeTree(t, d, "lib")

	_, err := newTestEngine().Merge(context.Background(), &MergeRequest{Sources: []string{a}, Destination: d})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"lib":       "d",
		"lib/x.txt": "-> " + filepath.Join(canonical(t, a), "lib", "x.txt"),
	}, snapshot(t, d))
}

func TestMerge_ReplacesExistingDestinationEntries(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "A")
	d := filepath.Join(base, "D")
	writeTree(t, a, "file.txt", "dir-slot.txt", "stale-link.txt", "empty/")
	writeTree(t, d, "file.txt", "dir-slot.txt/", "empty")
	require.NoError(t, os.Symlink("/nonexistent", filepath.Join(d, "stale-link.txt")))

	_, err := newTestEngine().Merge(context.Background(), &MergeRequest{
		Sources:     []string{a},
		Destination: d,
	})
	require.NoError(t, err)

	root := canonical(t, a)
	assert.Equal(t, map[string]string{
		"dir-slot.txt":   "-> " + filepath.Join(root, "dir-slot.txt"),
		"empty":          "-> " + filepath.Join(root, "empty"),
		"file.txt":       "-> " + filepath.Join(root, "file.txt"),
		"stale-link.txt": "-> " + filepath.Join(root, "stale-link.txt"),
	}, snapshot(t, d))
}

func TestMerge_KeepsUnrelatedDestinationContent(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "A")
	d := filepath.Join(base, "D")
	writeTree(t, a, "x/new.txt")
	writeTree(t, d, "x/mine.txt", "other/keep.txt")

	_, err := newTestEngine().Merge(context.Background(), &MergeRequest{
		Sources:     []string{a},
		Destination: d,
	})
	require.NoError(t, err)

	nodes := snapshot(t, d)
	assert.Equal(t, "f", nodes["x/mine.txt"])
	assert.Equal(t, "f", nodes["other/keep.txt"])
	assert.Equal(t, "-> "+filepath.Join(canonical(t, a), "x", "new.txt"), nodes["x/new.txt"])
}

func TestMerge_ConflictLeavesDestinationUntouched(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "A")
	b := filepath.Join(base, "B")
	d := filepath.Join(base, "D")
	writeTree(t, a, "aaa-first.txt", "same/file.txt")
	writeTree(t, b, "same/file.txt", "zzz-last.txt")
	writeTree(t, d, "same/file.txt")

	var progress bytes.Buffer
	result, err := newTestEngine().Merge(context.Background(), &MergeRequest{
		Sources:     []string{a, b},
		Destination: d,
		Progress:    &progress,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))

	var conflictErr *ConflictError
	require.True(t, errors.As(err, &conflictErr))
	require.Len(t, conflictErr.Conflicts, 1)
	assert.Equal(t, planner.Conflict{
		RelPath:  filepath.Join("same", "file.txt"),
		Existing: a,
		Incoming: b,
	}, conflictErr.Conflicts[0])
	assert.Contains(t, err.Error(), a)
	assert.Contains(t, err.Error(), b)

	require.NotNil(t, result)
	assert.Empty(t, result.Links)
	assert.Empty(t, progress.String())
	assert.Equal(t, map[string]string{
		"same":          "d",
		"same/file.txt": "f",
	}, snapshot(t, d))
}

func TestMerge_ConflictErrorMessage(t *testing.T) {
	err := &ConflictError{Conflicts: []planner.Conflict{
		{RelPath: "a", Existing: "/s1", Incoming: "/s2"},
		{RelPath: "b", Existing: "/s1", Incoming: "/s2"},
	}}
	assert.Equal(t, "conflict detected: found a in both /s1 and /s2 (and 1 more)", err.Error())

	single := &ConflictError{Conflicts: err.Conflicts[:1]}
	assert.Equal(t, "conflict detected: found a in both /s1 and /s2", single.Error())
}

func TestMerge_DepthBound(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "A")
	d := filepath.Join(base, "D")
	writeTree(t, a, "top.txt", "l1/f.txt", "l1/l2/g.txt", "l1/l2/l3/h.txt")
	require.NoError(t, os.MkdirAll(d, 0755))

	_, err := newTestEngine().Merge(context.Background(), &MergeRequest{
		Sources:     []string{a},
		Destination: d,
		Options:     config.Options{MaxDepth: 2},
	})
	require.NoError(t, err)

	root := canonical(t, a)
	assert.Equal(t, map[string]string{
		"top.txt":  "-> " + filepath.Join(root, "top.txt"),
		"l1":       "d",
		"l1/f.txt": "-> " + filepath.Join(root, "l1", "f.txt"),
		"l1/l2":    "-> " + filepath.Join(root, "l1", "l2"),
	}, snapshot(t, d))
}

func TestMerge_RevInfoFiltering(t *testing.T) {
	tests := []struct {
		name        string
		withRevInfo bool
		want        []string
	}{
		{
			name: "excluded by default",
			want: []string{"src", "src/main.c"},
		},
		{
			name:        "included on request",
			withRevInfo: true,
			want:        []string{".git", ".git/HEAD", ".git/refs", ".git/refs/heads", ".git/refs/heads/main", "src", "src/main.c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := t.TempDir()
			a := filepath.Join(base, "A")
			d := filepath.Join(base, "D")
			writeTree(t, a, ".git/HEAD", ".git/refs/heads/main", "src/main.c")
			require.NoError(t, os.MkdirAll(d, 0755))

			_, err := newTestEngine().Merge(context.Background(), &MergeRequest{
				Sources:     []string{a},
				Destination: d,
				Options:     config.Options{WithRevInfo: tt.withRevInfo},
			})
			require.NoError(t, err)

			nodes := snapshot(t, d)
			got := make([]string, 0, len(nodes))
			for p := range nodes {
				got = append(got, p)
			}
			sort.Strings(got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMerge_SymlinkPreservation(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	d := filepath.Join(base, "D")
	writeTree(t, src, "b/target")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "a"), 0755))
	require.NoError(t, os.Symlink("../b/target", filepath.Join(src, "a", "link")))
	require.NoError(t, os.MkdirAll(d, 0755))

	t.Run("relative target kept verbatim", func(t *testing.T) {
		result, err := newTestEngine().Merge(context.Background(), &MergeRequest{
			Sources:     []string{src},
			Destination: d,
		})
		require.NoError(t, err)

		target, err := os.Readlink(filepath.Join(d, "a", "link"))
		require.NoError(t, err)
		assert.Equal(t, "../b/target", target)

		// the preserved relative link resolves inside the merged tree
		content, err := os.ReadFile(filepath.Join(d, "a", "link"))
		require.NoError(t, err)
		assert.Equal(t, "b/target", string(content))

		var preserved []string
		for _, link := range result.Links {
			if link.Preserved {
				preserved = append(preserved, link.RelPath)
			}
		}
		assert.Equal(t, []string{filepath.Join("a", "link")}, preserved)
	})

	t.Run("ignorelinks points at the source path", func(t *testing.T) {
		_, err := newTestEngine().Merge(context.Background(), &MergeRequest{
			Sources:     []string{src},
			Destination: d,
			Options:     config.Options{IgnoreLinks: true},
		})
		require.NoError(t, err)

		target, err := os.Readlink(filepath.Join(d, "a", "link"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(canonical(t, src), "a", "link"), target)
	})
}

func TestMerge_CanonicalizesRoots(t *testing.T) {
	base := t.TempDir()
	realSrc := filepath.Join(base, "real-src")
	writeTree(t, realSrc, "f.txt")
	aliasSrc := filepath.Join(base, "alias-src")
	require.NoError(t, os.Symlink(realSrc, aliasSrc))

	realDest := filepath.Join(base, "real-dest")
	require.NoError(t, os.MkdirAll(realDest, 0755))
	aliasDest := filepath.Join(base, "alias-dest")
	require.NoError(t, os.Symlink(realDest, aliasDest))

	result, err := newTestEngine().Merge(context.Background(), &MergeRequest{
		Sources:     []string{aliasSrc},
		Destination: aliasDest,
	})
	require.NoError(t, err)

	require.Len(t, result.Links, 1)
	assert.Equal(t, filepath.Join(canonical(t, realSrc), "f.txt"), result.Links[0].Target)
	assert.Equal(t, filepath.Join(canonical(t, realDest), "f.txt"), result.Links[0].DestPath)

	target, err := os.Readlink(filepath.Join(realDest, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(canonical(t, realSrc), "f.txt"), target)
}

func TestMerge_DryRun(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "A")
	d := filepath.Join(base, "D")
	writeTree(t, a, "x/1.txt", "y.txt")
	writeTree(t, d, "y.txt")

	var progress bytes.Buffer
	result, err := newTestEngine().Merge(context.Background(), &MergeRequest{
		Sources:     []string{a},
		Destination: d,
		DryRun:      true,
		Progress:    &progress,
	})
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	require.Len(t, result.Links, 2)
	assert.Equal(t, filepath.Join("x", "1.txt"), result.Links[0].RelPath)
	assert.Equal(t, "y.txt", result.Links[1].RelPath)
	assert.Empty(t, progress.String())
	assert.Equal(t, map[string]string{"y.txt": "f"}, snapshot(t, d))
}

func TestMerge_DestinationErrors(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "A")
	writeTree(t, a, "f.txt")
	file := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	tests := []struct {
		name        string
		destination string
	}{
		{name: "missing destination", destination: filepath.Join(base, "missing")},
		{name: "destination is a file", destination: file},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := newTestEngine().Merge(context.Background(), &MergeRequest{
				Sources:     []string{a},
				Destination: tt.destination,
			})
			assert.Nil(t, result)
			assert.ErrorIs(t, err, ErrDestination)
			assert.Contains(t, err.Error(), tt.destination)
		})
	}

	_, err := os.Lstat(filepath.Join(base, "missing"))
	assert.True(t, os.IsNotExist(err), "the destination root is never created")
}

func TestMerge_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  *MergeRequest
	}{
		{name: "no sources", req: &MergeRequest{Destination: "/tmp"}},
		{name: "empty source", req: &MergeRequest{Sources: []string{""}, Destination: "/tmp"}},
		{name: "no destination", req: &MergeRequest{Sources: []string{"/tmp"}}},
		{name: "negative depth", req: &MergeRequest{Sources: []string{"/tmp"}, Destination: "/tmp", Options: config.Options{MaxDepth: -1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestEngine().Merge(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestMerge_MissingSourceIsIOError(t *testing.T) {
	base := t.TempDir()
	d := filepath.Join(base, "D")
	require.NoError(t, os.MkdirAll(d, 0755))

	_, err := newTestEngine().Merge(context.Background(), &MergeRequest{
		Sources:     []string{filepath.Join(base, "nope")},
		Destination: d,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NotErrorIs(t, err, ErrConflict)
}

func TestMerge_AbortsOnMaterializeFailure(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "A")
	d := filepath.Join(base, "D")
	writeTree(t, a, "a.txt", "b.txt", "c.txt")
	// a non-empty directory where b.txt must go cannot be cleared
	writeTree(t, d, "b.txt/occupied")

	var progress bytes.Buffer
	result, err := newTestEngine().Merge(context.Background(), &MergeRequest{
		Sources:     []string{a},
		Destination: d,
		Progress:    &progress,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.txt")

	require.NotNil(t, result)
	require.Len(t, result.Links, 1)
	assert.Equal(t, "a.txt", result.Links[0].RelPath)
	assert.Equal(t, 1, strings.Count(progress.String(), "\n"))

	nodes := snapshot(t, d)
	assert.Contains(t, nodes, "a.txt")
	assert.NotContains(t, nodes, "c.txt", "no continuation after a failure")
}

func TestMerge_CancelledContext(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "A")
	d := filepath.Join(base, "D")
	writeTree(t, a, "f.txt")
	require.NoError(t, os.MkdirAll(d, 0755))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine().Merge(ctx, &MergeRequest{
		Sources:     []string{a},
		Destination: d,
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, snapshot(t, d))
}

func TestMerge_Duration(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "A")
	d := filepath.Join(base, "D")
	writeTree(t, a, "f.txt")
	require.NoError(t, os.MkdirAll(d, 0755))

	clk := clock.NewSteppingClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), time.Second)
	eng := New(fsops.NewRealFS(), clk, zerolog.Nop())

	result, err := eng.Merge(context.Background(), &MergeRequest{
		Sources:     []string{a},
		Destination: d,
	})
	require.NoError(t, err)
	assert.Equal(t, time.Second, result.Duration)
}
