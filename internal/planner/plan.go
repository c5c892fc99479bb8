package planner

import (
	"fmt"
	"path/filepath"
	"sort"
)

// MergePlan is the complete mapping of relative paths to owning sources for
// one run.
type MergePlan struct {
	// Sources is the ordered list of source roots that were walked
	Sources []string

	// Entries is the mapping, ordered by relative path once Finalize has run
	Entries []Entry

	// Conflicts lists relative paths claimed by more than one source
	Conflicts []Conflict

	// Filtered counts entries dropped as version-control metadata
	Filtered int

	owners map[string]string
}

// Entry is a single relative path and the source root that owns it.
type Entry struct {
	// RelPath is the path relative to both the source and the destination root
	RelPath string `json:"rel_path"`

	// Source is the source root as given by the caller
	Source string `json:"source"`
}

// Conflict represents a relative path found in two different sources.
type Conflict struct {
	// RelPath is the contested relative path
	RelPath string `json:"rel_path"`

	// Existing is the source root that claimed the path first
	Existing string `json:"existing"`

	// Incoming is the source root that tried to claim it again
	Incoming string `json:"incoming"`
}

// String describes the conflict the way it is reported to users.
func (c Conflict) String() string {
	return fmt.Sprintf("found %s in both %s and %s", c.RelPath, c.Existing, c.Incoming)
}

// NewMergePlan creates a new empty MergePlan.
func NewMergePlan(sources []string) *MergePlan {
	return &MergePlan{
		Sources:   sources,
		Entries:   []Entry{},
		Conflicts: []Conflict{},
		owners:    make(map[string]string),
	}
}

// HasConflicts returns true if the plan has any conflicts.
func (p *MergePlan) HasConflicts() bool {
	return len(p.Conflicts) > 0
}

// Claim records that source owns relPath. Claiming a path already owned by a
// different source records a conflict instead; claiming it again from the
// same source is a no-op.
func (p *MergePlan) Claim(relPath, source string) {
	if owner, ok := p.owners[relPath]; ok {
		if owner != source {
			p.Conflicts = append(p.Conflicts, Conflict{
				RelPath:  relPath,
				Existing: owner,
				Incoming: source,
			})
		}
		return
	}

	p.owners[relPath] = source
	p.Entries = append(p.Entries, Entry{RelPath: relPath, Source: source})
}

// Owner returns the source owning relPath.
func (p *MergePlan) Owner(relPath string) (string, bool) {
	owner, ok := p.owners[relPath]
	return owner, ok
}

// Finalize sorts entries by relative path and records a conflict for every
// entry that sits below an entry of a different source. Linking the ancestor
// would make the descendant's link land inside the other source tree.
func (p *MergePlan) Finalize() {
	sort.Slice(p.Entries, func(i, j int) bool {
		return p.Entries[i].RelPath < p.Entries[j].RelPath
	})

	reported := make(map[[2]string]bool)
	for _, entry := range p.Entries {
		for dir := filepath.Dir(entry.RelPath); dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
			owner, ok := p.owners[dir]
			if !ok || owner == entry.Source {
				continue
			}
			key := [2]string{dir, entry.Source}
			if !reported[key] {
				reported[key] = true
				p.Conflicts = append(p.Conflicts, Conflict{
					RelPath:  dir,
					Existing: owner,
					Incoming: entry.Source,
				})
			}
			break
		}
	}
}
