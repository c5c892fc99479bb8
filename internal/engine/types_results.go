package engine

import (
	"time"

	"github.com/danieljhkim/lndir/internal/planner"
)

// MergeResult represents the result of a merge.
type MergeResult struct {
	// Plan is the collected mapping
	Plan *planner.MergePlan

	// Links are the resolved links in relative path order. Outside a dry run
	// these are the links actually created; after a failure, the ones created
	// before it.
	Links []Link

	// DryRun is true when nothing was written
	DryRun bool

	// Duration is the wall time of the run
	Duration time.Duration
}

// Link is one destination symlink.
type Link struct {
	// RelPath is the path relative to source and destination roots
	RelPath string `json:"rel_path"`

	// Source is the owning source root as given
	Source string `json:"source"`

	// SourcePath is the canonical source root joined with RelPath
	SourcePath string `json:"source_path"`

	// DestPath is the canonical destination root joined with RelPath
	DestPath string `json:"dest_path"`

	// Target is what the created symlink points at
	Target string `json:"target"`

	// Preserved is true when Target was copied verbatim from a source symlink
	Preserved bool `json:"preserved"`
}
