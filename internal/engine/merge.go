package engine

import (
	"context"
	"fmt"

	"github.com/danieljhkim/lndir/internal/clock"
	"github.com/danieljhkim/lndir/internal/planner"
)

// Merge links the union of req.Sources into req.Destination.
//
// Algorithm steps:
// 1. Validate the request and check the destination is a readable directory
// 2. Build the complete merge plan (walk, filter, detect conflicts)
// 3. Abort with a ConflictError if any relative path has two owners
// 4. For each entry in relative path order: resolve the link, replace any
//    non-directory ancestor left by an earlier run, create parent
//    directories, clear the old destination node, create the symlink and
//    report progress
//
// Nothing under the destination is modified before step 4.
func (e *Engine) Merge(ctx context.Context, req *MergeRequest) (*MergeResult, error) {
	start := e.clock.Now()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Phase 1: collect
	if err := e.checkDestination(req.Destination); err != nil {
		return nil, err
	}

	plan, err := planner.BuildMergePlan(ctx, e.fs, req.Sources, req.Options, e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build merge plan: %w", err)
	}

	result := &MergeResult{
		Plan:   plan,
		Links:  []Link{},
		DryRun: req.DryRun,
	}

	if plan.HasConflicts() {
		result.Duration = clock.Since(e.clock, start)
		return result, &ConflictError{Conflicts: plan.Conflicts}
	}

	// Phase 2: materialize
	roots := newRootResolver(e.fs)
	for _, entry := range plan.Entries {
		if err := ctx.Err(); err != nil {
			result.Duration = clock.Since(e.clock, start)
			return result, err
		}

		link, err := e.resolveLink(roots, entry, req.Destination, req.Options.IgnoreLinks)
		if err != nil {
			result.Duration = clock.Since(e.clock, start)
			return result, fmt.Errorf("failed to resolve %s: %w", entry.RelPath, err)
		}

		if req.DryRun {
			result.Links = append(result.Links, link)
			continue
		}

		destRoot, err := roots.canonical(req.Destination)
		if err != nil {
			result.Duration = clock.Since(e.clock, start)
			return result, fmt.Errorf("failed to resolve destination %s: %w", req.Destination, err)
		}
		if err := e.materialize(destRoot, link); err != nil {
			result.Duration = clock.Since(e.clock, start)
			return result, err
		}
		result.Links = append(result.Links, link)

		if !req.Options.Silent && req.Progress != nil {
			if _, err := fmt.Fprintln(req.Progress, link.SourcePath); err != nil {
				result.Duration = clock.Since(e.clock, start)
				return result, fmt.Errorf("failed to write progress: %w", err)
			}
		}
	}

	result.Duration = clock.Since(e.clock, start)

	e.logger.Info().
		Int("sources", len(req.Sources)).
		Int("links", len(result.Links)).
		Int("filtered", plan.Filtered).
		Bool("dry_run", req.DryRun).
		Dur("duration", result.Duration).
		Msg("Merge completed")

	return result, nil
}
