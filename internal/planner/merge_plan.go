package planner

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/danieljhkim/lndir/internal/config"
	"github.com/danieljhkim/lndir/internal/fsops"
	"github.com/danieljhkim/lndir/internal/walker"
)

// BuildMergePlan walks every source in order and folds the entries into a
// single MergePlan. Conflicts are collected on the plan rather than returned
// as an error, so callers can report all of them at once.
func BuildMergePlan(
	ctx context.Context,
	fs fsops.FS,
	sources []string,
	opts config.Options,
	logger zerolog.Logger,
) (*MergePlan, error) {
	plan := NewMergePlan(sources)

	w := &walker.Walker{FS: fs, MaxDepth: opts.MaxDepth}
	if !opts.WithRevInfo {
		w.Prune = IsRevInfo
	}

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		source = filepath.Clean(source)
		entries, err := w.Walk(source, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to walk source %s: %w", source, err)
		}

		logger.Debug().
			Str("source", source).
			Int("entries", len(entries)).
			Msg("Walked source")

		for _, entry := range entries {
			relPath, err := filepath.Rel(source, entry)
			if err != nil {
				return nil, fmt.Errorf("failed to compute relative path of %s: %w", entry, err)
			}
			if err := fs.ValidateRelPath(relPath); err != nil {
				return nil, fmt.Errorf("entry %s of source %s: %w", entry, source, err)
			}

			if !opts.WithRevInfo && IsRevInfo(relPath) {
				plan.Filtered++
				logger.Trace().Str("path", relPath).Str("source", source).Msg("Skipping revision control metadata")
				continue
			}

			plan.Claim(relPath, source)
		}
	}

	plan.Finalize()

	if plan.HasConflicts() {
		logger.Debug().Int("conflicts", len(plan.Conflicts)).Msg("Merge plan has conflicts")
	}

	return plan, nil
}
