package engine

import (
	"fmt"
	"io"

	"github.com/danieljhkim/lndir/internal/config"
)

// MergeRequest represents a request to merge source trees into a destination.
type MergeRequest struct {
	// Sources are the source roots, in priority order for conflict reports
	Sources []string

	// Destination is the existing directory receiving the links
	Destination string

	// Options is the run configuration
	Options config.Options

	// DryRun resolves every link without touching the destination
	DryRun bool

	// Progress receives one line per created link unless Options.Silent
	Progress io.Writer
}

// Validate checks the request before any filesystem access.
func (r *MergeRequest) Validate() error {
	if len(r.Sources) == 0 {
		return fmt.Errorf("%w: no source directory specified", ErrValidation)
	}
	for _, source := range r.Sources {
		if source == "" {
			return fmt.Errorf("%w: empty source directory", ErrValidation)
		}
	}
	if r.Destination == "" {
		return fmt.Errorf("%w: no destination directory specified", ErrValidation)
	}
	if err := r.Options.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
