package config

import (
	"errors"
	"fmt"
)

// ErrInvalid indicates an invalid configuration value.
var ErrInvalid = errors.New("invalid configuration")

// Options is the configuration of a single run.
type Options struct {
	// Silent suppresses the per-link progress output
	Silent bool `koanf:"silent" toml:"silent"`

	// IgnoreLinks always links to the canonical source path instead of
	// copying the target of a source entry that is itself a symlink
	IgnoreLinks bool `koanf:"ignorelinks" toml:"ignorelinks"`

	// WithRevInfo includes version-control metadata directories
	WithRevInfo bool `koanf:"withrevinfo" toml:"withrevinfo"`

	// MaxDepth bounds recursion below each source root; 0 means unbounded
	MaxDepth int `koanf:"maxdepth" toml:"maxdepth"`
}

// Validate checks the options for consistency.
func (o Options) Validate() error {
	if o.MaxDepth < 0 {
		return fmt.Errorf("%w: maxdepth must be positive, got %d", ErrInvalid, o.MaxDepth)
	}
	return nil
}
