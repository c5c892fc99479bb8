// Package config manages lndir configuration.
//
// Options are resolved once per run from built-in defaults, an optional
// config file, LNDIR_* environment variables and command line flags, in
// increasing order of precedence. The default config directory follows the
// XDG base directory layout ($XDG_CONFIG_HOME/lndir).
package config

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// AppName names the config directory.
const AppName = "lndir"

// Paths contains the filesystem paths used by lndir.
type Paths struct {
	// Root is the config directory (default: $XDG_CONFIG_HOME/lndir)
	Root string

	// ConfigFiles are the candidate config files, in lookup order
	ConfigFiles []string
}

// DefaultPaths returns the default paths for lndir.
// The root can be overridden with LNDIR_CONFIG_DIR.
func DefaultPaths() *Paths {
	root := os.Getenv("LNDIR_CONFIG_DIR")
	if root == "" {
		root = filepath.Join(xdg.ConfigHome, AppName)
	}

	return &Paths{
		Root: root,
		ConfigFiles: []string{
			filepath.Join(root, "config.toml"),
			filepath.Join(root, "config.yaml"),
			filepath.Join(root, "config.yml"),
		},
	}
}

// FindConfigFile returns the first candidate config file that exists, or ""
// when there is none.
func (p *Paths) FindConfigFile() string {
	for _, path := range p.ConfigFiles {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}
