package planner

import "path/filepath"

// revInfoNames are the basenames of version-control metadata.
var revInfoNames = map[string]bool{
	"BitKeeper": true,
	"CVS":       true,
	"CVS.adm":   true,
	".git":      true,
	".hg":       true,
	"RCS":       true,
	"SCCS":      true,
	".svn":      true,
}

// IsRevInfo reports whether the final component of relPath is a
// version-control metadata name. Ancestors are not inspected.
func IsRevInfo(relPath string) bool {
	return revInfoNames[filepath.Base(relPath)]
}
