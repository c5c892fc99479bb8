package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/danieljhkim/lndir/internal/clock"
	"github.com/danieljhkim/lndir/internal/config"
	"github.com/danieljhkim/lndir/internal/engine"
	"github.com/danieljhkim/lndir/internal/fsops"
	"github.com/danieljhkim/lndir/internal/logging"
	"github.com/danieljhkim/lndir/internal/planner"
)

// ErrUsage indicates malformed or missing command line arguments.
var ErrUsage = errors.New("usage error")

// newEngine creates a new engine with real implementations of all dependencies.
func newEngine() *engine.Engine {
	return engine.New(fsops.NewRealFS(), &clock.RealClock{}, logging.GetLogger("engine"))
}

// splitPaths separates sources from the destination. The last of two or more
// paths is the destination; a single path is a source linked into the
// current directory.
func splitPaths(args []string, getwd func() (string, error)) ([]string, string, error) {
	switch len(args) {
	case 0:
		return nil, "", fmt.Errorf("%w: no source directory specified", ErrUsage)
	case 1:
		cwd, err := getwd()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get current directory: %w", err)
		}
		return args, cwd, nil
	default:
		last := len(args) - 1
		return args[:last], args[last], nil
	}
}

// jsonResult is the --json view of a merge.
type jsonResult struct {
	DryRun     bool               `json:"dry_run"`
	Links      []engine.Link      `json:"links"`
	Filtered   int                `json:"filtered"`
	Conflicts  []planner.Conflict `json:"conflicts"`
	DurationMS int64              `json:"duration_ms"`
	Error      string             `json:"error,omitempty"`
}

func newJSONResult(result *engine.MergeResult, err error) jsonResult {
	out := jsonResult{
		Links:     []engine.Link{},
		Conflicts: []planner.Conflict{},
	}
	if result != nil {
		out.DryRun = result.DryRun
		out.Links = result.Links
		out.DurationMS = result.Duration.Milliseconds()
		if result.Plan != nil {
			out.Filtered = result.Plan.Filtered
			out.Conflicts = result.Plan.Conflicts
		}
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

// outputJSON writes a value as JSON to w.
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatError formats an error for display.
func FormatError(err error) string {
	return errorColor.Sprintf("lndir: %v", err)
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUsage), errors.Is(err, config.ErrInvalid), errors.Is(err, engine.ErrValidation):
		return 2
	default:
		return 1
	}
}

func getwd() (string, error) {
	return os.Getwd()
}
