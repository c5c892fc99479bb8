package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/lndir/internal/config"
	"github.com/danieljhkim/lndir/internal/engine"
	"github.com/danieljhkim/lndir/internal/logging"
)

var version = "dev"

// SetVersion sets the version reported by --version.
func SetVersion(v string) {
	if v == "" {
		return
	}
	version = v
}

// rootOptions holds the parsed command line.
type rootOptions struct {
	silent      bool
	ignoreLinks bool
	withRevInfo bool
	maxDepth    int

	dryRun      bool
	jsonOutput  bool
	printConfig bool
	configFile  string
	logFile     string
	verbose     int
}

// NewRootCommand builds the lndir command.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:     "lndir [flags] source... [destination]",
		Version: version,
		Short:   "Create a shadow directory of symbolic links to one or more source trees",
		Long: `lndir makes the destination directory look like the union of the source
directories by filling it with symbolic links. Files are never copied.

With two or more paths the last one is the destination; with a single path
the current directory is the destination. Every source must contribute
distinct relative paths: a path found in two sources aborts the run before
anything is written.

Version control metadata (.git, .svn, CVS, RCS, SCCS, .hg, BitKeeper,
CVS.adm) is skipped unless --withrevinfo is given.

The classic single-dash spelling (-silent, -ignorelinks, -withrevinfo,
-maxdepth N) is accepted as well.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLndir(cmd, opts, args)
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.SetHelpFunc(customHelpFunc)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	})

	flags := cmd.Flags()
	// paths after the first positional argument are never flags
	flags.SetInterspersed(false)

	flags.BoolVar(&opts.silent, "silent", false, "Do not print the name of each linked file")
	flags.BoolVar(&opts.ignoreLinks, "ignorelinks", false, "Link to source symlinks themselves instead of copying their targets")
	flags.BoolVar(&opts.withRevInfo, "withrevinfo", false, "Include version control metadata directories")
	flags.IntVar(&opts.maxDepth, "maxdepth", 0, "Descend at most N directory levels below each source")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Show what would be linked without changing the destination")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Output the result in JSON format")
	flags.BoolVar(&opts.printConfig, "print-config", false, "Print the effective configuration as TOML and exit")
	flags.StringVar(&opts.configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/lndir/config.toml)")
	flags.StringVar(&opts.logFile, "log-file", "", "Also append logs to this file")
	flags.CountVarP(&opts.verbose, "verbose", "v", "Increase log verbosity (-v info, -vv debug, -vvv trace)")

	return cmd
}

func runLndir(cmd *cobra.Command, opts *rootOptions, args []string) error {
	// a broken log file is reported by the logger itself and is not fatal
	closeLog, _ := logging.SetupLogger(opts.verbose, opts.logFile)
	defer closeLog()
	logger := logging.GetLogger("cli")

	overrides, err := flagOverrides(cmd, opts)
	if err != nil {
		return err
	}

	loaded, err := config.Load(config.LoadRequest{
		Paths:      config.DefaultPaths(),
		ConfigFile: opts.configFile,
		Overrides:  overrides,
	})
	if err != nil {
		return err
	}
	logger.Debug().
		Str("configFile", loaded.ConfigFile).
		Interface("options", loaded.Options).
		Msg("Configuration resolved")

	if opts.printConfig {
		return loaded.Options.WriteTOML(cmd.OutOrStdout())
	}

	sources, destination, err := splitPaths(args, getwd)
	if err != nil {
		return err
	}

	out := &printer{out: cmd.OutOrStdout(), err: cmd.ErrOrStderr()}

	req := &engine.MergeRequest{
		Sources:     sources,
		Destination: destination,
		Options:     loaded.Options,
		DryRun:      opts.dryRun,
	}
	if !opts.jsonOutput {
		req.Progress = cmd.OutOrStdout()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := newEngine().Merge(ctx, req)

	if opts.jsonOutput {
		if jsonErr := outputJSON(cmd.OutOrStdout(), newJSONResult(result, err)); jsonErr != nil {
			return jsonErr
		}
		return err
	}

	if err != nil {
		var conflictErr *engine.ConflictError
		if errors.As(err, &conflictErr) {
			out.ErrorSection("Conflicts Detected")
			for _, conflict := range conflictErr.Conflicts {
				out.Error(conflict.String())
			}
			out.Warning("Nothing was linked. Remove the overlap from one of the sources and run again.")
		}
		return err
	}

	if opts.dryRun {
		printDryRun(out, result)
	}

	return nil
}

// flagOverrides returns the config values given explicitly on the command
// line, keyed like the config file.
func flagOverrides(cmd *cobra.Command, opts *rootOptions) (map[string]interface{}, error) {
	flags := cmd.Flags()
	overrides := make(map[string]interface{})

	if flags.Changed("silent") {
		overrides["silent"] = opts.silent
	}
	if flags.Changed("ignorelinks") {
		overrides["ignorelinks"] = opts.ignoreLinks
	}
	if flags.Changed("withrevinfo") {
		overrides["withrevinfo"] = opts.withRevInfo
	}
	if flags.Changed("maxdepth") {
		if opts.maxDepth <= 0 {
			return nil, fmt.Errorf("%w: --maxdepth must be a positive integer, got %d", ErrUsage, opts.maxDepth)
		}
		overrides["maxdepth"] = opts.maxDepth
	}

	return overrides, nil
}

func printDryRun(out *printer, result *engine.MergeResult) {
	out.Section("Dry Run")
	out.Info(fmt.Sprintf("Would create %s", Count(len(result.Links), "link", "links")))
	if result.Plan != nil && result.Plan.Filtered > 0 {
		out.LabelValue("Skipped revision control entries", fmt.Sprintf("%d", result.Plan.Filtered))
	}
	if len(result.Links) == 0 {
		return
	}

	items := make([]string, 0, len(result.Links))
	for _, link := range result.Links {
		items = append(items, fmt.Sprintf("%s -> %s", link.RelPath, link.Target))
	}
	out.List(items, 1)
}

// customHelpFunc prints help with colored section titles
func customHelpFunc(cmd *cobra.Command, _ []string) {
	var help strings.Builder

	if cmd.Long != "" {
		help.WriteString(cmd.Long)
		help.WriteString("\n\n")
	}

	help.WriteString(headerColor.Sprint("Usage:"))
	help.WriteString("\n")
	fmt.Fprintf(&help, "  %s\n\n", cmd.UseLine())

	if cmd.HasAvailableFlags() {
		help.WriteString(headerColor.Sprint("Flags:"))
		help.WriteString("\n")
		help.WriteString(cmd.Flags().FlagUsages())
		help.WriteString("\n")
	}

	fmt.Fprint(cmd.OutOrStdout(), help.String())
}

// Execute runs lndir with the given arguments (without the program name).
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := NewRootCommand()
	cmd.SetArgs(NormalizeArgs(args))
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(ctx)
}

// Main is the process entry point used by cmd/lndir.
func Main() int {
	err := Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, FormatError(err))
	}
	return ExitCode(err)
}
