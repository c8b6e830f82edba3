// Package cmd contains the CLI commands for tdt.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/tdt/internal/scan"
	"github.com/good-yellow-bee/tdt/pkg/config"
)

// Process exit codes.
const (
	ExitClean   = 0 // scan completed, no matches
	ExitMatches = 1 // scan completed, matches found
	ExitError   = 2 // scan failed
)

// errMatchesFound is returned by the root command when the report is not
// empty. It is not reported as an error.
var errMatchesFound = errors.New("matches found")

var (
	// Used for flags
	verbose  bool
	defaults = config.Default()
	opts     = scanOptions{
		JSONOut:  defaults.Output.JSON,
		HTMLOut:  defaults.Output.HTML,
		Includes: scan.DefaultIncludes,
		Pattern:  scan.DefaultPattern,
		Workers:  defaults.Workers,
	}
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tdt",
	Short: "tdt - Tech Debt Tracker",
	Long: `tdt scans the tracked files of a git repository for lines matching a
pattern (TODO by default, case-insensitive) and attributes every match to the
commit that last touched it.

Each run writes report.json and report.html to the current directory and
prints one block per match. The exit status is 1 when matches were found,
0 when none were, and 2 on errors, so tdt can gate CI pipelines.

Examples:
  # Scan the repository in the current directory
  tdt

  # Scan another checkout, quietly
  tdt -C ~/src/project -q

  # Only Go and Python files
  tdt --includes '**/*.go' --includes '**/*.py'
  tdt -i '**/*.{go,py}'

  # Look for FIXME and XXX as well, blaming 8 files at a time
  tdt --pattern 'TODO|FIXME|XXX' --workers 8

  # Use settings from a file
  tdt --config tdt.yaml`,
	Args:          noPositionalArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if opts.GitDir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			opts.GitDir = wd
		}
		if opts.ConfigPath != "" {
			if err := opts.applyConfigFile(cmd.Flags().Changed); err != nil {
				return err
			}
		}
		return runScan(cmd.Context(), &opts, cmd.OutOrStdout(), newLogger(cmd.ErrOrStderr()))
	},
}

// Execute runs the root command and returns the process exit code.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() int {
	err := rootCmd.Execute()
	code := exitCode(err)
	if code == ExitError {
		newLogger(os.Stderr).Error("scan failed", "err", err)
	}
	return code
}

// noPositionalArgs rejects arguments, pointing at the usual cause: several
// globs given to a single --includes.
func noPositionalArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument %q: tdt takes no arguments, repeat -i/--includes for each glob", args[0])
	}
	return nil
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitClean
	case errors.Is(err, errMatchesFound):
		return ExitMatches
	default:
		return ExitError
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	flags := rootCmd.Flags()
	flags.BoolVarP(&opts.Quiet, "quiet", "q", false, "suppress the per-match summary")
	flags.StringVarP(&opts.GitDir, "git-dir", "C", "", "root directory of the git repository (default: current directory)")
	flags.StringArrayVarP(&opts.Includes, "includes", "i", opts.Includes,
		"glob of files to process; repeat the flag for several globs (-i '*.py' -i '*.js')")
	flags.StringVarP(&opts.Pattern, "pattern", "p", opts.Pattern, "line pattern (regexp, case-insensitive)")
	flags.StringVar(&opts.JSONOut, "json-out", opts.JSONOut, "JSON report path")
	flags.StringVar(&opts.HTMLOut, "html-out", opts.HTMLOut, "HTML report path")
	flags.StringVar(&opts.TemplatePath, "template", "", "mustache template for the HTML report (default: built-in)")
	flags.StringVar(&opts.ConfigPath, "config", "", "YAML configuration file")
	flags.IntVarP(&opts.Workers, "workers", "w", opts.Workers, "number of files to blame concurrently")
	flags.StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// newLogger returns a stderr logger honoring --verbose.
func newLogger(w io.Writer) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{Prefix: "tdt"})
	if IsVerbose() {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}
