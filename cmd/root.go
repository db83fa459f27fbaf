package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cdtdelta/oci-audit-csv/internal/config"
	"github.com/cdtdelta/oci-audit-csv/internal/database"
	"github.com/cdtdelta/oci-audit-csv/internal/logging"
	"github.com/cdtdelta/oci-audit-csv/internal/pipeline"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitUsage       = 1
	ExitOutput      = 2
	ExitInterrupted = 130
)

type options struct {
	verbose    bool
	debug      bool
	threads    int
	configPath string
	dbDriver   string
	dbDSN      string
}

// NewRootCmd builds the oci-audit-csv command.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "oci-audit-csv <input_folder> [output_prefix]",
		Short: "Convert OCI audit log JSON exports into full and forensic CSV reports",
		Long: `Reads every *.json file in input_folder, flattens each audit event into
dot-separated columns and writes two reports:

  <output_prefix>_full.csv      every column found in any event
  <output_prefix>_forensic.csv  the security-relevant subset

Malformed files are reported and skipped. The full report can also be
exported to SQLite or PostgreSQL with --db-driver and --db.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.threads, "threads", "t", config.DefaultWorkers, "parallel workers for column discovery")
	flags.StringVarP(&opts.configPath, "config", "c", "", "TOML config file")
	flags.StringVar(&opts.dbDriver, "db-driver", "", fmt.Sprintf("export the full report to a database (%s)", strings.Join(database.Drivers, ", ")))
	flags.StringVar(&opts.dbDSN, "db", "", "database file or connection string for --db-driver")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose output")
	flags.BoolVarP(&opts.debug, "debug", "d", false, "enable debug output")

	return cmd
}

// Execute runs the command with os.Args and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		logging.Logger{}.Errorf("%v", err)
		return ExitCode(err)
	}
	return ExitOK
}

// ExitCode maps a run error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, pipeline.ErrOutput):
		return ExitOutput
	default:
		return ExitUsage
	}
}

func runConvert(cmd *cobra.Command, opts *options, args []string) error {
	log := logging.Logger{
		Verbose: opts.verbose,
		Debug:   opts.debug,
		Out:     cmd.OutOrStdout(),
		Err:     cmd.ErrOrStderr(),
	}
	log.Debugf("Starting with verbose=%t, debug=%t", opts.verbose, opts.debug)

	cfg, err := buildConfig(cmd, opts, args)
	if err != nil {
		return err
	}

	progress := startProgress(log, cmd.ErrOrStderr(), "Reading audit logs...")
	summary, err := pipeline.Run(cmd.Context(), cfg, progress)
	progress.Stop()
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("interrupted: %w", err)
	}

	// A failed database export still leaves complete CSV reports.
	if summary != nil {
		printSummary(cmd.OutOrStdout(), summary)
	}
	return err
}

// buildConfig layers the config file, positional arguments and explicit
// flags, in that order.
func buildConfig(cmd *cobra.Command, opts *options, args []string) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.LoadFile(opts.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	cfg.InputFolder = args[0]
	if len(args) > 1 {
		cfg.OutputPrefix = args[1]
	}

	flags := cmd.Flags()
	if flags.Changed("threads") || opts.configPath == "" {
		cfg.Workers = opts.threads
	}
	if flags.Changed("db-driver") {
		cfg.Database.Driver = opts.dbDriver
	}
	if flags.Changed("db") {
		cfg.Database.DSN = opts.dbDSN
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func printSummary(w io.Writer, s *pipeline.Summary) {
	check := color.GreenString("✓")
	fmt.Fprintf(w, "%s Processed %d events from %d files\n", check, s.Events, s.Files)
	fmt.Fprintf(w, "  full report:     %s (%d columns)\n", s.FullPath, len(s.FullColumns))
	fmt.Fprintf(w, "  forensic report: %s (%d columns)\n", s.ForensicPath, len(s.ForensicColumns))
	if s.DatabaseRows > 0 {
		fmt.Fprintf(w, "  database:        %s (%d rows, run %s)\n", s.DatabasePath, s.DatabaseRows, s.RunID)
	}
}
