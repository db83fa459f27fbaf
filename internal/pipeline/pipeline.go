// Package pipeline runs a complete conversion: list the input folder,
// discover the column universe in parallel, resolve the forensic columns,
// then stream every event into the reports.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/cdtdelta/oci-audit-csv/internal/auditreader"
	"github.com/cdtdelta/oci-audit-csv/internal/config"
	"github.com/cdtdelta/oci-audit-csv/internal/database"
	"github.com/cdtdelta/oci-audit-csv/internal/discovery"
	"github.com/cdtdelta/oci-audit-csv/internal/forensic"
	"github.com/cdtdelta/oci-audit-csv/internal/model"
	"github.com/cdtdelta/oci-audit-csv/internal/report"
)

var (
	// ErrNoInputFiles means the input folder holds no *.json files.
	ErrNoInputFiles = errors.New("no JSON files found")

	// ErrOutput wraps failures creating or writing any destination.
	ErrOutput = errors.New("output error")
)

// Logger receives progress messages and per-file diagnostics.
type Logger interface {
	Infof(msg string, args ...any)
	Debugf(msg string, args ...any)
	Warnf(msg string, args ...any)
}

// Summary describes a finished run.
type Summary struct {
	RunID           string
	Files           int
	Events          int
	FullColumns     []string
	ForensicColumns []string
	FullPath        string
	ForensicPath    string
	DatabasePath    string
	DatabaseRows    int
}

// ListInputFiles returns the *.json files directly inside folder, sorted by
// name, so that row order is stable between runs.
func ListInputFiles(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("reading input folder: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match("*.json", e.Name()); ok {
			files = append(files, filepath.Join(folder, e.Name()))
		}
	}
	return files, nil
}

// Run converts cfg.InputFolder into the full and forensic reports, plus the
// database export when one is configured.
//
// A database export that fails after the reports have started does not
// stop them: Run finishes both CSV files, then returns the summary together
// with an error wrapping ErrOutput.
func Run(ctx context.Context, cfg config.Config, log Logger) (*Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	files, err := ListInputFiles(cfg.InputFolder)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoInputFiles, cfg.InputFolder)
	}

	reader := auditreader.New(log)

	log.Infof("Pass 1/2: discovering columns across %d files (threads=%d)", len(files), cfg.Workers)
	found, err := discovery.Discover(ctx, files, cfg.Workers, reader.Each)
	if err != nil {
		return nil, err
	}
	forensicCols := forensic.Resolve(found.Columns, cfg.ForensicFields)
	log.Infof("Found %d distinct columns (%d forensic) in %d events", len(found.Columns), len(forensicCols), found.Events)

	summary := &Summary{
		RunID:           uuid.NewString(),
		FullColumns:     found.Columns,
		ForensicColumns: forensicCols,
		FullPath:        cfg.FullReportPath(),
		ForensicPath:    cfg.ForensicReportPath(),
	}

	targets, export, err := openTargets(cfg, summary, len(files))
	if err != nil {
		return nil, err
	}

	log.Infof("Pass 2/2: writing %s and %s", summary.FullPath, summary.ForensicPath)

	// Pass 1 already reported unreadable files; repeat those only at debug level.
	quiet := &auditreader.Reader{Flattener: reader.Flattener, Log: debugOnly{log}}
	stats, err := report.Write(ctx, files, quiet.Each, targets...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrOutput, err)
	}

	summary.Files = stats.Files
	summary.Events = stats.Events
	if export == nil {
		return summary, nil
	}

	summary.DatabasePath = export.store.Path()
	if export.err != nil {
		return summary, fmt.Errorf("%w: %s export: %w", ErrOutput, cfg.Database.Driver, export.err)
	}
	summary.DatabaseRows = export.store.Inserted()
	log.Infof("Exported %d rows to %s (run %s)", summary.DatabaseRows, cfg.Database.Driver, summary.RunID)
	return summary, nil
}

// openTargets creates every destination. On failure, whatever was already
// opened is closed again.
func openTargets(cfg config.Config, summary *Summary, fileCount int) ([]report.Target, *exportSink, error) {
	full, err := report.CreateCSV(summary.FullPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrOutput, summary.FullPath, err)
	}

	frc, err := report.CreateCSV(summary.ForensicPath)
	if err != nil {
		full.Close()
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrOutput, summary.ForensicPath, err)
	}

	targets := []report.Target{
		{Sink: full, Columns: summary.FullColumns},
		{Sink: frc, Columns: summary.ForensicColumns},
	}

	if cfg.Database.Driver == "" {
		return targets, nil, nil
	}

	store, err := database.CreateStore(cfg.Database.Driver, cfg.Database.DSN, database.Run{
		ID:          summary.RunID,
		InputFolder: cfg.InputFolder,
		FileCount:   fileCount,
	})
	if err != nil {
		full.Close()
		frc.Close()
		return nil, nil, fmt.Errorf("%w: %s export: %w", ErrOutput, cfg.Database.Driver, err)
	}

	export := &exportSink{store: store}
	return append(targets, report.Target{Sink: export, Columns: summary.FullColumns}), export, nil
}

// exportSink feeds the database store but never fails the CSV reports. The
// first store error is kept and later rows are skipped; Close still runs so
// the store can roll back.
type exportSink struct {
	store *database.Store
	err   error
}

func (e *exportSink) WriteHeader(columns []string) error {
	if e.err == nil {
		e.err = e.store.WriteHeader(columns)
	}
	return nil
}

func (e *exportSink) WriteRecord(rec model.Record) error {
	if e.err == nil {
		e.err = e.store.WriteRecord(rec)
	}
	return nil
}

func (e *exportSink) Close() error {
	if err := e.store.Close(); err != nil && e.err == nil {
		e.err = err
	}
	return nil
}

// debugOnly demotes warnings to debug messages.
type debugOnly struct {
	Logger
}

func (d debugOnly) Warnf(msg string, args ...any) {
	d.Logger.Debugf(msg, args...)
}
