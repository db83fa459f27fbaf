package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cdtdelta/oci-audit-csv/internal/model"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	runsTable   = "audit_runs"
	eventsTable = "audit_events"
)

// Run describes one conversion run. Every exported event row carries the
// run's ID so several runs can share a database.
type Run struct {
	ID          string
	StartedAt   time.Time
	InputFolder string
	FileCount   int
}

// Store exports report rows into a SQL database. It implements report.Sink:
// WriteHeader creates or widens the schema and opens a transaction, each
// WriteRecord inserts one row, and Close commits (or rolls back if any write
// failed).
type Store struct {
	dsn     string
	conn    *sql.DB
	dialect Dialect
	run     Run

	tx       *sql.Tx
	stmt     *sql.Stmt
	columns  []string
	inserted int
	err      error
}

// Open connects to the database described by pathOrConnStr. A missing run ID
// or start time is filled in.
func Open(d Dialect, pathOrConnStr string, run Run) (*Store, error) {
	conn, err := sql.Open(d.DriverName(), d.DSN(pathOrConnStr))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Verify the connection works
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	return &Store{dsn: pathOrConnStr, conn: conn, dialect: d, run: run}, nil
}

// Path returns the file path or connection string of the database.
func (s *Store) Path() string {
	return s.dsn
}

// Inserted returns the number of event rows written so far.
func (s *Store) Inserted() int {
	return s.inserted
}

func (s *Store) fail(err error) error {
	if s.err == nil {
		s.err = err
	}
	return err
}

// WriteHeader prepares the schema for columns and starts the export transaction.
func (s *Store) WriteHeader(columns []string) error {
	if err := s.checkColumns(columns); err != nil {
		return s.fail(err)
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return s.fail(fmt.Errorf("beginning transaction: %w", err))
	}
	s.tx = tx

	if _, err := tx.Exec(s.dialect.CreateRunsTableSQL()); err != nil {
		return s.fail(fmt.Errorf("creating %s table: %w", runsTable, err))
	}
	if _, err := tx.Exec(s.dialect.CreateEventsTableSQL()); err != nil {
		return s.fail(fmt.Errorf("creating %s table: %w", eventsTable, err))
	}

	existing, err := s.existingColumns(tx)
	if err != nil {
		return s.fail(err)
	}
	for _, c := range columns {
		if existing[s.columnKey(c)] {
			continue
		}
		if _, err := tx.Exec(s.dialect.AddColumnSQL(eventsTable, c)); err != nil {
			return s.fail(fmt.Errorf("adding column %s: %w", c, err))
		}
	}

	_, err = tx.Exec(
		"INSERT INTO "+runsTable+" (run_id, started_at, input_folder, file_count, column_count) VALUES ("+
			s.placeholders(1, 5)+")",
		s.run.ID, s.run.StartedAt.Format(time.RFC3339Nano), s.run.InputFolder, s.run.FileCount, len(columns),
	)
	if err != nil {
		return s.fail(fmt.Errorf("recording run: %w", err))
	}

	quoted := make([]string, 0, len(columns)+1)
	quoted = append(quoted, "run_id")
	for _, c := range columns {
		quoted = append(quoted, s.dialect.QuoteIdent(c))
	}
	stmt, err := tx.Prepare(
		"INSERT INTO " + eventsTable + " (" + strings.Join(quoted, ", ") + ") VALUES (" +
			s.placeholders(1, len(quoted)) + ")",
	)
	if err != nil {
		return s.fail(fmt.Errorf("preparing insert statement: %w", err))
	}
	s.stmt = stmt
	s.columns = columns
	return nil
}

// WriteRecord inserts one event row.
func (s *Store) WriteRecord(rec model.Record) error {
	if s.stmt == nil {
		return s.fail(fmt.Errorf("export schema not initialized"))
	}

	args := make([]any, 0, len(s.columns)+1)
	args = append(args, s.run.ID)
	for _, c := range s.columns {
		args = append(args, s.dialect.Sanitize(rec[c]))
	}

	if _, err := s.stmt.Exec(args...); err != nil {
		return s.fail(fmt.Errorf("inserting event %d: %w", s.inserted+1, err))
	}
	s.inserted++
	return nil
}

// Close finishes the export transaction and closes the connection.
func (s *Store) Close() error {
	var err error
	if s.stmt != nil {
		s.stmt.Close()
		s.stmt = nil
	}
	if s.tx != nil {
		if s.err != nil {
			s.tx.Rollback()
		} else if cerr := s.tx.Commit(); cerr != nil {
			err = fmt.Errorf("committing transaction: %w", cerr)
		}
		s.tx = nil
	}
	if s.conn != nil {
		if cerr := s.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
		s.conn = nil
	}
	return err
}

// existingColumns reads the current column names of the events table.
func (s *Store) existingColumns(tx *sql.Tx) (map[string]bool, error) {
	rows, err := tx.Query("SELECT * FROM " + eventsTable + " WHERE 1 = 0")
	if err != nil {
		return nil, fmt.Errorf("reading %s schema: %w", eventsTable, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading %s schema: %w", eventsTable, err)
	}
	existing := make(map[string]bool, len(names))
	for _, n := range names {
		existing[s.columnKey(n)] = true
	}
	return existing, rows.Err()
}

// checkColumns rejects column sets the backend cannot store faithfully.
func (s *Store) checkColumns(columns []string) error {
	// run_id plus PostgreSQL's id column
	if len(columns)+2 > s.dialect.MaxColumns() {
		return fmt.Errorf("%d columns exceed the %s limit of %d", len(columns), s.dialect.DriverName(), s.dialect.MaxColumns())
	}

	limit := s.dialect.MaxIdentLen()
	seen := make(map[string]string, len(columns))
	for _, c := range columns {
		key := c
		if limit > 0 && len(key) > limit {
			key = key[:limit]
		}
		key = s.columnKey(key)
		if prev, ok := seen[key]; ok {
			if limit == 0 || (len(c) <= limit && len(prev) <= limit) {
				return fmt.Errorf("columns %q and %q differ only in letter case, which %s does not distinguish",
					prev, c, s.dialect.DriverName())
			}
			return fmt.Errorf("columns %q and %q collide after truncation to %d bytes", prev, c, limit)
		}
		seen[key] = c
	}
	return nil
}

// columnKey is the name under which the backend identifies column.
func (s *Store) columnKey(column string) string {
	if !s.dialect.FoldsCase() {
		return column
	}
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, column)
}

func (s *Store) placeholders(from, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = s.dialect.Placeholder(from + i)
	}
	return strings.Join(ph, ", ")
}
