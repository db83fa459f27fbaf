package database

import (
	"fmt"
	"strings"
)

// pgSanitizeString strips null bytes (0x00) from a string. SQLite stores these
// fine but PostgreSQL rejects them with "invalid byte sequence for encoding UTF8".
func pgSanitizeString(s string) string {
	if strings.ContainsRune(s, '\x00') {
		return strings.ReplaceAll(s, "\x00", "")
	}
	return s
}

// PostgresDialect implements the Dialect interface for PostgreSQL databases.
type PostgresDialect struct{}

func (d *PostgresDialect) DriverName() string             { return "pgx" }
func (d *PostgresDialect) DSN(pathOrConnStr string) string { return pathOrConnStr }
func (d *PostgresDialect) Placeholder(index int) string    { return fmt.Sprintf("$%d", index) }
func (d *PostgresDialect) QuoteIdent(name string) string   { return quoteIdent(name) }

// PostgreSQL silently truncates identifiers longer than NAMEDATALEN-1 bytes.
func (d *PostgresDialect) MaxIdentLen() int { return 63 }

func (d *PostgresDialect) MaxColumns() int      { return 1600 }
func (d *PostgresDialect) FoldsCase() bool      { return false }
func (d *PostgresDialect) Sanitize(s string) any { return pgSanitizeString(s) }

func (d *PostgresDialect) CreateRunsTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS audit_runs (
		run_id TEXT PRIMARY KEY, started_at TEXT, input_folder TEXT,
		file_count INTEGER, column_count INTEGER
	)`
}

func (d *PostgresDialect) CreateEventsTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS audit_events (
		id BIGSERIAL PRIMARY KEY,
		run_id TEXT REFERENCES audit_runs (run_id)
	)`
}

func (d *PostgresDialect) AddColumnSQL(table, column string) string {
	return "ALTER TABLE " + quoteIdent(table) + " ADD COLUMN IF NOT EXISTS " + quoteIdent(column) + " TEXT"
}
