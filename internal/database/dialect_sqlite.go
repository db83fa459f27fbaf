package database

import "strings"

// SQLiteDialect implements the Dialect interface for SQLite databases.
type SQLiteDialect struct{}

func (d *SQLiteDialect) DriverName() string             { return "sqlite" }
func (d *SQLiteDialect) DSN(pathOrConnStr string) string { return pathOrConnStr }
func (d *SQLiteDialect) Placeholder(index int) string    { return "?" }
func (d *SQLiteDialect) QuoteIdent(name string) string   { return quoteIdent(name) }
func (d *SQLiteDialect) MaxIdentLen() int                { return 0 }
func (d *SQLiteDialect) Sanitize(s string) any           { return s }

// SQLite refuses tables wider than SQLITE_MAX_COLUMN, 2000 in stock builds.
func (d *SQLiteDialect) MaxColumns() int { return 2000 }
func (d *SQLiteDialect) FoldsCase() bool { return true }

func (d *SQLiteDialect) CreateRunsTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS audit_runs (
		run_id TEXT PRIMARY KEY, started_at TEXT, input_folder TEXT,
		file_count INTEGER, column_count INTEGER
	)`
}

func (d *SQLiteDialect) CreateEventsTableSQL() string {
	return "CREATE TABLE IF NOT EXISTS audit_events (run_id TEXT)"
}

func (d *SQLiteDialect) AddColumnSQL(table, column string) string {
	return "ALTER TABLE " + quoteIdent(table) + " ADD COLUMN " + quoteIdent(column) + " TEXT"
}

// quoteIdent wraps name in double quotes, doubling any embedded quote.
// Both SQLite and PostgreSQL accept this form.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
