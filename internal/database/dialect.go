package database

// Dialect abstracts the database-specific SQL used by the export store.
// Each backend (SQLite, PostgreSQL) implements this interface.
type Dialect interface {
	// DriverName returns the database/sql driver name (e.g. "sqlite", "pgx").
	DriverName() string

	// DSN returns the data source name for opening a connection.
	// For SQLite this is the file path; for PostgreSQL a connection string.
	DSN(pathOrConnStr string) string

	// Placeholder returns the parameter placeholder for the given 1-based index.
	// SQLite: "?" (ignoring index), PostgreSQL: "$1", "$2", etc.
	Placeholder(index int) string

	// QuoteIdent quotes a table or column name. Flattened audit columns
	// contain dots and dashes, so every generated identifier is quoted.
	QuoteIdent(name string) string

	// MaxIdentLen is the longest identifier the backend keeps intact, or 0
	// when there is no practical limit.
	MaxIdentLen() int

	// FoldsCase reports whether the backend treats column names that differ
	// only in ASCII letter case as the same column, even when quoted.
	FoldsCase() bool

	// MaxColumns is the widest table the backend supports.
	MaxColumns() int

	// CreateRunsTableSQL returns DDL for the table recording one row per run.
	CreateRunsTableSQL() string

	// CreateEventsTableSQL returns DDL for the events table holding only the
	// run_id column; audit columns are added with AddColumnSQL.
	CreateEventsTableSQL() string

	// AddColumnSQL returns DDL adding a TEXT column to table.
	AddColumnSQL(table, column string) string

	// Sanitize prepares a cell value for insertion.
	Sanitize(s string) any
}
