package database

import "fmt"

// Drivers lists the accepted values for the export driver setting.
var Drivers = []string{"sqlite", "postgres"}

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite":
		return &SQLiteDialect{}, nil
	case "postgres":
		return &PostgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
}

// CreateStore opens an export store using the specified driver.
// For SQLite, pathOrConnStr is the file path of the .db file (created if missing).
// For PostgreSQL, pathOrConnStr is a connection string; the database must already exist.
func CreateStore(driver, pathOrConnStr string, run Run) (*Store, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	return Open(d, pathOrConnStr, run)
}
