package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/cdtdelta/oci-audit-csv/internal/database"
	"github.com/cdtdelta/oci-audit-csv/internal/forensic"
)

const (
	DefaultOutputPrefix = "audit_logs"
	DefaultWorkers      = 4
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config contains everything a conversion run needs.
type Config struct {
	InputFolder    string   `toml:"input_folder"`
	OutputPrefix   string   `toml:"output_prefix"`
	Workers        int      `toml:"workers"`
	ForensicFields []string `toml:"forensic_fields"`
	Database       Database `toml:"database"`
}

// Database configures the optional SQL export of the full report.
// An empty Driver disables it.
type Database struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		OutputPrefix:   DefaultOutputPrefix,
		Workers:        DefaultWorkers,
		ForensicFields: slices.Clone(forensic.DefaultFields),
	}
}

// LoadFile reads a TOML config file on top of the defaults. Unknown keys are
// rejected so typos in field names don't go unnoticed.
//
//	output_prefix = "tenancy_a"
//	workers = 8
//	forensic_fields = ["event-id", "data.identity.*"]
//
//	[database]
//	driver = "sqlite"
//	dsn = "audit.db"
func LoadFile(path string) (Config, error) {
	cfg := Default()

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalid, path, strings.Join(keys, ", "))
	}

	return cfg, nil
}

// Validate reports the first problem found in c.
func (c Config) Validate() error {
	if strings.TrimSpace(c.InputFolder) == "" {
		return fmt.Errorf("%w: input folder required", ErrInvalid)
	}
	if strings.TrimSpace(c.OutputPrefix) == "" {
		return fmt.Errorf("%w: output prefix must not be empty", ErrInvalid)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: worker count must be at least 1, got %d", ErrInvalid, c.Workers)
	}
	if len(c.ForensicFields) == 0 {
		return fmt.Errorf("%w: forensic field list is empty", ErrInvalid)
	}
	for i, f := range c.ForensicFields {
		if f == "" || f == forensic.Wildcard {
			return fmt.Errorf("%w: forensic field %d is %q", ErrInvalid, i, f)
		}
	}

	if c.Database.Driver != "" {
		if !slices.Contains(database.Drivers, c.Database.Driver) {
			return fmt.Errorf("%w: unsupported database driver %q (want one of %s)",
				ErrInvalid, c.Database.Driver, strings.Join(database.Drivers, ", "))
		}
		if c.Database.DSN == "" {
			return fmt.Errorf("%w: database driver %s needs a dsn", ErrInvalid, c.Database.Driver)
		}
	} else if c.Database.DSN != "" {
		return fmt.Errorf("%w: database dsn given without a driver", ErrInvalid)
	}

	return nil
}

// FullReportPath is the path of the report carrying every discovered column.
func (c Config) FullReportPath() string {
	return c.OutputPrefix + "_full.csv"
}

// ForensicReportPath is the path of the report restricted to forensic fields.
func (c Config) ForensicReportPath() string {
	return c.OutputPrefix + "_forensic.csv"
}
