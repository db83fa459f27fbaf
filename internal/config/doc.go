// Package config holds the run configuration for oci-audit-csv: defaults,
// an optional TOML file, and validation. Command-line flags are applied on
// top of whatever LoadFile returns.
package config
