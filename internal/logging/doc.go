// Package logging provides the leveled console logger used by the
// oci-audit-csv command and the conversion pipeline.
//
// # Verbosity Levels
//
//   - default: warnings and errors only
//   - --verbose: adds progress (info) messages
//   - --debug: adds per-file debug details
//
// Warnings and errors always go to the error stream so that per-file parse
// diagnostics stay separate from normal output.
//
// # Usage
//
//	log := logging.Logger{Verbose: verbose, Debug: debug}
//	log.Infof("discovered %d columns", n)
package logging
