// Package forensic selects the security-relevant subset of columns emitted
// in the forensic report.
package forensic

import "strings"

// Wildcard marks a field entry as a prefix group.
const Wildcard = ".*"

// DefaultFields is the forensic field list recommended for OCI audit events.
// Entries ending in ".*" expand to every discovered column under the prefix.
var DefaultFields = []string{
	// Envelope
	"cloud-events-version",
	"content-type",
	"event-type",
	"event-type-version",
	"source",
	"event-id",
	"event-time",

	// Core event details
	"data.event-name",
	"data.compartment-id",
	"data.compartment-name",
	"data.event-grouping-id",

	// Identity, including delegation
	"data.identity.auth-type",
	"data.identity.principal-id",
	"data.identity.principal-name",
	"data.identity.caller-id",
	"data.identity.caller-name",
	"data.identity.console-session-id",
	"data.identity.tenant-id",
	"data.identity.ip-address",
	"data.identity.user-agent",

	// Request
	"data.request.action",
	"data.request.path",
	"data.request.headers.X-Forwarded-For",

	// Response
	"data.response.status",
	"data.response.message",

	// Resource
	"data.resource-id",
	"data.resource-name",

	// Extra context
	"data.additional-details",
	"data.state-change.previous.*",
	"data.state-change.current.*",
}

// Resolve returns the columns of universe selected by fields, in field order.
// A wildcard entry "p.*" contributes every universe column starting with
// "p." in universe order; a literal entry is kept only if present. Fields
// absent from universe are dropped silently and no column appears twice.
func Resolve(universe []string, fields []string) []string {
	present := make(map[string]bool, len(universe))
	for _, c := range universe {
		present[c] = true
	}

	seen := make(map[string]bool)
	var out []string
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}

	for _, f := range fields {
		if prefix, ok := strings.CutSuffix(f, Wildcard); ok {
			prefix += "."
			for _, c := range universe {
				if strings.HasPrefix(c, prefix) {
					add(c)
				}
			}
			continue
		}
		if present[f] {
			add(f)
		}
	}

	return out
}
