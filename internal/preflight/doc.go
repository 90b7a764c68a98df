// Package preflight verifies that the filesystem and external tools a run
// depends on are in place before any book is touched.
//
// The orchestrator calls RunAll before exporting loans so a missing mount or
// an absent compose plugin fails fast with a readable message. The status
// command reuses the individual checks for its health table.
package preflight
