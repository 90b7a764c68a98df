// Package history records every supervised download attempt in SQLite.
//
// The database lives beside the log file and backs the `status` command. It
// is an audit trail only: retry and bad decisions are made from the on-disk
// markers, never from these rows.
package history
