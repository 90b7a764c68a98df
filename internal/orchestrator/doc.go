// Package orchestrator wires one libbydl invocation together.
//
// A run takes the single-instance lock on the download root, runs preflight
// checks, refreshes the base-image pin, exports the current loans, reconciles
// them against the library configuration and the on-disk state, and hands the
// resulting work list to the supervisor. Every attempt is recorded in the
// history database under a fresh run ID.
package orchestrator
