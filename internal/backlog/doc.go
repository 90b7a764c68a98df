// Package backlog turns the current loan list and on-disk state into the
// ordered work list for one invocation.
//
// Books from libraries the downloader is not configured for are excluded with
// a warning, finished books are excluded silently, and everything else keeps
// the loan order. Scratch directories that no longer match an active loan are
// reported as orphans and left alone.
package backlog
