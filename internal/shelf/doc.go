// Package shelf owns the on-disk layout of the download root: where finished
// books land, where per-book scratch state lives, and which files count as
// audio.
package shelf
