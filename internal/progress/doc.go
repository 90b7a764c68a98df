// Package progress tracks completed audio segments per book so repeated
// download attempts can tell forward motion from a stuck book.
//
// The record (older.files) only grows: each audio file name is appended the
// first time a scan sees it and never removed. Deleting the book's scratch
// directory by hand resets the history.
package progress
