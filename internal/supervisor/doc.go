// Package supervisor runs the containerized downloader for each pending book.
//
// Attempts are strictly serial. Each one streams the downloader's stdout to
// the operator while collecting a transcript, enforces a wall-clock deadline
// by killing the process group, and always drains stderr and reaps the child
// before classifying the exit. Failed attempts append the transcript to the
// book's process.log; a second consecutive attempt that made no progress
// drops a bad marker so later runs skip the book until an operator removes it.
package supervisor
