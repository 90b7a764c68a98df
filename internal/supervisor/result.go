package supervisor

import (
	"time"

	"libbydl/internal/libby"
)

// Outcome classifies one supervised attempt.
type Outcome string

const (
	// OutcomeSuccess: exit code 0 and new segments (or a finished book).
	OutcomeSuccess Outcome = "success"
	// OutcomeRetry: the attempt failed but the book stays eligible.
	OutcomeRetry Outcome = "retry"
	// OutcomeBad: a second consecutive attempt without progress; marked bad.
	OutcomeBad Outcome = "bad"
	// OutcomeSkipped: the bad marker was already present.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeStartFailed: the downloader could not be launched.
	OutcomeStartFailed Outcome = "start_failed"
	// OutcomeInterrupted: the operator cancelled the run mid-attempt.
	OutcomeInterrupted Outcome = "interrupted"
)

// Failed reports whether the outcome counts as an error for the operator.
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeSuccess, OutcomeSkipped:
		return false
	default:
		return true
	}
}

// Result captures everything known about one attempt.
type Result struct {
	Book          libby.Book
	Outcome       Outcome
	ExitCode      int
	Progress      bool
	TimedOut      bool
	PreviouslyRun bool
	Started       time.Time
	Duration      time.Duration
	Transcript    string
	BadMarker     string
	Err           error
}
