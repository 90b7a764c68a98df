package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"libbydl/internal/fileutil"
	"libbydl/internal/libby"
	"libbydl/internal/logging"
	"libbydl/internal/progress"
	"libbydl/internal/shelf"
)

// LogSeparator terminates every transcript appended to process.log.
const LogSeparator = "\n==================\n"

// DefaultTimeout bounds a single download attempt.
const DefaultTimeout = 30 * time.Minute

// DefaultWaitDelay bounds output draining once the downloader has exited or
// been killed. Descendants that escaped the process group may still hold the
// output pipes; they are abandoned after this delay.
const DefaultWaitDelay = 10 * time.Second

// CommandFunc builds the downloader command for one book. Implementations
// must hand ctx to exec.CommandContext so the attempt deadline applies.
type CommandFunc func(ctx context.Context, book libby.Book) *exec.Cmd

// Observer receives each finished attempt, including skipped ones.
type Observer func(ctx context.Context, result Result)

// Option configures the supervisor.
type Option func(*Supervisor)

// WithOutput routes downloader output and narration.
func WithOutput(w io.Writer) Option {
	return func(s *Supervisor) {
		if w != nil {
			s.out = w
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logging.NewComponentLogger(logger, "supervisor")
	}
}

// WithTimeout overrides the per-attempt wall-clock limit.
func WithTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithWaitDelay overrides how long output may keep draining after the
// downloader exits or is killed.
func WithWaitDelay(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.waitDelay = d
		}
	}
}

// WithObserver registers a callback invoked after every attempt.
func WithObserver(fn Observer) Option {
	return func(s *Supervisor) {
		s.observe = fn
	}
}

// Supervisor runs the downloader once per pending book, strictly one at a
// time, and turns each exit into retry or bad state on disk.
type Supervisor struct {
	layout    shelf.Layout
	tracker   *progress.Tracker
	command   CommandFunc
	timeout   time.Duration
	waitDelay time.Duration
	out       io.Writer
	logger    *slog.Logger
	observe   Observer
	now       func() time.Time
}

// New constructs a supervisor.
func New(layout shelf.Layout, command CommandFunc, opts ...Option) (*Supervisor, error) {
	if command == nil {
		return nil, errors.New("downloader command required")
	}
	s := &Supervisor{
		layout:    layout,
		command:   command,
		timeout:   DefaultTimeout,
		waitDelay: DefaultWaitDelay,
		out:       os.Stdout,
		logger:    logging.NewComponentLogger(nil, "supervisor"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tracker = progress.NewTracker(layout, s.out)
	return s, nil
}

// Run attempts every book in order. Individual failures never stop the loop;
// cancellation of ctx stops it once the current attempt has been cleaned up.
func (s *Supervisor) Run(ctx context.Context, books []libby.Book) []Result {
	results := make([]Result, 0, len(books))
	for _, book := range books {
		if ctx.Err() != nil {
			break
		}
		result := s.Attempt(ctx, book)
		results = append(results, result)
		if s.observe != nil {
			s.observe(context.WithoutCancel(ctx), result)
		}
		if result.Outcome == OutcomeInterrupted {
			break
		}
	}
	return results
}

// Attempt supervises one download of book.
func (s *Supervisor) Attempt(ctx context.Context, book libby.Book) Result {
	logger := logging.WithContext(ctx, s.logger).With(
		logging.String(logging.FieldBookID, book.ID),
		logging.Int(logging.FieldSiteID, book.SiteID),
	)
	result := Result{Book: book, Started: s.now(), ExitCode: -1}

	bad, err := s.layout.IsBad(book.ID)
	if err != nil {
		logging.WarnWithContext(logger, "bad marker check failed", "bad_marker_stat",
			logging.String(logging.FieldErrorHint, "check permissions on the tmp directory"),
			logging.Error(err),
		)
	}
	if bad {
		result.Outcome = OutcomeSkipped
		result.BadMarker = s.layout.BadMarker(book.ID)
		fmt.Fprintf(s.out, "Skipping book due to 'bad' flag (delete to retry): %s: %s\n", book.Title, result.BadMarker)
		return result
	}

	previouslyRun, err := s.previouslyRun(book)
	if err != nil {
		logging.WarnWithContext(logger, "previous progress unreadable", "progress_check",
			logging.String(logging.FieldImpact, "book will not be marked bad this attempt"),
			logging.Error(err),
		)
	}
	result.PreviouslyRun = previouslyRun

	fmt.Fprintf(s.out, "\nRunning downloader for book: %s\n", book.Label())
	proc := s.runProcess(ctx, book)
	result.Duration = s.now().Sub(result.Started)
	result.ExitCode = proc.exitCode
	result.TimedOut = proc.timedOut
	result.Transcript = proc.transcript

	if proc.startErr != nil {
		result.Outcome = OutcomeStartFailed
		result.Err = proc.startErr
		fmt.Fprintf(s.out, "Error downloading book %s: %v\n", book.Title, proc.startErr)
		logger.Error("downloader failed to start", logging.Error(proc.startErr))
		return result
	}

	progressed, err := s.tracker.HasProgress(book, progress.Scan, true)
	if err != nil {
		logger.Warn("progress scan failed", logging.Error(err))
		progressed = false
	}
	result.Progress = progressed

	interrupted := proc.interrupted
	failed := proc.exitCode != 0 || !progressed
	switch {
	case interrupted:
		result.Outcome = OutcomeInterrupted
		result.Err = context.Cause(ctx)
	case !failed:
		result.Outcome = OutcomeSuccess
		logger.Info("download attempt succeeded", logging.Duration("duration", result.Duration))
		return result
	default:
		result.Outcome = OutcomeRetry
	}

	if err := s.persistTranscript(book, proc.transcript); err != nil {
		logger.Error("append process log failed", logging.Error(err))
	}

	if interrupted {
		logger.Info("download attempt interrupted")
		return result
	}

	reason := ""
	if !progressed {
		reason = ", no progress made"
	}
	fmt.Fprintf(s.out, "Error running downloader for book %s, %s: exit code %d%s\n", book.ID, book.Title, proc.exitCode, reason)
	if previouslyRun && !progressed {
		marker, err := s.layout.MarkBad(book.ID)
		if err != nil {
			logger.Error("mark bad failed", logging.Error(err))
			result.Err = err
		} else {
			result.Outcome = OutcomeBad
			result.BadMarker = marker
			fmt.Fprintf(s.out, "Marking tmp folder as bad, previous downloads made but no progress this time: %s\n", marker)
		}
	}
	logger.Warn("download attempt failed",
		logging.Int("exit_code", proc.exitCode),
		logging.Bool("progress", progressed),
		logging.Bool("timed_out", proc.timedOut),
		logging.String("outcome", string(result.Outcome)),
	)
	return result
}

// previouslyRun reports whether an earlier attempt recorded any segment. A
// book with no scratch directory has never been attempted, so the tracker's
// optimistic answer for that case must not count as history here.
func (s *Supervisor) previouslyRun(book libby.Book) (bool, error) {
	exists, err := s.layout.TempDirExists(book.ID)
	if err != nil || !exists {
		return false, err
	}
	return s.tracker.HasProgress(book, progress.CheckOnly, false)
}

func (s *Supervisor) persistTranscript(book libby.Book, transcript string) error {
	if err := s.layout.EnsureTempDir(book.ID); err != nil {
		return err
	}
	return fileutil.AppendFile(s.layout.LogFile(book.ID), []byte(transcript+LogSeparator))
}

type processResult struct {
	exitCode    int
	timedOut    bool
	interrupted bool
	transcript  string
	startErr    error
}

func (s *Supervisor) runProcess(ctx context.Context, book libby.Book) processResult {
	res := processResult{exitCode: -1}

	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := s.command(attemptCtx, book)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative pid signals the whole group, reaching compose's children.
		if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = s.waitDelay

	// exec copies both streams itself, so WaitDelay also bounds Wait when an
	// escaped descendant keeps the pipes open.
	var out, errOut transcript
	stdout := &lineEcho{echo: s.out, record: &out}
	cmd.Stdout = stdout
	cmd.Stderr = &errOut
	if err := cmd.Start(); err != nil {
		res.startErr = fmt.Errorf("start %s: %w", cmd.Path, err)
		return res
	}

	waitErr := cmd.Wait()
	stdout.Flush()
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		s.logger.Debug("output still open after exit; pipes closed",
			logging.String(logging.FieldBookID, book.ID),
			logging.Duration("wait_delay", s.waitDelay),
		)
	}
	res.exitCode = exitCode(cmd, waitErr)

	if ctx.Err() != nil {
		res.interrupted = true
	} else if waitErr != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		res.timedOut = true
		notice := fmt.Sprintf("Timeout reached after %d minutes for book %s, killing process.\n",
			int(s.timeout/time.Minute), book.ID)
		fmt.Fprint(s.out, notice)
		out.WriteString(notice)
	}

	if tail := errOut.String(); tail != "" {
		if !strings.HasSuffix(tail, "\n") {
			tail += "\n"
		}
		fmt.Fprint(s.out, tail)
		out.WriteString(tail)
	}
	res.transcript = out.String()
	return res
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}
