package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"libbydl/internal/backlog"
	"libbydl/internal/config"
	"libbydl/internal/history"
	"libbydl/internal/image"
	"libbydl/internal/libby"
	"libbydl/internal/libconfig"
	"libbydl/internal/logging"
	"libbydl/internal/preflight"
	"libbydl/internal/services"
	"libbydl/internal/shelf"
	"libbydl/internal/supervisor"
)

// LoanExporter produces the current loan list.
type LoanExporter interface {
	ExportLoans(ctx context.Context, path string) ([]libby.Book, error)
}

// ImagePinner keeps the downloader image pinned.
type ImagePinner interface {
	Ensure(ctx context.Context) (image.Pin, error)
	Environment(pin image.Pin) []string
}

// AttemptRecorder persists supervised attempts.
type AttemptRecorder interface {
	Record(ctx context.Context, attempt history.Attempt) (int64, error)
}

// CommandFactory builds the downloader command for an environment bundle.
type CommandFactory func(env []string) supervisor.CommandFunc

// PreflightFunc runs readiness checks.
type PreflightFunc func(ctx context.Context, cfg *config.Config) []preflight.Result

// RunOptions select which stages of a run execute.
type RunOptions struct {
	// BuildOnly stops after the image pin has been resolved.
	BuildOnly bool
	// SkipExport reads the existing loans file instead of calling odmpy.
	SkipExport bool
}

// Summary describes a completed run.
type Summary struct {
	RunID   string
	Pin     image.Pin
	Plan    backlog.Plan
	Results []supervisor.Result
}

// Failed counts attempts that did not succeed.
func (s Summary) Failed() int {
	count := 0
	for _, r := range s.Results {
		if r.Outcome.Failed() {
			count++
		}
	}
	return count
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithOutput routes operator narration and downloader output.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) {
		if w != nil {
			o.out = w
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.baseLogger = logger
		}
	}
}

// WithLoanExporter replaces the odmpy export client.
func WithLoanExporter(exporter LoanExporter) Option {
	return func(o *Orchestrator) { o.loans = exporter }
}

// WithImagePinner replaces the docker image manager.
func WithImagePinner(pinner ImagePinner) Option {
	return func(o *Orchestrator) { o.images = pinner }
}

// WithRecorder replaces the history database.
func WithRecorder(recorder AttemptRecorder) Option {
	return func(o *Orchestrator) { o.recorder = recorder }
}

// WithCommandFactory replaces the docker compose command builder.
func WithCommandFactory(factory CommandFactory) Option {
	return func(o *Orchestrator) { o.command = factory }
}

// WithPreflight replaces the readiness checks.
func WithPreflight(fn PreflightFunc) Option {
	return func(o *Orchestrator) { o.preflight = fn }
}

// Orchestrator runs download cycles for one configuration.
type Orchestrator struct {
	cfg        *config.Config
	layout     shelf.Layout
	out        io.Writer
	baseLogger *slog.Logger
	logger     *slog.Logger
	loans      LoanExporter
	images     ImagePinner
	recorder   AttemptRecorder
	command    CommandFactory
	preflight  PreflightFunc
}

// New constructs an orchestrator. Collaborators not supplied through options
// are built from cfg.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	o := &Orchestrator{
		cfg:        cfg,
		layout:     shelf.NewLayout(cfg.Paths.DownloadRoot, cfg.Downloader.AudioExtensions),
		out:        os.Stdout,
		baseLogger: logging.NewNop(),
		preflight:  preflight.RunAll,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.baseLogger, "orchestrator")

	if o.loans == nil {
		client, err := libby.New(cfg.Libby.Command, cfg.ExportTimeout(),
			libby.WithLogger(o.baseLogger), libby.WithOutput(o.out, o.out))
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "libby client", "", err)
		}
		o.loans = client
	}
	if o.images == nil {
		mgr, err := image.New(image.Settings{
			DockerBinary: cfg.Downloader.DockerBinary,
			ComposeDir:   cfg.Downloader.ComposeDir,
			Service:      cfg.Downloader.Service,
			Base:         cfg.Image.Base,
			PinFile:      cfg.Image.PinFile,
			MaxAge:       cfg.PinMaxAge(),
			DownloadRoot: cfg.Paths.DownloadRoot,
		}, image.WithLogger(o.baseLogger), image.WithOutput(o.out))
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "image manager", "", err)
		}
		o.images = mgr
	}
	if o.command == nil {
		o.command = func(env []string) supervisor.CommandFunc {
			return supervisor.ComposeCommand(supervisor.ComposeSettings{
				DockerBinary: cfg.Downloader.DockerBinary,
				ComposeDir:   cfg.Downloader.ComposeDir,
				Service:      cfg.Downloader.Service,
				Env:          env,
			}, o.layout)
		}
	}
	return o, nil
}

// Layout exposes the per-book path layout.
func (o *Orchestrator) Layout() shelf.Layout { return o.layout }

// Run executes one download cycle. Per-book failures are reported in the
// summary, not as an error.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (Summary, error) {
	summary := Summary{RunID: uuid.NewString()}
	ctx = logging.WithRunID(ctx, summary.RunID)
	logger := logging.WithContext(ctx, o.logger)

	if err := o.cfg.ValidateDownloadRoot(); err != nil {
		return summary, services.Wrap(services.ErrConfiguration, "orchestrator", "download root", "", err)
	}
	if err := o.cfg.EnsureDirectories(); err != nil {
		return summary, services.Wrap(services.ErrConfiguration, "orchestrator", "prepare directories", "", err)
	}

	unlock, err := o.acquireLock()
	if err != nil {
		return summary, err
	}
	defer unlock()

	if !opts.BuildOnly && o.preflight != nil {
		if err := preflight.Failures(o.preflight(ctx, o.cfg)); err != nil {
			return summary, services.Wrap(services.ErrConfiguration, "orchestrator", "preflight", "", err)
		}
	}

	pin, err := o.images.Ensure(ctx)
	if err != nil {
		return summary, err
	}
	summary.Pin = pin
	if opts.BuildOnly {
		return summary, nil
	}
	env := o.images.Environment(pin)

	books, err := o.loadLoans(ctx, opts.SkipExport)
	if err != nil {
		return summary, err
	}

	sites, err := o.Sites()
	if err != nil {
		return summary, err
	}

	fmt.Fprintf(o.out, "Scanning for needed books in %s:\n", o.layout.LibraryRoot())
	plan, planErr := backlog.New(o.layout, o.baseLogger).Reconcile(books, sites)
	summary.Plan = plan
	for _, book := range plan.Unrecognized {
		fmt.Fprintf(o.out, "  skipping %s: library %d is not configured\n", book.Label(), book.SiteID)
	}
	if planErr != nil {
		return summary, planErr
	}
	for _, book := range plan.Pending {
		fmt.Fprintf(o.out, "  %s\n", book.Label())
	}
	for _, id := range plan.Orphans {
		fmt.Fprintf(o.out, "  no active loan for %s (left in place)\n", o.layout.TempDir(id))
	}
	if plan.Empty() {
		fmt.Fprintln(o.out, "Nothing to do, exiting.")
		return summary, nil
	}

	recorder, closeRecorder := o.openRecorder(ctx)
	defer closeRecorder()

	sup, err := supervisor.New(o.layout, o.command(env),
		supervisor.WithOutput(o.out),
		supervisor.WithLogger(o.baseLogger),
		supervisor.WithTimeout(o.cfg.DownloadTimeout()),
		supervisor.WithObserver(func(ctx context.Context, result supervisor.Result) {
			if recorder == nil {
				return
			}
			if _, err := recorder.Record(ctx, toAttempt(summary.RunID, result)); err != nil {
				logger.Warn("record attempt failed", logging.String(logging.FieldBookID, result.Book.ID), logging.Error(err))
			}
		}),
	)
	if err != nil {
		return summary, err
	}

	summary.Results = sup.Run(ctx, plan.Pending)
	logger.Info("run finished",
		logging.Int("attempted", len(summary.Results)),
		logging.Int("failed", summary.Failed()),
	)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// Sites reads the configured library site identifiers.
func (o *Orchestrator) Sites() (backlog.Sites, error) {
	file, err := libconfig.Load(o.cfg.Paths.LibraryConfig)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "library config",
				fmt.Sprintf("%s not found; run 'libbydl configure'", o.cfg.Paths.LibraryConfig), nil)
		}
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "library config", o.cfg.Paths.LibraryConfig, err)
	}
	return backlog.NewSites(file.SiteIDs()...), nil
}

// Plan computes the work list without running anything.
func (o *Orchestrator) Plan(ctx context.Context, skipExport bool) (backlog.Plan, error) {
	if err := o.cfg.ValidateDownloadRoot(); err != nil {
		return backlog.Plan{}, services.Wrap(services.ErrConfiguration, "orchestrator", "download root", "", err)
	}
	books, err := o.loadLoans(ctx, skipExport)
	if err != nil {
		return backlog.Plan{}, err
	}
	sites, err := o.Sites()
	if err != nil {
		return backlog.Plan{}, err
	}
	return backlog.New(o.layout, o.baseLogger).Reconcile(books, sites)
}

func (o *Orchestrator) loadLoans(ctx context.Context, skipExport bool) ([]libby.Book, error) {
	path := o.cfg.Paths.LoansFile
	if skipExport {
		books, err := libby.LoadLoans(path)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "orchestrator", "read loans", path, err)
		}
		return books, nil
	}
	return o.loans.ExportLoans(ctx, path)
}

func (o *Orchestrator) acquireLock() (func(), error) {
	lockPath := o.cfg.LockPath()
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "acquire lock", lockPath, err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "acquire lock",
			"another libbydl run is using "+o.cfg.Paths.DownloadRoot, nil)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			o.logger.Warn("failed to release run lock", logging.String("lock", lockPath), logging.Error(err))
		}
	}, nil
}

func (o *Orchestrator) openRecorder(ctx context.Context) (AttemptRecorder, func()) {
	if o.recorder != nil {
		return o.recorder, func() {}
	}
	store, err := history.Open(ctx, o.cfg.HistoryPath())
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "attempt history unavailable", "history_open",
			logging.String(logging.FieldImpact, "attempts will not appear in 'libbydl status'"),
			logging.Error(err),
		)
		return nil, func() {}
	}
	return store, func() { _ = store.Close() }
}

func toAttempt(runID string, r supervisor.Result) history.Attempt {
	attempt := history.Attempt{
		RunID:     runID,
		BookID:    r.Book.ID,
		Title:     r.Book.Title,
		SiteID:    r.Book.SiteID,
		StartedAt: r.Started,
		Duration:  r.Duration,
		ExitCode:  r.ExitCode,
		Progress:  r.Progress,
		TimedOut:  r.TimedOut,
		Outcome:   string(r.Outcome),
	}
	if r.Err != nil {
		attempt.Message = r.Err.Error()
	}
	return attempt
}
