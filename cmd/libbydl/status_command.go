package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"libbydl/internal/config"
	"libbydl/internal/fileutil"
	"libbydl/internal/history"
	"libbydl/internal/preflight"
	"libbydl/internal/progress"
	"libbydl/internal/shelf"
	"libbydl/internal/supervisor"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var query historyQuery
	var skipChecks bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show environment checks, recent attempts, and the state of the download root",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			layout, err := ctx.layout()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			if !skipChecks {
				fmt.Fprintln(out, sectionTitle("Environment", colorize))
				for _, result := range preflight.RunAll(cmd.Context(), cfg) {
					state := checkPassed
					if !result.Passed {
						state = checkFailed
					}
					fmt.Fprintln(out, checkLine(result.Name, state, result.Detail, colorize))
				}
				fmt.Fprintln(out)
			}

			if err := printHistory(cmd.Context(), out, cfg, query, colorize); err != nil {
				return err
			}
			if err := printScratch(out, layout, colorize); err != nil {
				return err
			}
			return printFinished(cmd.Context(), out, layout, colorize)
		},
	}

	cmd.Flags().IntVarP(&query.limit, "limit", "n", 10, "Number of recent attempts to show")
	cmd.Flags().StringVar(&query.book, "book", "", "Show every attempt for one book")
	cmd.Flags().BoolVar(&query.latest, "latest", false, "Show only the newest attempt per book")
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "Do not probe docker, odmpy, or the download root")
	return cmd
}

type historyQuery struct {
	limit  int
	book   string
	latest bool
}

func (q historyQuery) run(ctx context.Context, store *history.Store) (string, []history.Attempt, error) {
	switch {
	case strings.TrimSpace(q.book) != "":
		attempts, err := store.ForBook(ctx, strings.TrimSpace(q.book))
		return "Attempts for " + strings.TrimSpace(q.book), attempts, err
	case q.latest:
		attempts, err := store.LatestByBook(ctx)
		return "Latest attempt per book", attempts, err
	default:
		attempts, err := store.Recent(ctx, q.limit)
		return "Recent attempts", attempts, err
	}
}

func printHistory(ctx context.Context, out io.Writer, cfg *config.Config, query historyQuery, colorize bool) error {
	path := cfg.HistoryPath()
	exists, err := fileutil.Exists(path)
	if err != nil {
		return err
	}
	if !exists {
		fmt.Fprintln(out, "No download attempts recorded yet.")
		fmt.Fprintln(out)
		return nil
	}
	store, err := history.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()

	title, attempts, err := query.run(ctx, store)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		fmt.Fprintln(out, "No download attempts recorded yet.")
		fmt.Fprintln(out)
		return nil
	}
	view := newTableView(title,
		column{title: "Started"},
		column{title: "Book"},
		column{title: "Title"},
		column{title: "Outcome"},
		column{title: "Exit", right: true},
		column{title: "Duration", right: true},
	)
	for _, a := range attempts {
		exit := fmt.Sprint(a.ExitCode)
		if a.TimedOut {
			exit = "timeout"
		}
		view.add(
			a.StartedAt.Local().Format("2006-01-02 15:04"),
			a.BookID,
			a.Title,
			paintOutcome(a.Outcome, colorize),
			exit,
			formatDuration(a.Duration),
		)
	}
	fmt.Fprintln(out, view.render(colorize))
	fmt.Fprintln(out)
	return nil
}

func printScratch(out io.Writer, layout shelf.Layout, colorize bool) error {
	entries, err := layout.TempEntries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	tracker := progress.NewTracker(layout, io.Discard)
	view := newTableView("Scratch folders",
		column{title: "Book"},
		column{title: "Segments", right: true},
		column{title: "State"},
		column{title: "Log"},
	)
	for _, id := range entries {
		recorded, err := tracker.Recorded(id)
		if err != nil {
			return err
		}
		bad, err := layout.IsBad(id)
		if err != nil {
			return err
		}
		hasLog, err := fileutil.Exists(layout.LogFile(id))
		if err != nil {
			return err
		}
		state := "in progress"
		if bad {
			state = paintOutcome(string(supervisor.OutcomeBad), colorize)
		}
		logState := "-"
		if hasLog {
			logState = shelf.LogFileName
		}
		view.add(id, fmt.Sprint(len(recorded)), state, logState)
	}
	fmt.Fprintln(out, view.render(colorize))
	fmt.Fprintln(out)
	return nil
}

func printFinished(ctx context.Context, out io.Writer, layout shelf.Layout, colorize bool) error {
	entries, err := layout.LibraryEntries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No finished books.")
		return nil
	}
	view := newTableView("Finished books",
		column{title: "Book"},
		column{title: "Album"},
		column{title: "Artist"},
		column{title: "Files", right: true},
	)
	summaries, err := layout.InspectAll(ctx, entries)
	if err != nil {
		return err
	}
	for i, id := range entries {
		summary := summaries[i]
		view.add(id, summary.Album, summary.Artist, fmt.Sprint(summary.Files))
	}
	fmt.Fprintln(out, view.render(colorize))
	return nil
}
