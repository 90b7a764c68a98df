package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"libbydl/internal/orchestrator"
	"libbydl/internal/supervisor"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts orchestrator.RunOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Export loans and download every book that is not finished yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := ctx.orchestrator(cmd)
			if err != nil {
				return err
			}
			summary, err := orch.Run(cmd.Context(), opts)
			return finishRun(cmd, summary, err)
		},
	}

	cmd.Flags().BoolVar(&opts.BuildOnly, "build-only", false, "Refresh the image pin and rebuild odmpy-ng if needed, do nothing else")
	cmd.Flags().BoolVar(&opts.SkipExport, "skip-export", false, "Use the existing loans file instead of running odmpy")
	return cmd
}

func newBuildCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Refresh the base image pin and rebuild odmpy-ng when it changed",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := ctx.orchestrator(cmd)
			if err != nil {
				return err
			}
			summary, err := orch.Run(cmd.Context(), orchestrator.RunOptions{BuildOnly: true})
			if err != nil {
				return err
			}
			state := "unchanged"
			if summary.Pin.Rebuilt {
				state = "rebuilt"
			} else if summary.Pin.Refreshed {
				state = "checked, digest unchanged"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Image %s (%s)\n", summary.Pin.Image, state)
			return nil
		},
	}
}

// finishRun reports whatever was attempted, including runs cut short by an
// interrupt, before handing back the run error.
func finishRun(cmd *cobra.Command, summary orchestrator.Summary, runErr error) error {
	if len(summary.Results) > 0 {
		printRunSummary(cmd, summary)
	}
	return runErr
}

func printRunSummary(cmd *cobra.Command, summary orchestrator.Summary) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	view := newTableView("Run "+summary.RunID,
		column{title: "Book"},
		column{title: "Title"},
		column{title: "Outcome"},
		column{title: "Exit", right: true},
		column{title: "Duration", right: true},
	)
	for _, r := range summary.Results {
		view.add(r.Book.ID, r.Book.Title, paintOutcome(string(r.Outcome), colorize), exitCodeLabel(r), formatDuration(r.Duration))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, view.render(colorize))
	if failed := summary.Failed(); failed > 0 {
		fmt.Fprintf(out, "%d of %d books did not finish; see process.log in each tmp folder.\n", failed, len(summary.Results))
	}
}

func exitCodeLabel(r supervisor.Result) string {
	switch {
	case r.Outcome == supervisor.OutcomeSkipped || r.Outcome == supervisor.OutcomeStartFailed:
		return "-"
	case r.TimedOut:
		return "timeout"
	default:
		return fmt.Sprint(r.ExitCode)
	}
}
