package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"libbydl/internal/backlog"
	"libbydl/internal/services"
	"libbydl/internal/shelf"
)

func newBacklogCommand(ctx *commandContext) *cobra.Command {
	var skipExport bool

	cmd := &cobra.Command{
		Use:   "backlog",
		Short: "Show which loaned books still need downloading, without running anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := ctx.orchestrator(cmd)
			if err != nil {
				return err
			}
			plan, err := orch.Plan(cmd.Context(), skipExport)
			if err != nil && !errors.Is(err, services.ErrNoRecognizedSites) {
				return err
			}
			printPlan(cmd, plan, orch.Layout())
			return err
		},
	}
	cmd.Flags().BoolVar(&skipExport, "skip-export", false, "Use the existing loans file instead of running odmpy")
	return cmd
}

func printPlan(cmd *cobra.Command, plan backlog.Plan, layout shelf.Layout) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	bad := make(map[string]bool, len(plan.Bad))
	for _, book := range plan.Bad {
		bad[book.ID] = true
	}

	if plan.Empty() && len(plan.Unrecognized) == 0 {
		fmt.Fprintln(out, "Nothing to do.")
	}
	if !plan.Empty() {
		view := newTableView("Pending", column{title: "Book"}, column{title: "Title"}, column{title: "Site", right: true}, column{title: "State"})
		for _, book := range plan.Pending {
			state := "new"
			if ok, _ := layout.TempDirExists(book.ID); ok {
				state = "partial"
			}
			if bad[book.ID] {
				state = paint("bad (run 'libbydl unmark "+book.ID+"')", ansiRed, colorize)
			}
			view.add(book.ID, book.Title, fmt.Sprint(book.SiteID), state)
		}
		fmt.Fprintln(out, view.render(colorize))
	}
	if len(plan.Unrecognized) > 0 {
		view := newTableView("Library not configured", column{title: "Book"}, column{title: "Title"}, column{title: "Site", right: true})
		for _, book := range plan.Unrecognized {
			view.add(book.ID, book.Title, fmt.Sprint(book.SiteID))
		}
		fmt.Fprintln(out, view.render(colorize))
	}
	if len(plan.Completed) > 0 {
		fmt.Fprintf(out, "%d loaned books are already downloaded.\n", len(plan.Completed))
	}
	if len(plan.Orphans) > 0 {
		fmt.Fprintln(out, "Scratch folders without an active loan (not deleted):")
		for _, id := range plan.Orphans {
			fmt.Fprintf(out, "  %s\n", layout.TempDir(id))
		}
	}
}
