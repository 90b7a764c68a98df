package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"libbydl/internal/libby"
)

func newUnmarkCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unmark <book-id>...",
		Short: "Remove the bad marker so the next run retries a book",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := ctx.layout()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, arg := range args {
				id := strings.TrimSpace(arg)
				if !libby.ValidID(id) {
					return fmt.Errorf("invalid book id %q", arg)
				}
				removed, err := layout.ClearBad(id)
				if err != nil {
					return fmt.Errorf("unmark %s: %w", id, err)
				}
				if removed {
					fmt.Fprintf(out, "Cleared bad marker for %s\n", id)
				} else {
					fmt.Fprintf(out, "%s was not marked bad\n", id)
				}
			}
			return nil
		},
	}
}
