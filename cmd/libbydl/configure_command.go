package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"libbydl/internal/config"
	"libbydl/internal/libby"
	"libbydl/internal/libconfig"
	"libbydl/internal/services"
)

func newConfigureCommand(ctx *commandContext) *cobra.Command {
	var templatePath string
	var skipExport bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Sync the downloader's library list with the cards signed in to Libby",
		Long: "Exports the Libby cards with odmpy and merges them into the odmpy-ng library config.\n" +
			"Existing card numbers and pins are kept; new cards are added with blank credentials.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cards, err := loadCards(cmd, ctx, cfg, skipExport)
			if err != nil {
				return err
			}

			existing, found, err := libconfig.LoadOptional(cfg.Paths.LibraryConfig)
			if err != nil {
				return services.Wrap(services.ErrValidation, "configure", "read library config", cfg.Paths.LibraryConfig, err)
			}
			tmplPath := cfg.Paths.LibraryTemplate
			if strings.TrimSpace(templatePath) != "" {
				if tmplPath, err = config.ExpandPath(templatePath); err != nil {
					return fmt.Errorf("resolve template path: %w", err)
				}
			}
			template, _, err := libconfig.LoadOptional(tmplPath)
			if err != nil {
				return services.Wrap(services.ErrValidation, "configure", "read template", tmplPath, err)
			}

			merged, report := libconfig.Merge(existing, template, cards)
			out := cmd.OutOrStdout()
			printMergeReport(out, report)

			if found && !report.Changed() {
				fmt.Fprintf(out, "%s is up to date.\n", cfg.Paths.LibraryConfig)
				return nil
			}
			if dryRun {
				fmt.Fprintf(out, "Dry run: %s not written.\n", cfg.Paths.LibraryConfig)
				return nil
			}
			if err := merged.Save(cfg.Paths.LibraryConfig); err != nil {
				return services.Wrap(services.ErrConfiguration, "configure", "write library config", cfg.Paths.LibraryConfig, err)
			}
			ctx.loggerFor(cmd).Info("library config written",
				"path", cfg.Paths.LibraryConfig,
				"libraries", len(merged.Libraries),
				"added", len(report.Added),
			)
			fmt.Fprintf(out, "Wrote %s\n", cfg.Paths.LibraryConfig)
			return nil
		},
	}

	cmd.Flags().StringVar(&templatePath, "template", "", "Template supplying default options (default: paths.library_template)")
	cmd.Flags().BoolVar(&skipExport, "skip-export", false, "Use the existing cards file instead of running odmpy")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report changes without writing the library config")
	return cmd
}

func loadCards(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, skipExport bool) ([]libby.Card, error) {
	if skipExport {
		cards, err := libby.LoadCards(cfg.Paths.CardsFile)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "configure", "read cards", cfg.Paths.CardsFile, err)
		}
		return cards, nil
	}
	client, err := libby.New(cfg.Libby.Command, cfg.ExportTimeout(),
		libby.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
		libby.WithLogger(ctx.loggerFor(cmd)),
	)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "configure", "libby client", "", err)
	}
	return client.ExportCards(cmd.Context(), cfg.Paths.CardsFile)
}

func printMergeReport(out io.Writer, report libconfig.Report) {
	for _, lib := range report.Added {
		fmt.Fprintf(out, "Added %s (site %d)\n", lib.Name, lib.SiteID)
	}
	for _, lib := range report.Updated {
		fmt.Fprintf(out, "Updated %s (site %d)\n", lib.Name, lib.SiteID)
	}
	for _, key := range report.CopiedOptions {
		fmt.Fprintf(out, "Copied option %q from template\n", key)
	}
	for _, lib := range report.Unmatched {
		fmt.Fprintf(out, "Warning: %s (site %d) has no matching Libby card; kept as is\n", lib.Name, lib.SiteID)
	}
	for _, lib := range report.NeedsCredentials {
		fmt.Fprintf(out, "Set card_number and pin for %s (site %d)\n", lib.Name, lib.SiteID)
	}
}
