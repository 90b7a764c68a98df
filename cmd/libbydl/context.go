package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"libbydl/internal/config"
	"libbydl/internal/logging"
	"libbydl/internal/orchestrator"
	"libbydl/internal/services"
	"libbydl/internal/shelf"
)

type globalFlags struct {
	config string
	dest   string
	loans  string
}

type commandContext struct {
	flags *globalFlags

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, exists, err := config.Load(
			strings.TrimSpace(c.flags.config),
			config.WithDownloadRoot(c.flags.dest),
			config.WithLoansFile(c.flags.loans),
		)
		if err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "config", "load", path, err)
			return
		}
		c.config = cfg
		c.configPath = path
		c.configExists = exists
	})
	return c.config, c.configErr
}

// loggerFor returns the run logger. It writes to the log file and, for
// console output, to the command's stderr so it never interleaves with the
// downloader transcript on stdout.
func (c *commandContext) loggerFor(cmd *cobra.Command) *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg, cmd.ErrOrStderr())
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "logging disabled: %v\n", err)
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) layout() (shelf.Layout, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return shelf.Layout{}, err
	}
	if err := cfg.ValidateDownloadRoot(); err != nil {
		return shelf.Layout{}, services.Wrap(services.ErrConfiguration, "config", "download root", "", err)
	}
	return shelf.NewLayout(cfg.Paths.DownloadRoot, cfg.Downloader.AudioExtensions), nil
}

func (c *commandContext) orchestrator(cmd *cobra.Command, opts ...orchestrator.Option) (*orchestrator.Orchestrator, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	base := []orchestrator.Option{
		orchestrator.WithOutput(cmd.OutOrStdout()),
		orchestrator.WithLogger(c.loggerFor(cmd)),
	}
	return orchestrator.New(cfg, append(base, opts...)...)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
