package libby

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"libbydl/internal/logging"
	"libbydl/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, stdout, stderr io.Writer) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithOutput routes the export tool's own output, which may include
// interactive setup prompts.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(c *Client) {
		if stdout != nil {
			c.stdout = stdout
		}
		if stderr != nil {
			c.stderr = stderr
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "libby")
	}
}

// Client wraps `odmpy libby` export invocations.
type Client struct {
	binary  string
	timeout time.Duration
	exec    Executor
	stdout  io.Writer
	stderr  io.Writer
	logger  *slog.Logger
}

// New constructs an export client.
func New(binary string, timeout time.Duration, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("odmpy binary required")
	}
	client := &Client{
		binary:  binary,
		timeout: timeout,
		exec:    commandExecutor{},
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		logger:  logging.NewComponentLogger(nil, "libby"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// ExportLoans refreshes the loans file and returns the parsed books.
func (c *Client) ExportLoans(ctx context.Context, path string) ([]Book, error) {
	if err := c.export(ctx, "--exportloans", path); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "libby", "export loans", "", err)
	}
	books, err := LoadLoans(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "libby", "read loans", path, err)
	}
	return books, nil
}

// ExportCards refreshes the cards file and returns the parsed cards.
func (c *Client) ExportCards(ctx context.Context, path string) ([]Card, error) {
	if err := c.export(ctx, "--exportcards", path); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "libby", "export cards", "", err)
	}
	cards, err := LoadCards(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "libby", "read cards", path, err)
	}
	return cards, nil
}

func (c *Client) export(ctx context.Context, flag, path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("export path required")
	}
	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	logger := logging.WithContext(ctx, c.logger)
	args := []string{"libby", flag, path}
	logger.Info("running export", logging.String("command", c.binary+" "+strings.Join(args, " ")))
	start := time.Now()
	if err := c.exec.Run(runCtx, c.binary, args, c.stdout, c.stderr); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s %s exceeded %s", services.ErrTimeout, c.binary, flag, c.timeout)
		}
		return fmt.Errorf("%s %s: %w", c.binary, flag, err)
	}
	logger.Debug("export finished", logging.Duration("elapsed", time.Since(start)))
	return nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	// odmpy asks for a Libby setup code on first use.
	cmd.Stdin = os.Stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("exit status %d: %w", exitErr.ExitCode(), err)
		}
		return err
	}
	return nil
}
