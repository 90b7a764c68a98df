package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"libbydl/internal/fileutil"
	"libbydl/internal/logging"
	"libbydl/internal/services"
)

// Settings configures the pin manager.
type Settings struct {
	DockerBinary string
	ComposeDir   string
	Service      string
	Base         string
	PinFile      string
	MaxAge       time.Duration
	DownloadRoot string
}

// Pin is the resolved base image reference.
type Pin struct {
	// Image is the full `<image>@sha256:...` reference.
	Image string
	// Refreshed is set when the registry was consulted this run.
	Refreshed bool
	// Rebuilt is set when the compose service was rebuilt.
	Rebuilt bool
}

// Digest returns the `@sha256:...` suffix.
func (p Pin) Digest() string {
	if idx := strings.Index(p.Image, "@"); idx >= 0 {
		return p.Image[idx:]
	}
	return ""
}

// Option configures the manager.
type Option func(*Manager)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(m *Manager) {
		if exec != nil {
			m.exec = exec
		}
	}
}

// WithOutput routes docker pull/build output.
func WithOutput(w io.Writer) Option {
	return func(m *Manager) {
		if w != nil {
			m.out = w
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logging.NewComponentLogger(logger, "image")
	}
}

// WithClock overrides the time source used for pin age.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager resolves and refreshes the image pin.
type Manager struct {
	settings Settings
	exec     Executor
	out      io.Writer
	logger   *slog.Logger
	now      func() time.Time
	getuid   func() int
	getgid   func() int
	environ  func() []string
}

// New constructs a manager.
func New(settings Settings, opts ...Option) (*Manager, error) {
	if strings.TrimSpace(settings.DockerBinary) == "" {
		return nil, errors.New("docker binary required")
	}
	if strings.TrimSpace(settings.Base) == "" {
		return nil, errors.New("base image required")
	}
	if strings.TrimSpace(settings.PinFile) == "" {
		return nil, errors.New("pin file required")
	}
	m := &Manager{
		settings: settings,
		exec:     commandExecutor{},
		out:      os.Stdout,
		logger:   logging.NewComponentLogger(nil, "image"),
		now:      time.Now,
		getuid:   os.Getuid,
		getgid:   os.Getgid,
		environ:  os.Environ,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ReadPin returns the recorded reference and when it was last written. A
// missing file yields an empty reference and a zero time.
func ReadPin(path string) (string, time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", time.Time{}, nil
		}
		return "", time.Time{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", time.Time{}, err
	}
	return strings.TrimSpace(string(data)), info.ModTime(), nil
}

// Stale reports whether the recorded reference must be refreshed.
func (m *Manager) Stale(current string, written time.Time) bool {
	if current == "" || current == m.settings.Base || !strings.Contains(current, "@") {
		return true
	}
	return m.now().Sub(written) > m.settings.MaxAge
}

// Ensure returns a pinned reference, refreshing it when stale and rebuilding
// the compose service when the digest changed.
func (m *Manager) Ensure(ctx context.Context) (Pin, error) {
	current, written, err := ReadPin(m.settings.PinFile)
	if err != nil {
		return Pin{}, services.Wrap(services.ErrConfiguration, "image", "read pin", m.settings.PinFile, err)
	}
	pin := Pin{Image: current}

	needsBuild := false
	if m.Stale(current, written) {
		fmt.Fprintln(m.out, "Pulling base image...")
		digest, err := m.resolve(ctx)
		if err != nil {
			return Pin{}, err
		}
		if digest != current {
			needsBuild = true
			pin.Image = digest
		}
		if err := fileutil.WriteFileAtomic(m.settings.PinFile, []byte(digest), 0o644); err != nil {
			return Pin{}, services.Wrap(services.ErrConfiguration, "image", "write pin", m.settings.PinFile, err)
		}
		pin.Refreshed = true
		logging.WithContext(ctx, m.logger).Info("image pin refreshed",
			logging.String("image", pin.Image),
			logging.Bool("changed", needsBuild),
		)
	}

	fmt.Fprintf(m.out, "Using image: %s.\n", pin.Image)
	if needsBuild {
		if err := m.Build(ctx, pin); err != nil {
			return Pin{}, err
		}
		pin.Rebuilt = true
	}
	return pin, nil
}

// Build runs `docker compose build <service>` with the pinned environment.
func (m *Manager) Build(ctx context.Context, pin Pin) error {
	fmt.Fprintf(m.out, "Building %s image...\n", m.settings.Service)
	err := m.exec.Run(ctx, Command{
		Binary: m.settings.DockerBinary,
		Args:   []string{"compose", "build", m.settings.Service},
		Dir:    m.settings.ComposeDir,
		Env:    m.Environment(pin),
	}, m.out, m.out)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "image", "compose build", m.settings.Service, err)
	}
	return nil
}

func (m *Manager) resolve(ctx context.Context) (string, error) {
	base := m.settings.Base
	if err := m.exec.Run(ctx, Command{
		Binary: m.settings.DockerBinary,
		Args:   []string{"pull", base},
		Dir:    m.settings.ComposeDir,
	}, m.out, m.out); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "image", "pull", base, err)
	}

	var stdout, stderr bytes.Buffer
	if err := m.exec.Run(ctx, Command{
		Binary: m.settings.DockerBinary,
		Args:   []string{"inspect", "--format={{index .RepoDigests 0}}", base},
		Dir:    m.settings.ComposeDir,
	}, &stdout, &stderr); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = base
		}
		return "", services.Wrap(services.ErrExternalTool, "image", "inspect", detail, err)
	}
	digest := strings.TrimSpace(stdout.String())
	if !strings.Contains(digest, "@") {
		return "", services.Wrap(services.ErrExternalTool, "image", "parse digest", fmt.Sprintf("%s: %q", base, digest), nil)
	}
	return digest, nil
}

// Environment returns the process environment for docker compose: the
// current environment plus host identity, download root, and image digest.
func (m *Manager) Environment(pin Pin) []string {
	env := append([]string(nil), m.environ()...)
	env = append(env,
		"HOST_UID="+strconv.Itoa(m.getuid()),
		"HOST_GID="+strconv.Itoa(m.getgid()),
		"DOWNLOAD_BASE="+m.settings.DownloadRoot,
		"COMPOSE_BAKE=true",
	)
	if digest := pin.Digest(); digest != "" {
		env = append(env, "SELENIUM_SHA="+digest)
	}
	return env
}
