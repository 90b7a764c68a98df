package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and file locations.
type Paths struct {
	DownloadRoot    string `toml:"download_root"`
	LoansFile       string `toml:"loans_file"`
	CardsFile       string `toml:"cards_file"`
	LibraryConfig   string `toml:"library_config"`
	LibraryTemplate string `toml:"library_template"`
	LogDir          string `toml:"log_dir"`
}

// Libby contains configuration for the odmpy export tool.
type Libby struct {
	Command       string `toml:"command"`
	ExportTimeout int    `toml:"export_timeout"`
}

// Downloader contains configuration for the containerised downloader.
type Downloader struct {
	DockerBinary    string   `toml:"docker_binary"`
	ComposeDir      string   `toml:"compose_dir"`
	Service         string   `toml:"service"`
	Timeout         int      `toml:"timeout"`
	AudioExtensions []string `toml:"audio_extensions"`
}

// Image contains configuration for the pinned browser base image.
type Image struct {
	Base         string `toml:"base"`
	PinFile      string `toml:"pin_file"`
	RefreshHours int    `toml:"refresh_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for libbydl.
//
// Configuration sections by subsystem:
//   - Paths: download root, export files, library config and logs
//   - Libby: odmpy export invocation
//   - Downloader: docker compose service, timeout and audio detection
//   - Image: base image pinning
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Libby      Libby      `toml:"libby"`
	Downloader Downloader `toml:"downloader"`
	Image      Image      `toml:"image"`
	Logging    Logging    `toml:"logging"`
}

// Override adjusts a decoded configuration before it is normalized, typically
// to apply command-line flags.
type Override func(*Config)

// WithDownloadRoot replaces paths.download_root when dir is non-empty.
func WithDownloadRoot(dir string) Override {
	return func(c *Config) {
		if strings.TrimSpace(dir) != "" {
			c.Paths.DownloadRoot = dir
		}
	}
}

// WithLoansFile replaces paths.loans_file when path is non-empty.
func WithLoansFile(path string) Override {
	return func(c *Config) {
		if strings.TrimSpace(path) != "" {
			c.Paths.LoansFile = path
		}
	}
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/libbydl/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string, overrides ...Override) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	for _, override := range overrides {
		if override != nil {
			override(&cfg)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("libbydl.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the log directory and the libby/tmp subdirectories
// of the download root. The download root itself must already exist so a
// missing mount is reported instead of silently recreated.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.LogDir, err)
	}
	if strings.TrimSpace(c.Paths.DownloadRoot) == "" {
		return nil
	}
	info, err := os.Stat(c.Paths.DownloadRoot)
	if err != nil {
		return fmt.Errorf("download root %q: %w", c.Paths.DownloadRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("download root %q is not a directory", c.Paths.DownloadRoot)
	}
	for _, dir := range []string{c.LibraryRoot(), c.TempRoot()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LibraryRoot is the directory holding one finished directory per book.
func (c *Config) LibraryRoot() string {
	return filepath.Join(c.Paths.DownloadRoot, "libby")
}

// TempRoot is the directory holding per-book scratch state.
func (c *Config) TempRoot() string {
	return filepath.Join(c.Paths.DownloadRoot, "tmp")
}

// LockPath is the single-instance lock file for the download root.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DownloadRoot, ".libbydl.lock")
}

// HistoryPath is the SQLite attempt history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.LogDir, "history.db")
}

// DownloadTimeout returns the per-book wall-clock limit.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Downloader.Timeout) * time.Second
}

// ExportTimeout returns the limit for a single odmpy export.
func (c *Config) ExportTimeout() time.Duration {
	return time.Duration(c.Libby.ExportTimeout) * time.Second
}

// PinMaxAge returns how long a recorded image digest is trusted.
func (c *Config) PinMaxAge() time.Duration {
	return time.Duration(c.Image.RefreshHours) * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
