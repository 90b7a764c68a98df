package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLibby()
	c.normalizeDownloader()
	if err := c.normalizeImage(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	c.Paths.DownloadRoot = strings.TrimSpace(c.Paths.DownloadRoot)
	if c.Paths.DownloadRoot == "" {
		if value, ok := os.LookupEnv(downloadRootEnv); ok {
			c.Paths.DownloadRoot = strings.TrimSpace(value)
		}
	}
	if c.Paths.DownloadRoot, err = expandPath(c.Paths.DownloadRoot); err != nil {
		return fmt.Errorf("paths.download_root: %w", err)
	}

	c.Paths.LoansFile = strings.TrimSpace(c.Paths.LoansFile)
	if c.Paths.LoansFile == "" {
		if value, ok := os.LookupEnv(loansFileEnv); ok && strings.TrimSpace(value) != "" {
			c.Paths.LoansFile = strings.TrimSpace(value)
		} else {
			c.Paths.LoansFile = defaultLoansFile
		}
	}
	if c.Paths.LoansFile, err = expandPath(c.Paths.LoansFile); err != nil {
		return fmt.Errorf("paths.loans_file: %w", err)
	}

	if strings.TrimSpace(c.Paths.CardsFile) == "" {
		c.Paths.CardsFile = defaultCardsFile
	}
	if c.Paths.CardsFile, err = expandPath(c.Paths.CardsFile); err != nil {
		return fmt.Errorf("paths.cards_file: %w", err)
	}

	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}

	if strings.TrimSpace(c.Downloader.ComposeDir) == "" {
		c.Downloader.ComposeDir = defaultComposeDir
	}
	if c.Downloader.ComposeDir, err = expandPath(c.Downloader.ComposeDir); err != nil {
		return fmt.Errorf("downloader.compose_dir: %w", err)
	}

	// Library config and template default to files beside the compose project.
	if c.Paths.LibraryConfig, err = c.composeRelative(c.Paths.LibraryConfig, defaultLibraryConfig); err != nil {
		return fmt.Errorf("paths.library_config: %w", err)
	}
	if c.Paths.LibraryTemplate, err = c.composeRelative(c.Paths.LibraryTemplate, defaultLibraryTemplate); err != nil {
		return fmt.Errorf("paths.library_template: %w", err)
	}
	return nil
}

func (c *Config) normalizeLibby() {
	c.Libby.Command = strings.TrimSpace(c.Libby.Command)
	if c.Libby.Command == "" {
		c.Libby.Command = defaultLibbyCommand
	}
}

func (c *Config) normalizeDownloader() {
	c.Downloader.DockerBinary = strings.TrimSpace(c.Downloader.DockerBinary)
	if c.Downloader.DockerBinary == "" {
		c.Downloader.DockerBinary = defaultDockerBinary
	}
	c.Downloader.Service = strings.TrimSpace(c.Downloader.Service)
	if c.Downloader.Service == "" {
		c.Downloader.Service = defaultService
	}

	exts := make([]string, 0, len(c.Downloader.AudioExtensions))
	seen := make(map[string]struct{}, len(c.Downloader.AudioExtensions))
	for _, ext := range c.Downloader.AudioExtensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = []string{defaultAudioExtensionMP3}
	}
	c.Downloader.AudioExtensions = exts
}

func (c *Config) normalizeImage() error {
	var err error
	c.Image.Base = strings.TrimSpace(c.Image.Base)
	if c.Image.Base == "" {
		c.Image.Base = defaultBaseImage
	}
	if c.Image.PinFile, err = c.composeRelative(c.Image.PinFile, defaultPinFile); err != nil {
		return fmt.Errorf("image.pin_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) composeRelative(value, fallback string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = fallback
	}
	if !strings.HasPrefix(value, "~") && !filepath.IsAbs(value) {
		value = filepath.Join(c.Downloader.ComposeDir, value)
	}
	return expandPath(value)
}
