package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validateCommands(); err != nil {
		return err
	}
	if err := c.validateImage(); err != nil {
		return err
	}
	return nil
}

// ValidateDownloadRoot reports a missing download root. Only commands that
// touch per-book state call it, so `config validate` works before the root
// is configured.
func (c *Config) ValidateDownloadRoot() error {
	if strings.TrimSpace(c.Paths.DownloadRoot) != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = "~/.config/libbydl/config.toml"
	}
	return fmt.Errorf("paths.download_root is required. Set %s, pass --dest, or edit %s (create with 'libbydl config init')", downloadRootEnv, defaultPath)
}

func (c *Config) validateTimeouts() error {
	return ensurePositiveMap(map[string]int{
		"downloader.timeout":   c.Downloader.Timeout,
		"libby.export_timeout": c.Libby.ExportTimeout,
		"image.refresh_hours":  c.Image.RefreshHours,
	})
}

func (c *Config) validateCommands() error {
	if strings.TrimSpace(c.Libby.Command) == "" {
		return errors.New("libby.command must be set")
	}
	if strings.TrimSpace(c.Downloader.DockerBinary) == "" {
		return errors.New("downloader.docker_binary must be set")
	}
	if strings.TrimSpace(c.Downloader.Service) == "" {
		return errors.New("downloader.service must be set")
	}
	if len(c.Downloader.AudioExtensions) == 0 {
		return errors.New("downloader.audio_extensions must include at least one extension")
	}
	return nil
}

func (c *Config) validateImage() error {
	if strings.TrimSpace(c.Image.Base) == "" {
		return errors.New("image.base must be set")
	}
	if strings.Contains(c.Image.Base, "@") {
		return errors.New("image.base must be an unpinned reference; the digest is tracked in image.pin_file")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
