package preflight

import (
	"context"
	"fmt"
	"strings"

	"libbydl/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every check a download run needs.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Download root", cfg.Paths.DownloadRoot),
		CheckComposeProject("Compose project", cfg.Downloader.ComposeDir),
		CheckFileReadable("Library config", cfg.Paths.LibraryConfig),
	}
	for _, status := range CheckSystemDeps(ctx, cfg) {
		result := Result{Name: status.Name, Passed: status.Available || status.Optional, Detail: status.Detail}
		if result.Detail == "" {
			result.Detail = status.Command
		}
		results = append(results, result)
	}
	return results
}

// Failures returns an error summarizing failed checks, or nil.
func Failures(results []Result) error {
	var failed []string
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", result.Name, result.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(failed, "; "))
}
