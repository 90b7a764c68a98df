package deps

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ComposeFileNames are the project files docker compose looks for, in order.
var ComposeFileNames = []string{"compose.yaml", "compose.yml", "docker-compose.yaml", "docker-compose.yml"}

// CheckComposePlugin reports whether `docker compose` is usable. The compose
// v2 plugin ships separately from the docker CLI on many distributions.
func CheckComposePlugin(ctx context.Context, dockerBinary string) Status {
	result := Status{
		Name:        "Docker Compose",
		Command:     strings.TrimSpace(dockerBinary) + " compose",
		Description: "Runs the downloader container",
	}
	binary := strings.TrimSpace(dockerBinary)
	if binary == "" {
		result.Detail = "docker binary not configured"
		return result
	}
	if _, err := exec.LookPath(binary); err != nil {
		result.Detail = fmt.Sprintf("binary %q not found", binary)
		return result
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(checkCtx, binary, "compose", "version", "--short")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		result.Detail = "compose plugin unavailable: " + detail
		return result
	}
	result.Available = true
	result.Detail = "v" + strings.TrimPrefix(strings.TrimSpace(stdout.String()), "v")
	return result
}

// FindComposeFile returns the compose project file inside dir.
func FindComposeFile(dir string) (string, bool) {
	for _, name := range ComposeFileNames {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}
