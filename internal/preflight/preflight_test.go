package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"libbydl/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckComposeProject(t *testing.T) {
	dir := t.TempDir()
	if result := CheckComposeProject("compose", dir); result.Passed {
		t.Fatal("expected failure without compose file")
	}
	if err := os.WriteFile(filepath.Join(dir, "compose.yaml"), []byte("services: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckComposeProject("compose", dir); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
}

func TestCheckFileReadable(t *testing.T) {
	dir := t.TempDir()
	missing := CheckFileReadable("cfg", filepath.Join(dir, "config.json"))
	if missing.Passed || !strings.Contains(missing.Detail, "libbydl configure") {
		t.Fatalf("expected configure hint, got %#v", missing)
	}
	if result := CheckFileReadable("cfg", dir); result.Passed {
		t.Fatal("expected failure for directory")
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if result := CheckFileReadable("cfg", path); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
}

func TestRunAllReportsMissingBinaries(t *testing.T) {
	root := t.TempDir()
	compose := t.TempDir()
	if err := os.WriteFile(filepath.Join(compose, "compose.yaml"), []byte("services: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Paths.DownloadRoot = root
	cfg.Downloader.ComposeDir = compose
	cfg.Paths.LibraryConfig = filepath.Join(compose, "config.json")
	if err := os.WriteFile(cfg.Paths.LibraryConfig, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg.Libby.Command = filepath.Join(root, "no-odmpy")
	cfg.Downloader.DockerBinary = filepath.Join(root, "no-docker")

	results := RunAll(context.Background(), &cfg)
	byName := map[string]Result{}
	for _, r := range results {
		byName[r.Name] = r
	}
	for _, name := range []string{"Download root", "Compose project", "Library config"} {
		if !byName[name].Passed {
			t.Fatalf("expected %s to pass, got %s", name, byName[name].Detail)
		}
	}
	if byName["odmpy"].Passed || byName["Docker"].Passed || byName["Docker Compose"].Passed {
		t.Fatalf("expected binary checks to fail: %+v", results)
	}
	err := Failures(results)
	if err == nil || !strings.Contains(err.Error(), "odmpy") {
		t.Fatalf("expected failure summary naming odmpy, got %v", err)
	}
}

func TestFailuresNilWhenAllPass(t *testing.T) {
	if err := Failures([]Result{{Name: "a", Passed: true}}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
