package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"libbydl/internal/history"
	"libbydl/internal/libby"
	"libbydl/internal/libconfig"
	"libbydl/internal/orchestrator"
	"libbydl/internal/services"
	"libbydl/internal/shelf"
	"libbydl/internal/supervisor"
)

type cliTestEnv struct {
	base          string
	root          string
	composeDir    string
	configPath    string
	loansFile     string
	cardsFile     string
	libraryConfig string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("AUDIOBOOK_FOLDER", "")
	t.Setenv("LIBBY_EXPORT", "")

	env := &cliTestEnv{
		base:       base,
		root:       filepath.Join(base, "books"),
		composeDir: filepath.Join(base, "odmpy-ng"),
		configPath: filepath.Join(base, "libbydl.toml"),
		loansFile:  filepath.Join(base, "libby.json"),
		cardsFile:  filepath.Join(base, "cards.json"),
	}
	env.libraryConfig = filepath.Join(env.composeDir, "config.json")
	for _, dir := range []string{env.root, env.composeDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	content := fmt.Sprintf(`[paths]
download_root = %q
loans_file = %q
cards_file = %q
library_config = %q
log_dir = %q

[downloader]
compose_dir = %q
`, env.root, env.loansFile, env.cardsFile, env.libraryConfig, filepath.Join(base, "logs"), env.composeDir)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func (e *cliTestEnv) writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	stdout, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, stdout, target)
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected error when config exists without --overwrite")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateReportsPaths(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, stdout, "Download root: "+env.root)
	requireContains(t, stdout, "run 'libbydl configure'")
	requireContains(t, stdout, "Configuration valid")
}

func TestDestFlagOverridesConfig(t *testing.T) {
	env := setupCLITestEnv(t)
	other := filepath.Join(env.base, "elsewhere")
	if err := os.MkdirAll(other, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	stdout, _, err := runCLI(t, []string{"--dest", other, "config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, stdout, "Download root: "+other)
}

func TestUnmarkClearsBadMarker(t *testing.T) {
	env := setupCLITestEnv(t)
	layout := shelf.NewLayout(env.root, []string{".mp3"})
	if err := layout.EnsureTempDir("B1"); err != nil {
		t.Fatalf("EnsureTempDir: %v", err)
	}
	if _, err := layout.MarkBad("B1"); err != nil {
		t.Fatalf("MarkBad: %v", err)
	}

	stdout, _, err := runCLI(t, []string{"unmark", "B1", "B2"}, env.configPath)
	if err != nil {
		t.Fatalf("unmark: %v", err)
	}
	requireContains(t, stdout, "Cleared bad marker for B1")
	requireContains(t, stdout, "B2 was not marked bad")
	if bad, _ := layout.IsBad("B1"); bad {
		t.Fatal("expected marker removed")
	}

	if _, _, err := runCLI(t, []string{"unmark", "../B1"}, env.configPath); err == nil {
		t.Fatal("expected error for path-like book id")
	}
}

func TestBacklogListsPendingAndUnrecognized(t *testing.T) {
	env := setupCLITestEnv(t)
	env.writeFile(t, env.libraryConfig, `{"libraries": [{"name": "Springfield", "site_id": 7, "card_number": "1", "pin": "2"}]}`)
	env.writeFile(t, env.loansFile, `[
  {"id": "B1", "title": "Book One", "websiteId": 7},
  {"id": "B2", "title": "Book Two", "websiteId": 9}
]`)
	layout := shelf.NewLayout(env.root, []string{".mp3"})
	env.writeFile(t, filepath.Join(layout.TempDir("gone"), "part1.mp3"), "x")

	stdout, _, err := runCLI(t, []string{"backlog", "--skip-export"}, env.configPath)
	if err != nil {
		t.Fatalf("backlog: %v", err)
	}
	requireContains(t, stdout, "Pending")
	requireContains(t, stdout, "Book One")
	requireContains(t, stdout, "Library not configured")
	requireContains(t, stdout, "Book Two")
	requireContains(t, stdout, layout.TempDir("gone"))
}

func TestBacklogNoRecognizedSites(t *testing.T) {
	env := setupCLITestEnv(t)
	env.writeFile(t, env.libraryConfig, `{"libraries": [{"name": "Springfield", "site_id": 7}]}`)
	env.writeFile(t, env.loansFile, `[{"id": "B1", "title": "Book One", "websiteId": 9}]`)

	stdout, _, err := runCLI(t, []string{"backlog", "--skip-export"}, env.configPath)
	if !errors.Is(err, services.ErrNoRecognizedSites) {
		t.Fatalf("expected ErrNoRecognizedSites, got %v", err)
	}
	if services.ExitCode(err) != services.ExitNoRecognizedSites {
		t.Fatalf("unexpected exit code %d", services.ExitCode(err))
	}
	requireContains(t, stdout, "Book One")
}

func TestBacklogRequiresLibraryConfig(t *testing.T) {
	env := setupCLITestEnv(t)
	env.writeFile(t, env.loansFile, `[{"id": "B1", "title": "Book One", "websiteId": 7}]`)

	_, _, err := runCLI(t, []string{"backlog", "--skip-export"}, env.configPath)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestConfigureMergesCards(t *testing.T) {
	env := setupCLITestEnv(t)
	env.writeFile(t, env.cardsFile, `[
  {"cardId": "c1", "cardName": "Springfield", "advantageKey": "springfield", "websiteId": 7},
  {"cardId": "c2", "cardName": "Capital City", "advantageKey": "capcity", "websiteId": 11}
]`)
	env.writeFile(t, env.libraryConfig, `{"headless": true, "libraries": [
  {"name": "Springfield", "url": "", "site_id": 7, "card_number": "1234", "pin": "9999"}
]}`)

	stdout, _, err := runCLI(t, []string{"configure", "--skip-export", "--dry-run"}, env.configPath)
	if err != nil {
		t.Fatalf("configure --dry-run: %v", err)
	}
	requireContains(t, stdout, "Added Capital City (site 11)")
	requireContains(t, stdout, "Dry run")

	stdout, _, err = runCLI(t, []string{"configure", "--skip-export"}, env.configPath)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	requireContains(t, stdout, "Set card_number and pin for Capital City (site 11)")
	requireContains(t, stdout, "Wrote "+env.libraryConfig)

	file, err := libconfig.Load(env.libraryConfig)
	if err != nil {
		t.Fatalf("load merged config: %v", err)
	}
	if len(file.Libraries) != 2 {
		t.Fatalf("expected 2 libraries, got %+v", file.Libraries)
	}
	if file.Libraries[0].Pin != "9999" || file.Libraries[0].URL != "https://libbyapp.com/library/springfield" {
		t.Fatalf("unexpected first entry %+v", file.Libraries[0])
	}
	if _, ok := file.Options["headless"]; !ok {
		t.Fatal("expected options to survive the merge")
	}

	stdout, _, err = runCLI(t, []string{"configure", "--skip-export"}, env.configPath)
	if err != nil {
		t.Fatalf("second configure: %v", err)
	}
	requireContains(t, stdout, "is up to date")
}

func TestStatusWithoutHistory(t *testing.T) {
	env := setupCLITestEnv(t)
	layout := shelf.NewLayout(env.root, []string{".mp3"})
	env.writeFile(t, filepath.Join(layout.TempDir("B1"), "part1.mp3"), "x")
	env.writeFile(t, layout.RecordFile("B1"), "part1.mp3\n")
	env.writeFile(t, filepath.Join(layout.FinalDir("B2"), "part1.mp3"), "not a tag")

	stdout, _, err := runCLI(t, []string{"status", "--skip-checks"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, stdout, "No download attempts recorded yet.")
	requireContains(t, stdout, "Scratch folders")
	requireContains(t, stdout, "B1")
	requireContains(t, stdout, "Finished books")
	requireContains(t, stdout, "B2")
}

func TestStatusShowsRecordedAttempts(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()
	store, err := history.Open(ctx, filepath.Join(env.base, "logs", history.FileName))
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, a := range []history.Attempt{
		{RunID: "r1", BookID: "B1", Title: "Book One", SiteID: 7, StartedAt: started, ExitCode: 1, Outcome: "retry"},
		{RunID: "r2", BookID: "B1", Title: "Book One", SiteID: 7, StartedAt: started.Add(time.Hour), ExitCode: 0, Progress: true, Outcome: "success"},
		{RunID: "r2", BookID: "B2", Title: "Book Two", SiteID: 7, StartedAt: started.Add(2 * time.Hour), ExitCode: -1, TimedOut: true, Outcome: "retry"},
	} {
		if _, err := store.Record(ctx, a); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	stdout, _, err := runCLI(t, []string{"status", "--skip-checks"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, stdout, "Recent attempts")
	requireContains(t, stdout, "timeout")
	requireContains(t, stdout, "No finished books.")

	stdout, _, err = runCLI(t, []string{"status", "--skip-checks", "--book", "B1"}, env.configPath)
	if err != nil {
		t.Fatalf("status --book: %v", err)
	}
	requireContains(t, stdout, "Attempts for B1")
	if strings.Contains(stdout, "Book Two") {
		t.Fatalf("expected only B1 attempts, got %q", stdout)
	}
}

func TestFinishRunPrintsSummaryOnInterrupt(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{Use: "run"}
	cmd.SetOut(&out)
	summary := orchestrator.Summary{
		RunID: "run-7",
		Results: []supervisor.Result{
			{Book: libby.Book{ID: "B1", Title: "Book One", SiteID: 7}, Outcome: supervisor.OutcomeSuccess, Progress: true},
			{Book: libby.Book{ID: "B2", Title: "Book Two", SiteID: 7}, Outcome: supervisor.OutcomeInterrupted, ExitCode: -1, Duration: 3 * time.Second},
		},
	}

	err := finishRun(cmd, summary, context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected run error to be returned, got %v", err)
	}
	requireContains(t, out.String(), "Run run-7")
	requireContains(t, out.String(), "Book Two")
	requireContains(t, out.String(), string(supervisor.OutcomeInterrupted))

	out.Reset()
	if err := finishRun(cmd, orchestrator.Summary{RunID: "run-8"}, nil); err != nil {
		t.Fatalf("finishRun: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no table without attempts, got %q", out.String())
	}
}
