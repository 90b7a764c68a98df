package backlog_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"libbydl/internal/backlog"
	"libbydl/internal/libby"
	"libbydl/internal/logging"
	"libbydl/internal/services"
	"libbydl/internal/shelf"
)

func newReconciler(t *testing.T) (*backlog.Reconciler, shelf.Layout) {
	t.Helper()
	layout := shelf.NewLayout(t.TempDir(), []string{".mp3"})
	return backlog.New(layout, logging.NewNop()), layout
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func ids(books []libby.Book) []string {
	out := make([]string, 0, len(books))
	for _, b := range books {
		out = append(out, b.ID)
	}
	return out
}

func TestReconcileIncludesRecognizedBook(t *testing.T) {
	r, _ := newReconciler(t)
	loans := []libby.Book{{ID: "B1", Title: "Foo", SiteID: 7}}

	plan, err := r.Reconcile(loans, backlog.NewSites(7))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !reflect.DeepEqual(plan.Pending, loans) {
		t.Fatalf("pending = %+v, want %+v", plan.Pending, loans)
	}
}

func TestReconcileAllUnrecognized(t *testing.T) {
	r, _ := newReconciler(t)
	loans := []libby.Book{{ID: "B1", Title: "Foo", SiteID: 7}}

	plan, err := r.Reconcile(loans, backlog.NewSites(9))
	if !errors.Is(err, services.ErrNoRecognizedSites) {
		t.Fatalf("expected ErrNoRecognizedSites, got %v", err)
	}
	if services.ExitCode(err) != services.ExitNoRecognizedSites {
		t.Fatalf("unexpected exit code %d", services.ExitCode(err))
	}
	if len(plan.Pending) != 0 || len(plan.Unrecognized) != 1 {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestReconcilePartiallyUnrecognizedIsWarningOnly(t *testing.T) {
	r, _ := newReconciler(t)
	loans := []libby.Book{
		{ID: "B1", Title: "Foo", SiteID: 7},
		{ID: "B2", Title: "Bar", SiteID: 9},
	}
	plan, err := r.Reconcile(loans, backlog.NewSites(9))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := ids(plan.Pending); !reflect.DeepEqual(got, []string{"B2"}) {
		t.Fatalf("pending = %v", got)
	}
	if got := ids(plan.Unrecognized); !reflect.DeepEqual(got, []string{"B1"}) {
		t.Fatalf("unrecognized = %v", got)
	}
}

func TestReconcileExcludesCompletedAndKeepsOrder(t *testing.T) {
	r, layout := newReconciler(t)
	loans := []libby.Book{
		{ID: "C", Title: "Third", SiteID: 1},
		{ID: "A", Title: "First", SiteID: 1},
		{ID: "B", Title: "Second", SiteID: 1},
	}
	touch(t, filepath.Join(layout.FinalDir("A"), "Part 01.mp3"))
	// Non-audio files do not make a book complete.
	touch(t, filepath.Join(layout.FinalDir("B"), "cover.jpg"))

	plan, err := r.Reconcile(loans, backlog.NewSites(1))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := ids(plan.Pending); !reflect.DeepEqual(got, []string{"C", "B"}) {
		t.Fatalf("pending = %v", got)
	}
	if got := ids(plan.Completed); !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("completed = %v", got)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	r, layout := newReconciler(t)
	loans := []libby.Book{{ID: "A", SiteID: 1}, {ID: "B", SiteID: 1}}
	touch(t, filepath.Join(layout.FinalDir("A"), "a.mp3"))
	touch(t, filepath.Join(layout.FinalDir("B"), "b.MP3"))

	first, err := r.Reconcile(loans, backlog.NewSites(1))
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Reconcile(loans, backlog.NewSites(1))
	if err != nil {
		t.Fatal(err)
	}
	if !first.Empty() || !second.Empty() {
		t.Fatalf("expected empty work lists, got %v and %v", ids(first.Pending), ids(second.Pending))
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("reconciliation changed between runs: %+v vs %+v", first, second)
	}
}

func TestReconcileListsOrphansWithoutDeleting(t *testing.T) {
	r, layout := newReconciler(t)
	touch(t, filepath.Join(layout.TempDir("EXPIRED"), "part1.mp3"))
	touch(t, filepath.Join(layout.TempDir("A"), "part1.mp3"))
	loans := []libby.Book{{ID: "A", SiteID: 1}}

	plan, err := r.Reconcile(loans, backlog.NewSites(1))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(plan.Orphans, []string{"EXPIRED"}) {
		t.Fatalf("orphans = %v", plan.Orphans)
	}
	if _, err := os.Stat(layout.TempDir("EXPIRED")); err != nil {
		t.Fatalf("orphan directory must be kept: %v", err)
	}
}

func TestReconcileReportsBadBooksButKeepsThemPending(t *testing.T) {
	r, layout := newReconciler(t)
	if _, err := layout.MarkBad("A"); err != nil {
		t.Fatal(err)
	}
	plan, err := r.Reconcile([]libby.Book{{ID: "A", SiteID: 1}}, backlog.NewSites(1))
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(plan.Bad); !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("bad = %v", got)
	}
	if got := ids(plan.Pending); !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("pending = %v", got)
	}
}

func TestReconcileNoLoans(t *testing.T) {
	r, _ := newReconciler(t)
	plan, err := r.Reconcile(nil, backlog.NewSites())
	if err != nil {
		t.Fatalf("empty loan list is not an error: %v", err)
	}
	if !plan.Empty() {
		t.Fatal("expected empty plan")
	}
}
