package progress

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"libbydl/internal/fileutil"
	"libbydl/internal/libby"
	"libbydl/internal/shelf"
)

// Mode selects how HasProgress inspects a book.
type Mode int

const (
	// Scan records newly completed segments and reports whether any appeared.
	Scan Mode = iota
	// CheckOnly reports whether an earlier attempt ever recorded a segment,
	// without scanning or writing anything.
	CheckOnly
)

// Tracker decides whether a book's download is moving forward by diffing the
// scratch directory against the older.files record.
type Tracker struct {
	layout shelf.Layout
	out    io.Writer
}

// NewTracker builds a tracker. Verbose scans print newly observed files to out.
func NewTracker(layout shelf.Layout, out io.Writer) *Tracker {
	if out == nil {
		out = io.Discard
	}
	return &Tracker{layout: layout, out: out}
}

// HasProgress implements the progress contract:
//   - no scratch directory yet counts as progress;
//   - a finished book counts as progress;
//   - CheckOnly answers whether older.files is non-empty;
//   - Scan appends unseen audio files to older.files and reports whether any
//     were added.
func (t *Tracker) HasProgress(book libby.Book, mode Mode, verbose bool) (bool, error) {
	exists, err := t.layout.TempDirExists(book.ID)
	if err != nil {
		return false, fmt.Errorf("stat temp dir: %w", err)
	}
	if !exists {
		return true, nil
	}

	done, err := t.layout.HasCompletedAudio(book.ID)
	if err != nil {
		return false, err
	}
	if done {
		return true, nil
	}

	recorded, err := t.Recorded(book.ID)
	if err != nil {
		return false, err
	}
	if mode == CheckOnly {
		return len(recorded) > 0, nil
	}

	current, err := t.layout.AudioFiles(t.layout.TempDir(book.ID))
	if err != nil {
		return false, fmt.Errorf("scan temp dir: %w", err)
	}

	seen := make(map[string]struct{}, len(recorded))
	for _, name := range recorded {
		seen[name] = struct{}{}
	}
	header := false
	progressed := false
	for _, name := range current {
		if _, ok := seen[name]; ok {
			continue
		}
		if verbose {
			if !header {
				header = true
				fmt.Fprintf(t.out, "Checking %s for progress:\n", book.Title)
			}
			fmt.Fprintf(t.out, "  %s\n", name)
		}
		seen[name] = struct{}{}
		recorded = append(recorded, name)
		progressed = true
	}

	if progressed {
		data := []byte(strings.Join(recorded, "\n"))
		if err := fileutil.WriteFileAtomic(t.layout.RecordFile(book.ID), data, 0o644); err != nil {
			return false, fmt.Errorf("write %s: %w", shelf.RecordFileName, err)
		}
	}
	return progressed, nil
}

// Recorded returns the segment names listed in older.files, in recorded order.
func (t *Tracker) Recorded(bookID string) ([]string, error) {
	data, err := os.ReadFile(t.layout.RecordFile(bookID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", shelf.RecordFileName, err)
	}
	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}
