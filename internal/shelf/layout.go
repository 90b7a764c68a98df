package shelf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"libbydl/internal/fileutil"
)

const (
	libraryDirName = "libby"
	tempDirName    = "tmp"

	// RecordFileName lists segment files already observed as complete.
	RecordFileName = "older.files"
	// BadMarkerName suppresses further attempts until deleted by hand.
	BadMarkerName = "bad"
	// LogFileName accumulates transcripts of failed attempts.
	LogFileName = "process.log"
)

// Layout maps book identifiers onto the download root:
//
//	<root>/libby/<id>   finished audio
//	<root>/tmp/<id>     segments, older.files, bad, process.log
type Layout struct {
	root      string
	audioExts map[string]struct{}
}

// NewLayout builds a layout. Extensions are matched case-insensitively and
// must include the leading dot.
func NewLayout(root string, audioExtensions []string) Layout {
	exts := make(map[string]struct{}, len(audioExtensions))
	for _, ext := range audioExtensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}
	if len(exts) == 0 {
		exts[".mp3"] = struct{}{}
	}
	return Layout{root: root, audioExts: exts}
}

func (l Layout) Root() string        { return l.root }
func (l Layout) LibraryRoot() string { return filepath.Join(l.root, libraryDirName) }
func (l Layout) TempRoot() string    { return filepath.Join(l.root, tempDirName) }

// FinalDir is where the downloader leaves a finished book.
func (l Layout) FinalDir(bookID string) string {
	return filepath.Join(l.LibraryRoot(), bookID)
}

// FinalSubpath is FinalDir relative to the root, as passed to the downloader.
func (l Layout) FinalSubpath(bookID string) string {
	return libraryDirName + "/" + bookID
}

func (l Layout) TempDir(bookID string) string {
	return filepath.Join(l.TempRoot(), bookID)
}

func (l Layout) RecordFile(bookID string) string {
	return filepath.Join(l.TempDir(bookID), RecordFileName)
}

func (l Layout) BadMarker(bookID string) string {
	return filepath.Join(l.TempDir(bookID), BadMarkerName)
}

func (l Layout) LogFile(bookID string) string {
	return filepath.Join(l.TempDir(bookID), LogFileName)
}

// IsAudio reports whether name carries one of the configured audio extensions.
func (l Layout) IsAudio(name string) bool {
	_, ok := l.audioExts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// AudioFiles lists audio file names directly inside dir, sorted. A missing
// directory yields no files.
func (l Layout) AudioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !l.IsAudio(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// HasCompletedAudio reports whether the book's final directory holds at least
// one audio file.
func (l Layout) HasCompletedAudio(bookID string) (bool, error) {
	files, err := l.AudioFiles(l.FinalDir(bookID))
	if err != nil {
		return false, fmt.Errorf("scan %s: %w", l.FinalDir(bookID), err)
	}
	return len(files) > 0, nil
}

// TempDirExists reports whether the book has any scratch state.
func (l Layout) TempDirExists(bookID string) (bool, error) {
	info, err := os.Stat(l.TempDir(bookID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// EnsureTempDir creates the book's scratch directory.
func (l Layout) EnsureTempDir(bookID string) error {
	return os.MkdirAll(l.TempDir(bookID), 0o755)
}

// IsBad reports whether the bad marker is present.
func (l Layout) IsBad(bookID string) (bool, error) {
	return fileutil.Exists(l.BadMarker(bookID))
}

// MarkBad writes the zero-length bad marker and returns its path.
func (l Layout) MarkBad(bookID string) (string, error) {
	if err := l.EnsureTempDir(bookID); err != nil {
		return "", err
	}
	marker := l.BadMarker(bookID)
	if err := fileutil.Touch(marker); err != nil {
		return "", fmt.Errorf("mark bad: %w", err)
	}
	return marker, nil
}

// ClearBad removes the bad marker, reporting whether one existed.
func (l Layout) ClearBad(bookID string) (bool, error) {
	err := os.Remove(l.BadMarker(bookID))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// TempEntries lists book directories under the temp root, sorted.
func (l Layout) TempEntries() ([]string, error) {
	return listDirs(l.TempRoot())
}

// LibraryEntries lists book directories under the library root, sorted.
func (l Layout) LibraryEntries() ([]string, error) {
	return listDirs(l.LibraryRoot())
}

func listDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}
