package libconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"libbydl/internal/fileutil"
)

// LibrariesKey holds the library list inside the configuration object.
const LibrariesKey = "libraries"

// Library is one configured library.
type Library struct {
	Name       string
	URL        string
	SiteID     int
	CardNumber string
	Pin        string
	Subsite    string
	// Extra keeps entry fields this package does not manage.
	Extra map[string]json.RawMessage
}

var libraryKeys = []string{"name", "url", "site_id", "card_number", "pin", "subsite"}

// UnmarshalJSON decodes a library entry, keeping unknown fields.
func (l *Library) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := map[string]any{
		"name":        &l.Name,
		"url":         &l.URL,
		"site_id":     &l.SiteID,
		"card_number": &l.CardNumber,
		"pin":         &l.Pin,
		"subsite":     &l.Subsite,
	}
	for _, key := range libraryKeys {
		value, ok := raw[key]
		if !ok {
			continue
		}
		delete(raw, key)
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			continue
		}
		if err := json.Unmarshal(value, fields[key]); err != nil {
			return fmt.Errorf("library field %s: %w", key, err)
		}
	}
	if len(raw) > 0 {
		l.Extra = raw
	}
	return nil
}

// MarshalJSON encodes the entry with its unknown fields restored.
func (l Library) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(l.Extra)+len(libraryKeys))
	for key, value := range l.Extra {
		out[key] = value
	}
	out["name"] = l.Name
	out["url"] = l.URL
	out["site_id"] = l.SiteID
	out["card_number"] = l.CardNumber
	out["pin"] = l.Pin
	if l.Subsite != "" {
		out["subsite"] = l.Subsite
	}
	return json.Marshal(out)
}

// File is the whole configuration document.
type File struct {
	Libraries []Library
	// Options are the passthrough keys beside "libraries".
	Options map[string]json.RawMessage
}

// Parse decodes a configuration document.
func Parse(data []byte) (File, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return File{}, fmt.Errorf("decode library config: %w", err)
	}
	var file File
	if libs, ok := raw[LibrariesKey]; ok {
		if err := json.Unmarshal(libs, &file.Libraries); err != nil {
			return File{}, fmt.Errorf("decode %s: %w", LibrariesKey, err)
		}
		delete(raw, LibrariesKey)
	}
	if len(raw) > 0 {
		file.Options = raw
	}
	return file, nil
}

// Load reads a configuration document. A missing file reports os.ErrNotExist.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	file, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// LoadOptional reads path, returning an empty document when it is absent.
func LoadOptional(path string) (File, bool, error) {
	file, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return File{}, false, nil
		}
		return File{}, false, err
	}
	return file, true, nil
}

// Marshal renders the document with two-space indentation.
func (f File) Marshal() ([]byte, error) {
	out := make(map[string]any, len(f.Options)+1)
	for key, value := range f.Options {
		out[key] = value
	}
	libs := f.Libraries
	if libs == nil {
		libs = []Library{}
	}
	out[LibrariesKey] = libs
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Save writes the document atomically. The file holds pins, so it is private.
func (f File) Save(path string) error {
	data, err := f.Marshal()
	if err != nil {
		return fmt.Errorf("encode library config: %w", err)
	}
	return fileutil.WriteFileAtomic(path, data, 0o600)
}

// SiteIDs lists the distinct configured site identifiers, ascending.
func (f File) SiteIDs() []int {
	seen := make(map[int]struct{}, len(f.Libraries))
	ids := make([]int, 0, len(f.Libraries))
	for _, lib := range f.Libraries {
		if _, ok := seen[lib.SiteID]; ok {
			continue
		}
		seen[lib.SiteID] = struct{}{}
		ids = append(ids, lib.SiteID)
	}
	sort.Ints(ids)
	return ids
}
