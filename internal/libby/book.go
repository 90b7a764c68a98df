package libby

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Book is one active loan as reported by the export tool.
type Book struct {
	ID     string
	Title  string
	SiteID int
}

// Label is the operator-facing "ID - Title (site)" form.
func (b Book) Label() string {
	return fmt.Sprintf("%s - %s (%d)", b.ID, b.Title, b.SiteID)
}

// ValidID reports whether id can name a scratch directory under the library
// root without escaping it.
func ValidID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

type rawLoan struct {
	ID        flexString `json:"id"`
	Title     string     `json:"title"`
	WebsiteID flexInt    `json:"websiteId"`
}

// ParseLoans decodes the --exportloans document. Order is preserved and a
// repeated ID keeps its first occurrence.
func ParseLoans(r io.Reader) ([]Book, error) {
	var raw []rawLoan
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode loans: %w", err)
	}
	books := make([]Book, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, loan := range raw {
		id := strings.TrimSpace(string(loan.ID))
		if id == "" {
			return nil, fmt.Errorf("loan %d: missing id", i)
		}
		if !ValidID(id) {
			return nil, fmt.Errorf("loan %d: unsafe id %q", i, id)
		}
		if !loan.WebsiteID.set {
			return nil, fmt.Errorf("loan %s: missing websiteId", id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		books = append(books, Book{
			ID:     id,
			Title:  strings.TrimSpace(loan.Title),
			SiteID: loan.WebsiteID.value,
		})
	}
	return books, nil
}

// LoadLoans reads and parses a loans export file.
func LoadLoans(path string) ([]Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open loans: %w", err)
	}
	defer f.Close()
	return ParseLoans(f)
}

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*s = flexString(n.String())
	return nil
}

// flexInt accepts a JSON integer or a string holding one.
type flexInt struct {
	value int
	set   bool
}

func (n *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	text := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
	}
	v, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return errors.New("expected integer site code, got " + string(data))
	}
	n.value = v
	n.set = true
	return nil
}
