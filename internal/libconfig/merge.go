package libconfig

import (
	"encoding/json"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"libbydl/internal/libby"
)

// Report describes what Merge changed.
type Report struct {
	// Added libraries were appended from cards with no matching entry.
	Added []Library
	// Updated libraries had fields filled or corrected from their card.
	Updated []Library
	// Unmatched entries correspond to no current card. They are kept.
	Unmatched []Library
	// NeedsCredentials lists entries still missing a card number or pin.
	NeedsCredentials []Library
	// CopiedOptions are template keys added to the document.
	CopiedOptions []string
}

// Changed reports whether the merged document differs from the input.
func (r Report) Changed() bool {
	return len(r.Added) > 0 || len(r.Updated) > 0 || len(r.CopiedOptions) > 0
}

// Merge folds template options and cards into existing. Entries are matched
// by site ID (the name breaks ties between entries sharing a site) and then
// by normalized name. Pins and card numbers are never overwritten. The input
// documents are not modified.
func Merge(existing File, template File, cards []libby.Card) (File, Report) {
	var report Report
	merged := File{Libraries: append([]Library(nil), existing.Libraries...)}
	if len(existing.Options) > 0 || len(template.Options) > 0 {
		merged.Options = make(map[string]json.RawMessage, len(existing.Options)+len(template.Options))
	}
	for key, value := range existing.Options {
		merged.Options[key] = value
	}
	for _, key := range sortedKeys(template.Options) {
		if _, ok := merged.Options[key]; ok {
			continue
		}
		merged.Options[key] = template.Options[key]
		report.CopiedOptions = append(report.CopiedOptions, key)
	}

	matched := make([]bool, len(merged.Libraries))
	for _, card := range cards {
		idx := findEntry(merged.Libraries, matched, card)
		if idx < 0 {
			lib := Library{Name: card.Name, URL: card.URL(), SiteID: card.SiteID}
			merged.Libraries = append(merged.Libraries, lib)
			matched = append(matched, true)
			report.Added = append(report.Added, lib)
			continue
		}
		matched[idx] = true
		if fillFromCard(&merged.Libraries[idx], card) {
			report.Updated = append(report.Updated, merged.Libraries[idx])
		}
	}

	for i, lib := range merged.Libraries {
		if !matched[i] {
			report.Unmatched = append(report.Unmatched, lib)
			continue
		}
		if strings.TrimSpace(lib.CardNumber) == "" || strings.TrimSpace(lib.Pin) == "" {
			report.NeedsCredentials = append(report.NeedsCredentials, lib)
		}
	}
	return merged, report
}

func findEntry(libs []Library, taken []bool, card libby.Card) int {
	name := NormalizeName(card.Name)
	bySite := -1
	for i, lib := range libs {
		if taken[i] || lib.SiteID != card.SiteID {
			continue
		}
		if NormalizeName(lib.Name) == name {
			return i
		}
		if bySite < 0 {
			bySite = i
		}
	}
	if bySite >= 0 {
		return bySite
	}
	if name == "" {
		return -1
	}
	for i, lib := range libs {
		if !taken[i] && NormalizeName(lib.Name) == name {
			return i
		}
	}
	return -1
}

func fillFromCard(lib *Library, card libby.Card) bool {
	changed := false
	if strings.TrimSpace(lib.Name) == "" && card.Name != "" {
		lib.Name = card.Name
		changed = true
	}
	if url := card.URL(); strings.TrimSpace(lib.URL) == "" && url != "" {
		lib.URL = url
		changed = true
	}
	// Libby is authoritative for the site code of a name-matched entry.
	if lib.SiteID != card.SiteID {
		lib.SiteID = card.SiteID
		changed = true
	}
	return changed
}

// NormalizeName strips diacritics, folds case, and collapses whitespace so
// library names compare loosely.
func NormalizeName(name string) string {
	s := strings.TrimSpace(name)
	tr := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(tr, s); err == nil {
		s = out
	}
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
