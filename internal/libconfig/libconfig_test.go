package libconfig_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"libbydl/internal/libby"
	"libbydl/internal/libconfig"
)

const existingDoc = `{
  "headless": false,
  "libraries": [
    {"name": "Springfield Public Library", "url": "", "site_id": 7, "card_number": "1234", "pin": "9999", "subsite": "main", "notes": "keep me"},
    {"name": "Shelbyville Library", "url": "https://libbyapp.com/library/shelby", "site_id": 12, "card_number": "55", "pin": "0000"}
  ]
}`

const templateDoc = `{
  "headless": true,
  "download_dir": "/downloads",
  "libraries": [
    {"name": "Example", "url": "https://libbyapp.com/library/example", "site_id": 1, "card_number": "", "pin": ""}
  ]
}`

func mustParse(t *testing.T, doc string) libconfig.File {
	t.Helper()
	file, err := libconfig.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return file
}

func names(libs []libconfig.Library) []string {
	out := make([]string, 0, len(libs))
	for _, lib := range libs {
		out = append(out, lib.Name)
	}
	return out
}

func TestMergeKeepsPinsAndAppendsNewCards(t *testing.T) {
	existing := mustParse(t, existingDoc)
	template := mustParse(t, templateDoc)
	cards := []libby.Card{
		{Name: "SPRINGFIELD  public library", AdvantageKey: "springfield", SiteID: 7},
		{Name: "Ogdenville Library", AdvantageKey: "ogden", SiteID: 31},
	}

	merged, report := libconfig.Merge(existing, template, cards)

	if got := names(merged.Libraries); !reflect.DeepEqual(got, []string{"Springfield Public Library", "Shelbyville Library", "Ogdenville Library"}) {
		t.Fatalf("libraries = %v", got)
	}
	springfield := merged.Libraries[0]
	if springfield.Pin != "9999" || springfield.CardNumber != "1234" {
		t.Fatalf("credentials overwritten: %+v", springfield)
	}
	if springfield.URL != "https://libbyapp.com/library/springfield" {
		t.Fatalf("empty url not filled: %q", springfield.URL)
	}
	if springfield.Subsite != "main" {
		t.Fatalf("subsite lost: %q", springfield.Subsite)
	}

	added := merged.Libraries[2]
	if added.SiteID != 31 || added.Pin != "" || added.URL != "https://libbyapp.com/library/ogden" {
		t.Fatalf("unexpected added entry %+v", added)
	}
	if got := names(report.Added); !reflect.DeepEqual(got, []string{"Ogdenville Library"}) {
		t.Fatalf("added = %v", got)
	}
	if got := names(report.Updated); !reflect.DeepEqual(got, []string{"Springfield Public Library"}) {
		t.Fatalf("updated = %v", got)
	}
	if got := names(report.Unmatched); !reflect.DeepEqual(got, []string{"Shelbyville Library"}) {
		t.Fatalf("unmatched = %v", got)
	}
	if got := names(report.NeedsCredentials); !reflect.DeepEqual(got, []string{"Ogdenville Library"}) {
		t.Fatalf("needs credentials = %v", got)
	}
	if !reflect.DeepEqual(report.CopiedOptions, []string{"download_dir"}) {
		t.Fatalf("copied options = %v", report.CopiedOptions)
	}
	if string(merged.Options["headless"]) != "false" {
		t.Fatalf("existing option overwritten: %s", merged.Options["headless"])
	}
	if !report.Changed() {
		t.Fatal("expected change")
	}

	// Inputs are untouched.
	if existing.Libraries[0].URL != "" || len(existing.Libraries) != 2 {
		t.Fatal("Merge modified its input")
	}
}

func TestMergeIsStableOnSecondPass(t *testing.T) {
	cards := []libby.Card{{Name: "Ogdenville Library", AdvantageKey: "ogden", SiteID: 31}}
	first, _ := libconfig.Merge(libconfig.File{}, libconfig.File{}, cards)
	second, report := libconfig.Merge(first, libconfig.File{}, cards)
	if report.Changed() {
		t.Fatalf("second merge changed document: %+v", report)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("documents differ: %+v vs %+v", first, second)
	}
}

func TestMergeMatchesByNameAcrossSites(t *testing.T) {
	existing := libconfig.File{Libraries: []libconfig.Library{{Name: "Bibliothèque Centrale", SiteID: 0, Pin: "1", CardNumber: "2"}}}
	cards := []libby.Card{{Name: "bibliotheque centrale", AdvantageKey: "bc", SiteID: 44}}

	merged, report := libconfig.Merge(existing, libconfig.File{}, cards)
	if len(merged.Libraries) != 1 {
		t.Fatalf("expected a single entry, got %d", len(merged.Libraries))
	}
	if merged.Libraries[0].SiteID != 44 {
		t.Fatalf("site id not taken from card: %d", merged.Libraries[0].SiteID)
	}
	if len(report.NeedsCredentials) != 0 {
		t.Fatalf("unexpected credential report %v", names(report.NeedsCredentials))
	}
}

func TestMergeTwoCardsSameSite(t *testing.T) {
	existing := libconfig.File{Libraries: []libconfig.Library{{Name: "Main", SiteID: 5, Pin: "1", CardNumber: "2"}}}
	cards := []libby.Card{
		{Name: "Main", SiteID: 5},
		{Name: "Main (second card)", SiteID: 5},
	}
	merged, report := libconfig.Merge(existing, libconfig.File{}, cards)
	if len(merged.Libraries) != 2 || len(report.Added) != 1 {
		t.Fatalf("expected the second card appended, got %v", names(merged.Libraries))
	}
}

func TestSaveRoundTripKeepsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	file := mustParse(t, existingDoc)
	if err := file.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  \"headless\": false") {
		t.Fatalf("expected two-space indentation:\n%s", data)
	}
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("saved file is not JSON: %v", err)
	}
	reloaded, err := libconfig.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(reloaded.Libraries[0].Extra["notes"]) != `"keep me"` {
		t.Fatalf("unknown field lost: %v", reloaded.Libraries[0].Extra)
	}
	if _, hasSubsite := reloaded.Libraries[1].Extra["subsite"]; hasSubsite {
		t.Fatal("subsite must not leak into extra fields")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected private file, got %v", info.Mode().Perm())
	}
	if got := reloaded.SiteIDs(); !reflect.DeepEqual(got, []int{7, 12}) {
		t.Fatalf("site ids = %v", got)
	}
}

func TestLoadOptionalMissing(t *testing.T) {
	file, ok, err := libconfig.LoadOptional(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil || ok {
		t.Fatalf("expected absent file, got ok=%v err=%v", ok, err)
	}
	if len(file.Libraries) != 0 {
		t.Fatal("expected empty document")
	}
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"  Springfield   Public Library ": "springfield public library",
		"Bibliothèque":                    "bibliotheque",
		"STRASSE":                         "strasse",
	}
	for in, want := range cases {
		if got := libconfig.NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
