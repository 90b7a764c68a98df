package shelf

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2"
	"golang.org/x/sync/errgroup"
)

// inspectLimit bounds concurrent directory scans in InspectAll.
const inspectLimit = 4

// Summary describes a finished book directory.
type Summary struct {
	Files  int
	Album  string
	Artist string
}

// Inspect counts the audio files in the book's final directory and reads the
// album and artist from the first file carrying an ID3 tag. Tag errors are
// ignored; only the listing can fail.
func (l Layout) Inspect(bookID string) (Summary, error) {
	dir := l.FinalDir(bookID)
	files, err := l.AudioFiles(dir)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Files: len(files)}
	for _, name := range files {
		if !strings.EqualFold(filepath.Ext(name), ".mp3") {
			continue
		}
		album, artist, ok := readTag(filepath.Join(dir, name))
		if !ok {
			continue
		}
		summary.Album = album
		summary.Artist = artist
		break
	}
	return summary, nil
}

// InspectAll inspects every book in ids, a few directories at a time. Results
// follow the order of ids; the first listing error cancels the rest.
func (l Layout) InspectAll(ctx context.Context, ids []string) ([]Summary, error) {
	summaries := make([]Summary, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(inspectLimit)
	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			summary, err := l.Inspect(id)
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func readTag(path string) (string, string, bool) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true, ParseFrames: []string{"Album/Movie/Show title", "Artist"}})
	if err != nil {
		return "", "", false
	}
	defer tag.Close()
	album := strings.TrimSpace(tag.Album())
	artist := strings.TrimSpace(tag.Artist())
	if album == "" && artist == "" {
		return "", "", false
	}
	return album, artist, true
}
