package libby

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Card is a library card linked to the Libby account.
type Card struct {
	CardID       string
	Name         string
	AdvantageKey string
	SiteID       int
}

// URL is the library's Libby landing page, derived from its advantage key.
func (c Card) URL() string {
	if c.AdvantageKey == "" {
		return ""
	}
	return "https://libbyapp.com/library/" + c.AdvantageKey
}

type rawCard struct {
	CardID       flexString `json:"cardId"`
	CardName     string     `json:"cardName"`
	AdvantageKey string     `json:"advantageKey"`
	WebsiteID    flexInt    `json:"websiteId"`
	Library      struct {
		Name      string  `json:"name"`
		WebsiteID flexInt `json:"websiteId"`
	} `json:"library"`
}

// ParseCards decodes the --exportcards document. The site code is read from
// the card itself and falls back to the nested library object.
func ParseCards(r io.Reader) ([]Card, error) {
	var raw []rawCard
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode cards: %w", err)
	}
	cards := make([]Card, 0, len(raw))
	for i, rc := range raw {
		site := rc.WebsiteID
		if !site.set {
			site = rc.Library.WebsiteID
		}
		if !site.set {
			return nil, fmt.Errorf("card %d: missing websiteId", i)
		}
		name := strings.TrimSpace(rc.Library.Name)
		if name == "" {
			name = strings.TrimSpace(rc.CardName)
		}
		if name == "" {
			name = strings.TrimSpace(rc.AdvantageKey)
		}
		cards = append(cards, Card{
			CardID:       strings.TrimSpace(string(rc.CardID)),
			Name:         name,
			AdvantageKey: strings.TrimSpace(rc.AdvantageKey),
			SiteID:       site.value,
		})
	}
	return cards, nil
}

// LoadCards reads and parses a cards export file.
func LoadCards(path string) ([]Card, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cards: %w", err)
	}
	defer f.Close()
	return ParseCards(f)
}
