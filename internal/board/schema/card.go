package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Card is the external entity a node displays. It is owned by the card
// service; the board only reads it.
type Card struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CardData is the projection of a Card carried in Node.Data.
type CardData struct {
	Title   string   `json:"title"`
	Content string   `json:"content,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// Validate checks if the Card has valid field values.
func (c *Card) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.ContainsAny(c.ID, `/\`) {
		return fmt.Errorf("id must not contain path separators (got %q)", c.ID)
	}
	if c.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(c.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(c.Title))
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (c *Card) SetDefaults() {
	if c.Tags == nil {
		c.Tags = []string{}
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
}

// Filename returns the canonical filename for this card: {id}.json
func (c *Card) Filename() string {
	return fmt.Sprintf("%s.json", c.ID)
}

// Data returns the node projection of the card.
func (c *Card) Data() CardData {
	return CardData{
		Title:   c.Title,
		Content: c.Content,
		Tags:    append([]string(nil), c.Tags...),
	}
}

// Clone returns a copy that shares no slices with d.
func (d CardData) Clone() CardData {
	d.Tags = append([]string(nil), d.Tags...)
	return d
}

// ReadCardFile reads and validates a card from a JSON file.
func ReadCardFile(path string) (*Card, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read card file %s: %w", path, err)
	}

	var card Card
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("failed to parse card file %s: %w", path, err)
	}

	if err := card.Validate(); err != nil {
		return nil, fmt.Errorf("invalid card in %s: %w", path, err)
	}

	return &card, nil
}

// WriteCardFile writes a card to {dir}/{id}.json after validating it.
func WriteCardFile(dir string, card *Card) error {
	if err := card.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid card: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cards directory: %w", err)
	}

	data, err := json.MarshalIndent(card, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal card %s: %w", card.ID, err)
	}

	path := filepath.Join(dir, card.Filename())
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write card file %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace card file %s: %w", path, err)
	}

	return nil
}

// ReadAllCardFiles reads every *.json card in dir, sorted by filename.
// A missing directory yields an empty list. Invalid files are skipped and
// reported through the skipped callback when it is non-nil.
func ReadAllCardFiles(dir string, skipped func(name string, err error)) ([]*Card, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Card{}, nil
		}
		return nil, fmt.Errorf("failed to read cards directory: %w", err)
	}

	cards := make([]*Card, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		card, err := ReadCardFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			if skipped != nil {
				skipped(entry.Name(), err)
			}
			continue
		}
		cards = append(cards, card)
	}

	return cards, nil
}
