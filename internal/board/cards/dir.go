package cards

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mschirtzinger/beadboard/internal/board/schema"
)

// DirService stores one JSON file per card in a directory.
type DirService struct {
	dir    string
	logger *log.Logger
	group  singleflight.Group
}

// NewDirService returns a service over dir. The directory is created on
// first write.
func NewDirService(dir string, logger *log.Logger) (*DirService, error) {
	if dir == "" {
		return nil, fmt.Errorf("cards directory cannot be empty")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &DirService{dir: dir, logger: logger}, nil
}

// Dir returns the cards directory.
func (s *DirService) Dir() string {
	return s.dir
}

// FetchCards reads every card file. Concurrent calls share one directory
// scan. Unreadable files are logged and skipped.
func (s *DirService) FetchCards(ctx context.Context) ([]*schema.Card, error) {
	res, err, _ := s.group.Do("fetch", func() (any, error) {
		return schema.ReadAllCardFiles(s.dir, func(name string, err error) {
			s.logger.Printf("Warning: skipping card file %s: %v", name, err)
		})
	})
	if err != nil {
		return nil, err
	}

	// Callers sharing a scan must not share card pointers.
	shared := res.([]*schema.Card)
	out := make([]*schema.Card, len(shared))
	for i, c := range shared {
		cp := *c
		cp.Tags = append([]string(nil), c.Tags...)
		out[i] = &cp
	}
	return out, nil
}

func (s *DirService) CreateCard(ctx context.Context, card *schema.Card) (*schema.Card, error) {
	c, err := prepare(card)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.path(c.ID)); err == nil {
		return nil, fmt.Errorf("card %s already exists", c.ID)
	}
	if err := schema.WriteCardFile(s.dir, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *DirService) UpdateCard(ctx context.Context, card *schema.Card) (*schema.Card, error) {
	if err := card.Validate(); err != nil {
		return nil, fmt.Errorf("invalid card: %w", err)
	}
	existing, err := schema.ReadCardFile(s.path(card.ID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, card.ID)
		}
		return nil, err
	}

	c := *card
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now()
	if err := schema.WriteCardFile(s.dir, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *DirService) DeleteCard(ctx context.Context, id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid card id %q", id)
	}
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	return nil
}

func (s *DirService) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}
