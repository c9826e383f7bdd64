// Package cards provides the card collaborator the board consumes: a
// Service for card CRUD, a directory-backed implementation, and a Watcher
// that reports when the card collection changes on disk.
//
// The board never edits card content itself. It reads the list to build
// and refresh node projections and creates cards during edge-drop and
// card-creation gestures.
package cards

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mschirtzinger/beadboard/internal/board/schema"
)

// ErrNotFound is returned when a card id does not exist.
var ErrNotFound = errors.New("card not found")

// Service is the card CRUD collaborator.
type Service interface {
	// FetchCards returns every card.
	FetchCards(ctx context.Context) ([]*schema.Card, error)

	// CreateCard stores a new card. A card without an id is given one.
	CreateCard(ctx context.Context, card *schema.Card) (*schema.Card, error)

	// UpdateCard replaces an existing card.
	UpdateCard(ctx context.Context, card *schema.Card) (*schema.Card, error)

	// DeleteCard removes a card. Deleting a missing card is not an error.
	DeleteCard(ctx context.Context, id string) error
}

// prepare fills in the id and defaults of a card about to be created and
// validates it.
func prepare(card *schema.Card) (*schema.Card, error) {
	if card == nil {
		return nil, fmt.Errorf("card cannot be nil")
	}
	c := *card
	c.Tags = append([]string(nil), card.Tags...)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid card: %w", err)
	}
	return &c, nil
}

// Memory is an in-process Service.
type Memory struct {
	mu    sync.RWMutex
	cards map[string]*schema.Card
	fail  error
}

// NewMemory returns a Memory service holding cards.
func NewMemory(cards ...*schema.Card) *Memory {
	m := &Memory{cards: make(map[string]*schema.Card)}
	for _, c := range cards {
		cp := *c
		m.cards[c.ID] = &cp
	}
	return m
}

// FailWith makes every later call return err. Pass nil to recover.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *Memory) FetchCards(ctx context.Context) ([]*schema.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fail != nil {
		return nil, m.fail
	}

	out := make([]*schema.Card, 0, len(m.cards))
	for _, c := range m.cards {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateCard(ctx context.Context, card *schema.Card) (*schema.Card, error) {
	c, err := prepare(card)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	if _, exists := m.cards[c.ID]; exists {
		return nil, fmt.Errorf("card %s already exists", c.ID)
	}
	m.cards[c.ID] = c
	cp := *c
	return &cp, nil
}

func (m *Memory) UpdateCard(ctx context.Context, card *schema.Card) (*schema.Card, error) {
	if err := card.Validate(); err != nil {
		return nil, fmt.Errorf("invalid card: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	existing, ok := m.cards[card.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, card.ID)
	}
	c := *card
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now()
	m.cards[c.ID] = &c
	cp := c
	return &cp, nil
}

func (m *Memory) DeleteCard(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	delete(m.cards, id)
	return nil
}
