package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mschirtzinger/beadboard/internal/board/kv"
	"github.com/mschirtzinger/beadboard/internal/board/settings"
)

// Store keeps per-user settings records in a key-value store. Users
// without a record get the defaults.
type Store struct {
	kv       kv.Store
	defaults settings.BoardSettings

	// mu serializes read-merge-write cycles.
	mu sync.Mutex
}

// NewStore returns a Store over s.
func NewStore(s kv.Store, defaults settings.BoardSettings) (*Store, error) {
	if s == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	return &Store{kv: s, defaults: defaults}, nil
}

func key(userID string) string {
	return "settings:" + userID
}

func (s *Store) FetchSettings(ctx context.Context, userID string) (settings.BoardSettings, error) {
	if userID == "" {
		return settings.BoardSettings{}, fmt.Errorf("user id is required")
	}
	return s.load(ctx, userID)
}

func (s *Store) UpdateSettings(ctx context.Context, userID string, patch settings.Patch) (settings.BoardSettings, error) {
	if userID == "" {
		return settings.BoardSettings{}, fmt.Errorf("user id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.load(ctx, userID)
	if err != nil {
		return settings.BoardSettings{}, err
	}
	next, err := settings.Merge(cur, patch)
	if err != nil {
		return settings.BoardSettings{}, err
	}

	data, err := json.Marshal(next)
	if err != nil {
		return settings.BoardSettings{}, fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := s.kv.Put(ctx, key(userID), data); err != nil {
		return settings.BoardSettings{}, fmt.Errorf("failed to store settings: %w", err)
	}
	return next, nil
}

func (s *Store) load(ctx context.Context, userID string) (settings.BoardSettings, error) {
	data, err := s.kv.Get(ctx, key(userID))
	if errors.Is(err, kv.ErrNotFound) {
		return s.defaults, nil
	}
	if err != nil {
		return settings.BoardSettings{}, fmt.Errorf("failed to load settings: %w", err)
	}

	var v settings.BoardSettings
	if err := json.Unmarshal(data, &v); err != nil {
		return settings.BoardSettings{}, fmt.Errorf("failed to decode stored settings: %w", err)
	}
	return v, nil
}

// Flaky wraps a Remote and fails writes on demand. It is used to exercise
// rollback from the command line and in tests.
type Flaky struct {
	settings.Remote

	mu    sync.Mutex
	fail  error
	delay time.Duration
	calls int
}

// NewFlaky wraps r.
func NewFlaky(r settings.Remote) *Flaky {
	return &Flaky{Remote: r}
}

// FailWith makes later writes return err. Pass nil to recover.
func (f *Flaky) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

// Delay holds every write for d before it proceeds.
func (f *Flaky) Delay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// Calls returns how many writes were attempted.
func (f *Flaky) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Flaky) UpdateSettings(ctx context.Context, userID string, patch settings.Patch) (settings.BoardSettings, error) {
	f.mu.Lock()
	f.calls++
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return settings.BoardSettings{}, ctx.Err()
		}
	}

	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail != nil {
		return settings.BoardSettings{}, fail
	}
	return f.Remote.UpdateSettings(ctx, userID, patch)
}
