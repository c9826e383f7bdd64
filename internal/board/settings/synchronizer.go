package settings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mschirtzinger/beadboard/internal/board/fault"
	"github.com/mschirtzinger/beadboard/internal/board/graph"
	"github.com/mschirtzinger/beadboard/internal/board/metrics"
	"github.com/mschirtzinger/beadboard/internal/board/notify"
	"github.com/mschirtzinger/beadboard/internal/board/optimistic"
	"github.com/mschirtzinger/beadboard/internal/board/schema"
)

// Config holds configuration for the synchronizer.
type Config struct {
	// UserID identifies the settings record on the remote service
	UserID string

	// Timeout bounds each remote write (default: 10s)
	Timeout time.Duration

	// CacheTTL is how long a fetched record is trusted (0 = until invalidated)
	CacheTTL time.Duration

	// Logger for remote failures
	Logger *log.Logger

	// Notifier receives "Failed to save settings" on rollback
	Notifier notify.Notifier

	// Metrics records patches and rollbacks (optional)
	Metrics *metrics.Metrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		UserID:   "local",
		Timeout:  10 * time.Second,
		Logger:   log.New(os.Stderr, "[settings] ", log.LstdFlags),
		Notifier: notify.Discard,
	}
}

// Synchronizer keeps the settings record, the remote settings service and
// the styling of every edge in the graph consistent.
type Synchronizer struct {
	graph  *graph.Store
	remote Remote
	cache  *Cache
	config Config

	// mu orders value transitions with the restyle that follows them.
	mu      sync.Mutex
	value   *optimistic.Value[BoardSettings]
	applied BoardSettings
	styled  bool

	subsMu  sync.Mutex
	subs    map[int]func(BoardSettings)
	nextSub int

	wg sync.WaitGroup
}

// New creates a synchronizer over g starting from initial. A nil remote
// keeps settings local: patches apply and always succeed.
func New(g *graph.Store, remote Remote, initial BoardSettings, config *Config) (*Synchronizer, error) {
	if g == nil {
		return nil, errors.New("graph store is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("invalid initial settings: %w", err)
	}

	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	cfg := *config
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard
	}
	if cfg.UserID == "" {
		cfg.UserID = defaults.UserID
	}

	s := &Synchronizer{
		graph:  g,
		remote: remote,
		config: cfg,
		value:  optimistic.New(initial),
		subs:   make(map[int]func(BoardSettings)),
	}
	if remote != nil {
		s.cache = NewCache(remote, cfg.UserID, cfg.CacheTTL)
	}
	g.SetEdgeStyler(s.StyleEdge)
	return s, nil
}

// Current returns the locally visible settings.
func (s *Synchronizer) Current() BoardSettings {
	return s.value.Get()
}

// Cache returns the remote record cache, or nil without a remote.
func (s *Synchronizer) Cache() *Cache {
	return s.cache
}

// StyleEdge styles e from the current settings. Use it for edges created
// after the last restyle pass.
func (s *Synchronizer) StyleEdge(e schema.Edge) schema.Edge {
	return StyleEdge(e, s.Current())
}

// Subscribe registers fn to be called with the new settings after every
// effective change, including rollbacks. The returned function removes the
// subscription.
func (s *Synchronizer) Subscribe(fn func(BoardSettings)) func() {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Synchronizer) publish(v BoardSettings) {
	s.subsMu.Lock()
	subs := make([]func(BoardSettings), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
}

// Patch merges patch into the current settings, restyles every edge and
// starts the remote write. The returned channel receives the outcome of
// the remote write once and is then closed.
//
// An invalid patch changes nothing and is reported synchronously. When the
// remote write fails and no later patch has been applied, the previous
// settings are restored, edges are restyled from them and the user is
// notified. A failure for a superseded patch is ignored.
func (s *Synchronizer) Patch(ctx context.Context, patch Patch) (<-chan error, error) {
	if len(patch) == 0 {
		done := make(chan error, 1)
		close(done)
		return done, nil
	}

	s.mu.Lock()
	ticket, err := s.value.Update(func(cur BoardSettings) (BoardSettings, error) {
		return Merge(cur, patch)
	})
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	changed := s.restyleLocked(ticket.Next())
	s.mu.Unlock()

	s.config.Metrics.SettingsPatch()
	if changed {
		s.publish(ticket.Next())
	}

	done := make(chan error, 1)
	if s.remote == nil {
		close(done)
		return done, nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		if err := s.commit(context.WithoutCancel(ctx), ticket, patch); err != nil {
			done <- err
		}
	}()
	return done, nil
}

// PatchContext is like Patch but waits for the remote write.
func (s *Synchronizer) PatchContext(ctx context.Context, patch Patch) error {
	done, err := s.Patch(ctx, patch)
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Synchronizer) commit(ctx context.Context, ticket *optimistic.Ticket[BoardSettings], patch Patch) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	record, err := s.remote.UpdateSettings(ctx, s.config.UserID, patch)
	if err == nil {
		if ticket.Latest() {
			s.cache.Store(record)
		} else {
			s.cache.Invalidate()
		}
		return nil
	}

	s.config.Logger.Printf("Warning: settings update failed: %v", err)

	s.mu.Lock()
	prev, rolledBack := ticket.Rollback()
	changed := false
	if rolledBack {
		changed = s.restyleLocked(prev)
	}
	s.mu.Unlock()

	if !rolledBack {
		return fault.SettingsSync(err)
	}

	s.config.Metrics.SettingsRollback()
	s.config.Notifier.Notify(notify.New(notify.LevelError, "Failed to save settings", "%v", err))
	if changed {
		s.publish(prev)
	}
	return fault.SettingsSync(err)
}

// SetGridSize sets both snap grid dimensions to size. A size of zero turns
// snapping off.
func (s *Synchronizer) SetGridSize(ctx context.Context, size float64) (<-chan error, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: grid size must not be negative (got %v)", fault.ErrInvalidSettings, size)
	}
	return s.Patch(ctx, Patch{
		"snapGrid":   []float64{size, size},
		"snapToGrid": size > 0,
	})
}

// Apply installs v as the current settings without a remote write, as when
// settings are loaded or pushed from elsewhere. Edges are restyled only if
// v differs from what they were last styled with.
func (s *Synchronizer) Apply(v BoardSettings) error {
	if err := v.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.value.Set(v)
	changed := s.restyleLocked(v)
	s.mu.Unlock()

	if changed {
		s.publish(v)
	}
	return nil
}

// Restyle reapplies the current settings to every edge, whether or not
// they changed. Call it after edges were replaced wholesale.
func (s *Synchronizer) Restyle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.value.Get()
	s.graph.UpdateEdges(func(e schema.Edge) schema.Edge {
		return StyleEdge(e, v)
	})
	s.applied = v
	s.styled = true
}

// Refresh fetches the remote settings record and applies it.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	s.cache.Invalidate()
	v, err := s.cache.Get(ctx)
	if err != nil {
		return err
	}
	return s.Apply(v)
}

// Load applies the cached or fetched remote record. Unlike Refresh it
// reuses a fresh cache entry.
func (s *Synchronizer) Load(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	v, err := s.cache.Get(ctx)
	if err != nil {
		return err
	}
	return s.Apply(v)
}

// Wait blocks until all in-flight remote writes have settled.
func (s *Synchronizer) Wait() {
	s.wg.Wait()
}

// restyleLocked restyles every edge from v unless v equals the settings the
// edges were last styled with. Caller holds s.mu.
func (s *Synchronizer) restyleLocked(v BoardSettings) bool {
	if s.styled && s.applied == v {
		return false
	}
	s.graph.UpdateEdges(func(e schema.Edge) schema.Edge {
		return StyleEdge(e, v)
	})
	s.applied = v
	s.styled = true
	return true
}
