// Package autosave flushes unsaved board changes to persistent storage.
//
// The Scheduler:
// 1. Flushes on a fixed interval when the board is unsaved
// 2. Optionally flushes once edits have been quiet for a debounce period
// 3. Flushes on unload and on Stop
// 4. Offers a manual Save that always writes and reports failure
package autosave

import (
	"context"
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
	"github.com/mschirtzinger/beadboard/internal/board/persist"
)

// Flush triggers, as recorded in metrics.
const (
	TriggerInterval = "interval"
	TriggerDebounce = "debounce"
	TriggerManual   = "manual"
	TriggerUnload   = "unload"
)

// Config holds configuration for the scheduler.
type Config struct {
	// Interval between periodic flushes (<= 0 disables periodic autosave)
	Interval time.Duration

	// Debounce flushes once no change has happened for this long (0 = off)
	Debounce time.Duration

	// Logger for scheduler activity
	Logger *log.Logger

	// Notifier receives "Board saved" and save failures
	Notifier notify.Notifier

	// Metrics records flush outcomes (optional)
	Metrics *metrics.Metrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval: 30 * time.Second,
		Logger:   log.New(os.Stderr, "[autosave] ", log.LstdFlags),
		Notifier: notify.Discard,
	}
}

// Scheduler owns every autosave timer for one board.
type Scheduler struct {
	graph   *graph.Store
	persist *persist.Adapter
	config  *Config

	// flushMu serializes flushes so snapshots are written in order.
	flushMu sync.Mutex

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a scheduler with default configuration.
func New(g *graph.Store, p *persist.Adapter) (*Scheduler, error) {
	return NewWithConfig(g, p, DefaultConfig())
}

// NewWithConfig creates a scheduler with custom configuration.
func NewWithConfig(g *graph.Store, p *persist.Adapter, config *Config) (*Scheduler, error) {
	if g == nil {
		return nil, fmt.Errorf("graph store cannot be nil")
	}
	if p == nil {
		return nil, fmt.Errorf("persistence adapter cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard
	}
	return &Scheduler{graph: g, persist: p, config: &cfg}, nil
}

// Start launches the timers. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	if s.config.Interval > 0 {
		s.wg.Add(1)
		go s.intervalLoop()
	} else {
		s.config.Logger.Println("Periodic autosave disabled")
	}
	if s.config.Debounce > 0 {
		s.wg.Add(1)
		go s.debounceLoop()
	}
	return nil
}

// Stop cancels the timers, waits for them to exit and flushes any unsaved
// changes.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	_, err := s.flushIfUnsaved(TriggerUnload)
	return err
}

func (s *Scheduler) intervalLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.flushIfUnsaved(TriggerInterval)
		}
	}
}

func (s *Scheduler) debounceLoop() {
	defer s.wg.Done()

	tick := s.config.Debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.graph.Unsaved() && time.Since(s.graph.LastChange()) >= s.config.Debounce {
				s.flushIfUnsaved(TriggerDebounce)
			}
		}
	}
}

// Flush writes the board if it has unsaved changes. It reports whether a
// flush happened.
func (s *Scheduler) Flush() (bool, error) {
	return s.flushIfUnsaved(TriggerInterval)
}

// OnUnload flushes unsaved changes before the session goes away.
func (s *Scheduler) OnUnload() (bool, error) {
	return s.flushIfUnsaved(TriggerUnload)
}

// Save writes the board whether or not it has unsaved changes.
func (s *Scheduler) Save() error {
	return s.flush(TriggerManual)
}

func (s *Scheduler) flushIfUnsaved(trigger string) (bool, error) {
	if !s.graph.Unsaved() {
		return false, nil
	}
	return true, s.flush(trigger)
}

// flush snapshots the graph, writes layout and edges, and marks the
// snapshot's generation saved. Changes made during the write keep the
// board unsaved. Nothing is written while the adapter is held.
func (s *Scheduler) flush(trigger string) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if reason := s.persist.Held(); reason != nil {
		s.config.Logger.Printf("Skipping %s save: %v", trigger, reason)
		if trigger == TriggerManual {
			s.config.Notifier.Notify(notify.New(notify.LevelWarning, "Board not saved", "cards could not be loaded"))
		}
		return fmt.Errorf("board not saved: %w", reason)
	}

	nodes, edges, gen := s.graph.Snapshot()

	layoutOK := s.persist.SaveLayout(nodes)
	edgesOK := s.persist.SaveEdges(edges)
	if !layoutOK || !edgesOK {
		s.config.Metrics.Flush(trigger, false)
		s.config.Logger.Printf("Error: %s save failed (layout ok=%v, edges ok=%v)", trigger, layoutOK, edgesOK)
		s.config.Notifier.Notify(notify.New(notify.LevelError, "Failed to save board", ""))
		return fault.ErrSaveFailed
	}

	s.graph.MarkSaved(gen)
	s.config.Metrics.Flush(trigger, true)
	s.config.Logger.Printf("Saved %d nodes, %d edges (%s)", len(nodes), len(edges), trigger)
	s.config.Notifier.Notify(notify.New(notify.LevelSuccess, "Board saved", ""))
	return nil
}

// IsRunning returns true if the timers are running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
