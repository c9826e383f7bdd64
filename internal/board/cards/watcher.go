package cards

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mschirtzinger/beadboard/internal/board/schema"
)

// WatcherConfig holds configuration for the card watcher.
type WatcherConfig struct {
	// Debounce is how long the directory must be quiet before a refresh.
	// Rapid writes are batched into one refresh.
	Debounce time.Duration

	// Logger for watcher activity
	Logger *log.Logger
}

// DefaultWatcherConfig returns sensible defaults.
func DefaultWatcherConfig() *WatcherConfig {
	return &WatcherConfig{
		Debounce: 100 * time.Millisecond,
		Logger:   log.New(os.Stderr, "[cards] ", log.LstdFlags),
	}
}

// Watcher watches a cards directory and calls OnChange with the full card
// list after each settled burst of file changes.
type Watcher struct {
	dir      string
	service  Service
	onChange func([]*schema.Card)
	config   *WatcherConfig

	watcher *fsnotify.Watcher

	pendingMu sync.Mutex
	pending   map[string]time.Time // path -> last event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewWatcher creates a watcher over dir. service is asked for the card
// list on every refresh.
func NewWatcher(dir string, service Service, onChange func([]*schema.Card), config *WatcherConfig) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir cannot be empty")
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if onChange == nil {
		return nil, fmt.Errorf("onChange cannot be nil")
	}
	if config == nil {
		config = DefaultWatcherConfig()
	}
	cfg := *config
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultWatcherConfig().Debounce
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		dir:      dir,
		service:  service,
		onChange: onChange,
		config:   &cfg,
		watcher:  fw,
		pending:  make(map[string]time.Time),
	}, nil
}

// Start creates the directory if needed and begins watching it.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create cards directory: %w", err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch cards directory %s: %w", w.dir, err)
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	w.wg.Add(2)
	go w.watchFileEvents()
	go w.processPending()

	w.config.Logger.Printf("Watching: %s", w.dir)
	return nil
}

// Stop ends watching and waits for the goroutines to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *Watcher) watchFileEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}

			w.pendingMu.Lock()
			w.pending[event.Name] = time.Now()
			w.pendingMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) processPending() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if w.settled() {
				w.Refresh(w.ctx)
			}
		}
	}
}

// settled reports whether queued changes exist and none is younger than
// the debounce interval, clearing the queue if so.
func (w *Watcher) settled() bool {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	if len(w.pending) == 0 {
		return false
	}
	now := time.Now()
	for _, at := range w.pending {
		if now.Sub(at) < w.config.Debounce {
			return false
		}
	}
	w.pending = make(map[string]time.Time)
	return true
}

// Refresh fetches the card list and hands it to OnChange.
func (w *Watcher) Refresh(ctx context.Context) {
	cards, err := w.service.FetchCards(ctx)
	if err != nil {
		w.config.Logger.Printf("Error refreshing cards: %v", err)
		return
	}
	w.onChange(cards)
}

// IsRunning returns true if the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
