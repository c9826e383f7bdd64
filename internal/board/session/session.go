// Package session assembles one board: the graph store and everything that
// reads or writes it.
//
// Open builds the components, loads persisted layout, edges and viewport
// together with the card list and the remote settings record, and starts
// autosave and the card watcher. Close stops the timers and flushes.
//
// A card list that cannot be fetched does not fail Open. The session comes
// up with an empty graph, reports the failure through FetchError and an
// EventFetchError, and Retry reloads.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mschirtzinger/beadboard/internal/board/autosave"
	"github.com/mschirtzinger/beadboard/internal/board/cards"
	"github.com/mschirtzinger/beadboard/internal/board/fault"
	"github.com/mschirtzinger/beadboard/internal/board/graph"
	"github.com/mschirtzinger/beadboard/internal/board/interact"
	"github.com/mschirtzinger/beadboard/internal/board/kv"
	"github.com/mschirtzinger/beadboard/internal/board/layout"
	"github.com/mschirtzinger/beadboard/internal/board/metrics"
	"github.com/mschirtzinger/beadboard/internal/board/notify"
	"github.com/mschirtzinger/beadboard/internal/board/persist"
	"github.com/mschirtzinger/beadboard/internal/board/schema"
	"github.com/mschirtzinger/beadboard/internal/board/selection"
	"github.com/mschirtzinger/beadboard/internal/board/settings"
)

// Config holds configuration for a session.
type Config struct {
	// Store holds the board records (required)
	Store kv.Store

	// Namespace prefixes the board's keys (default "board")
	Namespace string

	// Cards is the card collaborator (optional; without it the board only
	// shows persisted nodes it can project)
	Cards cards.Service

	// WatchDir enables the card watcher on a cards directory (optional)
	WatchDir string

	// WatchDebounce batches file events before a refresh
	WatchDebounce time.Duration

	// Remote is the settings service (nil keeps settings local)
	Remote settings.Remote

	// UserID identifies the settings record
	UserID string

	// Settings is the starting record before the remote one arrives
	// (zero value means settings.Defaults())
	Settings settings.BoardSettings

	// SettingsTimeout bounds each remote settings write
	SettingsTimeout time.Duration

	// AutosaveInterval between periodic flushes (<= 0 disables)
	AutosaveInterval time.Duration

	// AutosaveDebounce flushes after a quiet period (0 = off)
	AutosaveDebounce time.Duration

	Grid        layout.GridOptions
	Directional layout.DirectionalOptions

	// IDs generates edge ids (optional)
	IDs *schema.IDGenerator

	// Editor opens cards on double click, in addition to EventOpenEditor
	// (optional)
	Editor interact.Editor

	Logger   *log.Logger
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
}

// DefaultConfig returns sensible defaults. Store must still be set.
func DefaultConfig() *Config {
	return &Config{
		Namespace:        "board",
		UserID:           "local",
		Settings:         settings.Defaults(),
		SettingsTimeout:  10 * time.Second,
		AutosaveInterval: 30 * time.Second,
		WatchDebounce:    100 * time.Millisecond,
		Grid:             layout.DefaultGridOptions(),
		Directional:      layout.DefaultDirectionalOptions(),
		Logger:           log.New(os.Stderr, "[session] ", log.LstdFlags),
	}
}

// EventKind describes a session event.
type EventKind string

const (
	// EventNotification carries a user-visible notification
	EventNotification EventKind = "notification"

	// EventOpenEditor asks the front end to open a card in the editor
	EventOpenEditor EventKind = "open_editor"

	// EventFetchError reports that the card list could not be loaded
	EventFetchError EventKind = "fetch_error"

	// EventLoaded follows a successful load or retry
	EventLoaded EventKind = "loaded"
)

// Event is delivered to session subscribers.
type Event struct {
	Kind         EventKind
	Notification notify.Notification
	CardID       string
	Err          error
}

// Session is one open board.
type Session struct {
	Graph     *graph.Store
	Persist   *persist.Adapter
	Settings  *settings.Synchronizer
	Selection *selection.Coordinator
	Handlers  *interact.Handlers
	Autosave  *autosave.Scheduler
	Cards     cards.Service

	config   Config
	logger   *log.Logger
	notifier notify.Notifier
	watcher  *cards.Watcher

	mu       sync.Mutex
	fetchErr error
	closed   bool

	subsMu  sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// Open builds and loads a session.
func Open(ctx context.Context, config *Config) (*Session, error) {
	s, err := build(config)
	if err != nil {
		return nil, err
	}

	if err := s.Load(ctx); err != nil && !errors.Is(err, fault.ErrExternalFetch) {
		return nil, err
	}

	if err := s.Autosave.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start autosave: %w", err)
	}
	if s.watcher != nil {
		if err := s.watcher.Start(ctx); err != nil {
			_ = s.Autosave.Stop()
			return nil, fmt.Errorf("failed to start card watcher: %w", err)
		}
	}
	return s, nil
}

func build(config *Config) (*Session, error) {
	if config == nil || config.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	defaults := DefaultConfig()
	cfg := *config
	if cfg.Namespace == "" {
		cfg.Namespace = defaults.Namespace
	}
	if cfg.UserID == "" {
		cfg.UserID = defaults.UserID
	}
	if cfg.Settings == (settings.BoardSettings{}) {
		cfg.Settings = defaults.Settings
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}

	s := &Session{
		Cards:  cfg.Cards,
		config: cfg,
		logger: cfg.Logger,
		subs:   make(map[int]func(Event)),
	}
	notifier := notify.Multi{cfg.Notifier, notify.Func(s.forwardNotification)}
	s.notifier = notifier

	var err error
	s.Persist, err = persist.New(cfg.Store, &persist.Config{
		Namespace: cfg.Namespace,
		Logger:    cfg.Logger,
		Metrics:   cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	s.Graph = graph.New(&graph.Config{
		Persister: s.Persist,
		Logger:    cfg.Logger,
		Metrics:   cfg.Metrics,
	})

	s.Settings, err = settings.New(s.Graph, cfg.Remote, cfg.Settings, &settings.Config{
		UserID:   cfg.UserID,
		Timeout:  cfg.SettingsTimeout,
		Logger:   cfg.Logger,
		Notifier: notifier,
		Metrics:  cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	s.Selection, err = selection.New(s.Graph, &selection.Config{
		Notifier: notifier,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	s.Handlers, err = interact.New(interact.Deps{
		Graph:     s.Graph,
		Persist:   s.Persist,
		Settings:  s.Settings,
		Selection: s.Selection,
		Cards:     cfg.Cards,
		Editor:    editorFunc(s.openEditor),
	}, &interact.Config{
		Grid:        cfg.Grid,
		Directional: cfg.Directional,
		IDs:         cfg.IDs,
		Logger:      cfg.Logger,
		Notifier:    notifier,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	s.Autosave, err = autosave.NewWithConfig(s.Graph, s.Persist, &autosave.Config{
		Interval: cfg.AutosaveInterval,
		Debounce: cfg.AutosaveDebounce,
		Logger:   cfg.Logger,
		Notifier: notifier,
		Metrics:  cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	if cfg.WatchDir != "" && cfg.Cards != nil {
		s.watcher, err = cards.NewWatcher(cfg.WatchDir, cfg.Cards, s.cardsChanged, &cards.WatcherConfig{
			Debounce: cfg.WatchDebounce,
			Logger:   cfg.Logger,
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Load reads the persisted records, the card list and the remote settings
// in parallel, then replaces the graph. A card fetch failure leaves the
// graph empty, holds layout and edge writes until a later load succeeds,
// and returns an error wrapping fault.ErrExternalFetch.
func (s *Session) Load(ctx context.Context) error {
	var (
		saved    persist.Layout
		edges    []schema.Edge
		viewport schema.Viewport
		hasView  bool
		list     []*schema.Card
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		saved = s.Persist.LoadLayoutContext(gctx)
		return nil
	})
	g.Go(func() error {
		edges = s.Persist.LoadEdgesContext(gctx)
		return nil
	})
	g.Go(func() error {
		viewport, hasView = s.Persist.LoadViewportContext(gctx)
		return nil
	})
	g.Go(func() error {
		if s.Cards == nil {
			return nil
		}
		var err error
		list, err = s.Cards.FetchCards(gctx)
		if err != nil {
			return fault.ExternalFetch("fetch cards", err)
		}
		return nil
	})

	// Settings load independently: a settings failure keeps the local
	// record and must not cancel the card fetch.
	var settingsErr error
	var settingsWG sync.WaitGroup
	settingsWG.Add(1)
	go func() {
		defer settingsWG.Done()
		settingsErr = s.Settings.Load(ctx)
	}()

	err := g.Wait()
	settingsWG.Wait()

	if settingsErr != nil {
		s.logger.Printf("Warning: using local settings: %v", settingsErr)
	}
	if hasView {
		s.Handlers.SetViewport(viewport)
	}

	if err != nil {
		s.setFetchError(err)
		s.Graph.Reset(nil, nil)
		s.Selection.Reconcile()
		return err
	}

	nodes := Project(list, saved, s.config.Grid)
	droppedNodes, droppedEdges := s.Graph.Reset(nodes, edges)
	s.Settings.Restyle()
	s.Selection.Reconcile()
	s.setFetchError(nil)

	s.logger.Printf("Loaded %d cards, %d edges (dropped %d nodes, %d edges)",
		len(nodes)-droppedNodes, len(edges)-droppedEdges, droppedNodes, droppedEdges)
	s.publish(Event{Kind: EventLoaded})
	return nil
}

// Project builds one node per card. Cards with a persisted layout entry
// keep its position and handle sides; the rest are packed in a grid below
// the placed nodes.
func Project(list []*schema.Card, saved persist.Layout, grid layout.GridOptions) []schema.Node {
	nodes := make([]schema.Node, 0, len(list))
	var unplaced []schema.Node
	maxY, anyPlaced := 0.0, false

	for _, c := range list {
		if c == nil || c.ID == "" {
			continue
		}
		entry, ok := saved[c.ID]
		if !ok || !entry.Position.Valid() {
			unplaced = append(unplaced, schema.NewCardNode(c.ID, schema.Position{}, c.Data()))
			continue
		}
		n := schema.NewCardNode(c.ID, entry.Position, c.Data())
		if entry.SourcePosition != "" {
			n.SourcePosition = entry.SourcePosition
		}
		if entry.TargetPosition != "" {
			n.TargetPosition = entry.TargetPosition
		}
		if !anyPlaced || entry.Position.Y > maxY {
			maxY = entry.Position.Y
		}
		anyPlaced = true
		nodes = append(nodes, n)
	}

	if len(unplaced) > 0 {
		if grid.Columns <= 0 {
			grid = layout.DefaultGridOptions()
		}
		if anyPlaced {
			grid.Origin = schema.Position{X: grid.Origin.X, Y: maxY + grid.SpacingY}
		}
		nodes = append(nodes, layout.Grid(unplaced, grid)...)
	}
	return nodes
}

// Retry reloads after a failed card fetch.
func (s *Session) Retry(ctx context.Context) error {
	return s.Load(ctx)
}

// FetchError returns the last card fetch failure, or nil once a load
// succeeded.
func (s *Session) FetchError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchErr
}

func (s *Session) setFetchError(err error) {
	s.mu.Lock()
	s.fetchErr = err
	s.mu.Unlock()

	if err == nil {
		s.Persist.Release()
		return
	}
	s.Persist.Hold(err)
	s.logger.Printf("Error: %v", err)
	s.config.Metrics.FetchFailure()
	n := notify.New(notify.LevelError, "Could not load cards", "%v", err)
	n.Retryable = true
	s.notifier.Notify(n)
	s.publish(Event{Kind: EventFetchError, Err: err})
}

func (s *Session) cardsChanged(list []*schema.Card) {
	if n := s.Graph.RefreshCards(list); n > 0 {
		s.logger.Printf("Refreshed %d card(s) from disk", n)
	}
}

// Subscribe registers fn for session events. The returned function removes
// the subscription.
func (s *Session) Subscribe(fn func(Event)) func() {
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

func (s *Session) publish(ev Event) {
	s.subsMu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func (s *Session) forwardNotification(n notify.Notification) {
	s.publish(Event{Kind: EventNotification, Notification: n})
}

func (s *Session) openEditor(ctx context.Context, cardID string) error {
	s.publish(Event{Kind: EventOpenEditor, CardID: cardID})
	if s.config.Editor != nil {
		return s.config.Editor.Open(ctx, cardID)
	}
	return nil
}

type editorFunc func(ctx context.Context, cardID string) error

func (f editorFunc) Open(ctx context.Context, cardID string) error { return f(ctx, cardID) }

// Close stops the card watcher and autosave, flushes unsaved changes and
// waits for in-flight settings writes. The kv store is left open.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.Autosave.Stop(); err != nil {
		errs = append(errs, err)
	}
	s.Settings.Wait()
	return errors.Join(errs...)
}
