// Package persist stores the board's durable records in a kv.Store.
//
// Three records are kept per board namespace, each as one JSON blob:
//
//	<ns>:layout    {"<nodeId>": {"position": {"x": 0, "y": 0}, "targetPosition": "left"}}
//	<ns>:edges     [<Edge>, ...]
//	<ns>:viewport  {"x": 0, "y": 0, "zoom": 1}
//
// The Adapter never fails loudly. A store error, a corrupt blob or even a
// panicking backend is logged, counted as a storage fault, and turned into
// the safe default: an empty map or slice on reads, false on writes. Records
// are only ever rewritten whole; there is no partial update.
//
// While the adapter is held (see Hold) the layout and edge records are
// read-only. A board that failed to load must not overwrite them.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mschirtzinger/beadboard/internal/board/fault"
	"github.com/mschirtzinger/beadboard/internal/board/kv"
	"github.com/mschirtzinger/beadboard/internal/board/metrics"
	"github.com/mschirtzinger/beadboard/internal/board/schema"
)

// Record names.
const (
	RecordLayout   = "layout"
	RecordEdges    = "edges"
	RecordViewport = "viewport"
)

// LayoutEntry is the persisted state of one node.
type LayoutEntry struct {
	Position       schema.Position       `json:"position"`
	SourcePosition schema.HandlePosition `json:"sourcePosition,omitempty"`
	TargetPosition schema.HandlePosition `json:"targetPosition,omitempty"`
}

// Layout maps node id to its persisted entry.
type Layout map[string]LayoutEntry

// Config holds configuration for the adapter.
type Config struct {
	// Namespace prefixes every key (default "board")
	Namespace string

	// Timeout bounds each store call made without a caller context
	Timeout time.Duration

	// Logger for storage faults
	Logger *log.Logger

	// Metrics records storage faults (optional)
	Metrics *metrics.Metrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Namespace: "board",
		Timeout:   5 * time.Second,
		Logger:    log.New(os.Stderr, "[persist] ", log.LstdFlags),
	}
}

// Adapter reads and writes the board records.
type Adapter struct {
	store  kv.Store
	config *Config

	mu   sync.Mutex
	held error
}

// New creates an Adapter over store. A nil config uses DefaultConfig.
func New(store kv.Store, config *Config) (*Adapter, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	cfg := *config
	if cfg.Namespace == "" {
		cfg.Namespace = defaults.Namespace
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}
	return &Adapter{store: store, config: &cfg}, nil
}

// Hold makes the layout and edge records read-only until Release. reason is
// reported by Held and by every refused write.
func (a *Adapter) Hold(reason error) {
	if reason == nil {
		reason = errors.New("writes held")
	}
	a.mu.Lock()
	a.held = reason
	a.mu.Unlock()
}

// Release lifts a Hold.
func (a *Adapter) Release() {
	a.mu.Lock()
	a.held = nil
	a.mu.Unlock()
}

// Held returns the reason writes are held, or nil.
func (a *Adapter) Held() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.held
}

// Namespace returns the key namespace.
func (a *Adapter) Namespace() string {
	return a.config.Namespace
}

// Key returns the store key for a record.
func (a *Adapter) Key(record string) string {
	return a.config.Namespace + ":" + record
}

func (a *Adapter) withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.config.Timeout)
}

// LoadLayout returns the persisted layout, or an empty map.
func (a *Adapter) LoadLayout() Layout {
	ctx, cancel := a.withTimeout()
	defer cancel()
	return a.LoadLayoutContext(ctx)
}

// LoadLayoutContext is LoadLayout with a caller context.
func (a *Adapter) LoadLayoutContext(ctx context.Context) Layout {
	layout := Layout{}
	if !a.load(ctx, RecordLayout, &layout) {
		return Layout{}
	}

	for id, entry := range layout {
		if id == "" || !entry.Position.Valid() {
			a.fault("load "+RecordLayout, fmt.Errorf("dropping invalid entry %q", id))
			delete(layout, id)
		}
	}
	return layout
}

// SaveLayout persists the position and handle orientation of every node.
func (a *Adapter) SaveLayout(nodes []schema.Node) bool {
	ctx, cancel := a.withTimeout()
	defer cancel()
	return a.SaveLayoutContext(ctx, nodes)
}

// SaveLayoutContext is SaveLayout with a caller context.
func (a *Adapter) SaveLayoutContext(ctx context.Context, nodes []schema.Node) bool {
	layout := make(Layout, len(nodes))
	for _, n := range nodes {
		layout[n.ID] = LayoutEntry{
			Position:       n.Position,
			SourcePosition: n.SourcePosition,
			TargetPosition: n.TargetPosition,
		}
	}
	return a.save(ctx, RecordLayout, layout)
}

// LoadEdges returns the persisted edges, or an empty slice.
func (a *Adapter) LoadEdges() []schema.Edge {
	ctx, cancel := a.withTimeout()
	defer cancel()
	return a.LoadEdgesContext(ctx)
}

// LoadEdgesContext is LoadEdges with a caller context.
func (a *Adapter) LoadEdgesContext(ctx context.Context) []schema.Edge {
	var raw []schema.Edge
	if !a.load(ctx, RecordEdges, &raw) {
		return []schema.Edge{}
	}

	edges := make([]schema.Edge, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, e := range raw {
		if err := e.Validate(); err != nil {
			a.fault("load "+RecordEdges, fmt.Errorf("dropping edge %q: %w", e.ID, err))
			continue
		}
		if seen[e.ID] {
			a.fault("load "+RecordEdges, fmt.Errorf("dropping duplicate edge %q", e.ID))
			continue
		}
		seen[e.ID] = true
		edges = append(edges, e)
	}
	return edges
}

// SaveEdges persists the full edge list.
func (a *Adapter) SaveEdges(edges []schema.Edge) bool {
	ctx, cancel := a.withTimeout()
	defer cancel()
	return a.SaveEdgesContext(ctx, edges)
}

// SaveEdgesContext is SaveEdges with a caller context.
func (a *Adapter) SaveEdgesContext(ctx context.Context, edges []schema.Edge) bool {
	if edges == nil {
		edges = []schema.Edge{}
	}
	return a.save(ctx, RecordEdges, edges)
}

// LoadViewport returns the persisted viewport and whether one was found.
func (a *Adapter) LoadViewport() (schema.Viewport, bool) {
	ctx, cancel := a.withTimeout()
	defer cancel()
	return a.LoadViewportContext(ctx)
}

// LoadViewportContext is LoadViewport with a caller context.
func (a *Adapter) LoadViewportContext(ctx context.Context) (schema.Viewport, bool) {
	var v schema.Viewport
	if !a.load(ctx, RecordViewport, &v) {
		return schema.Viewport{}, false
	}
	if err := v.Validate(); err != nil {
		a.fault("load "+RecordViewport, err)
		return schema.Viewport{}, false
	}
	return v, true
}

// SaveViewport persists the viewport. Invalid transforms are not written.
func (a *Adapter) SaveViewport(v schema.Viewport) bool {
	ctx, cancel := a.withTimeout()
	defer cancel()
	return a.SaveViewportContext(ctx, v)
}

// SaveViewportContext is SaveViewport with a caller context.
func (a *Adapter) SaveViewportContext(ctx context.Context, v schema.Viewport) bool {
	if err := v.Validate(); err != nil {
		a.fault("save "+RecordViewport, err)
		return false
	}
	return a.save(ctx, RecordViewport, v)
}

// RemoveNodes drops the given node ids from the persisted layout and every
// persisted edge touching them. Both records are rebuilt and written whole.
func (a *Adapter) RemoveNodes(ids []string) bool {
	ctx, cancel := a.withTimeout()
	defer cancel()
	return a.RemoveNodesContext(ctx, ids)
}

// RemoveNodesContext is RemoveNodes with a caller context.
func (a *Adapter) RemoveNodesContext(ctx context.Context, ids []string) bool {
	if len(ids) == 0 {
		return true
	}
	removed := make(map[string]bool, len(ids))
	for _, id := range ids {
		removed[id] = true
	}

	layout := a.LoadLayoutContext(ctx)
	kept := make(Layout, len(layout))
	for id, entry := range layout {
		if !removed[id] {
			kept[id] = entry
		}
	}
	layoutOK := a.save(ctx, RecordLayout, kept)

	edges := a.LoadEdgesContext(ctx)
	keptEdges := make([]schema.Edge, 0, len(edges))
	for _, e := range edges {
		if removed[e.Source] || removed[e.Target] {
			continue
		}
		keptEdges = append(keptEdges, e)
	}
	edgesOK := a.save(ctx, RecordEdges, keptEdges)

	return layoutOK && edgesOK
}

// Clear deletes all three records.
func (a *Adapter) Clear(ctx context.Context) bool {
	ok := true
	for _, record := range []string{RecordLayout, RecordEdges, RecordViewport} {
		err := a.guard(func() error { return a.store.Delete(ctx, a.Key(record)) })
		if err != nil {
			a.fault("clear "+record, err)
			ok = false
		}
	}
	return ok
}

// load decodes a record into v. It returns false when the record is
// missing or unreadable; only the latter counts as a fault.
func (a *Adapter) load(ctx context.Context, record string, v any) bool {
	var data []byte
	err := a.guard(func() error {
		var err error
		data, err = a.store.Get(ctx, a.Key(record))
		return err
	})
	if errors.Is(err, kv.ErrNotFound) {
		return false
	}
	if err != nil {
		a.fault("load "+record, err)
		return false
	}

	if err := json.Unmarshal(data, v); err != nil {
		a.fault("load "+record, fmt.Errorf("corrupt JSON: %w", err))
		return false
	}
	return true
}

func (a *Adapter) save(ctx context.Context, record string, v any) bool {
	if record != RecordViewport {
		if reason := a.Held(); reason != nil {
			a.config.Logger.Printf("Skipping %s write: %v", record, reason)
			return false
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		a.fault("save "+record, err)
		return false
	}

	err = a.guard(func() error { return a.store.Put(ctx, a.Key(record), data) })
	if err != nil {
		a.fault("save "+record, err)
		return false
	}
	return true
}

// guard runs fn and converts a panic into an error.
func (a *Adapter) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("store panic: %v", r)
		}
	}()
	return fn()
}

func (a *Adapter) fault(op string, err error) {
	a.config.Logger.Printf("Warning: %v", fault.Storage(op, err))
	a.config.Metrics.StorageFault(op)
}
