// Package graph holds the canonical in-memory node/edge graph of a board.
//
// Store is the single source of truth the renderer, the settings
// synchronizer, the selection coordinator and the interaction handlers all
// read from. Every mutation goes through a change-set (ApplyNodeChanges,
// ApplyEdgeChanges) or one of the single-item wrappers built on them, and
// every mutation upholds two invariants:
//
//   - no edge references a node that is not in the store;
//   - node ids and edge ids are unique.
//
// Entries that would break an invariant, or are malformed, are skipped with
// a warning; the rest of the batch still applies.
//
// Removing nodes also removes them from persisted storage through the
// Persister before the in-memory change, so memory and disk agree after the
// same logical operation.
//
// Unsaved state is tracked with a generation counter. Savers take a
// Snapshot, write it, and call MarkSaved with the snapshot's generation;
// a mutation that lands in between keeps the board unsaved.
package graph

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mschirtzinger/beadboard/internal/board/fault"
	"github.com/mschirtzinger/beadboard/internal/board/metrics"
	"github.com/mschirtzinger/beadboard/internal/board/schema"
)

// Persister removes node records from durable storage.
type Persister interface {
	RemoveNodes(ids []string) bool
}

// Config holds configuration for the store.
type Config struct {
	// Persister receives cascade removals (optional)
	Persister Persister

	// Logger for skipped changes
	Logger *log.Logger

	// Metrics records integrity rejections and graph size (optional)
	Metrics *metrics.Metrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Logger: log.New(os.Stderr, "[graph] ", log.LstdFlags),
	}
}

// Store is the canonical board graph. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	nodes []schema.Node
	edges []schema.Edge

	gen        uint64
	savedGen   uint64
	lastChange time.Time

	persist Persister
	logger  *log.Logger
	metrics *metrics.Metrics
	styler  EdgeStyler

	subsMu  sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// New creates an empty store.
func New(config *Config) *Store {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Store{
		nodes:   []schema.Node{},
		edges:   []schema.Edge{},
		persist: config.Persister,
		logger:  logger,
		metrics: config.Metrics,
		subs:    make(map[int]func(Event)),
	}
}

// Subscribe registers fn to be called after every mutation. Callbacks run
// on the mutating goroutine after the store lock is released. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(Event)) func() {
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

func (s *Store) publish(ev *Event) {
	if ev == nil {
		return
	}

	s.subsMu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range subs {
		fn(*ev)
	}
}

// eventLocked builds the notification for a mutation. Caller holds s.mu.
func (s *Store) eventLocked(kind EventKind, nodesChanged, edgesChanged bool) *Event {
	if !nodesChanged && !edgesChanged {
		return nil
	}
	s.metrics.GraphSize(len(s.nodes), len(s.edges))

	ev := &Event{Kind: kind, NodesChanged: nodesChanged, EdgesChanged: edgesChanged}
	if nodesChanged {
		ev.Nodes = cloneNodes(s.nodes)
	}
	if edgesChanged {
		ev.Edges = cloneEdges(s.edges)
	}
	return ev
}

// ApplyNodeChanges applies a node change-set.
//
// Remove entries are handled first as a group: the removed ids are dropped
// from persisted storage (layout entries and any edge touching them) and
// the board is marked unsaved, then the batch is applied in order. Each
// removed node takes every in-memory edge touching it along with it.
func (s *Store) ApplyNodeChanges(changes []NodeChange) Result {
	s.mu.Lock()

	removed := s.removedIDsLocked(changes)
	if len(removed) > 0 {
		if s.persist != nil && !s.persist.RemoveNodes(removed) {
			s.logger.Printf("Warning: failed to remove %d node(s) from storage", len(removed))
		}
		s.markUnsavedLocked()
	}

	var res Result
	nodesChanged, edgesChanged := false, false
	for i, c := range changes {
		cascaded, err := s.applyNodeChangeLocked(c)
		if err != nil {
			s.skip(&res, fmt.Errorf("node change %d (%s %q): %w", i, c.Type, c.ID, err))
			continue
		}
		res.Applied++
		nodesChanged = true
		edgesChanged = edgesChanged || cascaded
	}

	ev := s.eventLocked(EventChanged, nodesChanged, edgesChanged)
	s.mu.Unlock()

	s.publish(ev)
	return res
}

// removedIDsLocked returns the distinct ids of existing nodes named by
// remove entries.
func (s *Store) removedIDsLocked(changes []NodeChange) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, c := range changes {
		if c.Type != ChangeRemove || c.ID == "" || seen[c.ID] {
			continue
		}
		if s.nodeIndexLocked(c.ID) < 0 {
			continue
		}
		seen[c.ID] = true
		ids = append(ids, c.ID)
	}
	return ids
}

// applyNodeChangeLocked applies one entry. It reports whether edges were
// removed by cascade.
func (s *Store) applyNodeChangeLocked(c NodeChange) (bool, error) {
	switch c.Type {
	case ChangeAdd:
		if c.Item == nil {
			return false, fmt.Errorf("%w: add without item", fault.ErrInvalidChange)
		}
		node := c.Item.Clone()
		if node.ID == "" {
			node.ID = c.ID
		}
		if c.ID != "" && c.ID != node.ID {
			return false, fmt.Errorf("%w: id %q does not match item id %q", fault.ErrInvalidChange, c.ID, node.ID)
		}
		if node.Type == "" {
			node.Type = schema.NodeTypeCard
		}
		if err := node.Validate(); err != nil {
			return false, fmt.Errorf("%w: %v", fault.ErrInvalidChange, err)
		}
		if s.nodeIndexLocked(node.ID) >= 0 {
			return false, fault.ErrDuplicateID
		}
		s.nodes = append(s.nodes, node)
		s.markUnsavedLocked()
		return false, nil

	case ChangeRemove:
		if c.ID == "" {
			return false, fmt.Errorf("%w: remove without id", fault.ErrInvalidChange)
		}
		idx := s.nodeIndexLocked(c.ID)
		if idx < 0 {
			return false, fault.ErrNodeNotFound
		}
		s.nodes = append(s.nodes[:idx], s.nodes[idx+1:]...)
		return s.cascadeLocked(c.ID), nil

	case ChangePosition:
		if c.ID == "" || c.Position == nil {
			return false, fmt.Errorf("%w: position change needs id and position", fault.ErrInvalidChange)
		}
		if !c.Position.Valid() {
			return false, fmt.Errorf("%w: position must be finite", fault.ErrInvalidChange)
		}
		idx := s.nodeIndexLocked(c.ID)
		if idx < 0 {
			return false, fault.ErrNodeNotFound
		}
		s.nodes[idx].Position = *c.Position
		s.nodes[idx].Dragging = c.Dragging
		if !c.Dragging {
			s.markUnsavedLocked()
		}
		return false, nil

	case ChangeSelect:
		if c.ID == "" {
			return false, fmt.Errorf("%w: select without id", fault.ErrInvalidChange)
		}
		idx := s.nodeIndexLocked(c.ID)
		if idx < 0 {
			return false, fault.ErrNodeNotFound
		}
		s.nodes[idx].Selected = c.Selected
		return false, nil

	case ChangeDimensions:
		if c.ID == "" || c.Width < 0 || c.Height < 0 {
			return false, fmt.Errorf("%w: bad dimensions", fault.ErrInvalidChange)
		}
		idx := s.nodeIndexLocked(c.ID)
		if idx < 0 {
			return false, fault.ErrNodeNotFound
		}
		s.nodes[idx].Width = c.Width
		s.nodes[idx].Height = c.Height
		return false, nil

	default:
		return false, fmt.Errorf("%w: unknown change type %q", fault.ErrInvalidChange, c.Type)
	}
}

// cascadeLocked removes every edge touching id.
func (s *Store) cascadeLocked(id string) bool {
	kept := s.edges[:0]
	removed := false
	for _, e := range s.edges {
		if e.Touches(id) {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	s.edges = kept
	return removed
}

// ApplyEdgeChanges applies an edge change-set. Added edges must reference
// existing nodes and carry a fresh id; their handle ids are normalized.
func (s *Store) ApplyEdgeChanges(changes []EdgeChange) Result {
	s.mu.Lock()

	var res Result
	changed := false
	for i, c := range changes {
		if err := s.applyEdgeChangeLocked(c); err != nil {
			s.skip(&res, fmt.Errorf("edge change %d (%s %q): %w", i, c.Type, c.ID, err))
			continue
		}
		res.Applied++
		changed = true
	}

	ev := s.eventLocked(EventChanged, false, changed)
	s.mu.Unlock()

	s.publish(ev)
	return res
}

func (s *Store) applyEdgeChangeLocked(c EdgeChange) error {
	switch c.Type {
	case ChangeAdd:
		if c.Item == nil {
			return fmt.Errorf("%w: add without item", fault.ErrInvalidChange)
		}
		edge := c.Item.Clone()
		if edge.ID == "" {
			edge.ID = c.ID
		}
		if err := edge.Validate(); err != nil {
			return fmt.Errorf("%w: %v", fault.ErrInvalidChange, err)
		}
		if s.nodeIndexLocked(edge.Source) < 0 || s.nodeIndexLocked(edge.Target) < 0 {
			return fault.ErrDanglingEdge
		}
		if s.edgeIndexLocked(edge.ID) >= 0 {
			return fault.ErrDuplicateID
		}
		edge.NormalizeHandles()
		s.edges = append(s.edges, edge)
		s.markUnsavedLocked()
		return nil

	case ChangeRemove:
		if c.ID == "" {
			return fmt.Errorf("%w: remove without id", fault.ErrInvalidChange)
		}
		idx := s.edgeIndexLocked(c.ID)
		if idx < 0 {
			return fault.ErrEdgeNotFound
		}
		s.edges = append(s.edges[:idx], s.edges[idx+1:]...)
		s.markUnsavedLocked()
		return nil

	case ChangeSelect:
		idx := s.edgeIndexLocked(c.ID)
		if idx < 0 {
			return fault.ErrEdgeNotFound
		}
		s.edges[idx].Selected = c.Selected
		if s.styler != nil {
			s.edges[idx] = s.restyledLocked(s.edges[idx])
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown change type %q", fault.ErrInvalidChange, c.Type)
	}
}

// EdgeStyler recomputes the presentation fields of an edge.
type EdgeStyler func(schema.Edge) schema.Edge

// SetEdgeStyler installs fn. It is applied to an edge whenever its selected
// flag changes, so selection-dependent style stays current. fn runs under
// the store lock and must not call back into the store.
func (s *Store) SetEdgeStyler(fn EdgeStyler) {
	s.mu.Lock()
	s.styler = fn
	s.mu.Unlock()
}

func (s *Store) restyledLocked(e schema.Edge) schema.Edge {
	next := s.styler(e.Clone())
	next.ID, next.Source, next.Target, next.Selected = e.ID, e.Source, e.Target, e.Selected
	return next
}

func (s *Store) skip(res *Result, err error) {
	res.Skipped++
	res.Errors = append(res.Errors, err)
	s.logger.Printf("Warning: skipping %v", err)
	if fault.IsSilent(err) {
		s.metrics.IntegrityRejection()
	}
}

func (s *Store) nodeIndexLocked(id string) int {
	for i := range s.nodes {
		if s.nodes[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) edgeIndexLocked(id string) int {
	for i := range s.edges {
		if s.edges[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) markUnsavedLocked() {
	s.gen++
	s.lastChange = time.Now()
}

func cloneNodes(nodes []schema.Node) []schema.Node {
	out := make([]schema.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

func cloneEdges(edges []schema.Edge) []schema.Edge {
	out := make([]schema.Edge, len(edges))
	for i, e := range edges {
		out[i] = e.Clone()
	}
	return out
}
