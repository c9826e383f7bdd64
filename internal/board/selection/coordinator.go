// Package selection keeps the canonical set of selected node ids and the
// renderer's per-node selected flags equal.
//
// Changes arrive from both sides. The renderer reports the ids it shows as
// selected (OnRendererSelectionChanged); gestures and other components set
// the canonical set directly (OnCanonicalSelectionChanged, Toggle,
// PaneClick). Either way the coordinator writes back only the node flags
// that actually differ, so an echo of its own write is a no-op.
//
// The canonical set only ever holds ids of nodes in the graph. Unknown ids
// are dropped on the way in, and ids whose nodes are removed are dropped
// when the graph reports the removal.
package selection

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/mschirtzinger/beadboard/internal/board/graph"
	"github.com/mschirtzinger/beadboard/internal/board/notify"
)

// Config holds configuration for the coordinator.
type Config struct {
	// Notifier receives "N cards selected" and "Selection cleared"
	Notifier notify.Notifier

	// Logger for reconciliation passes
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Notifier: notify.Discard,
		Logger:   log.New(os.Stderr, "[selection] ", log.LstdFlags),
	}
}

// Coordinator owns the canonical selection set.
type Coordinator struct {
	graph    *graph.Store
	notifier notify.Notifier
	logger   *log.Logger

	mu  sync.Mutex
	set map[string]bool

	// flagsMu serializes flag write-back. It is never taken with mu held.
	flagsMu sync.Mutex

	subsMu  sync.Mutex
	subs    map[int]func([]string)
	nextSub int
}

// New creates a coordinator over g, seeded from the nodes g already marks
// selected.
func New(g *graph.Store, config *Config) (*Coordinator, error) {
	if g == nil {
		return nil, fmt.Errorf("graph store is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	c := &Coordinator{
		graph:    g,
		notifier: config.Notifier,
		logger:   config.Logger,
		set:      make(map[string]bool),
		subs:     make(map[int]func([]string)),
	}
	if c.notifier == nil {
		c.notifier = notify.Discard
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard, "", 0)
	}
	for _, id := range g.SelectedIDs() {
		c.set[id] = true
	}
	g.Subscribe(func(ev graph.Event) {
		if ev.NodesChanged {
			c.prune()
		}
	})
	return c, nil
}

// Selected returns the canonical selection, sorted.
func (c *Coordinator) Selected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.set)
}

// IsSelected reports whether id is in the canonical set.
func (c *Coordinator) IsSelected(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set[id]
}

// Subscribe registers fn to be called with the sorted selection after every
// canonical change. The returned function removes the subscription.
func (c *Coordinator) Subscribe(fn func(selected []string)) func() {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

func (c *Coordinator) publish(selected []string) {
	c.subsMu.Lock()
	subs := make([]func([]string), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range subs {
		fn(selected)
	}
}

// OnRendererSelectionChanged takes the ids the renderer shows as selected.
// If they differ from the canonical set (ignoring order) the canonical set
// is replaced; selecting more than one card emits a count notification.
func (c *Coordinator) OnRendererSelectionChanged(ids []string) {
	next := c.present(ids)

	c.mu.Lock()
	if equalSets(c.set, next) {
		c.mu.Unlock()
		// Unknown ids in the report leave flags to correct.
		c.reconcile()
		return
	}
	c.set = next
	selected := sortedKeys(next)
	c.mu.Unlock()

	c.reconcile()

	if len(selected) > 1 {
		c.notifier.Notify(notify.New(notify.LevelInfo, fmt.Sprintf("%d cards selected", len(selected)), ""))
	}
	c.publish(selected)
}

// OnCanonicalSelectionChanged replaces the canonical set with ids and
// writes back the node flags that differ.
func (c *Coordinator) OnCanonicalSelectionChanged(ids []string) {
	next := c.present(ids)

	c.mu.Lock()
	changed := !equalSets(c.set, next)
	c.set = next
	selected := sortedKeys(next)
	c.mu.Unlock()

	c.reconcile()

	if changed {
		c.publish(selected)
	}
}

// Toggle applies a node click. Without additive, clicking the only selected
// node does nothing and clicking any other node selects just that node.
// With additive (Ctrl/Cmd held) the node's membership flips.
func (c *Coordinator) Toggle(id string, additive bool) {
	if !c.graph.HasNode(id) {
		return
	}

	c.mu.Lock()
	switch {
	case additive:
		next := copySet(c.set)
		if next[id] {
			delete(next, id)
		} else {
			next[id] = true
		}
		c.set = next
	case len(c.set) == 1 && c.set[id]:
		c.mu.Unlock()
		return
	default:
		c.set = map[string]bool{id: true}
	}
	selected := sortedKeys(c.set)
	c.mu.Unlock()

	c.reconcile()

	c.publish(selected)
}

// PaneClick applies a click on empty canvas. Without additive the selection
// is cleared, and "Selection cleared" is emitted if anything was selected.
func (c *Coordinator) PaneClick(additive bool) {
	if additive {
		return
	}

	c.mu.Lock()
	if len(c.set) == 0 {
		c.mu.Unlock()
		// Flags may still disagree if the renderer never reported.
		c.reconcile()
		return
	}
	c.set = make(map[string]bool)
	c.mu.Unlock()

	c.reconcile()

	c.notifier.Notify(notify.New(notify.LevelInfo, "Selection cleared", ""))
	c.publish([]string{})
}

// Forget drops ids from the canonical set, as when their nodes are deleted.
func (c *Coordinator) Forget(ids ...string) {
	c.mu.Lock()
	changed := false
	for _, id := range ids {
		if c.set[id] {
			delete(c.set, id)
			changed = true
		}
	}
	selected := sortedKeys(c.set)
	c.mu.Unlock()

	if changed {
		c.publish(selected)
	}
}

// Reconcile drops ids whose nodes are gone, then writes the canonical set
// to node flags. It returns the number of nodes whose flag changed.
func (c *Coordinator) Reconcile() int {
	c.prune()
	return c.reconcile()
}

// reconcile makes node flags match the canonical set as it is when the
// write starts. Callers must not hold c.mu: SetSelected notifies graph
// subscribers, this coordinator included.
func (c *Coordinator) reconcile() int {
	c.flagsMu.Lock()
	defer c.flagsMu.Unlock()

	c.mu.Lock()
	want := copySet(c.set)
	c.mu.Unlock()

	n := c.graph.SetSelected(want)
	if n > 0 {
		c.logger.Printf("reconciled %d node flag(s)", n)
	}
	return n
}

// prune removes ids that are no longer nodes of the graph.
func (c *Coordinator) prune() {
	c.mu.Lock()
	var gone []string
	for id := range c.set {
		if !c.graph.HasNode(id) {
			gone = append(gone, id)
		}
	}
	if len(gone) == 0 {
		c.mu.Unlock()
		return
	}
	next := copySet(c.set)
	for _, id := range gone {
		delete(next, id)
	}
	c.set = next
	selected := sortedKeys(next)
	c.mu.Unlock()

	c.logger.Printf("dropped %d removed node(s) from selection", len(gone))
	c.publish(selected)
}

// present returns ids as a set, keeping only nodes of the graph.
func (c *Coordinator) present(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" && c.graph.HasNode(id) {
			set[id] = true
		}
	}
	return set
}

func copySet(set map[string]bool) map[string]bool {
	out := make(map[string]bool, len(set))
	for id := range set {
		out[id] = true
	}
	return out
}

func equalSets(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if !b[id] {
			return false
		}
	}
	return true
}

func sortedKeys(set map[string]bool) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
