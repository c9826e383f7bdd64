package graph

import (
	"errors"

	"github.com/mschirtzinger/beadboard/internal/board/schema"
)

// ChangeType names a change-set entry kind. The values match the change
// objects emitted by the renderer.
type ChangeType string

const (
	ChangeAdd        ChangeType = "add"
	ChangeRemove     ChangeType = "remove"
	ChangePosition   ChangeType = "position"
	ChangeSelect     ChangeType = "select"
	ChangeDimensions ChangeType = "dimensions"
)

// NodeChange is one entry of a node change-set.
//
// A position change with Dragging set is an in-flight drag frame: the node
// moves but the board is not marked unsaved until the final frame arrives
// with Dragging false.
type NodeChange struct {
	Type     ChangeType       `json:"type"`
	ID       string           `json:"id"`
	Item     *schema.Node     `json:"item,omitempty"`
	Position *schema.Position `json:"position,omitempty"`
	Dragging bool             `json:"dragging,omitempty"`
	Selected bool             `json:"selected,omitempty"`
	Width    float64          `json:"width,omitempty"`
	Height   float64          `json:"height,omitempty"`
}

// EdgeChange is one entry of an edge change-set.
type EdgeChange struct {
	Type     ChangeType   `json:"type"`
	ID       string       `json:"id"`
	Item     *schema.Edge `json:"item,omitempty"`
	Selected bool         `json:"selected,omitempty"`
}

// Result reports the outcome of a batch.
type Result struct {
	Applied int
	Skipped int
	Errors  []error
}

// Err joins the per-entry errors, or returns nil when every entry applied.
func (r Result) Err() error {
	return errors.Join(r.Errors...)
}

// EventKind describes why subscribers are being notified.
type EventKind string

const (
	// EventChanged follows a batch or wrapper mutation
	EventChanged EventKind = "changed"

	// EventReset follows a full replacement of the graph (load)
	EventReset EventKind = "reset"
)

// Event is delivered to subscribers after a mutation completes. Nodes and
// Edges are copies of the full collections and are only set when that
// collection changed.
type Event struct {
	Kind         EventKind
	NodesChanged bool
	EdgesChanged bool
	Nodes        []schema.Node
	Edges        []schema.Edge
}
