package schema

import (
	"fmt"
	"math"
)

// NodeTypeCard is the only node kind the board creates.
const NodeTypeCard = "card"

// Position is a point in graph coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid reports whether both coordinates are finite numbers.
func (p Position) Valid() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// HandlePosition names the side of a node where a handle sits.
type HandlePosition string

const (
	HandleLeft   HandlePosition = "left"
	HandleRight  HandlePosition = "right"
	HandleTop    HandlePosition = "top"
	HandleBottom HandlePosition = "bottom"
)

// Node is a card placed on the board.
type Node struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Position Position `json:"position"`
	Data     CardData `json:"data"`

	// Renderer state
	Selected bool    `json:"selected,omitempty"`
	Dragging bool    `json:"dragging,omitempty"`
	Width    float64 `json:"width,omitempty"`
	Height   float64 `json:"height,omitempty"`

	// Handle orientation, kept in step with the active layout direction
	SourcePosition HandlePosition `json:"sourcePosition,omitempty"`
	TargetPosition HandlePosition `json:"targetPosition,omitempty"`
}

// NewCardNode builds a card node at pos with default (vertical) handles.
func NewCardNode(id string, pos Position, data CardData) Node {
	return Node{
		ID:             id,
		Type:           NodeTypeCard,
		Position:       pos,
		Data:           data.Clone(),
		SourcePosition: HandleBottom,
		TargetPosition: HandleTop,
	}
}

// Validate checks if the Node has valid field values.
func (n *Node) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("id is required")
	}
	if n.Type != "" && n.Type != NodeTypeCard {
		return fmt.Errorf("unsupported node type %q", n.Type)
	}
	if !n.Position.Valid() {
		return fmt.Errorf("position must be finite (got %v,%v)", n.Position.X, n.Position.Y)
	}
	return nil
}

// Orientation returns the layout direction implied by the node's handles.
// A target handle on the left side means the board flows horizontally.
func (n *Node) Orientation() Orientation {
	if n.TargetPosition == HandleLeft {
		return Horizontal
	}
	return Vertical
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	n.Data = n.Data.Clone()
	return n
}
