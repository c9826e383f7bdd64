package interact

import (
	"fmt"

	"github.com/mschirtzinger/beadboard/internal/board/fault"
	"github.com/mschirtzinger/beadboard/internal/board/schema"
)

// ConnectIntent asks for an edge between two existing nodes. Handle ids
// are optional.
type ConnectIntent struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Validate checks the intent before any node lookup.
func (c ConnectIntent) Validate() error {
	if c.Source == "" || c.Target == "" {
		return fmt.Errorf("%w: connect needs source and target", fault.ErrInvalidChange)
	}
	if c.Source == c.Target {
		return fault.ErrSelfConnection
	}
	return nil
}

// DropPayload is what an external card drag carries.
type DropPayload struct {
	ID   string          `json:"id"`
	Data schema.CardData `json:"data"`
}

// EdgeDropIntent describes a connection dragged off a node's handle and
// released on empty canvas.
type EdgeDropIntent struct {
	FromNode   string            `json:"fromNode"`
	FromHandle string            `json:"fromHandle,omitempty"`
	HandleType schema.HandleType `json:"handleType"`
	// Position is the release point in screen coordinates.
	Position schema.Position `json:"position"`
	// Card is the card to create; nil creates an untitled card.
	Card *schema.Card `json:"card,omitempty"`
}

// Validate checks the intent before any node lookup.
func (e EdgeDropIntent) Validate() error {
	if e.FromNode == "" {
		return fmt.Errorf("%w: edge drop needs an origin node", fault.ErrInvalidChange)
	}
	switch e.HandleType {
	case schema.HandleSource, schema.HandleTarget:
	default:
		return fmt.Errorf("%w: unknown handle type %q", fault.ErrInvalidChange, e.HandleType)
	}
	if !e.Position.Valid() {
		return fmt.Errorf("%w: position must be finite", fault.ErrInvalidChange)
	}
	return nil
}

// NodeClickIntent is a click on a node.
type NodeClickIntent struct {
	ID string `json:"id"`
	// Detail is the click count; 2 means double click.
	Detail   int  `json:"detail"`
	Additive bool `json:"additive,omitempty"`
	// FromControl is set when the click landed on a button or link inside
	// the node.
	FromControl bool `json:"fromControl,omitempty"`
}
