package bridge

import (
	"encoding/json"
	"time"

	"github.com/mschirtzinger/beadboard/internal/board/graph"
	"github.com/mschirtzinger/beadboard/internal/board/interact"
	"github.com/mschirtzinger/beadboard/internal/board/layout"
	"github.com/mschirtzinger/beadboard/internal/board/notify"
	"github.com/mschirtzinger/beadboard/internal/board/schema"
	"github.com/mschirtzinger/beadboard/internal/board/settings"
)

// MessageType defines the type of bridge message
type MessageType string

// Server to client.
const (
	// MessageTypeInit carries the full board state to a new client
	MessageTypeInit MessageType = "init"

	// MessageTypeNodes carries the full node list after it changed
	MessageTypeNodes MessageType = "nodes"

	// MessageTypeEdges carries the full edge list after it changed
	MessageTypeEdges MessageType = "edges"

	MessageTypeSettings     MessageType = "settings"
	MessageTypeSelection    MessageType = "selection"
	MessageTypeViewport     MessageType = "viewport"
	MessageTypeNotification MessageType = "notification"
	MessageTypeOpenEditor   MessageType = "open_editor"

	// MessageTypeError reports a rejected intent to its sender, or a card
	// fetch failure to everyone
	MessageTypeError MessageType = "error"
)

// Client to server.
const (
	IntentNodeChanges     MessageType = "node_changes"
	IntentEdgeChanges     MessageType = "edge_changes"
	IntentConnect         MessageType = "connect"
	IntentDrop            MessageType = "drop"
	IntentEdgeDrop        MessageType = "edge_drop"
	IntentNodeClick       MessageType = "node_click"
	IntentPaneClick       MessageType = "pane_click"
	IntentSelectionChange MessageType = "selection_change"
	IntentDelete          MessageType = "delete"
	IntentViewport        MessageType = "viewport"
	IntentSettingsPatch   MessageType = "settings_patch"
	IntentGridSize        MessageType = "grid_size"
	IntentSave            MessageType = "save"
	IntentLayout          MessageType = "layout"
	IntentRetry           MessageType = "retry"
	IntentUnload          MessageType = "unload"
)

// Message is the envelope for everything sent over /ws. ID is an optional
// client-chosen request id echoed back in error replies.
type Message struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// InitData is the full board state.
type InitData struct {
	Nodes     []schema.Node          `json:"nodes"`
	Edges     []schema.Edge          `json:"edges"`
	Settings  settings.BoardSettings `json:"settings"`
	Selection []string               `json:"selection"`
	Viewport  schema.Viewport        `json:"viewport"`
	Unsaved   bool                   `json:"unsaved"`
	Error     *ErrorData             `json:"error,omitempty"`
}

// ErrorData describes a failure.
type ErrorData struct {
	RequestID string `json:"request_id,omitempty"`
	Intent    string `json:"intent,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// OpenEditorData names the card to open.
type OpenEditorData struct {
	CardID string `json:"card_id"`
}

// SelectionData is both the selection broadcast and the selection_change
// intent.
type SelectionData struct {
	IDs []string `json:"ids"`
}

// NotificationData is a notification broadcast.
type NotificationData = notify.Notification

// Intent payloads. Types shared with the handlers are used directly.
type (
	NodeChangesData []graph.NodeChange
	EdgeChangesData []graph.EdgeChange
	ConnectData     = interact.ConnectIntent
	EdgeDropData    = interact.EdgeDropIntent
	NodeClickData   = interact.NodeClickIntent
)

// DropData is an external card dropped on the canvas. Payload is passed
// through untouched so malformed drags are ignored the same way as in the
// handlers.
type DropData struct {
	Payload  json.RawMessage `json:"payload"`
	Position schema.Position `json:"position"`
}

type PaneClickData struct {
	Additive bool `json:"additive,omitempty"`
}

type DeleteData struct {
	Nodes []string `json:"nodes,omitempty"`
	Edges []string `json:"edges,omitempty"`
}

type GridSizeData struct {
	Size float64 `json:"size"`
}

type LayoutData struct {
	Kind layout.Kind `json:"kind"`
}

// NewMessage marshals data into a timestamped message.
func NewMessage(typ MessageType, data any) (Message, error) {
	msg := Message{Type: typ, Timestamp: time.Now()}
	if data == nil {
		return msg, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	msg.Data = raw
	return msg, nil
}
