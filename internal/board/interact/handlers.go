// Package interact turns renderer gestures into graph mutations.
//
// Each gesture arrives as a typed intent (connect, canvas drop, edge drop,
// node click, pane click, delete, viewport change, layout) and is applied
// through the graph store, the persistence adapter, the settings
// synchronizer and the selection coordinator. Handlers never touch the
// renderer directly; the renderer sees results through store events.
package interact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/mschirtzinger/beadboard/internal/board/cards"
	"github.com/mschirtzinger/beadboard/internal/board/fault"
	"github.com/mschirtzinger/beadboard/internal/board/graph"
	"github.com/mschirtzinger/beadboard/internal/board/layout"
	"github.com/mschirtzinger/beadboard/internal/board/metrics"
	"github.com/mschirtzinger/beadboard/internal/board/notify"
	"github.com/mschirtzinger/beadboard/internal/board/persist"
	"github.com/mschirtzinger/beadboard/internal/board/schema"
	"github.com/mschirtzinger/beadboard/internal/board/selection"
	"github.com/mschirtzinger/beadboard/internal/board/settings"
)

// Editor opens the external card editor.
type Editor interface {
	Open(ctx context.Context, cardID string) error
}

// Untitled is the title given to cards created without one.
const Untitled = "Untitled"

// Deps are the components the handlers drive.
type Deps struct {
	Graph     *graph.Store
	Persist   *persist.Adapter
	Settings  *settings.Synchronizer
	Selection *selection.Coordinator

	// Cards creates cards and refreshes the card list (optional)
	Cards cards.Service

	// Editor opens cards on double click (optional)
	Editor Editor
}

// Config holds configuration for the handlers.
type Config struct {
	Grid        layout.GridOptions
	Directional layout.DirectionalOptions

	// IDs generates edge ids (default: wall clock)
	IDs *schema.IDGenerator

	Logger   *log.Logger
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Grid:        layout.DefaultGridOptions(),
		Directional: layout.DefaultDirectionalOptions(),
		IDs:         schema.NewIDGenerator(),
		Logger:      log.New(os.Stderr, "[interact] ", log.LstdFlags),
		Notifier:    notify.Discard,
	}
}

// Handlers applies gestures to the board.
type Handlers struct {
	Deps
	config Config

	viewportMu sync.RWMutex
	viewport   schema.Viewport
}

// New creates handlers over deps. Graph, Persist, Settings and Selection
// are required.
func New(deps Deps, config *Config) (*Handlers, error) {
	switch {
	case deps.Graph == nil:
		return nil, fmt.Errorf("graph store is required")
	case deps.Persist == nil:
		return nil, fmt.Errorf("persistence adapter is required")
	case deps.Settings == nil:
		return nil, fmt.Errorf("settings synchronizer is required")
	case deps.Selection == nil:
		return nil, fmt.Errorf("selection coordinator is required")
	}

	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	cfg := *config
	if cfg.IDs == nil {
		cfg.IDs = defaults.IDs
	}
	if cfg.Grid.Columns <= 0 {
		cfg.Grid = defaults.Grid
	}
	if cfg.Directional.LayerSpacing <= 0 && cfg.Directional.NodeSpacing <= 0 {
		cfg.Directional = defaults.Directional
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard
	}

	return &Handlers{
		Deps:     deps,
		config:   cfg,
		viewport: schema.DefaultViewport(),
	}, nil
}

// Connect adds an edge between two existing nodes. Missing handle ids are
// inferred from the board orientation; supplied ones are normalized. The
// edge is styled from the current settings and the edge list persisted.
func (h *Handlers) Connect(in ConnectIntent) (schema.Edge, error) {
	if err := in.Validate(); err != nil {
		return schema.Edge{}, err
	}
	if !h.Graph.HasNode(in.Source) {
		return schema.Edge{}, fmt.Errorf("%w: source %s", fault.ErrNodeNotFound, in.Source)
	}
	if !h.Graph.HasNode(in.Target) {
		return schema.Edge{}, fmt.Errorf("%w: target %s", fault.ErrNodeNotFound, in.Target)
	}

	srcHandle := schema.NormalizeHandle(in.SourceHandle, schema.HandleSource)
	tgtHandle := schema.NormalizeHandle(in.TargetHandle, schema.HandleTarget)
	if srcHandle == "" || tgtHandle == "" {
		defSrc, defTgt := h.Graph.Orientation().DefaultHandles()
		if srcHandle == "" {
			srcHandle = defSrc
		}
		if tgtHandle == "" {
			tgtHandle = defTgt
		}
	}

	edge := h.Settings.StyleEdge(schema.Edge{
		ID:           h.config.IDs.EdgeID(in.Source, in.Target),
		Source:       in.Source,
		Target:       in.Target,
		SourceHandle: srcHandle,
		TargetHandle: tgtHandle,
	})
	if err := h.Graph.AddEdge(edge); err != nil {
		return schema.Edge{}, err
	}
	h.Persist.SaveEdges(h.Graph.Edges())
	return edge, nil
}

// Drop handles an external card dropped on the canvas at a screen point.
// A card already on the board is moved there instead of duplicated.
// Payloads that are not JSON or carry no id are ignored: Drop returns a nil
// node and no error.
func (h *Handlers) Drop(raw []byte, screen schema.Position) (*schema.Node, error) {
	var payload DropPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.config.Logger.Printf("ignoring drop: payload is not JSON: %v", err)
		return nil, nil
	}
	if payload.ID == "" {
		h.config.Logger.Printf("ignoring drop: payload has no id")
		return nil, nil
	}

	pos := h.Viewport().ScreenToFlow(screen)

	if h.Graph.HasNode(payload.ID) {
		if err := h.Graph.MoveNode(payload.ID, pos, false); err != nil {
			return nil, err
		}
		n, _ := h.Graph.Node(payload.ID)
		return &n, nil
	}

	data := payload.Data
	if data.Title == "" {
		data.Title = Untitled
	}
	card := &schema.Card{ID: payload.ID, Title: data.Title, Content: data.Content, Tags: data.Tags}
	n, err := h.Graph.AddCardNode(card, pos)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// EdgeDrop creates a card and its node where a dragged connection was
// released, then links it to the origin node. Dragging from a source
// handle links origin to new node; from a target handle, new node to
// origin. The card list is refreshed afterwards.
func (h *Handlers) EdgeDrop(ctx context.Context, in EdgeDropIntent) (schema.Node, schema.Edge, error) {
	if err := in.Validate(); err != nil {
		return schema.Node{}, schema.Edge{}, err
	}
	if !h.Graph.HasNode(in.FromNode) {
		return schema.Node{}, schema.Edge{}, fmt.Errorf("%w: %s", fault.ErrNodeNotFound, in.FromNode)
	}

	card := &schema.Card{Title: Untitled}
	if in.Card != nil {
		c := *in.Card
		card = &c
	}
	card, err := h.createCard(ctx, card)
	if err != nil {
		return schema.Node{}, schema.Edge{}, err
	}

	node, err := h.Graph.AddCardNode(card, h.Viewport().ScreenToFlow(in.Position))
	if err != nil {
		return schema.Node{}, schema.Edge{}, err
	}

	const defSrc, defTgt = "right-source", "left-target"
	var edge schema.Edge
	if in.HandleType == schema.HandleTarget {
		edge = schema.Edge{
			Source:       node.ID,
			Target:       in.FromNode,
			SourceHandle: defSrc,
			TargetHandle: orDefault(schema.NormalizeHandle(in.FromHandle, schema.HandleTarget), defTgt),
		}
	} else {
		edge = schema.Edge{
			Source:       in.FromNode,
			Target:       node.ID,
			SourceHandle: orDefault(schema.NormalizeHandle(in.FromHandle, schema.HandleSource), defSrc),
			TargetHandle: defTgt,
		}
	}
	edge.ID = h.config.IDs.EdgeID(edge.Source, edge.Target)
	edge = h.Settings.StyleEdge(edge)

	if err := h.Graph.AddEdge(edge); err != nil {
		return node, schema.Edge{}, err
	}
	h.Persist.SaveEdges(h.Graph.Edges())

	h.RefreshCards(ctx)
	return node, edge, nil
}

// AddCard places a card on the board at a screen point, as when the card
// creation dialog completes. A card without an id is created through the
// card service first.
func (h *Handlers) AddCard(ctx context.Context, card *schema.Card, screen schema.Position) (schema.Node, error) {
	if card == nil {
		return schema.Node{}, fmt.Errorf("%w: card cannot be nil", fault.ErrInvalidPayload)
	}
	if card.ID == "" {
		created, err := h.createCard(ctx, card)
		if err != nil {
			return schema.Node{}, err
		}
		card = created
		defer h.RefreshCards(ctx)
	}
	return h.Graph.AddCardNode(card, h.Viewport().ScreenToFlow(screen))
}

// createCard stores card through the card service, or assigns an id
// locally when there is none.
func (h *Handlers) createCard(ctx context.Context, card *schema.Card) (*schema.Card, error) {
	if card.Title == "" {
		card.Title = Untitled
	}
	if h.Cards == nil {
		if card.ID == "" {
			card.ID = uuid.NewString()
		}
		card.SetDefaults()
		return card, nil
	}

	created, err := h.Cards.CreateCard(ctx, card)
	if err != nil {
		h.config.Metrics.FetchFailure()
		return nil, fault.ExternalFetch("create card", err)
	}
	return created, nil
}

// RefreshCards re-reads the card list and refreshes node data. A failure
// is logged and reported as a retryable notification.
func (h *Handlers) RefreshCards(ctx context.Context) error {
	if h.Cards == nil {
		return nil
	}
	list, err := h.Cards.FetchCards(ctx)
	if err != nil {
		err = fault.ExternalFetch("fetch cards", err)
		h.config.Logger.Printf("Warning: %v", err)
		h.config.Metrics.FetchFailure()
		n := notify.New(notify.LevelWarning, "Failed to load cards", "%v", err)
		n.Retryable = true
		h.config.Notifier.Notify(n)
		return err
	}
	h.Graph.RefreshCards(list)
	return nil
}

// PaneClick handles a click on empty canvas.
func (h *Handlers) PaneClick(additive bool) {
	h.Selection.PaneClick(additive)
}

// NodeClick handles a click on a node. Clicks on controls inside the node
// are ignored; a double click opens the editor instead of selecting.
func (h *Handlers) NodeClick(ctx context.Context, in NodeClickIntent) error {
	if in.FromControl || in.ID == "" {
		return nil
	}
	if in.Detail == 2 {
		if h.Editor == nil {
			return nil
		}
		return h.Editor.Open(ctx, in.ID)
	}
	h.Selection.Toggle(in.ID, in.Additive)
	return nil
}

// Delete removes nodes (with their edges) and edges. Unknown ids are
// skipped. The persisted edge list is rewritten afterwards.
func (h *Handlers) Delete(nodeIDs, edgeIDs []string) graph.Result {
	var res graph.Result

	if len(nodeIDs) > 0 {
		changes := make([]graph.NodeChange, len(nodeIDs))
		for i, id := range nodeIDs {
			changes[i] = graph.NodeChange{Type: graph.ChangeRemove, ID: id}
		}
		res = merge(res, h.Graph.ApplyNodeChanges(changes))
		h.Selection.Forget(nodeIDs...)
	}

	if len(edgeIDs) > 0 {
		changes := make([]graph.EdgeChange, 0, len(edgeIDs))
		for _, id := range edgeIDs {
			// Already gone with a removed node.
			if _, ok := h.Graph.Edge(id); !ok && len(nodeIDs) > 0 {
				continue
			}
			changes = append(changes, graph.EdgeChange{Type: graph.ChangeRemove, ID: id})
		}
		if len(changes) > 0 {
			res = merge(res, h.Graph.ApplyEdgeChanges(changes))
			h.Persist.SaveEdges(h.Graph.Edges())
		}
	}
	return res
}

// ViewportChanged records and persists the viewport.
func (h *Handlers) ViewportChanged(v schema.Viewport) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %v", fault.ErrInvalidPayload, err)
	}
	h.SetViewport(v)
	h.Persist.SaveViewport(v)
	return nil
}

// Viewport returns the last known viewport.
func (h *Handlers) Viewport() schema.Viewport {
	h.viewportMu.RLock()
	defer h.viewportMu.RUnlock()
	return h.viewport
}

// SetViewport replaces the viewport without persisting it.
func (h *Handlers) SetViewport(v schema.Viewport) {
	h.viewportMu.Lock()
	defer h.viewportMu.Unlock()
	h.viewport = v
}

// ErrUnknownLayout is returned for a layout kind ApplyLayout does not know.
var ErrUnknownLayout = errors.New("unknown layout")

// ApplyLayout recomputes every node position. Grid keeps handle sides;
// the directional layouts also switch handle sides and edge handle ids.
func (h *Handlers) ApplyLayout(kind layout.Kind) error {
	nodes, edges := h.Graph.Nodes(), h.Graph.Edges()

	switch kind {
	case layout.KindGrid:
		h.Graph.ApplyLayout(layout.Grid(nodes, h.config.Grid), nil)
	case layout.KindHorizontal:
		n, e := layout.Directional(nodes, edges, schema.Horizontal, h.config.Directional)
		h.Graph.ApplyLayout(n, e)
	case layout.KindVertical:
		n, e := layout.Directional(nodes, edges, schema.Vertical, h.config.Directional)
		h.Graph.ApplyLayout(n, e)
	default:
		return fmt.Errorf("%w %q (want grid, horizontal or vertical)", ErrUnknownLayout, kind)
	}
	return nil
}

func merge(a, b graph.Result) graph.Result {
	a.Applied += b.Applied
	a.Skipped += b.Skipped
	a.Errors = append(a.Errors, b.Errors...)
	return a
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
