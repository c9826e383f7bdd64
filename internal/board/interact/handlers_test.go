package interact

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mschirtzinger/beadboard/internal/board/cards"
	"github.com/mschirtzinger/beadboard/internal/board/fault"
	"github.com/mschirtzinger/beadboard/internal/board/graph"
	"github.com/mschirtzinger/beadboard/internal/board/kv"
	"github.com/mschirtzinger/beadboard/internal/board/layout"
	"github.com/mschirtzinger/beadboard/internal/board/notify"
	"github.com/mschirtzinger/beadboard/internal/board/persist"
	"github.com/mschirtzinger/beadboard/internal/board/schema"
	"github.com/mschirtzinger/beadboard/internal/board/selection"
	"github.com/mschirtzinger/beadboard/internal/board/settings"
)

type recordingEditor struct {
	opened []string
}

func (e *recordingEditor) Open(ctx context.Context, id string) error {
	e.opened = append(e.opened, id)
	return nil
}

type testBoard struct {
	h       *Handlers
	graph   *graph.Store
	persist *persist.Adapter
	cards   *cards.Memory
	editor  *recordingEditor
	notes   *notify.Recorder
}

func setupBoard(t *testing.T) *testBoard {
	t.Helper()

	quiet := log.New(io.Discard, "", 0)
	adapter, err := persist.New(kv.NewMemory(), &persist.Config{Logger: quiet})
	if err != nil {
		t.Fatalf("persist.New() failed: %v", err)
	}
	g := graph.New(&graph.Config{Persister: adapter, Logger: quiet})

	sync, err := settings.New(g, nil, settings.Defaults(), &settings.Config{Logger: quiet})
	if err != nil {
		t.Fatalf("settings.New() failed: %v", err)
	}
	notes := &notify.Recorder{}
	sel, err := selection.New(g, &selection.Config{Notifier: notes, Logger: quiet})
	if err != nil {
		t.Fatalf("selection.New() failed: %v", err)
	}

	svc := cards.NewMemory()
	editor := &recordingEditor{}
	clock := time.UnixMilli(1700000000000)
	h, err := New(Deps{
		Graph:     g,
		Persist:   adapter,
		Settings:  sync,
		Selection: sel,
		Cards:     svc,
		Editor:    editor,
	}, &Config{
		IDs:      schema.NewIDGeneratorWithClock(func() time.Time { return clock }),
		Logger:   quiet,
		Notifier: notes,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	return &testBoard{h: h, graph: g, persist: adapter, cards: svc, editor: editor, notes: notes}
}

func (b *testBoard) addNode(t *testing.T, id string, orientation schema.Orientation) {
	t.Helper()
	n := schema.NewCardNode(id, schema.Position{}, schema.CardData{Title: id})
	n.SourcePosition, n.TargetPosition = orientation.HandlePositions()
	if err := b.graph.AddNode(n); err != nil {
		t.Fatalf("AddNode(%s) failed: %v", id, err)
	}
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Deps{}, nil); err == nil {
		t.Error("New() with no deps succeeded")
	}
}

func TestConnectInfersHorizontalHandles(t *testing.T) {
	b := setupBoard(t)
	b.addNode(t, "a", schema.Horizontal)
	b.addNode(t, "b", schema.Horizontal)

	edge, err := b.h.Connect(ConnectIntent{Source: "a", Target: "b"})
	if err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	if edge.SourceHandle != "right-source" || edge.TargetHandle != "left-target" {
		t.Errorf("handles = %s/%s, want right-source/left-target", edge.SourceHandle, edge.TargetHandle)
	}
	if edge.ID != "a-b-1700000000000" {
		t.Errorf("edge id = %s", edge.ID)
	}
	if diff := cmp.Diff(settings.StyleEdge(edge, settings.Defaults()), edge); diff != "" {
		t.Errorf("edge not styled from settings (-want +got):\n%s", diff)
	}
	if !b.graph.Unsaved() {
		t.Error("Connect() did not mark the board unsaved")
	}

	persisted := b.persist.LoadEdges()
	if len(persisted) != 1 || persisted[0].ID != edge.ID {
		t.Errorf("persisted edges = %v", persisted)
	}

	// Same pair again gets a distinct id.
	again, err := b.h.Connect(ConnectIntent{Source: "a", Target: "b"})
	if err != nil {
		t.Fatalf("second Connect() failed: %v", err)
	}
	if again.ID == edge.ID {
		t.Errorf("reconnect reused id %s", edge.ID)
	}
}

func TestConnectVerticalAndNormalize(t *testing.T) {
	b := setupBoard(t)
	b.addNode(t, "a", schema.Vertical)
	b.addNode(t, "b", schema.Vertical)

	edge, err := b.h.Connect(ConnectIntent{Source: "a", Target: "b", SourceHandle: "right"})
	if err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	if edge.SourceHandle != "right-source" || edge.TargetHandle != "top-target" {
		t.Errorf("handles = %s/%s, want right-source/top-target", edge.SourceHandle, edge.TargetHandle)
	}
}

func TestConnectRejects(t *testing.T) {
	b := setupBoard(t)
	b.addNode(t, "a", schema.Vertical)

	if _, err := b.h.Connect(ConnectIntent{Source: "a", Target: "a"}); !errors.Is(err, fault.ErrSelfConnection) {
		t.Errorf("self connection error = %v", err)
	}
	if _, err := b.h.Connect(ConnectIntent{Source: "a", Target: "ghost"}); !errors.Is(err, fault.ErrNodeNotFound) {
		t.Errorf("unknown target error = %v", err)
	}
	if _, e := b.graph.Len(); e != 0 {
		t.Errorf("rejected connects left %d edges", e)
	}
}

func TestDropCreatesThenMoves(t *testing.T) {
	b := setupBoard(t)
	payload := []byte(`{"id":"c1","data":{"title":"Card one"}}`)

	n, err := b.h.Drop(payload, schema.Position{X: 120, Y: 80})
	if err != nil || n == nil {
		t.Fatalf("Drop() = %v, %v", n, err)
	}
	if n.Position != (schema.Position{X: 120, Y: 80}) || n.Data.Title != "Card one" {
		t.Errorf("dropped node = %+v", n)
	}

	n, err = b.h.Drop(payload, schema.Position{X: 300, Y: 300})
	if err != nil || n == nil {
		t.Fatalf("second Drop() = %v, %v", n, err)
	}
	if nodes, _ := b.graph.Len(); nodes != 1 {
		t.Fatalf("graph has %d nodes, want 1", nodes)
	}
	got, _ := b.graph.Node("c1")
	if got.Position != (schema.Position{X: 300, Y: 300}) {
		t.Errorf("c1 at %v, want (300,300)", got.Position)
	}
}

func TestDropMapsThroughViewport(t *testing.T) {
	b := setupBoard(t)
	if err := b.h.ViewportChanged(schema.Viewport{X: 100, Y: 50, Zoom: 2}); err != nil {
		t.Fatalf("ViewportChanged() failed: %v", err)
	}

	n, err := b.h.Drop([]byte(`{"id":"c1","data":{"title":"x"}}`), schema.Position{X: 300, Y: 250})
	if err != nil {
		t.Fatalf("Drop() failed: %v", err)
	}
	if n.Position != (schema.Position{X: 100, Y: 100}) {
		t.Errorf("flow position = %v, want (100,100)", n.Position)
	}

	if v, ok := b.persist.LoadViewport(); !ok || v.Zoom != 2 {
		t.Errorf("persisted viewport = %v, %v", v, ok)
	}
}

func TestDropIgnoresMalformed(t *testing.T) {
	b := setupBoard(t)
	for _, raw := range []string{"not json", `{"data":{"title":"no id"}}`, ""} {
		n, err := b.h.Drop([]byte(raw), schema.Position{})
		if n != nil || err != nil {
			t.Errorf("Drop(%q) = %v, %v; want nil, nil", raw, n, err)
		}
	}
	if nodes, _ := b.graph.Len(); nodes != 0 {
		t.Errorf("malformed drops created %d nodes", nodes)
	}
}

func TestEdgeDrop(t *testing.T) {
	tests := []struct {
		name       string
		handleType schema.HandleType
		fromHandle string
		wantSource string // "from" or "new"
		wantSrcH   string
		wantTgtH   string
	}{
		{"from source handle", schema.HandleSource, "", "from", "right-source", "left-target"},
		{"from named source handle", schema.HandleSource, "bottom", "from", "bottom-source", "left-target"},
		{"from target handle", schema.HandleTarget, "", "new", "right-source", "left-target"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := setupBoard(t)
			b.addNode(t, "origin", schema.Vertical)

			node, edge, err := b.h.EdgeDrop(context.Background(), EdgeDropIntent{
				FromNode:   "origin",
				FromHandle: tt.fromHandle,
				HandleType: tt.handleType,
				Position:   schema.Position{X: 400, Y: 100},
				Card:       &schema.Card{Title: "Follow-up"},
			})
			if err != nil {
				t.Fatalf("EdgeDrop() failed: %v", err)
			}
			if node.ID == "" || node.Position != (schema.Position{X: 400, Y: 100}) {
				t.Errorf("new node = %+v", node)
			}

			wantSource, wantTarget := "origin", node.ID
			if tt.wantSource == "new" {
				wantSource, wantTarget = node.ID, "origin"
			}
			if edge.Source != wantSource || edge.Target != wantTarget {
				t.Errorf("edge %s -> %s, want %s -> %s", edge.Source, edge.Target, wantSource, wantTarget)
			}
			if edge.SourceHandle != tt.wantSrcH || edge.TargetHandle != tt.wantTgtH {
				t.Errorf("handles = %s/%s, want %s/%s", edge.SourceHandle, edge.TargetHandle, tt.wantSrcH, tt.wantTgtH)
			}

			stored, err := b.cards.FetchCards(context.Background())
			if err != nil || len(stored) != 1 || stored[0].ID != node.ID {
				t.Errorf("card service holds %v, %v", stored, err)
			}
		})
	}
}

func TestEdgeDropCardServiceFailure(t *testing.T) {
	b := setupBoard(t)
	b.addNode(t, "origin", schema.Vertical)
	b.cards.FailWith(errors.New("offline"))

	_, _, err := b.h.EdgeDrop(context.Background(), EdgeDropIntent{
		FromNode:   "origin",
		HandleType: schema.HandleSource,
	})
	if !errors.Is(err, fault.ErrExternalFetch) {
		t.Fatalf("EdgeDrop() error = %v, want ErrExternalFetch", err)
	}
	if nodes, edges := b.graph.Len(); nodes != 1 || edges != 0 {
		t.Errorf("failed edge drop left %d nodes, %d edges", nodes, edges)
	}
}

func TestRefreshCardsFailureNotifies(t *testing.T) {
	b := setupBoard(t)
	b.cards.FailWith(errors.New("offline"))

	if err := b.h.RefreshCards(context.Background()); !fault.IsRetryable(err) {
		t.Fatalf("RefreshCards() error = %v, want retryable", err)
	}
	all := b.notes.All()
	if len(all) != 1 || !all[0].Retryable {
		t.Errorf("notifications = %+v", all)
	}
}

func TestNodeClick(t *testing.T) {
	b := setupBoard(t)
	b.addNode(t, "a", schema.Vertical)
	b.addNode(t, "b", schema.Vertical)
	ctx := context.Background()

	b.h.NodeClick(ctx, NodeClickIntent{ID: "a", Detail: 1})
	if diff := cmp.Diff([]string{"a"}, b.h.Selection.Selected()); diff != "" {
		t.Errorf("after click (-want +got):\n%s", diff)
	}

	b.h.NodeClick(ctx, NodeClickIntent{ID: "b", Detail: 1, FromControl: true})
	if diff := cmp.Diff([]string{"a"}, b.h.Selection.Selected()); diff != "" {
		t.Errorf("control click changed selection (-want +got):\n%s", diff)
	}

	b.h.NodeClick(ctx, NodeClickIntent{ID: "b", Detail: 2})
	if diff := cmp.Diff([]string{"b"}, b.editor.opened); diff != "" {
		t.Errorf("editor opened (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a"}, b.h.Selection.Selected()); diff != "" {
		t.Errorf("double click changed selection (-want +got):\n%s", diff)
	}

	b.h.NodeClick(ctx, NodeClickIntent{ID: "b", Detail: 1, Additive: true})
	b.h.PaneClick(false)
	if len(b.h.Selection.Selected()) != 0 {
		t.Errorf("pane click left %v selected", b.h.Selection.Selected())
	}
}

func TestDeleteCascades(t *testing.T) {
	b := setupBoard(t)
	for _, id := range []string{"n1", "n2", "n3"} {
		b.addNode(t, id, schema.Vertical)
	}
	e1, _ := b.h.Connect(ConnectIntent{Source: "n1", Target: "n2"})
	e2, _ := b.h.Connect(ConnectIntent{Source: "n3", Target: "n1"})
	e3, _ := b.h.Connect(ConnectIntent{Source: "n2", Target: "n3"})
	b.persist.SaveLayout(b.graph.Nodes())
	b.h.Selection.OnCanonicalSelectionChanged([]string{"n1"})

	res := b.h.Delete([]string{"n1"}, []string{e1.ID})
	if res.Err() != nil {
		t.Fatalf("Delete() errors: %v", res.Err())
	}

	for _, id := range []string{e1.ID, e2.ID} {
		if _, ok := b.graph.Edge(id); ok {
			t.Errorf("edge %s survived in memory", id)
		}
	}
	persisted := b.persist.LoadEdges()
	if len(persisted) != 1 || persisted[0].ID != e3.ID {
		t.Errorf("persisted edges = %v, want only %s", persisted, e3.ID)
	}
	if _, ok := b.persist.LoadLayout()["n1"]; ok {
		t.Error("n1 still in persisted layout")
	}
	if len(b.h.Selection.Selected()) != 0 {
		t.Errorf("deleted node still selected: %v", b.h.Selection.Selected())
	}
}

func TestDeleteEdgeOnly(t *testing.T) {
	b := setupBoard(t)
	b.addNode(t, "a", schema.Vertical)
	b.addNode(t, "b", schema.Vertical)
	e, _ := b.h.Connect(ConnectIntent{Source: "a", Target: "b"})

	res := b.h.Delete(nil, []string{e.ID, "ghost"})
	if res.Applied != 1 || res.Skipped != 1 {
		t.Errorf("Delete() = %+v, want 1 applied, 1 skipped", res)
	}
	if len(b.persist.LoadEdges()) != 0 {
		t.Error("deleted edge still persisted")
	}
}

func TestAddCard(t *testing.T) {
	b := setupBoard(t)

	n, err := b.h.AddCard(context.Background(), &schema.Card{Title: "Fresh"}, schema.Position{X: 10, Y: 20})
	if err != nil {
		t.Fatalf("AddCard() failed: %v", err)
	}
	if n.ID == "" || n.Data.Title != "Fresh" {
		t.Errorf("AddCard() node = %+v", n)
	}

	existing := &schema.Card{ID: "known", Title: "Known"}
	if _, err := b.h.AddCard(context.Background(), existing, schema.Position{}); err != nil {
		t.Fatalf("AddCard(existing) failed: %v", err)
	}
	if !b.graph.HasNode("known") {
		t.Error("existing card not placed")
	}
	if _, err := b.h.AddCard(context.Background(), nil, schema.Position{}); !errors.Is(err, fault.ErrInvalidPayload) {
		t.Errorf("AddCard(nil) error = %v", err)
	}
}

func TestApplyLayout(t *testing.T) {
	b := setupBoard(t)
	b.addNode(t, "a", schema.Vertical)
	b.addNode(t, "b", schema.Vertical)
	if _, err := b.h.Connect(ConnectIntent{Source: "a", Target: "b"}); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}

	if err := b.h.ApplyLayout(layout.KindHorizontal); err != nil {
		t.Fatalf("ApplyLayout() failed: %v", err)
	}
	if b.graph.Orientation() != schema.Horizontal {
		t.Errorf("orientation = %s after horizontal layout", b.graph.Orientation())
	}
	bNode, _ := b.graph.Node("b")
	if bNode.Position.X != 300 {
		t.Errorf("b at %v, want x=300", bNode.Position)
	}
	for _, e := range b.graph.Edges() {
		if e.SourceHandle != "right-source" || e.TargetHandle != "left-target" {
			t.Errorf("edge handles = %s/%s", e.SourceHandle, e.TargetHandle)
		}
	}

	// Connecting after the switch infers horizontal handles.
	b.addNode(t, "c", schema.Horizontal)
	e, err := b.h.Connect(ConnectIntent{Source: "b", Target: "c"})
	if err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	if e.SourceHandle != "right-source" {
		t.Errorf("post-layout connect handle = %s", e.SourceHandle)
	}

	if err := b.h.ApplyLayout(layout.KindGrid); err != nil {
		t.Fatalf("ApplyLayout(grid) failed: %v", err)
	}
	if err := b.h.ApplyLayout("spiral"); !errors.Is(err, ErrUnknownLayout) {
		t.Errorf("ApplyLayout(spiral) error = %v", err)
	}
}
