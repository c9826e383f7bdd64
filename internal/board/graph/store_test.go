package graph

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mschirtzinger/beadboard/internal/board/fault"
	"github.com/mschirtzinger/beadboard/internal/board/kv"
	"github.com/mschirtzinger/beadboard/internal/board/metrics"
	"github.com/mschirtzinger/beadboard/internal/board/persist"
	"github.com/mschirtzinger/beadboard/internal/board/schema"
)

// setupTestStore returns a store backed by an in-memory persistence adapter.
func setupTestStore(t *testing.T) (*Store, *persist.Adapter) {
	t.Helper()

	quiet := log.New(io.Discard, "", 0)
	adapter, err := persist.New(kv.NewMemory(), &persist.Config{Logger: quiet})
	if err != nil {
		t.Fatalf("persist.New() failed: %v", err)
	}
	return New(&Config{Persister: adapter, Logger: quiet}), adapter
}

func node(id string, x, y float64) schema.Node {
	return schema.NewCardNode(id, schema.Position{X: x, Y: y}, schema.CardData{Title: id})
}

func edge(id, source, target string) schema.Edge {
	return schema.Edge{ID: id, Source: source, Target: target}
}

// assertNoDangling fails if any edge references a missing node.
func assertNoDangling(t *testing.T, s *Store) {
	t.Helper()
	ids := make(map[string]bool)
	for _, n := range s.Nodes() {
		ids[n.ID] = true
	}
	for _, e := range s.Edges() {
		if !ids[e.Source] || !ids[e.Target] {
			t.Fatalf("dangling edge %s (%s -> %s)", e.ID, e.Source, e.Target)
		}
	}
}

func edgeIDs(edges []schema.Edge) []string {
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.ID)
	}
	return ids
}

// TestCascadeDelete covers removing a node with incoming and outgoing edges.
func TestCascadeDelete(t *testing.T) {
	s, adapter := setupTestStore(t)

	for _, n := range []schema.Node{node("n1", 0, 0), node("n2", 100, 0), node("n3", 200, 0)} {
		if err := s.AddNode(n); err != nil {
			t.Fatalf("AddNode(%s) failed: %v", n.ID, err)
		}
	}
	for _, e := range []schema.Edge{edge("e1", "n1", "n2"), edge("e2", "n3", "n1"), edge("e3", "n2", "n3")} {
		if err := s.AddEdge(e); err != nil {
			t.Fatalf("AddEdge(%s) failed: %v", e.ID, err)
		}
	}
	adapter.SaveLayout(s.Nodes())
	adapter.SaveEdges(s.Edges())

	if err := s.RemoveNode("n1"); err != nil {
		t.Fatalf("RemoveNode() failed: %v", err)
	}

	if s.HasNode("n1") {
		t.Error("n1 still present")
	}
	if diff := cmp.Diff([]string{"e3"}, edgeIDs(s.Edges())); diff != "" {
		t.Errorf("in-memory edges mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"e3"}, edgeIDs(adapter.LoadEdges())); diff != "" {
		t.Errorf("persisted edges mismatch (-want +got):\n%s", diff)
	}
	if _, ok := adapter.LoadLayout()["n1"]; ok {
		t.Error("n1 still in persisted layout")
	}
	if !s.Unsaved() {
		t.Error("removal should mark the board unsaved")
	}
}

func TestMalformedChangesSkipped(t *testing.T) {
	s, _ := setupTestStore(t)
	n := node("a", 0, 0)
	pos := schema.Position{X: 5, Y: 5}

	res := s.ApplyNodeChanges([]NodeChange{
		{Type: ChangeAdd},
		{Type: ChangeAdd, ID: "a", Item: &n},
		{Type: ChangePosition, ID: ""},
		{Type: "teleport", ID: "a"},
		{Type: ChangePosition, ID: "a", Position: &pos},
		{Type: ChangeRemove, ID: "missing"},
	})

	if res.Applied != 2 || res.Skipped != 4 {
		t.Errorf("Applied=%d Skipped=%d, want 2 and 4", res.Applied, res.Skipped)
	}
	got, ok := s.Node("a")
	if !ok || got.Position != pos {
		t.Errorf("node a = %+v, %v", got, ok)
	}
	if res.Err() == nil {
		t.Error("Err() should report skipped entries")
	}
}

func TestIntegrityViolationsRejected(t *testing.T) {
	s, _ := setupTestStore(t)
	_ = s.AddNode(node("a", 0, 0))
	_ = s.AddNode(node("b", 0, 0))

	if err := s.AddNode(node("a", 1, 1)); !errors.Is(err, fault.ErrDuplicateID) {
		t.Errorf("duplicate node error = %v", err)
	}

	e := edge("e1", "a", "b")
	ghost := edge("e2", "a", "ghost")
	dup := edge("e1", "b", "a")
	res := s.ApplyEdgeChanges([]EdgeChange{
		{Type: ChangeAdd, Item: &e},
		{Type: ChangeAdd, Item: &ghost},
		{Type: ChangeAdd, Item: &dup},
	})

	if res.Applied != 1 || res.Skipped != 2 {
		t.Errorf("Applied=%d Skipped=%d, want 1 and 2", res.Applied, res.Skipped)
	}
	if !errors.Is(res.Errors[0], fault.ErrDanglingEdge) {
		t.Errorf("first error = %v, want dangling", res.Errors[0])
	}
	if !errors.Is(res.Errors[1], fault.ErrDuplicateID) {
		t.Errorf("second error = %v, want duplicate", res.Errors[1])
	}
	assertNoDangling(t, s)
}

func TestEdgeHandlesNormalized(t *testing.T) {
	s, _ := setupTestStore(t)
	_ = s.AddNode(node("a", 0, 0))
	_ = s.AddNode(node("b", 0, 0))

	e := edge("e1", "a", "b")
	e.SourceHandle, e.TargetHandle = "right", "left"
	if err := s.AddEdge(e); err != nil {
		t.Fatalf("AddEdge() failed: %v", err)
	}

	got, _ := s.Edge("e1")
	if got.SourceHandle != "right-source" || got.TargetHandle != "left-target" {
		t.Errorf("handles = %q/%q", got.SourceHandle, got.TargetHandle)
	}
}

// TestDragMarksUnsavedOnlyAtEnd covers end-of-drag-only persistence.
func TestDragMarksUnsavedOnlyAtEnd(t *testing.T) {
	s, _ := setupTestStore(t)
	s.Reset([]schema.Node{node("a", 0, 0)}, nil)

	if s.Unsaved() {
		t.Fatal("board should start saved after Reset()")
	}

	for i := 1; i <= 3; i++ {
		if err := s.MoveNode("a", schema.Position{X: float64(i), Y: 0}, true); err != nil {
			t.Fatalf("MoveNode() failed: %v", err)
		}
	}
	if s.Unsaved() {
		t.Error("in-flight drag frames must not mark unsaved")
	}
	if n, _ := s.Node("a"); !n.Dragging || n.Position.X != 3 {
		t.Errorf("node during drag = %+v", n)
	}

	if err := s.MoveNode("a", schema.Position{X: 4, Y: 0}, false); err != nil {
		t.Fatalf("MoveNode() failed: %v", err)
	}
	if !s.Unsaved() {
		t.Error("drag end should mark unsaved")
	}
	if n, _ := s.Node("a"); n.Dragging {
		t.Error("dragging flag should clear at drag end")
	}
}

func TestSnapshotGeneration(t *testing.T) {
	s, _ := setupTestStore(t)
	_ = s.AddNode(node("a", 0, 0))

	_, _, gen := s.Snapshot()
	_ = s.MoveNode("a", schema.Position{X: 9, Y: 9}, false)
	s.MarkSaved(gen)

	if !s.Unsaved() {
		t.Error("a mutation after the snapshot must keep the board unsaved")
	}

	_, _, gen = s.Snapshot()
	s.MarkSaved(gen)
	if s.Unsaved() {
		t.Error("MarkSaved() with the latest generation should clear unsaved")
	}
}

func TestSubscribe(t *testing.T) {
	s, _ := setupTestStore(t)

	var events []Event
	unsubscribe := s.Subscribe(func(ev Event) { events = append(events, ev) })

	_ = s.AddNode(node("a", 0, 0))
	_ = s.AddNode(node("b", 0, 0))
	_ = s.AddEdge(edge("e1", "a", "b"))
	_ = s.RemoveNode("a")

	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	last := events[3]
	if !last.NodesChanged || !last.EdgesChanged {
		t.Errorf("cascade event = %+v, want nodes and edges changed", last)
	}
	if len(last.Edges) != 0 || len(last.Nodes) != 1 {
		t.Errorf("cascade event carries %d nodes, %d edges", len(last.Nodes), len(last.Edges))
	}

	// No-op batches do not notify.
	s.ApplyNodeChanges([]NodeChange{{Type: ChangeRemove, ID: "missing"}})
	if len(events) != 4 {
		t.Errorf("skipped-only batch produced an event")
	}

	unsubscribe()
	_ = s.AddNode(node("c", 0, 0))
	if len(events) != 4 {
		t.Error("event delivered after unsubscribe")
	}
}

func TestUpdateEdgesPreservesIdentity(t *testing.T) {
	s, _ := setupTestStore(t)
	s.Reset([]schema.Node{node("a", 0, 0), node("b", 0, 0)}, []schema.Edge{edge("e1", "a", "b")})

	s.UpdateEdges(func(e schema.Edge) schema.Edge {
		e.ID, e.Source = "hijack", "b"
		e.Style.StrokeWidth = 7
		return e
	})

	got, ok := s.Edge("e1")
	if !ok {
		t.Fatal("edge e1 lost its id")
	}
	if got.Source != "a" || got.Style.StrokeWidth != 7 {
		t.Errorf("edge = %+v", got)
	}
	if s.Unsaved() {
		t.Error("restyle should not mark unsaved")
	}
}

func TestEdgeSelectAppliesStyler(t *testing.T) {
	s, _ := setupTestStore(t)
	s.Reset([]schema.Node{node("a", 0, 0), node("b", 0, 0)}, []schema.Edge{edge("e1", "a", "b")})
	s.SetEdgeStyler(func(e schema.Edge) schema.Edge {
		e.Style.Stroke = "plain"
		if e.Selected {
			e.Style.Stroke = "highlight"
		}
		e.ID = "hijack"
		return e
	})

	s.ApplyEdgeChanges([]EdgeChange{{Type: ChangeSelect, ID: "e1", Selected: true}})
	got, ok := s.Edge("e1")
	if !ok {
		t.Fatal("edge e1 lost its id")
	}
	if !got.Selected || got.Style.Stroke != "highlight" {
		t.Errorf("selected edge = %+v", got)
	}

	s.ApplyEdgeChanges([]EdgeChange{{Type: ChangeSelect, ID: "e1", Selected: false}})
	if got, _ := s.Edge("e1"); got.Selected || got.Style.Stroke != "plain" {
		t.Errorf("deselected edge = %+v", got)
	}
	if s.Unsaved() {
		t.Error("edge selection should not mark unsaved")
	}
}

func TestSetSelectedWritesOnlyChanges(t *testing.T) {
	s, _ := setupTestStore(t)
	s.Reset([]schema.Node{node("a", 0, 0), node("b", 0, 0), node("c", 0, 0)}, nil)

	if n := s.SetSelected(map[string]bool{"a": true, "b": true}); n != 2 {
		t.Errorf("first SetSelected() changed %d, want 2", n)
	}
	if n := s.SetSelected(map[string]bool{"b": true, "c": true}); n != 2 {
		t.Errorf("second SetSelected() changed %d, want 2", n)
	}
	if n := s.SetSelected(map[string]bool{"b": true, "c": true}); n != 0 {
		t.Errorf("repeat SetSelected() changed %d, want 0", n)
	}
	if diff := cmp.Diff([]string{"b", "c"}, s.SelectedIDs()); diff != "" {
		t.Errorf("SelectedIDs() mismatch:\n%s", diff)
	}
}

func TestRefreshCards(t *testing.T) {
	s, _ := setupTestStore(t)
	s.Reset([]schema.Node{node("a", 0, 0), node("b", 0, 0)}, nil)

	cards := []*schema.Card{
		{ID: "a", Title: "Renamed", Tags: []string{"x"}},
		{ID: "b", Title: "b"},
		{ID: "zzz", Title: "not on board"},
	}
	if n := s.RefreshCards(cards); n != 1 {
		t.Errorf("RefreshCards() changed %d, want 1", n)
	}

	got, _ := s.Node("a")
	if got.Data.Title != "Renamed" || len(got.Data.Tags) != 1 {
		t.Errorf("node a data = %+v", got.Data)
	}
	if s.HasNode("zzz") {
		t.Error("RefreshCards() must not add nodes")
	}
}

func TestResetDropsInvalid(t *testing.T) {
	s, _ := setupTestStore(t)

	droppedNodes, droppedEdges := s.Reset(
		[]schema.Node{node("a", 0, 0), node("a", 1, 1), node("b", 0, 0)},
		[]schema.Edge{edge("e1", "a", "b"), edge("e2", "a", "gone"), edge("e1", "b", "a")},
	)

	if droppedNodes != 1 || droppedEdges != 2 {
		t.Errorf("dropped %d nodes, %d edges; want 1 and 2", droppedNodes, droppedEdges)
	}
	assertNoDangling(t, s)
}

func TestAddCardNodeFollowsOrientation(t *testing.T) {
	s, _ := setupTestStore(t)
	first := node("a", 0, 0)
	first.SourcePosition, first.TargetPosition = schema.HandleRight, schema.HandleLeft
	s.Reset([]schema.Node{first}, nil)

	n, err := s.AddCardNode(&schema.Card{ID: "b", Title: "B"}, schema.Position{X: 10, Y: 10})
	if err != nil {
		t.Fatalf("AddCardNode() failed: %v", err)
	}
	if n.TargetPosition != schema.HandleLeft || n.SourcePosition != schema.HandleRight {
		t.Errorf("new node handles = %s/%s", n.SourcePosition, n.TargetPosition)
	}
}

func TestApplyLayout(t *testing.T) {
	s, _ := setupTestStore(t)
	s.Reset([]schema.Node{node("a", 0, 0), node("b", 0, 0)}, []schema.Edge{edge("e1", "a", "b")})

	moved := node("a", 50, 60)
	moved.SourcePosition, moved.TargetPosition = schema.HandleRight, schema.HandleLeft
	s.ApplyLayout(
		[]schema.Node{moved, node("ghost", 1, 1)},
		[]schema.Edge{{ID: "e1", SourceHandle: "right", TargetHandle: "left"}},
	)

	a, _ := s.Node("a")
	if a.Position.X != 50 || a.TargetPosition != schema.HandleLeft {
		t.Errorf("node a after layout = %+v", a)
	}
	e, _ := s.Edge("e1")
	if e.SourceHandle != "right-source" || e.TargetHandle != "left-target" || e.Source != "a" {
		t.Errorf("edge after layout = %+v", e)
	}
	if s.HasNode("ghost") {
		t.Error("ApplyLayout() must not add nodes")
	}
	if !s.Unsaved() {
		t.Error("layout should mark unsaved")
	}
}

// TestRandomMutationsNeverDangle applies random batches and checks the
// invariants after each one.
func TestRandomMutationsNeverDangle(t *testing.T) {
	s, _ := setupTestStore(t)
	rng := rand.New(rand.NewSource(42))
	gen := schema.NewIDGenerator()
	seen := make(map[string]bool)

	for step := 0; step < 500; step++ {
		id := fmt.Sprintf("n%d", rng.Intn(12))
		switch rng.Intn(5) {
		case 0, 1:
			_ = s.AddNode(node(id, float64(step), 0))
		case 2:
			other := fmt.Sprintf("n%d", rng.Intn(12))
			e := edge(gen.EdgeID(id, other), id, other)
			if seen[e.ID] {
				t.Fatalf("edge id %s generated twice", e.ID)
			}
			seen[e.ID] = true
			_ = s.AddEdge(e)
		case 3:
			_ = s.RemoveNode(id)
		case 4:
			edges := s.Edges()
			if len(edges) > 0 {
				_ = s.RemoveEdge(edges[rng.Intn(len(edges))].ID)
			}
		}

		assertNoDangling(t, s)

		ids := make(map[string]bool)
		for _, e := range s.Edges() {
			if ids[e.ID] {
				t.Fatalf("step %d: duplicate edge id %s", step, e.ID)
			}
			ids[e.ID] = true
		}
	}
}

func TestGraphSizeGauges(t *testing.T) {
	m := metrics.New(false)
	s := New(&Config{Metrics: m, Logger: log.New(io.Discard, "", 0)})

	_ = s.AddNode(node("a", 0, 0))
	_ = s.AddNode(node("b", 100, 0))
	_ = s.AddEdge(edge("e1", "a", "b"))

	const want = `
# HELP beadboard_graph_edges Edges currently on the board.
# TYPE beadboard_graph_edges gauge
beadboard_graph_edges 1
# HELP beadboard_graph_nodes Nodes currently on the board.
# TYPE beadboard_graph_nodes gauge
beadboard_graph_nodes 2
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(want),
		"beadboard_graph_nodes", "beadboard_graph_edges"); err != nil {
		t.Errorf("graph size gauges: %v", err)
	}

	_ = s.RemoveNode("a")
	got := strings.Replace(strings.Replace(want, "edges 1", "edges 0", 1), "nodes 2", "nodes 1", 1)
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(got),
		"beadboard_graph_nodes", "beadboard_graph_edges"); err != nil {
		t.Errorf("graph size gauges after remove: %v", err)
	}
}
