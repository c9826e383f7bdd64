package layout

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mschirtzinger/beadboard/internal/board/schema"
)

func nodes(ids ...string) []schema.Node {
	out := make([]schema.Node, len(ids))
	for i, id := range ids {
		out[i] = schema.NewCardNode(id, schema.Position{X: -1, Y: -1}, schema.CardData{Title: id})
	}
	return out
}

func positions(ns []schema.Node) map[string]schema.Position {
	out := make(map[string]schema.Position, len(ns))
	for _, n := range ns {
		out[n.ID] = n.Position
	}
	return out
}

func TestGrid(t *testing.T) {
	in := nodes("a", "b", "c", "d", "e")
	got := Grid(in, DefaultGridOptions())

	want := map[string]schema.Position{
		"a": {X: 0, Y: 0},
		"b": {X: 300, Y: 0},
		"c": {X: 600, Y: 0},
		"d": {X: 900, Y: 0},
		"e": {X: 0, Y: 200},
	}
	if diff := cmp.Diff(want, positions(got)); diff != "" {
		t.Errorf("Grid() positions (-want +got):\n%s", diff)
	}

	// Pure: the input is untouched.
	if in[0].Position != (schema.Position{X: -1, Y: -1}) {
		t.Error("Grid() modified its input")
	}

	again := Grid(in, DefaultGridOptions())
	if diff := cmp.Diff(got, again); diff != "" {
		t.Errorf("Grid() not deterministic (-first +second):\n%s", diff)
	}
}

func TestGridOrigin(t *testing.T) {
	got := Grid(nodes("a", "b", "c"), GridOptions{Columns: 2, SpacingX: 10, SpacingY: 20, Origin: schema.Position{X: 5, Y: 5}})
	want := map[string]schema.Position{
		"a": {X: 5, Y: 5},
		"b": {X: 15, Y: 5},
		"c": {X: 5, Y: 25},
	}
	if diff := cmp.Diff(want, positions(got)); diff != "" {
		t.Errorf("Grid() positions (-want +got):\n%s", diff)
	}
}

func TestDirectionalChain(t *testing.T) {
	in := nodes("a", "b", "c")
	edges := []schema.Edge{
		{ID: "e1", Source: "a", Target: "b", SourceHandle: "bottom-source", TargetHandle: "top-target"},
		{ID: "e2", Source: "b", Target: "c"},
	}

	gotNodes, gotEdges := Directional(in, edges, schema.Horizontal, DefaultDirectionalOptions())

	want := map[string]schema.Position{
		"a": {X: 0, Y: 0},
		"b": {X: 300, Y: 0},
		"c": {X: 600, Y: 0},
	}
	if diff := cmp.Diff(want, positions(gotNodes)); diff != "" {
		t.Errorf("positions (-want +got):\n%s", diff)
	}

	for _, n := range gotNodes {
		if n.SourcePosition != schema.HandleRight || n.TargetPosition != schema.HandleLeft {
			t.Errorf("node %s handles = %s/%s, want right/left", n.ID, n.SourcePosition, n.TargetPosition)
		}
	}
	for _, e := range gotEdges {
		if e.SourceHandle != "right-source" || e.TargetHandle != "left-target" {
			t.Errorf("edge %s handles = %s/%s", e.ID, e.SourceHandle, e.TargetHandle)
		}
	}
	if edges[0].SourceHandle != "bottom-source" {
		t.Error("Directional() modified its input edges")
	}
}

func TestDirectionalVerticalBranches(t *testing.T) {
	in := nodes("root", "left", "right")
	edges := []schema.Edge{
		{ID: "e1", Source: "root", Target: "left"},
		{ID: "e2", Source: "root", Target: "right"},
	}

	got, _ := Directional(in, edges, schema.Vertical, DefaultDirectionalOptions())

	want := map[string]schema.Position{
		"root":  {X: 0, Y: 0},
		"left":  {X: -100, Y: 300},
		"right": {X: 100, Y: 300},
	}
	if diff := cmp.Diff(want, positions(got)); diff != "" {
		t.Errorf("positions (-want +got):\n%s", diff)
	}
	if got[0].TargetPosition != schema.HandleTop {
		t.Errorf("vertical target side = %s, want top", got[0].TargetPosition)
	}
}

func TestDirectionalCycleSharesLayer(t *testing.T) {
	in := nodes("a", "b", "c")
	edges := []schema.Edge{
		{ID: "ab", Source: "a", Target: "b"},
		{ID: "ba", Source: "b", Target: "a"},
		{ID: "bc", Source: "b", Target: "c"},
		{ID: "self", Source: "c", Target: "c"},
		{ID: "ghost", Source: "a", Target: "zzz"},
	}

	got, _ := Directional(in, edges, schema.Horizontal, DefaultDirectionalOptions())
	pos := positions(got)

	if pos["a"].X != pos["b"].X {
		t.Errorf("cycle members in different layers: a=%v b=%v", pos["a"], pos["b"])
	}
	if pos["c"].X != pos["a"].X+300 {
		t.Errorf("c at %v, want one layer after the cycle", pos["c"])
	}
}

func TestDirectionalDisconnected(t *testing.T) {
	got, _ := Directional(nodes("a", "b"), nil, schema.Horizontal, DefaultDirectionalOptions())
	want := map[string]schema.Position{
		"a": {X: 0, Y: -100},
		"b": {X: 0, Y: 100},
	}
	if diff := cmp.Diff(want, positions(got)); diff != "" {
		t.Errorf("positions (-want +got):\n%s", diff)
	}
}
