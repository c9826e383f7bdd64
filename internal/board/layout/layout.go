// Package layout computes node positions for a whole board.
//
// Both layouts are pure: they return new slices and never modify their
// inputs. Grid packs nodes row by row in input order. Directional arranges
// nodes in layers along the flow axis using the graph's connectivity, with
// strongly connected groups sharing a layer.
package layout

import (
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/mschirtzinger/beadboard/internal/board/schema"
)

// Kind names a layout.
type Kind string

const (
	KindGrid       Kind = "grid"
	KindHorizontal Kind = "horizontal"
	KindVertical   Kind = "vertical"
)

// GridOptions controls Grid.
type GridOptions struct {
	Columns  int
	SpacingX float64
	SpacingY float64
	Origin   schema.Position
}

// DefaultGridOptions returns four columns at 300x200 spacing.
func DefaultGridOptions() GridOptions {
	return GridOptions{Columns: 4, SpacingX: 300, SpacingY: 200}
}

// Grid places nodes in a fixed-column grid in input order.
func Grid(nodes []schema.Node, opts GridOptions) []schema.Node {
	if opts.Columns <= 0 {
		opts.Columns = DefaultGridOptions().Columns
	}

	out := make([]schema.Node, len(nodes))
	for i, n := range nodes {
		n = n.Clone()
		n.Position = schema.Position{
			X: opts.Origin.X + float64(i%opts.Columns)*opts.SpacingX,
			Y: opts.Origin.Y + float64(i/opts.Columns)*opts.SpacingY,
		}
		out[i] = n
	}
	return out
}

// DirectionalOptions controls Directional.
type DirectionalOptions struct {
	// LayerSpacing is the distance between layers along the flow axis.
	LayerSpacing float64
	// NodeSpacing is the distance between nodes within a layer.
	NodeSpacing float64
	Origin      schema.Position
}

// DefaultDirectionalOptions returns 300 between layers and 200 within one.
func DefaultDirectionalOptions() DirectionalOptions {
	return DirectionalOptions{LayerSpacing: 300, NodeSpacing: 200}
}

// Directional lays nodes out so edges flow along dir. Each node's layer is
// the longest path reaching it in the graph with cycles condensed; nodes
// in a layer keep their input order and the layer is centred across the
// flow axis. Node handle sides and edge handle ids are rewritten for dir.
// Edges naming unknown nodes are ignored for placement.
func Directional(nodes []schema.Node, edges []schema.Edge, dir schema.Orientation, opts DirectionalOptions) ([]schema.Node, []schema.Edge) {
	layers := assignLayers(nodes, edges)

	byLayer := make(map[int][]int)
	for i := range nodes {
		byLayer[layers[i]] = append(byLayer[layers[i]], i)
	}

	srcSide, tgtSide := dir.HandlePositions()
	outNodes := make([]schema.Node, len(nodes))
	for layer, members := range byLayer {
		mid := float64(len(members)-1) / 2
		for slot, i := range members {
			flow := float64(layer) * opts.LayerSpacing
			cross := (float64(slot) - mid) * opts.NodeSpacing

			n := nodes[i].Clone()
			if dir == schema.Horizontal {
				n.Position = schema.Position{X: opts.Origin.X + flow, Y: opts.Origin.Y + cross}
			} else {
				n.Position = schema.Position{X: opts.Origin.X + cross, Y: opts.Origin.Y + flow}
			}
			n.SourcePosition = srcSide
			n.TargetPosition = tgtSide
			outNodes[i] = n
		}
	}

	srcHandle, tgtHandle := dir.DefaultHandles()
	outEdges := make([]schema.Edge, len(edges))
	for i, e := range edges {
		e = e.Clone()
		e.SourceHandle = srcHandle
		e.TargetHandle = tgtHandle
		outEdges[i] = e
	}
	return outNodes, outEdges
}

// assignLayers returns the layer of each node by input index.
func assignLayers(nodes []schema.Node, edges []schema.Edge) []int {
	index := make(map[string]int64, len(nodes))
	g := simple.NewDirectedGraph()
	for i, n := range nodes {
		if _, dup := index[n.ID]; dup {
			continue
		}
		index[n.ID] = int64(i)
		g.AddNode(simple.Node(i))
	}
	for _, e := range edges {
		from, ok1 := index[e.Source]
		to, ok2 := index[e.Target]
		if !ok1 || !ok2 || from == to {
			continue
		}
		g.SetEdge(g.NewEdge(simple.Node(from), simple.Node(to)))
	}

	// Condense strongly connected components into a DAG.
	comp := make(map[int64]int64)
	cg := simple.NewDirectedGraph()
	for c, scc := range topo.TarjanSCC(g) {
		cg.AddNode(simple.Node(c))
		for _, n := range scc {
			comp[n.ID()] = int64(c)
		}
	}
	edgesFrom := g.Edges()
	for edgesFrom.Next() {
		e := edgesFrom.Edge()
		cf, ct := comp[e.From().ID()], comp[e.To().ID()]
		if cf != ct {
			cg.SetEdge(cg.NewEdge(simple.Node(cf), simple.Node(ct)))
		}
	}

	// A condensation is acyclic, so Sort cannot fail.
	order, _ := topo.Sort(cg)

	depth := make(map[int64]int, len(order))
	for _, c := range order {
		succ := cg.From(c.ID())
		for succ.Next() {
			s := succ.Node().ID()
			if d := depth[c.ID()] + 1; d > depth[s] {
				depth[s] = d
			}
		}
	}

	layers := make([]int, len(nodes))
	for i, n := range nodes {
		layers[i] = depth[comp[index[n.ID]]]
	}
	return layers
}
