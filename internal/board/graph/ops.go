package graph

import (
	"time"

	"github.com/mschirtzinger/beadboard/internal/board/schema"
)

// AddNode adds a single node.
func (s *Store) AddNode(node schema.Node) error {
	return s.ApplyNodeChanges([]NodeChange{{Type: ChangeAdd, ID: node.ID, Item: &node}}).Err()
}

// AddCardNode places card at pos. The new node's handles follow the board's
// current orientation.
func (s *Store) AddCardNode(card *schema.Card, pos schema.Position) (schema.Node, error) {
	node := schema.NewCardNode(card.ID, pos, card.Data())
	node.SourcePosition, node.TargetPosition = s.Orientation().HandlePositions()
	if err := s.AddNode(node); err != nil {
		return schema.Node{}, err
	}
	return node, nil
}

// RemoveNode removes a node and, by cascade, its edges.
func (s *Store) RemoveNode(id string) error {
	return s.ApplyNodeChanges([]NodeChange{{Type: ChangeRemove, ID: id}}).Err()
}

// MoveNode sets a node position. Only a final (non-dragging) move marks the
// board unsaved.
func (s *Store) MoveNode(id string, pos schema.Position, dragging bool) error {
	return s.ApplyNodeChanges([]NodeChange{{Type: ChangePosition, ID: id, Position: &pos, Dragging: dragging}}).Err()
}

// AddEdge adds a single edge.
func (s *Store) AddEdge(edge schema.Edge) error {
	return s.ApplyEdgeChanges([]EdgeChange{{Type: ChangeAdd, ID: edge.ID, Item: &edge}}).Err()
}

// RemoveEdge removes a single edge.
func (s *Store) RemoveEdge(id string) error {
	return s.ApplyEdgeChanges([]EdgeChange{{Type: ChangeRemove, ID: id}}).Err()
}

// Nodes returns a copy of the nodes in board order.
func (s *Store) Nodes() []schema.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneNodes(s.nodes)
}

// Edges returns a copy of the edges.
func (s *Store) Edges() []schema.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEdges(s.edges)
}

// Node returns the node with id.
func (s *Store) Node(id string) (schema.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.nodeIndexLocked(id); idx >= 0 {
		return s.nodes[idx].Clone(), true
	}
	return schema.Node{}, false
}

// Edge returns the edge with id.
func (s *Store) Edge(id string) (schema.Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.edgeIndexLocked(id); idx >= 0 {
		return s.edges[idx].Clone(), true
	}
	return schema.Edge{}, false
}

// HasNode reports whether a node with id exists.
func (s *Store) HasNode(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodeIndexLocked(id) >= 0
}

// Len returns the node and edge counts.
func (s *Store) Len() (nodes, edges int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes), len(s.edges)
}

// Orientation returns the layout direction of the first node, or Vertical
// for an empty board.
func (s *Store) Orientation() schema.Orientation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.nodes) == 0 {
		return schema.Vertical
	}
	return s.nodes[0].Orientation()
}

// UpdateEdges rewrites every edge through fn in one pass. Identity fields
// (id, source, target) are preserved whatever fn returns. It does not mark
// the board unsaved: the rewritten fields are derived presentation state.
func (s *Store) UpdateEdges(fn func(schema.Edge) schema.Edge) {
	s.mu.Lock()
	for i, e := range s.edges {
		next := fn(e.Clone())
		next.ID, next.Source, next.Target = e.ID, e.Source, e.Target
		s.edges[i] = next
	}
	ev := s.eventLocked(EventChanged, false, len(s.edges) > 0)
	s.mu.Unlock()

	s.publish(ev)
}

// SetSelected makes each node's selected flag equal to its membership in
// ids. Only nodes whose flag actually changes are written; the return value
// is how many were.
func (s *Store) SetSelected(ids map[string]bool) int {
	s.mu.Lock()
	changed := 0
	for i := range s.nodes {
		want := ids[s.nodes[i].ID]
		if s.nodes[i].Selected != want {
			s.nodes[i].Selected = want
			changed++
		}
	}
	ev := s.eventLocked(EventChanged, changed > 0, false)
	s.mu.Unlock()

	s.publish(ev)
	return changed
}

// SelectedIDs returns the ids of nodes whose selected flag is set.
func (s *Store) SelectedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, n := range s.nodes {
		if n.Selected {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// ApplyLayout copies positions and handle orientation from nodes, and
// handle ids from edges, onto the matching ids in the store. Unknown ids
// are ignored. The board is marked unsaved when anything moved.
func (s *Store) ApplyLayout(nodes []schema.Node, edges []schema.Edge) {
	s.mu.Lock()

	nodesChanged := false
	for _, n := range nodes {
		idx := s.nodeIndexLocked(n.ID)
		if idx < 0 || !n.Position.Valid() {
			continue
		}
		cur := &s.nodes[idx]
		cur.Position = n.Position
		if n.SourcePosition != "" {
			cur.SourcePosition = n.SourcePosition
		}
		if n.TargetPosition != "" {
			cur.TargetPosition = n.TargetPosition
		}
		nodesChanged = true
	}

	edgesChanged := false
	for _, e := range edges {
		idx := s.edgeIndexLocked(e.ID)
		if idx < 0 {
			continue
		}
		s.edges[idx].SourceHandle = schema.NormalizeHandle(e.SourceHandle, schema.HandleSource)
		s.edges[idx].TargetHandle = schema.NormalizeHandle(e.TargetHandle, schema.HandleTarget)
		edgesChanged = true
	}

	if nodesChanged || edgesChanged {
		s.markUnsavedLocked()
	}
	ev := s.eventLocked(EventChanged, nodesChanged, edgesChanged)
	s.mu.Unlock()

	s.publish(ev)
}

// RefreshCards re-projects card data onto nodes with a matching id. It
// returns the number of nodes whose data changed.
func (s *Store) RefreshCards(cards []*schema.Card) int {
	byID := make(map[string]*schema.Card, len(cards))
	for _, c := range cards {
		byID[c.ID] = c
	}

	s.mu.Lock()
	changed := 0
	for i := range s.nodes {
		card, ok := byID[s.nodes[i].ID]
		if !ok {
			continue
		}
		data := card.Data()
		if !sameData(s.nodes[i].Data, data) {
			s.nodes[i].Data = data
			changed++
		}
	}
	ev := s.eventLocked(EventChanged, changed > 0, false)
	s.mu.Unlock()

	s.publish(ev)
	return changed
}

func sameData(a, b schema.CardData) bool {
	if a.Title != b.Title || a.Content != b.Content || len(a.Tags) != len(b.Tags) {
		return false
	}
	for i := range a.Tags {
		if a.Tags[i] != b.Tags[i] {
			return false
		}
	}
	return true
}

// Reset replaces the whole graph. Invalid or duplicate nodes are dropped,
// as are edges that would dangle or repeat an id. The board starts saved.
// It returns how many nodes and edges were dropped.
func (s *Store) Reset(nodes []schema.Node, edges []schema.Edge) (droppedNodes, droppedEdges int) {
	s.mu.Lock()

	s.nodes = make([]schema.Node, 0, len(nodes))
	ids := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if err := n.Validate(); err != nil || ids[n.ID] {
			droppedNodes++
			continue
		}
		ids[n.ID] = true
		s.nodes = append(s.nodes, n.Clone())
	}

	s.edges = make([]schema.Edge, 0, len(edges))
	edgeIDs := make(map[string]bool, len(edges))
	for _, e := range edges {
		if e.Validate() != nil || !ids[e.Source] || !ids[e.Target] || edgeIDs[e.ID] {
			droppedEdges++
			continue
		}
		edgeIDs[e.ID] = true
		e = e.Clone()
		e.NormalizeHandles()
		s.edges = append(s.edges, e)
	}

	s.savedGen = s.gen
	ev := s.eventLocked(EventReset, true, true)
	s.mu.Unlock()

	if droppedNodes > 0 || droppedEdges > 0 {
		s.logger.Printf("Warning: dropped %d node(s) and %d edge(s) while loading", droppedNodes, droppedEdges)
	}
	s.publish(ev)
	return droppedNodes, droppedEdges
}

// Unsaved reports whether there are mutations not yet flushed.
func (s *Store) Unsaved() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen != s.savedGen
}

// MarkUnsaved flags the board as needing a flush.
func (s *Store) MarkUnsaved() {
	s.mu.Lock()
	s.markUnsavedLocked()
	s.mu.Unlock()
}

// LastChange returns when the board was last marked unsaved.
func (s *Store) LastChange() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastChange
}

// Snapshot returns copies of the graph and the current generation.
func (s *Store) Snapshot() ([]schema.Node, []schema.Edge, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneNodes(s.nodes), cloneEdges(s.edges), s.gen
}

// MarkSaved records that the state at generation gen was persisted. The
// unsaved flag clears only if nothing changed since that snapshot.
func (s *Store) MarkSaved(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen > s.savedGen {
		s.savedGen = gen
	}
}
