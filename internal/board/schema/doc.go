// Package schema defines the data structures shared by the board engine.
//
// The board is a directed graph. Nodes are visual cards: a node's id equals
// the id of the Card it displays, its Data is a read-only projection of that
// Card, and its Position is owned by the board. Edges connect two nodes
// through named handles.
//
// Handle ids are direction-qualified strings such as "right-source" or
// "left-target". The suffix names the side of the connection the handle
// serves; NormalizeHandle enforces it before an edge is stored.
//
// Edge ids have the form "source-target-timestamp", where timestamp is the
// creation time in Unix milliseconds. IDGenerator keeps the timestamp
// strictly increasing, so reconnecting the same pair twice within one
// millisecond still produces distinct ids.
//
// All types serialize to the JSON shape the renderer expects:
//
//	{
//	  "id": "c1",
//	  "type": "card",
//	  "position": {"x": 120, "y": 80},
//	  "data": {"title": "Write intro", "tags": ["draft"]},
//	  "sourcePosition": "right",
//	  "targetPosition": "left"
//	}
package schema
