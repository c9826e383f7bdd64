package settings

import "github.com/mschirtzinger/beadboard/internal/board/schema"

// StyleEdge returns e with every settings-derived field recomputed from s.
// No per-edge override survives: stroke, width, animation, line kind and
// end marker all come from s. Selected edges take SelectedEdgeColor.
func StyleEdge(e schema.Edge, s BoardSettings) schema.Edge {
	color := s.EdgeColor
	if e.Selected {
		color = s.SelectedEdgeColor
	}
	e.Style = schema.EdgeStyle{
		Stroke:      color,
		StrokeWidth: s.StrokeWidth,
	}
	e.Animated = s.Animated
	e.Type = s.ConnectionLineType

	if s.MarkerEnd == MarkerNone {
		e.MarkerEnd = nil
	} else {
		e.MarkerEnd = &schema.EdgeMarker{
			Type:   s.MarkerEnd,
			Width:  s.MarkerSize,
			Height: s.MarkerSize,
			Color:  color,
		}
	}
	return e
}
