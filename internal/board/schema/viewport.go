package schema

import (
	"fmt"
	"math"
)

// Viewport is the renderer's pan and zoom state.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// DefaultViewport returns the identity transform.
func DefaultViewport() Viewport {
	return Viewport{Zoom: 1}
}

// Validate checks that the transform is usable.
func (v *Viewport) Validate() error {
	if !(Position{X: v.X, Y: v.Y}).Valid() {
		return fmt.Errorf("viewport offset must be finite")
	}
	if v.Zoom <= 0 || math.IsNaN(v.Zoom) || math.IsInf(v.Zoom, 0) {
		return fmt.Errorf("zoom must be positive (got %v)", v.Zoom)
	}
	return nil
}

// ScreenToFlow maps a point in renderer pixels into graph coordinates.
func (v Viewport) ScreenToFlow(p Position) Position {
	zoom := v.Zoom
	if zoom <= 0 {
		zoom = 1
	}
	return Position{
		X: (p.X - v.X) / zoom,
		Y: (p.Y - v.Y) / zoom,
	}
}
