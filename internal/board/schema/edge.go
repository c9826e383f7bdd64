package schema

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Orientation is the direction in which connected cards flow.
type Orientation string

const (
	Horizontal Orientation = "horizontal"
	Vertical   Orientation = "vertical"
)

// ParseOrientation converts a user string to an Orientation.
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(s) {
	case "horizontal", "h", "lr":
		return Horizontal, nil
	case "vertical", "v", "tb":
		return Vertical, nil
	default:
		return "", fmt.Errorf("unknown orientation %q (want horizontal or vertical)", s)
	}
}

// HandlePositions returns the sides used for source and target handles.
func (o Orientation) HandlePositions() (source, target HandlePosition) {
	if o == Horizontal {
		return HandleRight, HandleLeft
	}
	return HandleBottom, HandleTop
}

// DefaultHandles returns the handle ids used when a connection names none.
func (o Orientation) DefaultHandles() (source, target string) {
	src, tgt := o.HandlePositions()
	return string(src) + SourceSuffix, string(tgt) + TargetSuffix
}

// HandleType says which end of a connection a handle serves.
type HandleType string

const (
	HandleSource HandleType = "source"
	HandleTarget HandleType = "target"
)

// Handle id suffixes.
const (
	SourceSuffix = "-source"
	TargetSuffix = "-target"
)

// NormalizeHandle makes id carry the suffix for handle type t. A bare id
// gets the suffix appended; an id carrying the opposite suffix has it
// replaced. An empty id stays empty.
func NormalizeHandle(id string, t HandleType) string {
	if id == "" {
		return ""
	}
	want, other := SourceSuffix, TargetSuffix
	if t == HandleTarget {
		want, other = TargetSuffix, SourceSuffix
	}
	if strings.HasSuffix(id, want) {
		return id
	}
	return strings.TrimSuffix(id, other) + want
}

// EdgeStyle holds the visual fields derived from board settings.
type EdgeStyle struct {
	Stroke      string  `json:"stroke,omitempty"`
	StrokeWidth float64 `json:"strokeWidth"`
}

// EdgeMarker describes the arrow drawn at the end of an edge.
type EdgeMarker struct {
	Type   string  `json:"type"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Color  string  `json:"color,omitempty"`
}

// Edge is a directed connection between two nodes.
type Edge struct {
	ID           string      `json:"id"`
	Source       string      `json:"source"`
	Target       string      `json:"target"`
	SourceHandle string      `json:"sourceHandle,omitempty"`
	TargetHandle string      `json:"targetHandle,omitempty"`
	Type         string      `json:"type,omitempty"` // connection line kind
	Style        EdgeStyle   `json:"style"`
	Animated     bool        `json:"animated,omitempty"`
	MarkerEnd    *EdgeMarker `json:"markerEnd,omitempty"`
	Selected     bool        `json:"selected,omitempty"`
}

// Validate checks if the Edge has valid field values.
func (e *Edge) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.Source == "" {
		return fmt.Errorf("source is required")
	}
	if e.Target == "" {
		return fmt.Errorf("target is required")
	}
	return nil
}

// Touches reports whether the edge references node id at either end.
func (e *Edge) Touches(id string) bool {
	return e.Source == id || e.Target == id
}

// NormalizeHandles applies NormalizeHandle to both ends.
func (e *Edge) NormalizeHandles() {
	e.SourceHandle = NormalizeHandle(e.SourceHandle, HandleSource)
	e.TargetHandle = NormalizeHandle(e.TargetHandle, HandleTarget)
}

// Clone returns a deep copy of the edge.
func (e Edge) Clone() Edge {
	if e.MarkerEnd != nil {
		m := *e.MarkerEnd
		e.MarkerEnd = &m
	}
	return e
}

// IDGenerator produces "source-target-timestamp" edge ids with a strictly
// increasing millisecond timestamp.
type IDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewIDGenerator returns a generator backed by the wall clock.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// NewIDGeneratorWithClock returns a generator using now as its clock.
func NewIDGeneratorWithClock(now func() time.Time) *IDGenerator {
	return &IDGenerator{now: now}
}

// EdgeID returns a new edge id for the pair.
func (g *IDGenerator) EdgeID(source, target string) string {
	g.mu.Lock()
	ts := g.now().UnixMilli()
	if ts <= g.last {
		ts = g.last + 1
	}
	g.last = ts
	g.mu.Unlock()

	return fmt.Sprintf("%s-%s-%d", source, target, ts)
}
