// Package settings owns the board's visual settings record and keeps every
// edge styled from it.
//
// BoardSettings is only changed through partial patches. A patch is
// deep-merged into the current record (nested objects merge key by key,
// everything else, arrays included, is replaced) and the result is
// validated before it takes effect.
//
// The Synchronizer applies a patch locally first: settings update and every
// edge is restyled in one pass. The patch is then written to the remote
// settings service in the background. If that write fails and no newer
// patch has arrived meanwhile, the previous settings are restored and the
// edges restyled from them.
package settings

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mschirtzinger/beadboard/internal/board/fault"
)

// Marker kinds for MarkerEnd.
const (
	MarkerArrow       = "arrow"
	MarkerArrowClosed = "arrowclosed"
	MarkerNone        = "none"
)

// Connection line kinds.
var connectionLineTypes = map[string]bool{
	"default":      true,
	"straight":     true,
	"step":         true,
	"smoothstep":   true,
	"simplebezier": true,
}

var backgroundVariants = map[string]bool{
	"dots":  true,
	"lines": true,
	"cross": true,
}

// Background controls the canvas backdrop.
type Background struct {
	Variant string  `json:"variant"`
	Gap     float64 `json:"gap"`
	Size    float64 `json:"size"`
	Color   string  `json:"color"`
}

// BoardSettings is the session-wide appearance and snapping record.
type BoardSettings struct {
	EdgeColor          string     `json:"edgeColor"`
	SelectedEdgeColor  string     `json:"selectedEdgeColor"`
	StrokeWidth        float64    `json:"strokeWidth"`
	MarkerEnd          string     `json:"markerEnd"`
	MarkerSize         float64    `json:"markerSize"`
	ConnectionLineType string     `json:"connectionLineType"`
	Animated           bool       `json:"animated"`
	SnapToGrid         bool       `json:"snapToGrid"`
	SnapGrid           [2]float64 `json:"snapGrid"`
	Background         Background `json:"background"`
}

// Defaults returns the settings a new session starts with.
func Defaults() BoardSettings {
	return BoardSettings{
		EdgeColor:          "#b1b1b7",
		SelectedEdgeColor:  "#3b82f6",
		StrokeWidth:        2,
		MarkerEnd:          MarkerArrowClosed,
		MarkerSize:         20,
		ConnectionLineType: "smoothstep",
		Animated:           false,
		SnapToGrid:         false,
		SnapGrid:           [2]float64{15, 15},
		Background: Background{
			Variant: "dots",
			Gap:     16,
			Size:    1,
			Color:   "#e5e7eb",
		},
	}
}

// Validate checks if the settings have valid field values.
func (s BoardSettings) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", fault.ErrInvalidSettings, fmt.Sprintf(format, args...))
	}

	if s.EdgeColor == "" {
		return invalid("edgeColor is required")
	}
	if s.SelectedEdgeColor == "" {
		return invalid("selectedEdgeColor is required")
	}
	if s.StrokeWidth <= 0 || s.StrokeWidth > 20 {
		return invalid("strokeWidth must be in (0, 20] (got %v)", s.StrokeWidth)
	}
	switch s.MarkerEnd {
	case MarkerArrow, MarkerArrowClosed, MarkerNone:
	default:
		return invalid("unknown markerEnd %q", s.MarkerEnd)
	}
	if s.MarkerSize < 0 || s.MarkerSize > 100 {
		return invalid("markerSize must be in [0, 100] (got %v)", s.MarkerSize)
	}
	if !connectionLineTypes[s.ConnectionLineType] {
		return invalid("unknown connectionLineType %q", s.ConnectionLineType)
	}
	if s.SnapGrid[0] < 0 || s.SnapGrid[1] < 0 {
		return invalid("snapGrid must not be negative")
	}
	if s.SnapToGrid && (s.SnapGrid[0] == 0 || s.SnapGrid[1] == 0) {
		return invalid("snapGrid must be positive when snapToGrid is on")
	}
	if !backgroundVariants[s.Background.Variant] {
		return invalid("unknown background variant %q", s.Background.Variant)
	}
	if s.Background.Gap < 0 || s.Background.Size < 0 {
		return invalid("background gap and size must not be negative")
	}
	return nil
}

// Patch is a partial settings record keyed by JSON field name.
type Patch map[string]any

// ParsePatch decodes a JSON object into a Patch.
func ParsePatch(data []byte) (Patch, error) {
	var p Patch
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: patch must be a JSON object: %v", fault.ErrInvalidSettings, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: patch must be a JSON object", fault.ErrInvalidSettings)
	}
	return p, nil
}

// Merge deep-merges patch into cur and validates the result. Unknown keys
// are rejected.
func Merge(cur BoardSettings, patch Patch) (BoardSettings, error) {
	base, err := toMap(cur)
	if err != nil {
		return BoardSettings{}, err
	}
	src, err := toMap(patch)
	if err != nil {
		return BoardSettings{}, fmt.Errorf("%w: %v", fault.ErrInvalidSettings, err)
	}

	merged, err := json.Marshal(DeepMerge(base, src))
	if err != nil {
		return BoardSettings{}, fmt.Errorf("failed to encode merged settings: %w", err)
	}

	var out BoardSettings
	dec := json.NewDecoder(bytes.NewReader(merged))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return BoardSettings{}, fmt.Errorf("%w: %v", fault.ErrInvalidSettings, err)
	}

	if err := out.Validate(); err != nil {
		return BoardSettings{}, err
	}
	return out, nil
}

// DeepMerge returns dst with src merged in. Where both sides hold an
// object the merge recurses; any other src value replaces dst's. Neither
// input is modified.
func DeepMerge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, sv := range src {
		smap, sok := sv.(map[string]any)
		dmap, dok := out[k].(map[string]any)
		if sok && dok {
			out[k] = DeepMerge(dmap, smap)
			continue
		}
		out[k] = sv
	}
	return out
}

// toMap converts v to its generic JSON object form.
func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// Diff returns the top-level fields whose values differ between a and b,
// as a patch that turns a into b.
func Diff(a, b BoardSettings) (Patch, error) {
	am, err := toMap(a)
	if err != nil {
		return nil, err
	}
	bm, err := toMap(b)
	if err != nil {
		return nil, err
	}

	p := Patch{}
	for k, bv := range bm {
		av, _ := json.Marshal(am[k])
		bj, _ := json.Marshal(bv)
		if !bytes.Equal(av, bj) {
			p[k] = bv
		}
	}
	return p, nil
}
