// Package export writes and reads board snapshots and renders boards as SVG.
//
// A snapshot holds the nodes, edges, viewport and settings of one board in
// JSON or YAML. Every snapshot carries a semantic format version; Decode
// accepts any version with the same major number that is not newer than
// FormatVersion.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/beadboard/internal/board/persist"
	"github.com/mschirtzinger/beadboard/internal/board/schema"
	"github.com/mschirtzinger/beadboard/internal/board/settings"
)

// FormatVersion is the snapshot format written by this package.
const FormatVersion = "v1.1.0"

// Format is a snapshot encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml or yml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown snapshot format %q (want json or yaml)", s)
	}
}

// FormatForPath picks the format from a file extension, defaulting to JSON.
func FormatForPath(path string) Format {
	if f, err := ParseFormat(filepath.Ext(path)); err == nil {
		return f
	}
	return FormatJSON
}

// Snapshot is a portable copy of a board.
type Snapshot struct {
	Version    string                  `json:"version"`
	ExportedAt time.Time               `json:"exportedAt"`
	Namespace  string                  `json:"namespace,omitempty"`
	Nodes      []schema.Node           `json:"nodes"`
	Edges      []schema.Edge           `json:"edges"`
	Viewport   schema.Viewport         `json:"viewport"`
	Settings   *settings.BoardSettings `json:"settings,omitempty"`
}

// New builds a snapshot at the current format version. Renderer-only
// state (selection, drag) is cleared.
func New(nodes []schema.Node, edges []schema.Edge, viewport schema.Viewport, s *settings.BoardSettings) *Snapshot {
	snap := &Snapshot{
		Version:    FormatVersion,
		ExportedAt: time.Now().UTC(),
		Nodes:      make([]schema.Node, len(nodes)),
		Edges:      make([]schema.Edge, len(edges)),
		Viewport:   viewport,
	}
	for i, n := range nodes {
		n = n.Clone()
		n.Selected, n.Dragging = false, false
		snap.Nodes[i] = n
	}
	for i, e := range edges {
		e = e.Clone()
		if e.Selected {
			e.Selected = false
			if s != nil {
				e = settings.StyleEdge(e, *s)
			}
		}
		snap.Edges[i] = e
	}
	if s != nil {
		cp := *s
		snap.Settings = &cp
	}
	return snap
}

// Validate checks the version and the graph.
func (s *Snapshot) Validate() error {
	if err := CheckVersion(s.Version); err != nil {
		return err
	}

	ids := make(map[string]bool, len(s.Nodes))
	for i := range s.Nodes {
		if err := s.Nodes[i].Validate(); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		if ids[s.Nodes[i].ID] {
			return fmt.Errorf("node %d: duplicate id %q", i, s.Nodes[i].ID)
		}
		ids[s.Nodes[i].ID] = true
	}

	edgeIDs := make(map[string]bool, len(s.Edges))
	for i := range s.Edges {
		e := &s.Edges[i]
		if err := e.Validate(); err != nil {
			return fmt.Errorf("edge %d: %w", i, err)
		}
		if !ids[e.Source] || !ids[e.Target] {
			return fmt.Errorf("edge %s references a missing node", e.ID)
		}
		if edgeIDs[e.ID] {
			return fmt.Errorf("edge %d: duplicate id %q", i, e.ID)
		}
		edgeIDs[e.ID] = true
	}

	if err := s.Viewport.Validate(); err != nil {
		return fmt.Errorf("viewport: %w", err)
	}
	if s.Settings != nil {
		if err := s.Settings.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// CheckVersion reports whether a snapshot of version v can be read.
func CheckVersion(v string) error {
	if v == "" {
		return fmt.Errorf("snapshot has no version")
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return fmt.Errorf("invalid snapshot version %q", v)
	}
	if semver.Major(v) != semver.Major(FormatVersion) {
		return fmt.Errorf("snapshot version %s is incompatible with %s", v, FormatVersion)
	}
	if semver.Compare(v, FormatVersion) > 0 {
		return fmt.Errorf("snapshot version %s is newer than supported %s", v, FormatVersion)
	}
	return nil
}

// Encode writes snap in the given format.
func Encode(w io.Writer, snap *Snapshot, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		return nil

	case FormatYAML:
		// Go through JSON so YAML keys follow the JSON field names.
		tree, err := toTree(snap)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(tree); err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		return enc.Close()

	default:
		return fmt.Errorf("unknown snapshot format %q", format)
	}
}

// Decode reads and validates a snapshot.
func Decode(r io.Reader, format Format) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	if format == FormatYAML {
		var tree any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("failed to parse snapshot: %w", err)
		}
		data, err = json.Marshal(tree)
		if err != nil {
			return nil, fmt.Errorf("failed to convert snapshot: %w", err)
		}
	} else if format != FormatJSON {
		return nil, fmt.Errorf("unknown snapshot format %q", format)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	return &snap, nil
}

func toTree(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return tree, nil
}

// Restore writes the snapshot's layout, edges and viewport through p,
// replacing what is stored.
func Restore(p *persist.Adapter, snap *Snapshot) error {
	if !p.SaveLayout(snap.Nodes) {
		return fmt.Errorf("failed to write layout")
	}
	if !p.SaveEdges(snap.Edges) {
		return fmt.Errorf("failed to write edges")
	}
	if !p.SaveViewport(snap.Viewport) {
		return fmt.Errorf("failed to write viewport")
	}
	return nil
}
