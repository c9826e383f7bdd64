package schema

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNormalizeHandle(t *testing.T) {
	tests := []struct {
		id   string
		typ  HandleType
		want string
	}{
		{"right", HandleSource, "right-source"},
		{"right-source", HandleSource, "right-source"},
		{"left", HandleTarget, "left-target"},
		{"left-target", HandleTarget, "left-target"},
		{"right-target", HandleSource, "right-source"},
		{"top-source", HandleTarget, "top-target"},
		{"", HandleSource, ""},
	}

	for _, tt := range tests {
		if got := NormalizeHandle(tt.id, tt.typ); got != tt.want {
			t.Errorf("NormalizeHandle(%q, %s) = %q, want %q", tt.id, tt.typ, got, tt.want)
		}
	}
}

func TestDefaultHandles(t *testing.T) {
	src, tgt := Horizontal.DefaultHandles()
	if src != "right-source" || tgt != "left-target" {
		t.Errorf("Horizontal.DefaultHandles() = %q, %q", src, tgt)
	}

	src, tgt = Vertical.DefaultHandles()
	if src != "bottom-source" || tgt != "top-target" {
		t.Errorf("Vertical.DefaultHandles() = %q, %q", src, tgt)
	}
}

func TestNodeOrientation(t *testing.T) {
	n := NewCardNode("a", Position{}, CardData{Title: "A"})
	if n.Orientation() != Vertical {
		t.Errorf("new node orientation = %s, want vertical", n.Orientation())
	}

	n.TargetPosition = HandleLeft
	if n.Orientation() != Horizontal {
		t.Errorf("orientation with left target = %s, want horizontal", n.Orientation())
	}
}

func TestNodeValidate(t *testing.T) {
	n := NewCardNode("a", Position{X: 1, Y: 2}, CardData{})
	if err := n.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}

	n.Position.X = math.NaN()
	if err := n.Validate(); err == nil {
		t.Error("Validate() should reject NaN position")
	}

	n = Node{}
	if err := n.Validate(); err == nil {
		t.Error("Validate() should reject empty id")
	}
}

func TestEdgeIDUniqueWithinMillisecond(t *testing.T) {
	fixed := time.UnixMilli(1700000000000)
	gen := NewIDGeneratorWithClock(func() time.Time { return fixed })

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := gen.EdgeID("a", "b")
		if seen[id] {
			t.Fatalf("duplicate edge id %s", id)
		}
		seen[id] = true
		if !strings.HasPrefix(id, "a-b-") {
			t.Errorf("edge id %q should start with a-b-", id)
		}
	}

	if got := gen.EdgeID("x", "y"); got != "x-y-1700000000100" {
		t.Errorf("EdgeID() = %q, want x-y-1700000000100", got)
	}
}

func TestEdgeCloneCopiesMarker(t *testing.T) {
	e := Edge{ID: "e1", Source: "a", Target: "b", MarkerEnd: &EdgeMarker{Type: "arrow"}}
	c := e.Clone()
	c.MarkerEnd.Type = "arrowclosed"

	if e.MarkerEnd.Type != "arrow" {
		t.Error("Clone() shares the marker with the original")
	}
}

func TestScreenToFlow(t *testing.T) {
	v := Viewport{X: 100, Y: 50, Zoom: 2}
	got := v.ScreenToFlow(Position{X: 340, Y: 210})
	if got.X != 120 || got.Y != 80 {
		t.Errorf("ScreenToFlow() = %+v, want {120 80}", got)
	}

	id := DefaultViewport()
	if got := id.ScreenToFlow(Position{X: 5, Y: 7}); got.X != 5 || got.Y != 7 {
		t.Errorf("identity ScreenToFlow() = %+v", got)
	}
}

func TestViewportValidate(t *testing.T) {
	v := Viewport{Zoom: 0}
	if err := v.Validate(); err == nil {
		t.Error("Validate() should reject zero zoom")
	}
	v = DefaultViewport()
	if err := v.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
}

func TestCardFiles(t *testing.T) {
	dir := t.TempDir()

	card := &Card{ID: "c1", Title: "First", Tags: []string{"a"}}
	card.SetDefaults()
	if err := WriteCardFile(dir, card); err != nil {
		t.Fatalf("WriteCardFile() failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	var skipped []string
	cards, err := ReadAllCardFiles(dir, func(name string, err error) {
		skipped = append(skipped, name)
	})
	if err != nil {
		t.Fatalf("ReadAllCardFiles() failed: %v", err)
	}

	if len(cards) != 1 || cards[0].ID != "c1" || cards[0].Title != "First" {
		t.Errorf("ReadAllCardFiles() = %+v", cards)
	}
	if len(skipped) != 1 || skipped[0] != "broken.json" {
		t.Errorf("skipped = %v, want [broken.json]", skipped)
	}
}

func TestReadAllCardFilesMissingDir(t *testing.T) {
	cards, err := ReadAllCardFiles(filepath.Join(t.TempDir(), "missing"), nil)
	if err != nil {
		t.Fatalf("ReadAllCardFiles() failed: %v", err)
	}
	if len(cards) != 0 {
		t.Errorf("expected no cards, got %d", len(cards))
	}
}

func TestCardValidate(t *testing.T) {
	tests := []struct {
		name    string
		card    Card
		wantErr bool
	}{
		{"valid", Card{ID: "c1", Title: "t"}, false},
		{"no id", Card{Title: "t"}, true},
		{"no title", Card{ID: "c1"}, true},
		{"path id", Card{ID: "../x", Title: "t"}, true},
		{"long title", Card{ID: "c1", Title: strings.Repeat("x", 501)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.card.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
