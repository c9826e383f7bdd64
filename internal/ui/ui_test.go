package ui

import (
	"os"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func plain(t *testing.T) {
	t.Helper()
	prev := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.Ascii)
	t.Cleanup(func() { lipgloss.SetColorProfile(prev) })
}

func TestRenderPlain(t *testing.T) {
	plain(t)

	for name, fn := range map[string]func(string) string{
		"accent": RenderAccent,
		"pass":   RenderPass,
		"warn":   RenderWarn,
		"fail":   RenderFail,
	} {
		if got := fn("✓"); got != "✓" {
			t.Errorf("%s: got %q", name, got)
		}
	}
}

func TestKeyValues(t *testing.T) {
	plain(t)

	got := KeyValues([][2]string{{"Nodes", "3"}, {"Unsaved", "yes"}})
	want := "Nodes:   3\nUnsaved: yes\n"
	if got != want {
		t.Errorf("KeyValues() = %q, want %q", got, want)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"a longer title", 8, "a longe…"},
		{"x", 0, "…"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestNonTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatalf("CreateTemp() failed: %v", err)
	}
	defer f.Close()

	if IsTerminal(f) {
		t.Error("IsTerminal(file) = true")
	}
	if Width(f) != 80 {
		t.Errorf("Width(file) = %d, want 80", Width(f))
	}

	prev := lipgloss.ColorProfile()
	t.Cleanup(func() { lipgloss.SetColorProfile(prev) })
	Init(f)
	if lipgloss.ColorProfile() != termenv.Ascii {
		t.Error("Init(file) kept colors")
	}
}
