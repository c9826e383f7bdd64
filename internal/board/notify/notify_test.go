package notify

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestMultiAndRecorder(t *testing.T) {
	var a, b Recorder
	m := Multi{&a, nil, &b}

	m.Notify(New(LevelSuccess, "Board saved", ""))
	m.Notify(New(LevelInfo, "3 cards selected", ""))

	for _, r := range []*Recorder{&a, &b} {
		titles := r.Titles()
		if len(titles) != 2 || titles[0] != "Board saved" {
			t.Errorf("Titles() = %v", titles)
		}
	}

	a.Reset()
	if len(a.All()) != 0 {
		t.Error("Reset() kept notifications")
	}
}

func TestNewFormats(t *testing.T) {
	n := New(LevelError, "Failed", "%d of %d", 1, 2)
	if n.Message != "1 of 2" || n.Time.IsZero() {
		t.Errorf("New() = %+v", n)
	}

	newNoArgs := New // called via a func value so vet does not treat "100%" as a format
	n = newNoArgs(LevelInfo, "Literal", "100%")
	if n.Message != "100%" {
		t.Errorf("message without args was formatted: %q", n.Message)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	Log{Logger: log.New(&buf, "", 0)}.Notify(New(LevelWarning, "Selection cleared", ""))

	if !strings.Contains(buf.String(), "warning: Selection cleared") {
		t.Errorf("log output = %q", buf.String())
	}
}
