package logging

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	base := log.New(&buf, "", 0)

	Component(base, "autosave").Printf("Flushed %d nodes", 3)
	if got := buf.String(); got != "[autosave] Flushed 3 nodes\n" {
		t.Errorf("output = %q", got)
	}

	Component(nil, "x").Print("dropped")
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bb.log")

	logger, closer := New(Options{File: path})
	Component(logger, "bridge").Print("listening")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if !strings.Contains(string(data), "[bridge] ") || !strings.Contains(string(data), "listening") {
		t.Errorf("log file = %q", data)
	}
}

func TestNewStderr(t *testing.T) {
	logger, closer := New(Options{Verbose: true})
	if logger.Writer() != os.Stderr {
		t.Error("logger does not write to stderr")
	}
	if logger.Flags()&log.Lshortfile == 0 {
		t.Error("verbose logger lacks file:line")
	}
	if err := closer.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
}
