package kv_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mschirtzinger/beadboard/internal/board/kv"
	"github.com/mschirtzinger/beadboard/internal/board/kv/kvtest"
)

func TestMemoryStore(t *testing.T) {
	kvtest.Run(t, kv.NewMemory())
}

func TestFileStore(t *testing.T) {
	store, err := kv.OpenFile(t.TempDir())
	if err != nil {
		t.Fatalf("OpenFile() failed: %v", err)
	}
	kvtest.Run(t, store)
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()

	value := []byte("abc")
	if err := store.Put(ctx, "k", value); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	value[0] = 'x'

	got, _ := store.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored value changed through caller slice: %s", got)
	}
}

func TestOpenBuiltinDrivers(t *testing.T) {
	ctx := context.Background()

	for _, driver := range []string{"memory", "file"} {
		if !kv.IsRegistered(driver) {
			t.Errorf("driver %s not registered", driver)
		}
	}

	store, err := kv.Open(ctx, "file", t.TempDir())
	if err != nil {
		t.Fatalf("Open(file) failed: %v", err)
	}
	defer store.Close()

	if _, err := kv.Open(ctx, "nope", ""); !errors.Is(err, kv.ErrUnknownDriver) {
		t.Errorf("Open(nope) error = %v, want ErrUnknownDriver", err)
	}
}

func TestRegisterPanics(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{"nil constructor", func() { kv.Register("nil-ctor", nil) }},
		{"duplicate", func() {
			kv.Register("memory", func(ctx context.Context, dsn string) (kv.Store, error) { return nil, nil })
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tt.fn()
		})
	}
}
