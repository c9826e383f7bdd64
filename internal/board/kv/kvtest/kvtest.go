// Package kvtest holds the behaviour checks every kv.Store backend must pass.
package kvtest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/mschirtzinger/beadboard/internal/board/kv"
)

// Run exercises store against the kv.Store contract. The store must be empty.
func Run(t *testing.T, store kv.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "board:missing")
		if !errors.Is(err, kv.ErrNotFound) {
			t.Fatalf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("put and get", func(t *testing.T) {
		if err := store.Put(ctx, "board:layout", []byte(`{"a":1}`)); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
		got, err := store.Get(ctx, "board:layout")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if !bytes.Equal(got, []byte(`{"a":1}`)) {
			t.Errorf("Get() = %s, want {\"a\":1}", got)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		if err := store.Put(ctx, "board:edges", []byte(`[]`)); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
		if err := store.Put(ctx, "board:edges", []byte(`[{"id":"e1"}]`)); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
		got, err := store.Get(ctx, "board:edges")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if string(got) != `[{"id":"e1"}]` {
			t.Errorf("Get() = %s after overwrite", got)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := store.Put(ctx, "board:viewport", []byte(`{}`)); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
		if err := store.Delete(ctx, "board:viewport"); err != nil {
			t.Fatalf("Delete() failed: %v", err)
		}
		if _, err := store.Get(ctx, "board:viewport"); !errors.Is(err, kv.ErrNotFound) {
			t.Errorf("Get() after Delete() error = %v, want ErrNotFound", err)
		}
		if err := store.Delete(ctx, "board:viewport"); err != nil {
			t.Errorf("second Delete() failed: %v", err)
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		if err := store.Put(ctx, "one:layout", []byte("1")); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
		if err := store.Put(ctx, "two:layout", []byte("2")); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
		got, err := store.Get(ctx, "one:layout")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if string(got) != "1" {
			t.Errorf("Get(one:layout) = %s, want 1", got)
		}
	})
}
