package optimistic

import (
	"errors"
	"testing"
)

func add(n int) func(int) (int, error) {
	return func(cur int) (int, error) { return cur + n, nil }
}

func TestUpdateAndRollback(t *testing.T) {
	v := New(10)

	ticket, err := v.Update(add(5))
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if v.Get() != 15 || ticket.Next() != 15 || ticket.Prev() != 10 {
		t.Errorf("after Update: value=%d next=%d prev=%d", v.Get(), ticket.Next(), ticket.Prev())
	}

	prev, ok := ticket.Rollback()
	if !ok || prev != 10 || v.Get() != 10 {
		t.Errorf("Rollback() = %d, %v; value=%d", prev, ok, v.Get())
	}

	if _, ok := ticket.Rollback(); ok {
		t.Error("second Rollback() should be refused")
	}
}

func TestLatestWins(t *testing.T) {
	v := New(0)

	first, _ := v.Update(add(1))
	second, _ := v.Update(add(10))

	if first.Latest() {
		t.Error("first ticket should be stale")
	}
	if !second.Latest() {
		t.Error("second ticket should be latest")
	}

	if _, ok := first.Rollback(); ok {
		t.Error("stale ticket rolled back")
	}
	if v.Get() != 11 {
		t.Errorf("value = %d, want 11", v.Get())
	}

	prev, ok := second.Rollback()
	if !ok || prev != 1 {
		t.Errorf("latest Rollback() = %d, %v; want 1, true", prev, ok)
	}
}

func TestFailedUpdateChangesNothing(t *testing.T) {
	v := New("a")
	ticket, _ := v.Update(func(string) (string, error) { return "b", nil })

	_, err := v.Update(func(string) (string, error) { return "", errors.New("invalid") })
	if err == nil {
		t.Fatal("Update() should return fn's error")
	}
	if v.Get() != "b" {
		t.Errorf("value = %q, want b", v.Get())
	}
	if !ticket.Latest() {
		t.Error("a failed update must not supersede the outstanding ticket")
	}
}

func TestSetInvalidatesTickets(t *testing.T) {
	v := New(1)
	ticket, _ := v.Update(add(1))
	v.Set(100)

	if _, ok := ticket.Rollback(); ok {
		t.Error("ticket rolled back over an external Set()")
	}
	if v.Get() != 100 {
		t.Errorf("value = %d, want 100", v.Get())
	}
}
