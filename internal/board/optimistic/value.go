// Package optimistic implements local-first updates that are confirmed or
// reverted by a later remote outcome.
//
// A Value holds the locally visible state. Update computes and installs the
// next state at once and hands back a Ticket holding the state it replaced.
// When the remote write behind the update fails, Ticket.Rollback restores
// that state, unless a newer Update has happened since. Only the most
// recent ticket can roll back or commit.
//
//	ticket, err := v.Update(func(cur Settings) (Settings, error) {
//	    return merge(cur, patch)
//	})
//	// ... show ticket.Next() immediately, then:
//	if err := remote.Write(ctx, patch); err != nil {
//	    if prev, ok := ticket.Rollback(); ok {
//	        show(prev)
//	    }
//	}
package optimistic

import "sync"

// Value is a state cell with optimistic updates.
type Value[T any] struct {
	mu  sync.Mutex
	cur T
	seq uint64
}

// New returns a Value holding initial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{cur: initial}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Set replaces the value outside the optimistic flow. Any outstanding
// ticket becomes stale.
func (v *Value[T]) Set(x T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = x
	v.seq++
}

// Update applies fn to the current value and installs the result. If fn
// fails, nothing changes.
func (v *Value[T]) Update(fn func(cur T) (T, error)) (*Ticket[T], error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	next, err := fn(v.cur)
	if err != nil {
		return nil, err
	}

	prev := v.cur
	v.cur = next
	v.seq++
	return &Ticket[T]{value: v, prev: prev, next: next, seq: v.seq}, nil
}

// Ticket settles one optimistic update.
type Ticket[T any] struct {
	value *Value[T]
	prev  T
	next  T
	seq   uint64
}

// Prev returns the value the update replaced.
func (t *Ticket[T]) Prev() T { return t.prev }

// Next returns the value the update installed.
func (t *Ticket[T]) Next() T { return t.next }

// Latest reports whether no other update has happened since this one.
func (t *Ticket[T]) Latest() bool {
	t.value.mu.Lock()
	defer t.value.mu.Unlock()
	return t.value.seq == t.seq
}

// Rollback restores the replaced value if this ticket is still the latest
// update. It returns the restored value and whether the rollback happened.
func (t *Ticket[T]) Rollback() (T, bool) {
	t.value.mu.Lock()
	defer t.value.mu.Unlock()

	if t.value.seq != t.seq {
		var zero T
		return zero, false
	}
	t.value.cur = t.prev
	t.value.seq++
	return t.prev, true
}
