// Package window provides the sliding windows the dedup policies are built on:
// a growable ring-buffer deque, a count-bounded window and a time-bounded
// window of timestamped observations.
//
// None of the types are safe for concurrent use; callers serialize access
// per key.
package window

// Ring is a FIFO deque backed by a circular slice. Eviction from the front
// is index arithmetic; the slice only grows when a push finds it full.
type Ring[T any] struct {
	buf   []T
	head  int // index of the oldest element
	count int
}

// NewRing creates an empty ring with room for capacity elements before the
// first reallocation.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Len returns the number of retained elements.
func (r *Ring[T]) Len() int {
	return r.count
}

// PushBack appends v as the newest element.
func (r *Ring[T]) PushBack(v T) {
	if r.count == len(r.buf) {
		r.grow()
	}
	r.buf[(r.head+r.count)%len(r.buf)] = v
	r.count++
}

// PopFront removes and returns the oldest element.
func (r *Ring[T]) PopFront() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	v := r.buf[r.head]
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	if r.count == 0 {
		r.head = 0
	}
	return v, true
}

// Front returns the oldest element without removing it.
func (r *Ring[T]) Front() (T, bool) {
	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.buf[r.head], true
}

// Back returns the newest element without removing it.
func (r *Ring[T]) Back() (T, bool) {
	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.At(r.count - 1), true
}

// At returns the i-th element counting from the oldest. It panics if i is
// out of range, like a slice index.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.count {
		panic("window: ring index out of range")
	}
	return r.buf[(r.head+i)%len(r.buf)]
}

// Items returns a copy of the retained elements, oldest first.
// Returns nil when empty.
func (r *Ring[T]) Items() []T {
	if r.count == 0 {
		return nil
	}
	out := make([]T, r.count)
	for i := range out {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Retain keeps only the elements for which keep returns true, preserving
// order. Returns the number of removed elements.
func (r *Ring[T]) Retain(keep func(T) bool) int {
	kept := 0
	for i := 0; i < r.count; i++ {
		v := r.buf[(r.head+i)%len(r.buf)]
		if keep(v) {
			r.buf[(r.head+kept)%len(r.buf)] = v
			kept++
		}
	}
	removed := r.count - kept
	var zero T
	for i := kept; i < r.count; i++ {
		r.buf[(r.head+i)%len(r.buf)] = zero
	}
	r.count = kept
	return removed
}

// Clear drops every element.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.count = 0
}

func (r *Ring[T]) grow() {
	next := make([]T, len(r.buf)*2)
	for i := 0; i < r.count; i++ {
		next[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	r.buf = next
	r.head = 0
}
