package window

// CountWindow retains the last Size values pushed, advancing one element at
// a time. It is not time-bounded.
type CountWindow[T any] struct {
	size int
	ring *Ring[T]
}

// NewCountWindow creates a window retaining at most size values.
// A size below 1 is treated as 1.
func NewCountWindow[T any](size int) *CountWindow[T] {
	if size < 1 {
		size = 1
	}
	return &CountWindow[T]{size: size, ring: NewRing[T](size)}
}

// Push appends v, dropping the oldest value if the window is full.
// Returns true if a value was dropped to make room.
func (w *CountWindow[T]) Push(v T) bool {
	dropped := false
	if w.ring.Len() == w.size {
		w.ring.PopFront()
		dropped = true
	}
	w.ring.PushBack(v)
	return dropped
}

// Size returns the configured bound.
func (w *CountWindow[T]) Size() int {
	return w.size
}

// Len returns the number of retained values.
func (w *CountWindow[T]) Len() int {
	return w.ring.Len()
}

// Latest returns the most recently pushed value.
func (w *CountWindow[T]) Latest() (T, bool) {
	return w.ring.Back()
}

// Items returns the retained values, oldest first.
func (w *CountWindow[T]) Items() []T {
	return w.ring.Items()
}

// Drain returns the retained values, oldest first, and empties the window.
func (w *CountWindow[T]) Drain() []T {
	items := w.ring.Items()
	w.ring.Clear()
	return items
}

// CountFunc returns how many retained values satisfy match.
func (w *CountWindow[T]) CountFunc(match func(T) bool) int {
	n := 0
	for i := 0; i < w.ring.Len(); i++ {
		if match(w.ring.At(i)) {
			n++
		}
	}
	return n
}
