package window

import "time"

// Observation wraps a value with the time it was ingested.
type Observation[T any] struct {
	Value T
	At    time.Time
}

// TimeWindow retains observations whose ingestion time is within Length of
// the newest reference time. Entries are kept in ingestion order and evicted
// from the front.
type TimeWindow[T any] struct {
	length time.Duration
	ring   *Ring[Observation[T]]
}

// NewTimeWindow creates an empty window with the given horizon.
func NewTimeWindow[T any](length time.Duration) *TimeWindow[T] {
	return &TimeWindow[T]{length: length, ring: NewRing[Observation[T]](8)}
}

// Length returns the window horizon.
func (w *TimeWindow[T]) Length() time.Duration {
	return w.length
}

// Add records v as observed at at, then evicts everything older than
// at-Length. An observation that is itself older than the horizon of the
// newest retained entry is not recorded and Add returns false.
func (w *TimeWindow[T]) Add(at time.Time, v T) bool {
	ref := at
	if last, ok := w.ring.Back(); ok && last.At.After(ref) {
		ref = last.At
	}
	if at.Before(ref.Add(-w.length)) {
		w.Evict(ref)
		return false
	}
	w.ring.PushBack(Observation[T]{Value: v, At: at})
	w.Evict(ref)
	return true
}

// Evict drops every observation older than now-Length and returns how many
// were dropped. Observations exactly at the horizon are kept.
func (w *TimeWindow[T]) Evict(now time.Time) int {
	horizon := now.Add(-w.length)
	n := 0
	for {
		front, ok := w.ring.Front()
		if !ok || !front.At.Before(horizon) {
			break
		}
		w.ring.PopFront()
		n++
	}
	// Out-of-order ingestion can leave stale entries behind a fresh front.
	n += w.ring.Retain(func(o Observation[T]) bool {
		return !o.At.Before(horizon)
	})
	return n
}

// Len returns the number of retained observations.
func (w *TimeWindow[T]) Len() int {
	return w.ring.Len()
}

// Latest returns the most recently added observation.
func (w *TimeWindow[T]) Latest() (Observation[T], bool) {
	return w.ring.Back()
}

// Observations returns the retained observations, oldest first.
func (w *TimeWindow[T]) Observations() []Observation[T] {
	return w.ring.Items()
}

// CountFunc returns how many retained values satisfy match.
func (w *TimeWindow[T]) CountFunc(match func(T) bool) int {
	n := 0
	for i := 0; i < w.ring.Len(); i++ {
		if match(w.ring.At(i).Value) {
			n++
		}
	}
	return n
}
