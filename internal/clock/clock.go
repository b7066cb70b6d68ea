// Package clock indirects the parts of package time the dedup engine needs,
// so tests can control apparent time and fire timers deterministically.
package clock

import "time"

// Clock abstracts wall-clock reads and one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer abstracts the functionality of time.Timer used by callers.
type Timer interface {
	Stop() bool
}

type wallClock struct{}

// Real returns a Clock backed by package time.
func Real() Clock {
	return wallClock{}
}

func (wallClock) Now() time.Time {
	return time.Now()
}

func (wallClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
