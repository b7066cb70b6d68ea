package dedup

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/bt-sensor-relay/internal/clock"
	"github.com/sweeney/bt-sensor-relay/internal/sensor"
	"github.com/sweeney/bt-sensor-relay/internal/window"
)

// Coalescer buffers copies of a broadcast relayed by several gateways and,
// once the key has been quiet for the buffer time, emits the copy received
// with the strongest signal.
type Coalescer struct {
	length  time.Duration
	clock   clock.Clock
	emit    EmitFunc
	keys    sync.Map // Key -> *coalesceState
	stopped atomic.Bool
}

type coalesceState struct {
	mu     sync.Mutex
	window *window.TimeWindow[sensor.Event]
	timer  clock.Timer
	// gen invalidates debounce timers superseded by a later arrival.
	gen uint64
}

// NewCoalescer creates the policy. length is both the window horizon and the
// quiet period that triggers emission.
func NewCoalescer(length time.Duration, c clock.Clock, emit EmitFunc) *Coalescer {
	return &Coalescer{length: length, clock: c, emit: emit}
}

// Observe records e and restarts the key's debounce timer. The decision is
// always Pending; the winner is emitted from the timer.
func (p *Coalescer) Observe(e sensor.Event) Decision {
	if p.stopped.Load() {
		return Suppressed
	}

	st := p.state(KeyFor(ClassCoalesce, e))
	st.mu.Lock()
	defer st.mu.Unlock()

	st.window.Add(p.clock.Now(), e)
	st.gen++
	gen := st.gen
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = p.clock.AfterFunc(p.length, func() { p.fire(st, gen) })
	return Pending
}

func (p *Coalescer) fire(st *coalesceState, gen uint64) {
	st.mu.Lock()
	if gen != st.gen || p.stopped.Load() {
		st.mu.Unlock()
		return
	}
	st.timer = nil
	// The window is as it was at the last arrival; evicting against the
	// current time would discard the whole burst.
	winner := strongest(st.window.Observations())
	st.mu.Unlock()

	if winner != nil {
		p.emit(winner)
	}
}

// Stop cancels all pending debounce timers. Buffered events are dropped.
func (p *Coalescer) Stop() {
	p.stopped.Store(true)
	p.keys.Range(func(_, v any) bool {
		st := v.(*coalesceState)
		st.mu.Lock()
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
		st.mu.Unlock()
		return true
	})
}

func (p *Coalescer) state(k Key) *coalesceState {
	if st, ok := p.keys.Load(k); ok {
		return st.(*coalesceState)
	}
	st, _ := p.keys.LoadOrStore(k, &coalesceState{window: window.NewTimeWindow[sensor.Event](p.length)})
	return st.(*coalesceState)
}

// strongest returns the highest-RSSI event, preferring the latest arrival
// among equals.
func strongest(obs []window.Observation[sensor.Event]) sensor.Event {
	var best sensor.Event
	for _, o := range obs {
		if best == nil || o.Value.Base().RSSI >= best.Base().RSSI {
			best = o.Value
		}
	}
	return best
}
