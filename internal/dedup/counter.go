package dedup

import (
	"sync"

	"github.com/sweeney/bt-sensor-relay/internal/sensor"
	"github.com/sweeney/bt-sensor-relay/internal/window"
)

// DefaultCounterWindowSize is how many recent counters are remembered per key.
const DefaultCounterWindowSize = 10

// CounterWindow suppresses retransmissions of counted readings.
type CounterWindow struct {
	size int
	emit EmitFunc
	keys sync.Map // Key -> *counterState
}

type counterState struct {
	mu     sync.Mutex
	window *window.CountWindow[uint16]
}

// NewCounterWindow creates the policy remembering size counters per key.
func NewCounterWindow(size int, emit EmitFunc) *CounterWindow {
	if size < 1 {
		size = DefaultCounterWindowSize
	}
	return &CounterWindow{size: size, emit: emit}
}

// Observe records e and emits it if its counter has not been seen among the
// key's last size readings.
func (p *CounterWindow) Observe(e sensor.Event) Decision {
	counter, ok := messageCounter(e)
	if !ok {
		p.emit(e)
		return Emitted
	}

	st := p.state(KeyFor(ClassCounter, e))
	st.mu.Lock()
	st.window.Push(counter)
	seen := st.window.CountFunc(func(c uint16) bool { return c == counter })
	st.mu.Unlock()

	if seen != 1 {
		return Suppressed
	}
	p.emit(e)
	return Emitted
}

func (p *CounterWindow) state(k Key) *counterState {
	if st, ok := p.keys.Load(k); ok {
		return st.(*counterState)
	}
	st, _ := p.keys.LoadOrStore(k, &counterState{window: window.NewCountWindow[uint16](p.size)})
	return st.(*counterState)
}

func messageCounter(e sensor.Event) (uint16, bool) {
	switch ev := e.(type) {
	case *sensor.Current:
		return ev.MessageCounter, true
	case *sensor.AutopilotRemote:
		return ev.MessageCounter, true
	default:
		return 0, false
	}
}
