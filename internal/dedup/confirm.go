package dedup

import (
	"sync"
	"time"

	"github.com/sweeney/bt-sensor-relay/internal/clock"
	"github.com/sweeney/bt-sensor-relay/internal/sensor"
	"github.com/sweeney/bt-sensor-relay/internal/window"
)

// ConfirmWindow passes new PIR messages through immediately and suppresses
// copies of the same message relayed within the window.
type ConfirmWindow struct {
	length time.Duration
	clock  clock.Clock
	emit   EmitFunc
	keys   sync.Map // Key -> *confirmState
}

type confirmState struct {
	mu     sync.Mutex
	window *window.TimeWindow[uint32]
}

// NewConfirmWindow creates the policy with the given trailing window.
func NewConfirmWindow(length time.Duration, c clock.Clock, emit EmitFunc) *ConfirmWindow {
	return &ConfirmWindow{length: length, clock: c, emit: emit}
}

// Observe records e at the current time and emits it if no other entry in
// the key's trailing window carries the same message id.
func (p *ConfirmWindow) Observe(e sensor.Event) Decision {
	pir, ok := e.(*sensor.Pir)
	if !ok {
		p.emit(e)
		return Emitted
	}

	st := p.state(KeyFor(ClassConfirm, e))
	st.mu.Lock()
	if !st.window.Add(p.clock.Now(), pir.MessageID) {
		st.mu.Unlock()
		return Suppressed
	}
	seen := st.window.CountFunc(func(id uint32) bool { return id == pir.MessageID })
	st.mu.Unlock()

	if seen != 1 {
		return Suppressed
	}
	p.emit(e)
	return Emitted
}

func (p *ConfirmWindow) state(k Key) *confirmState {
	if st, ok := p.keys.Load(k); ok {
		return st.(*confirmState)
	}
	st, _ := p.keys.LoadOrStore(k, &confirmState{window: window.NewTimeWindow[uint32](p.length)})
	return st.(*confirmState)
}
