package dedup

import (
	"log/slog"
	"time"

	"github.com/sweeney/bt-sensor-relay/internal/clock"
	"github.com/sweeney/bt-sensor-relay/internal/sensor"
)

// DefaultBufferTime is the confirm window and the coalesce quiet period.
const DefaultBufferTime = 2 * time.Second

// EmitFunc receives every event a policy decides to forward.
type EmitFunc func(sensor.Event)

// Decision is the immediate outcome of submitting an event.
type Decision int

const (
	// Emitted means the event was forwarded during the call.
	Emitted Decision = iota + 1
	// Suppressed means the event was recognised as a duplicate.
	Suppressed
	// Pending means the event was buffered and a winner is emitted later.
	Pending
)

func (d Decision) String() string {
	switch d {
	case Emitted:
		return "emitted"
	case Suppressed:
		return "suppressed"
	case Pending:
		return "pending"
	default:
		return "unknown"
	}
}

// Config tunes the engine. Zero values select the defaults.
type Config struct {
	CounterWindowSize int
	ConfirmWindow     time.Duration
	CoalesceWindow    time.Duration
	Clock             clock.Clock
	Logger            *slog.Logger
}

// Engine routes events to their policy.
type Engine struct {
	counter  *CounterWindow
	confirm  *ConfirmWindow
	coalesce *Coalescer
	logger   *slog.Logger
}

// NewEngine creates an engine that forwards winning events to emit.
// emit may be called from timer goroutines.
func NewEngine(cfg Config, emit EmitFunc) *Engine {
	if cfg.CounterWindowSize <= 0 {
		cfg.CounterWindowSize = DefaultCounterWindowSize
	}
	if cfg.ConfirmWindow <= 0 {
		cfg.ConfirmWindow = DefaultBufferTime
	}
	if cfg.CoalesceWindow <= 0 {
		cfg.CoalesceWindow = DefaultBufferTime
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Engine{
		counter:  NewCounterWindow(cfg.CounterWindowSize, emit),
		confirm:  NewConfirmWindow(cfg.ConfirmWindow, cfg.Clock, emit),
		coalesce: NewCoalescer(cfg.CoalesceWindow, cfg.Clock, emit),
		logger:   cfg.Logger,
	}
}

// Submit hands one decoded event to the policy for its kind.
func (e *Engine) Submit(ev sensor.Event) Decision {
	class := Classify(ev.Kind())

	var d Decision
	switch class {
	case ClassCounter:
		d = e.counter.Observe(ev)
	case ClassConfirm:
		d = e.confirm.Observe(ev)
	default:
		d = e.coalesce.Observe(ev)
	}

	if d == Suppressed {
		e.logger.Debug("dedup: duplicate suppressed",
			"class", class.String(),
			"key", KeyFor(class, ev).String(),
			"rssi", ev.Base().RSSI,
		)
	}
	return d
}

// Stop cancels pending coalesce timers. Buffered events are dropped.
func (e *Engine) Stop() {
	e.coalesce.Stop()
}
