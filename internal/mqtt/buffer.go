package mqtt

import (
	"log/slog"

	"github.com/sweeney/bt-sensor-relay/internal/window"
)

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// offlineBuffer is a bounded FIFO that stores messages while disconnected.
// Not safe for concurrent use; caller must synchronize.
type offlineBuffer struct {
	msgs     *window.CountWindow[bufferedMsg]
	overflow bool // true if any message was dropped since last drain
	logger   *slog.Logger
}

func newOfflineBuffer(capacity int, logger *slog.Logger) *offlineBuffer {
	if logger == nil {
		logger = slog.Default()
	}
	return &offlineBuffer{
		msgs:   window.NewCountWindow[bufferedMsg](capacity),
		logger: logger,
	}
}

func (b *offlineBuffer) push(msg bufferedMsg) {
	if b.msgs.Push(msg) && !b.overflow {
		b.logger.Warn("mqtt: offline buffer full, dropping oldest", "capacity", b.msgs.Size())
		b.overflow = true
	}
}

func (b *offlineBuffer) drainAll() []bufferedMsg {
	b.overflow = false
	return b.msgs.Drain()
}

func (b *offlineBuffer) len() int {
	return b.msgs.Len()
}
