package mqtt

import (
	"sync"

	"github.com/sweeney/bt-sensor-relay/internal/window"
)

// inbound is one subscription message waiting for its handler.
type inbound struct {
	handler MessageHandler
	topic   string
	payload []byte
}

// inbox moves subscription messages off paho's router goroutine. The router
// only enqueues; a single dispatch goroutine runs handlers in arrival order,
// so a handler may publish and wait for the PUBACK the router delivers.
type inbox struct {
	mu    sync.Mutex
	queue *window.Ring[inbound]

	wake chan struct{}
	done chan struct{}
	stop sync.Once
}

func newInbox() *inbox {
	return &inbox{
		queue: window.NewRing[inbound](64),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// push enqueues m without blocking.
func (q *inbox) push(m inbound) {
	q.mu.Lock()
	q.queue.PushBack(m)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pending returns how many messages wait for dispatch.
func (q *inbox) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queue.Len()
}

// run dispatches queued messages until close is called.
func (q *inbox) run() {
	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
		}

		for {
			select {
			case <-q.done:
				return
			default:
			}

			q.mu.Lock()
			m, ok := q.queue.PopFront()
			q.mu.Unlock()
			if !ok {
				break
			}
			m.handler(m.topic, m.payload)
		}
	}
}

// close stops dispatch. Messages still queued are dropped. It does not wait
// for a running handler, so it is safe to call from one.
func (q *inbox) close() {
	q.stop.Do(func() { close(q.done) })
}
