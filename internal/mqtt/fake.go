package mqtt

import (
	"sync"

	"github.com/sweeney/bt-sensor-relay/internal/sensor"
)

// FakeClient records published events for test assertions and lets tests
// inject messages into subscriptions. Safe for concurrent use, since readings
// may be published from debounce timers.
type FakeClient struct {
	mu sync.Mutex

	// Events contains all readings that were published.
	Events []sensor.Event

	// Topics contains the state topic of each published reading.
	Topics []string

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// SubscribeError, if set, will be returned by Subscribe.
	SubscribeError error

	// Offline makes Publish queue readings in Queued and return ErrBuffered,
	// as RealClient does while the broker is unreachable.
	Offline bool

	// Queued contains readings accepted while Offline.
	Queued []sensor.Event

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	handlers map[string]MessageHandler
}

// NewFakeClient creates a FakeClient for testing.
func NewFakeClient() *FakeClient {
	return &FakeClient{handlers: make(map[string]MessageHandler)}
}

// Publish records the reading.
func (f *FakeClient) Publish(event sensor.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	if f.Offline {
		f.Queued = append(f.Queued, event)
		return ErrBuffered
	}

	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Topics = append(f.Topics, ReadingTopic(event))
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakeClient) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Subscribe registers handler under filter. Deliver routes by exact filter.
func (f *FakeClient) Subscribe(filter string, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.handlers[filter] = handler
	return nil
}

// Deliver hands payload to the handler subscribed under filter, as if it had
// arrived on topic. Returns false if nothing is subscribed.
func (f *FakeClient) Deliver(filter, topic string, payload []byte) bool {
	f.mu.Lock()
	h, ok := f.handlers[filter]
	f.mu.Unlock()
	if !ok {
		return false
	}
	h(topic, payload)
	return true
}

// Published returns a copy of the readings published so far.
func (f *FakeClient) Published() []sensor.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sensor.Event(nil), f.Events...)
}

// Close marks the client as closed.
func (f *FakeClient) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake client is "connected".
func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded events and injected errors between test cases.
// Subscriptions are kept.
func (f *FakeClient) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events = nil
	f.Topics = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Queued = nil
	f.Offline = false
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.SubscribeError = nil
	f.Connected = false
}
