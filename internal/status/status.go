// Package status provides a thread-safe status tracker for the relay.
// It is read by the HTTP handlers and by the system events published to MQTT.
package status

import (
	"sort"
	"sync"
	"time"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains relay configuration for display.
type Config struct {
	BufferTimeMs   int64
	PirWindowMs    int64
	CounterWindow  int
	HeartbeatMs    int64
	Broker         string
	SubscribeTopic string
	HTTPPort       string
}

// Counts are the running pipeline counters.
type Counts struct {
	Envelopes      uint64
	Malformed      uint64
	DecodeFailures map[string]uint64 // by failure reason
	Decoded        map[string]uint64 // by sensor kind
	Suppressed     uint64
	Published      uint64 // acknowledged by the broker
	Buffered       uint64 // queued for replay while the broker was unreachable
	PublishErrors  uint64
}

// Reading is the last reading published on a state topic.
type Reading struct {
	Topic    string
	Kind     string
	Instance string
	RSSI     int
	At       time.Time
}

// Snapshot is a point-in-time view of relay state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Counts        Counts
	Readings      []Reading // sorted by topic
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the relay started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable relay state behind an RWMutex.
type Tracker struct {
	mu       sync.RWMutex
	snap     Snapshot
	readings map[string]Reading
	now      func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Counts: Counts{
				DecodeFailures: make(map[string]uint64),
				Decoded:        make(map[string]uint64),
			},
		},
		readings: make(map[string]Reading),
		now:      time.Now,
	}
}

// SetClock replaces the time source used for Snapshot.Now.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// EnvelopeReceived counts a message from a gateway.
func (t *Tracker) EnvelopeReceived() {
	t.mu.Lock()
	t.snap.Counts.Envelopes++
	t.mu.Unlock()
}

// EnvelopeMalformed counts an envelope that failed to parse.
func (t *Tracker) EnvelopeMalformed() {
	t.mu.Lock()
	t.snap.Counts.Malformed++
	t.mu.Unlock()
}

// DecodeFailed counts a packet rejected by the decoder.
func (t *Tracker) DecodeFailed(reason string) {
	t.mu.Lock()
	t.snap.Counts.DecodeFailures[reason]++
	t.mu.Unlock()
}

// Decoded counts a successfully decoded event of the given kind.
func (t *Tracker) Decoded(kind string) {
	t.mu.Lock()
	t.snap.Counts.Decoded[kind]++
	t.mu.Unlock()
}

// Suppressed counts a duplicate dropped by dedup.
func (t *Tracker) Suppressed() {
	t.mu.Lock()
	t.snap.Counts.Suppressed++
	t.mu.Unlock()
}

// Published counts a published reading and remembers it as the latest on
// its topic.
func (t *Tracker) Published(r Reading) {
	t.mu.Lock()
	t.snap.Counts.Published++
	t.readings[r.Topic] = r
	t.mu.Unlock()
}

// Buffered counts a reading queued for replay while offline. It is not
// recorded as the latest reading on its topic because it may never be sent.
func (t *Tracker) Buffered() {
	t.mu.Lock()
	t.snap.Counts.Buffered++
	t.mu.Unlock()
}

// PublishFailed counts a reading the publisher rejected.
func (t *Tracker) PublishFailed() {
	t.mu.Lock()
	t.snap.Counts.PublishErrors++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the relay state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Counts.DecodeFailures = copyCounts(t.snap.Counts.DecodeFailures)
	s.Counts.Decoded = copyCounts(t.snap.Counts.Decoded)
	s.Readings = make([]Reading, 0, len(t.readings))
	for _, r := range t.readings {
		s.Readings = append(s.Readings, r)
	}
	now := t.now
	t.mu.RUnlock()

	sort.Slice(s.Readings, func(i, j int) bool { return s.Readings[i].Topic < s.Readings[j].Topic })
	s.Now = now()
	return s
}

func copyCounts(m map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
