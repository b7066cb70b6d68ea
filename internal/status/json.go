package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Counts        CountsJSON    `json:"counts"`
	Readings      []ReadingJSON `json:"readings,omitempty"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of pipeline counters.
type CountsJSON struct {
	Envelopes      uint64            `json:"envelopes"`
	Malformed      uint64            `json:"malformed"`
	DecodeFailures map[string]uint64 `json:"decode_failures"`
	Decoded        map[string]uint64 `json:"decoded"`
	Suppressed     uint64            `json:"suppressed"`
	Published      uint64            `json:"published"`
	Buffered       uint64            `json:"buffered"`
	PublishErrors  uint64            `json:"publish_errors"`
}

// ReadingJSON is the JSON representation of the last reading on a topic.
type ReadingJSON struct {
	Topic    string `json:"topic"`
	Kind     string `json:"kind"`
	Instance string `json:"instance"`
	RSSI     int    `json:"rssi"`
	At       string `json:"at"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of relay config.
type ConfigJSON struct {
	BufferTimeMs   int64  `json:"buffer_time_ms"`
	PirWindowMs    int64  `json:"pir_window_ms"`
	CounterWindow  int    `json:"counter_window"`
	HeartbeatMs    int64  `json:"heartbeat_ms"`
	Broker         string `json:"broker"`
	SubscribeTopic string `json:"subscribe_topic"`
	HTTPPort       string `json:"http_port"`
}

func buildInner(snap Snapshot) StatusInner {
	readings := make([]ReadingJSON, 0, len(snap.Readings))
	for _, r := range snap.Readings {
		readings = append(readings, ReadingJSON{
			Topic:    r.Topic,
			Kind:     r.Kind,
			Instance: r.Instance,
			RSSI:     r.RSSI,
			At:       r.At.UTC().Format(time.RFC3339),
		})
	}

	return StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Envelopes:      snap.Counts.Envelopes,
			Malformed:      snap.Counts.Malformed,
			DecodeFailures: nonNil(snap.Counts.DecodeFailures),
			Decoded:        nonNil(snap.Counts.Decoded),
			Suppressed:     snap.Counts.Suppressed,
			Published:      snap.Counts.Published,
			Buffered:       snap.Counts.Buffered,
			PublishErrors:  snap.Counts.PublishErrors,
		},
		Readings: readings,
		Config: ConfigJSON{
			BufferTimeMs:   snap.Config.BufferTimeMs,
			PirWindowMs:    snap.Config.PirWindowMs,
			CounterWindow:  snap.Config.CounterWindow,
			HeartbeatMs:    snap.Config.HeartbeatMs,
			Broker:         snap.Config.Broker,
			SubscribeTopic: snap.Config.SubscribeTopic,
			HTTPPort:       snap.Config.HTTPPort,
		},
	}
}

func nonNil(m map[string]uint64) map[string]uint64 {
	if m == nil {
		return map[string]uint64{}
	}
	return m
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
// The per-topic readings are left out to keep the retained message small.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	inner.Readings = nil
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
