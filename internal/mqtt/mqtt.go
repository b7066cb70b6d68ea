// Package mqtt connects the relay to the broker: it receives gateway
// envelopes and publishes decoded readings and system lifecycle events.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/bt-sensor-relay/internal/sensor"
)

// DefaultGatewayTopic is the filter matching every gateway's envelope topic.
const DefaultGatewayTopic = "/bt-sensor-gw/+/value"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "/bt-sensor-relay/system"

// Readings are delivered at least once and retained so late subscribers see
// the current value.
const (
	ReadingQoS      byte = 1
	ReadingRetained      = true
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a sensor reading to its state topic.
	// Returns error if publishing fails (should not crash the process).
	Publish(event sensor.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// MessageHandler receives raw messages from a subscription. Handlers are
// called one at a time in arrival order.
type MessageHandler func(topic string, payload []byte)

// Subscriber delivers messages matching a topic filter.
type Subscriber interface {
	Subscribe(filter string, handler MessageHandler) error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// ReadingTopic returns the state topic a reading is published on.
func ReadingTopic(event sensor.Event) string {
	return sensor.Topic(event)
}

// FormatPayload creates the flat JSON payload for a reading.
func FormatPayload(event sensor.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s reading: %w", event.Kind(), err)
	}
	return data, nil
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// WillEvent is the retained last-will registered with the broker, sent on
// the relay's behalf if the connection drops without a clean disconnect.
func WillEvent(now time.Time) SystemEvent {
	return SystemEvent{
		Timestamp: now,
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
		Retained:  true,
	}
}
