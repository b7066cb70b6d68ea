// Package relay turns gateway envelopes into deduplicated sensor readings on
// the broker.
package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweeney/bt-sensor-relay/internal/clock"
	"github.com/sweeney/bt-sensor-relay/internal/dedup"
	"github.com/sweeney/bt-sensor-relay/internal/envelope"
	"github.com/sweeney/bt-sensor-relay/internal/mqtt"
	"github.com/sweeney/bt-sensor-relay/internal/sensor"
	"github.com/sweeney/bt-sensor-relay/internal/status"
)

// Config wires the relay's collaborators. Zero values select defaults.
type Config struct {
	Dedup   dedup.Config
	Clock   clock.Clock
	Tracker *status.Tracker
	Logger  *slog.Logger
}

// Relay parses, decodes and deduplicates gateway messages and publishes the
// surviving readings.
type Relay struct {
	decoder   *sensor.Decoder
	engine    *dedup.Engine
	publisher mqtt.Publisher
	tracker   *status.Tracker
	clock     clock.Clock
	logger    *slog.Logger
}

// New creates a relay publishing through pub.
func New(pub mqtt.Publisher, cfg Config) *Relay {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracker == nil {
		cfg.Tracker = status.NewTracker(cfg.Clock.Now(), status.Config{})
	}

	r := &Relay{
		decoder:   sensor.NewDecoder(cfg.Clock),
		publisher: pub,
		tracker:   cfg.Tracker,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}

	dc := cfg.Dedup
	dc.Clock = cfg.Clock
	if dc.Logger == nil {
		dc.Logger = cfg.Logger
	}
	r.engine = dedup.NewEngine(dc, r.publish)
	return r
}

// HandleMessage is the subscription callback for gateway topics. Failures
// are logged and counted; the message is dropped.
func (r *Relay) HandleMessage(topic string, payload []byte) {
	if _, err := r.Process(topic, payload); err != nil {
		r.logger.Warn("relay: message dropped",
			"gateway", gatewayOf(topic),
			"reason", reason(err),
			"error", err,
		)
	}
}

// Process runs one gateway message through the pipeline and returns the
// dedup decision for each decoded event.
func (r *Relay) Process(topic string, payload []byte) ([]dedup.Decision, error) {
	r.tracker.EnvelopeReceived()

	env, err := envelope.Parse(payload)
	if err != nil {
		r.tracker.EnvelopeMalformed()
		return nil, err
	}

	events, err := r.decoder.Decode(env.Data)
	if err != nil {
		r.tracker.DecodeFailed(sensor.Reason(err))
		return nil, fmt.Errorf("decode packet from %s: %w", gatewayOf(topic), err)
	}

	decisions := make([]dedup.Decision, 0, len(events))
	for _, ev := range events {
		ev.Base().RSSI = env.RSSI
		r.tracker.Decoded(ev.Kind().String())

		d := r.engine.Submit(ev)
		if d == dedup.Suppressed {
			r.tracker.Suppressed()
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// publish is the engine's emit callback. It may run on a timer goroutine.
func (r *Relay) publish(ev sensor.Event) {
	topic := mqtt.ReadingTopic(ev)
	if err := r.publisher.Publish(ev); err != nil {
		if errors.Is(err, mqtt.ErrBuffered) {
			r.tracker.Buffered()
			r.logger.Debug("relay: reading buffered", "topic", topic)
			return
		}
		r.tracker.PublishFailed()
		r.logger.Error("relay: publish failed", "topic", topic, "error", err)
		return
	}

	b := ev.Base()
	r.tracker.Published(status.Reading{
		Topic:    topic,
		Kind:     ev.Kind().String(),
		Instance: b.Instance,
		RSSI:     b.RSSI,
		At:       r.clock.Now(),
	})
	r.logger.Debug("relay: published", "topic", topic, "rssi", b.RSSI)
}

// Stop cancels pending coalesced readings.
func (r *Relay) Stop() {
	r.engine.Stop()
}

// gatewayOf extracts the gateway id from a /<prefix>/<gateway>/value topic.
func gatewayOf(topic string) string {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return topic
}

func reason(err error) string {
	if errors.Is(err, envelope.ErrMalformedEnvelope) {
		return "malformed_envelope"
	}
	return sensor.Reason(err)
}
