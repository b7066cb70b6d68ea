// Command bt-gateway-sim publishes synthetic sensor advertisements the way
// gateway nodes do, for exercising a relay without sensors or radios.
//
// Each reading is encoded once and published by every simulated gateway with
// a progressively weaker RSSI, so the relay sees the same duplicated stream it
// sees in the field.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/bt-sensor-relay/internal/envelope"
	"github.com/sweeney/bt-sensor-relay/internal/logging"
	"github.com/sweeney/bt-sensor-relay/internal/mqtt"
	"github.com/sweeney/bt-sensor-relay/internal/sensor"
)

// rssiStep is how much weaker each additional gateway hears a broadcast.
const rssiStep = 7

type options struct {
	broker    string
	gateway   string
	gateways  int
	kind      sensor.Kind
	instance  string
	value     float64
	rssi      int
	count     int
	interval  time.Duration
	logLevel  slog.Level
	logFormat string
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "bt-gateway-sim: %v\n", err)
		os.Exit(2)
	}

	logger := logging.New(os.Stderr, logging.Options{Level: opts.logLevel, Format: opts.logFormat})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func parseOptions(args []string) (options, error) {
	fs := pflag.NewFlagSet("bt-gateway-sim", pflag.ContinueOnError)
	fs.String("broker", "tcp://localhost:1883", "MQTT broker address")
	fs.String("gateway", "sim", "Gateway id used in the topic")
	fs.Int("gateways", 1, "Gateways that hear every broadcast")
	fs.String("kind", "t", "Sensor kind: wire tag (m k n t w a v) or name")
	fs.String("instance", "SIM1", "Four-character sensor instance")
	fs.Float64("value", 21.5, "Primary reading (temperature, current, tank level or button id)")
	fs.Int("rssi", -55, "RSSI reported by the first gateway")
	fs.Int("count", 1, "Readings to send (0 sends until interrupted)")
	fs.Duration("interval", time.Second, "Delay between readings")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
	fs.String("log-format", "text", "Log format: text or json")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return options{}, fmt.Errorf("bind flags: %w", err)
	}
	if err := v.BindEnv("broker", "MQTT_BROKER"); err != nil {
		return options{}, fmt.Errorf("bind env: %w", err)
	}

	kind, err := parseKind(v.GetString("kind"))
	if err != nil {
		return options{}, err
	}
	level, err := parseLevel(v.GetString("log-level"))
	if err != nil {
		return options{}, err
	}

	opts := options{
		broker:    v.GetString("broker"),
		gateway:   v.GetString("gateway"),
		gateways:  v.GetInt("gateways"),
		kind:      kind,
		instance:  v.GetString("instance"),
		value:     v.GetFloat64("value"),
		rssi:      v.GetInt("rssi"),
		count:     v.GetInt("count"),
		interval:  v.GetDuration("interval"),
		logLevel:  level,
		logFormat: v.GetString("log-format"),
	}
	switch {
	case len(opts.instance) != 4:
		return options{}, fmt.Errorf("instance %q must be 4 bytes", opts.instance)
	case opts.gateways < 1:
		return options{}, fmt.Errorf("gateways must be at least 1, got %d", opts.gateways)
	case opts.count < 0:
		return options{}, fmt.Errorf("count must not be negative, got %d", opts.count)
	}
	return opts, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log-level: %w", err)
	}
	return level, nil
}

// parseKind accepts a wire tag, the published tag "c", or a kind name.
func parseKind(s string) (sensor.Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "c" {
		return sensor.KindCurrent, nil
	}
	for _, k := range sensor.Kinds {
		if s == string(k.WireTag()) || s == k.String() {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown sensor kind %q", s)
}

// buildEvent creates reading number seq. seq doubles as the message counter
// or PIR message id, so consecutive readings are never duplicates.
func buildEvent(kind sensor.Kind, instance string, value float64, seq int) sensor.Event {
	c := sensor.Common{Tag: kind.Tag(), Instance: instance, Vcc: 3000}
	switch kind {
	case sensor.KindEnvironment:
		return &sensor.Environment{Common: c, Temperature: value, Humidity: 50, Pressure: 1013.2}
	case sensor.KindPir:
		return &sensor.Pir{Common: c, MotionDetected: true, MessageID: uint32(seq)}
	case sensor.KindCurrent:
		return &sensor.Current{Common: c, Current: value, MessageCounter: uint16(seq)}
	case sensor.KindTemperature:
		return &sensor.Temperature{Common: c, Temperature: value}
	case sensor.KindTankLevel:
		return &sensor.TankLevel{Common: c, TankLevel: uint8(value)}
	case sensor.KindAutopilotRemote:
		return &sensor.AutopilotRemote{Common: c, ButtonID: uint8(value), MessageCounter: uint16(seq)}
	default:
		return &sensor.Voltage{Common: c}
	}
}

// deviceAddr derives a stable pseudo device address from the instance.
func deviceAddr(instance string) [6]byte {
	addr := [6]byte{0xE4, 0x5F}
	copy(addr[2:], instance)
	return addr
}

// broadcast is one gateway message carrying a reading.
type broadcast struct {
	topic   string
	payload []byte
}

// broadcasts encodes ev and wraps it once per simulated gateway.
func broadcasts(opts options, ev sensor.Event) ([]broadcast, error) {
	pkt, err := sensor.Encode(ev, deviceAddr(opts.instance))
	if err != nil {
		return nil, err
	}

	out := make([]broadcast, 0, opts.gateways)
	for g := 0; g < opts.gateways; g++ {
		payload, err := envelope.Format(envelope.Envelope{Data: pkt, RSSI: opts.rssi - g*rssiStep})
		if err != nil {
			return nil, err
		}
		gw := opts.gateway
		if opts.gateways > 1 {
			gw = fmt.Sprintf("%s%d", opts.gateway, g+1)
		}
		out = append(out, broadcast{topic: fmt.Sprintf("/bt-sensor-gw/%s/value", gw), payload: payload})
	}
	return out, nil
}

func run(ctx context.Context, opts options, logger *slog.Logger) error {
	client, err := mqtt.NewRealClient(mqtt.Options{
		Broker: opts.broker,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Close()

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	for seq := 1; opts.count == 0 || seq <= opts.count; seq++ {
		msgs, err := broadcasts(opts, buildEvent(opts.kind, opts.instance, opts.value, seq))
		if err != nil {
			return fmt.Errorf("encode reading %d: %w", seq, err)
		}
		for _, m := range msgs {
			switch err := client.PublishRaw(m.topic, m.payload, false); {
			case err == nil:
				logger.Debug("sent", "topic", m.topic, "seq", seq)
			case errors.Is(err, mqtt.ErrBuffered):
				logger.Warn("broker unreachable, reading buffered", "topic", m.topic, "seq", seq)
			default:
				return err
			}
		}
		logger.Info("broadcast", "kind", opts.kind.String(), "instance", opts.instance, "seq", seq, "gateways", len(msgs))

		if opts.count != 0 && seq == opts.count {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}
