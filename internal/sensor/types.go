// Package sensor decodes BLE advertisement packets relayed by gateway nodes
// into typed sensor events.
//
// Event is a closed sum type: the seven concrete kinds in this package are
// the only implementations, and code that needs per-kind behaviour switches
// exhaustively on Kind.
package sensor

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies a sensor event variant.
type Kind int

const (
	KindEnvironment Kind = iota + 1
	KindPir
	KindCurrent
	KindTemperature
	KindTankLevel
	KindAutopilotRemote
	KindVoltage
)

// Kinds lists every kind in wire-tag order of the protocol documentation.
var Kinds = []Kind{
	KindEnvironment,
	KindPir,
	KindCurrent,
	KindTemperature,
	KindTankLevel,
	KindAutopilotRemote,
	KindVoltage,
}

func (k Kind) String() string {
	switch k {
	case KindEnvironment:
		return "environment"
	case KindPir:
		return "pir"
	case KindCurrent:
		return "current"
	case KindTemperature:
		return "temperature"
	case KindTankLevel:
		return "tank_level"
	case KindAutopilotRemote:
		return "autopilot_remote"
	case KindVoltage:
		return "voltage"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// WireTag returns the ASCII letter carried in the packet tag field.
func (k Kind) WireTag() byte {
	switch k {
	case KindEnvironment:
		return 'm'
	case KindPir:
		return 'k'
	case KindCurrent:
		return 'n'
	case KindTemperature:
		return 't'
	case KindTankLevel:
		return 'w'
	case KindAutopilotRemote:
		return 'a'
	case KindVoltage:
		return 'v'
	default:
		return 0
	}
}

// Tag returns the letter published in the event and its topic. It equals the
// wire tag except for current sensors, which downstream consumers know as "c".
func (k Kind) Tag() string {
	if k == KindCurrent {
		return "c"
	}
	return string(k.WireTag())
}

// ISOTime is a timestamp serialized as ISO-8601 UTC with millisecond precision.
type ISOTime time.Time

const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// Time returns the underlying time.
func (t ISOTime) Time() time.Time {
	return time.Time(t)
}

func (t ISOTime) String() string {
	return time.Time(t).UTC().Format(isoLayout)
}

// MarshalJSON encodes the timestamp as an ISO-8601 string.
func (t ISOTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON accepts any RFC 3339 timestamp.
func (t *ISOTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	*t = ISOTime(parsed)
	return nil
}

// Common holds the fields every event carries. RSSI is not part of the wire
// packet; the relay sets it from the gateway envelope after decoding.
type Common struct {
	Tag      string  `json:"tag"`
	Instance string  `json:"instance"`
	Ts       ISOTime `json:"ts"`
	Vcc      uint16  `json:"vcc"`
	RSSI     int     `json:"rssi"`
}

// Base returns the shared fields for reading and in-place updates.
func (c *Common) Base() *Common {
	return c
}

// Event is a decoded sensor reading.
type Event interface {
	Kind() Kind
	Base() *Common
	isEvent()
}

// Environment is a composite temperature/humidity/pressure reading.
type Environment struct {
	Common
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
}

// Pir is a motion sensor reading. MessageID repeats across retransmissions
// of the same detection.
type Pir struct {
	Common
	MotionDetected bool   `json:"motionDetected"`
	MessageID      uint32 `json:"messageId"`
}

// Current is a current-sensor reading with a per-reading counter.
type Current struct {
	Common
	Current        float64 `json:"current"`
	MessageCounter uint16  `json:"messageCounter"`
}

// Temperature is a plain temperature reading.
type Temperature struct {
	Common
	Temperature float64 `json:"temperature"`
}

// TankLevel is a tank fill level reading in percent.
type TankLevel struct {
	Common
	TankLevel uint8 `json:"tankLevel"`
}

// AutopilotRemote is a button press on an autopilot remote control.
type AutopilotRemote struct {
	Common
	ButtonID       uint8  `json:"buttonId"`
	IsLongPress    bool   `json:"isLongPress"`
	MessageCounter uint16 `json:"messageCounter"`
}

// Voltage carries only the supply voltage.
type Voltage struct {
	Common
}

func (*Environment) Kind() Kind     { return KindEnvironment }
func (*Pir) Kind() Kind             { return KindPir }
func (*Current) Kind() Kind         { return KindCurrent }
func (*Temperature) Kind() Kind     { return KindTemperature }
func (*TankLevel) Kind() Kind       { return KindTankLevel }
func (*AutopilotRemote) Kind() Kind { return KindAutopilotRemote }
func (*Voltage) Kind() Kind         { return KindVoltage }

func (*Environment) isEvent()     {}
func (*Pir) isEvent()             {}
func (*Current) isEvent()         {}
func (*Temperature) isEvent()     {}
func (*TankLevel) isEvent()       {}
func (*AutopilotRemote) isEvent() {}
func (*Voltage) isEvent()         {}

// Topic returns the MQTT state topic for the event's sensor channel.
func Topic(e Event) string {
	b := e.Base()
	return fmt.Sprintf("/sensor/%s/%s/state", b.Instance, b.Tag)
}
