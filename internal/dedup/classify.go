// Package dedup collapses the redundant event stream relayed by several
// gateways into one event per logical reading.
//
// Events are routed by kind into one of three policies, each keeping
// independent per-key window state:
//
//   - counter window: sensors that number their readings. The newest
//     reading is emitted when its counter appears once in the last N readings.
//   - immediate confirm: PIR sensors. The newest reading is emitted at once
//     when its message id is unique within a trailing time window.
//   - coalesce: everything else. Copies are collected until the key has been
//     quiet for the buffer time, then the copy with the strongest RSSI wins.
package dedup

import "github.com/sweeney/bt-sensor-relay/internal/sensor"

// Class is a dedup policy class.
type Class int

const (
	ClassCounter Class = iota + 1
	ClassConfirm
	ClassCoalesce
)

func (c Class) String() string {
	switch c {
	case ClassCounter:
		return "counter"
	case ClassConfirm:
		return "confirm"
	case ClassCoalesce:
		return "coalesce"
	default:
		return "unknown"
	}
}

// Classify returns the policy class for a sensor kind.
func Classify(k sensor.Kind) Class {
	switch k {
	case sensor.KindCurrent, sensor.KindAutopilotRemote:
		return ClassCounter
	case sensor.KindPir:
		return ClassConfirm
	case sensor.KindEnvironment, sensor.KindTemperature, sensor.KindTankLevel, sensor.KindVoltage:
		return ClassCoalesce
	default:
		return ClassCoalesce
	}
}

// Key identifies a per-sensor window. Counter and confirm windows are keyed
// by instance alone; coalesce windows by tag and instance.
type Key struct {
	Tag      string
	Instance string
}

func (k Key) String() string {
	if k.Tag == "" {
		return k.Instance
	}
	return k.Tag + k.Instance
}

// KeyFor derives the window key for an event in the given class.
func KeyFor(c Class, e sensor.Event) Key {
	b := e.Base()
	if c == ClassCoalesce {
		return Key{Tag: b.Tag, Instance: b.Instance}
	}
	return Key{Instance: b.Instance}
}
