package sensor

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sweeney/bt-sensor-relay/internal/clock"
)

// Packet layout constants (byte offsets, little-endian fields).
const (
	ManufacturerID = 0xDADA

	MinPacketLen       = 22
	manufacturerOffset = 11
	tagOffset          = 14
	checksumOffset     = 16
	checksumEnd        = checksumOffset + 4
	payloadOffset      = 20
	instanceLen        = 4
	// The leading device address is excluded from the checksum.
	checksumStart = 6
)

// PacketLen returns the exact packet length required for a kind.
func PacketLen(k Kind) int {
	switch k {
	case KindEnvironment:
		return 34
	case KindPir:
		return 33
	case KindCurrent:
		return 36
	case KindTemperature:
		return 30
	case KindTankLevel:
		return 29
	case KindAutopilotRemote:
		return 32
	case KindVoltage:
		return 28
	default:
		return 0
	}
}

// KindForWireTag maps a packet tag value to its kind.
func KindForWireTag(tag uint16) (Kind, bool) {
	for _, k := range Kinds {
		if uint16(k.WireTag()) == tag {
			return k, true
		}
	}
	return 0, false
}

// Decoder turns raw packets into events, stamping them with its clock.
type Decoder struct {
	clock clock.Clock
}

// NewDecoder creates a Decoder. A nil clock uses wall-clock time.
func NewDecoder(c clock.Clock) *Decoder {
	if c == nil {
		c = clock.Real()
	}
	return &Decoder{clock: c}
}

// Decode parses a raw packet. On success it returns one event per packet;
// Environment packets decode to a single composite event. Any validation
// failure returns no events and an error wrapping one of the package
// sentinels. The input slice is never modified.
func (d *Decoder) Decode(b []byte) ([]Event, error) {
	if len(b) < MinPacketLen {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d", ErrShortPacket, len(b), MinPacketLen)
	}

	manufacturer := binary.LittleEndian.Uint16(b[manufacturerOffset:])
	if manufacturer != ManufacturerID {
		return nil, fmt.Errorf("%w: 0x%04X", ErrUnknownManufacturer, manufacturer)
	}

	tag := binary.LittleEndian.Uint16(b[tagOffset:])
	kind, ok := KindForWireTag(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, tag)
	}

	if want := PacketLen(kind); len(b) != want {
		return nil, fmt.Errorf("%w: %s packet is %d bytes, expected %d", ErrInvalidLength, kind, len(b), want)
	}

	if got, want := binary.LittleEndian.Uint32(b[checksumOffset:]), Checksum(b); got != want {
		return nil, fmt.Errorf("%w: %s packet carries 0x%08X, computed 0x%08X", ErrInvalidChecksum, kind, got, want)
	}

	return []Event{parse(kind, b, d.clock.Now())}, nil
}

// Decode parses a raw packet using wall-clock time for timestamps.
func Decode(b []byte) ([]Event, error) {
	return NewDecoder(nil).Decode(b)
}

// parse extracts kind-specific fields. b has already passed length and
// checksum validation for kind.
func parse(kind Kind, b []byte, now time.Time) Event {
	c := Common{
		Tag:      kind.Tag(),
		Instance: instance(b),
		Ts:       ISOTime(now),
	}

	switch kind {
	case KindEnvironment:
		c.Vcc = u16(b, 26)
		return &Environment{
			Common:      c,
			Temperature: float64(i16(b, 20)) / 100,
			Humidity:    float64(u16(b, 22)) / 100,
			Pressure:    float64(u16(b, 24)) / 10,
		}
	case KindPir:
		c.Vcc = u16(b, 21)
		return &Pir{
			Common:         c,
			MotionDetected: b[20] != 0,
			MessageID:      binary.LittleEndian.Uint32(b[23:]),
		}
	case KindCurrent:
		c.Vcc = u16(b, 26)
		return &Current{
			Common:         c,
			Current:        float64(math.Float32frombits(binary.LittleEndian.Uint32(b[22:]))),
			MessageCounter: u16(b, 28),
		}
	case KindTemperature:
		c.Vcc = u16(b, 22)
		return &Temperature{
			Common:      c,
			Temperature: float64(i16(b, 20)) / 100,
		}
	case KindTankLevel:
		c.Vcc = u16(b, 21)
		return &TankLevel{
			Common:    c,
			TankLevel: b[20],
		}
	case KindAutopilotRemote:
		c.Vcc = u16(b, 24)
		return &AutopilotRemote{
			Common:         c,
			ButtonID:       b[20],
			IsLongPress:    b[21] > 0,
			MessageCounter: u16(b, 22),
		}
	case KindVoltage:
		c.Vcc = u16(b, 20)
		return &Voltage{Common: c}
	default:
		panic(fmt.Sprintf("sensor: parse called with unknown kind %d", int(kind)))
	}
}

// instance decodes the trailing id as UTF-8. Each byte that is not part of
// a valid sequence becomes its own U+FFFD.
func instance(b []byte) string {
	raw := string(b[len(b)-instanceLen:])
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, r := range raw {
		sb.WriteRune(r)
	}
	return sb.String()
}

func u16(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off:])
}

func i16(b []byte, off int) int16 {
	return int16(binary.LittleEndian.Uint16(b[off:]))
}
