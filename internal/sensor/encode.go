package sensor

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode builds the wire packet a sensor would broadcast for e, including a
// valid checksum. The device address prefix is taken from addr. It is the
// inverse of Decode for every field except Ts and RSSI, which are not part
// of the wire format. cmd/bt-gateway-sim builds its broadcasts with it.
func Encode(e Event, addr [6]byte) ([]byte, error) {
	kind := e.Kind()
	n := PacketLen(kind)
	if n == 0 {
		return nil, fmt.Errorf("encode: unsupported kind %s", kind)
	}
	base := e.Base()
	if len(base.Instance) != instanceLen {
		return nil, fmt.Errorf("encode: instance %q must be %d bytes", base.Instance, instanceLen)
	}

	b := make([]byte, n)
	copy(b, addr[:])
	// Flags AD structure followed by the manufacturer-specific AD header.
	b[6], b[7], b[8] = 0x02, 0x01, 0x06
	b[9] = byte(n - 10)
	b[10] = 0xFF
	binary.LittleEndian.PutUint16(b[manufacturerOffset:], ManufacturerID)
	binary.LittleEndian.PutUint16(b[tagOffset:], uint16(kind.WireTag()))

	switch ev := e.(type) {
	case *Environment:
		binary.LittleEndian.PutUint16(b[20:], uint16(int16(math.Round(ev.Temperature*100))))
		binary.LittleEndian.PutUint16(b[22:], uint16(math.Round(ev.Humidity*100)))
		binary.LittleEndian.PutUint16(b[24:], uint16(math.Round(ev.Pressure*10)))
		binary.LittleEndian.PutUint16(b[26:], ev.Vcc)
	case *Pir:
		if ev.MotionDetected {
			b[20] = 1
		}
		binary.LittleEndian.PutUint16(b[21:], ev.Vcc)
		binary.LittleEndian.PutUint32(b[23:], ev.MessageID)
	case *Current:
		binary.LittleEndian.PutUint32(b[22:], math.Float32bits(float32(ev.Current)))
		binary.LittleEndian.PutUint16(b[26:], ev.Vcc)
		binary.LittleEndian.PutUint16(b[28:], ev.MessageCounter)
	case *Temperature:
		binary.LittleEndian.PutUint16(b[20:], uint16(int16(math.Round(ev.Temperature*100))))
		binary.LittleEndian.PutUint16(b[22:], ev.Vcc)
	case *TankLevel:
		b[20] = ev.TankLevel
		binary.LittleEndian.PutUint16(b[21:], ev.Vcc)
	case *AutopilotRemote:
		b[20] = ev.ButtonID
		if ev.IsLongPress {
			b[21] = 1
		}
		binary.LittleEndian.PutUint16(b[22:], ev.MessageCounter)
		binary.LittleEndian.PutUint16(b[24:], ev.Vcc)
	case *Voltage:
		binary.LittleEndian.PutUint16(b[20:], ev.Vcc)
	}

	copy(b[n-instanceLen:], base.Instance)
	SetChecksum(b)
	return b, nil
}
