package sensor

import "errors"

// Decode failures. Each drops the offending packet only.
var (
	ErrShortPacket         = errors.New("short packet")
	ErrUnknownManufacturer = errors.New("unknown manufacturer")
	ErrUnknownTag          = errors.New("unknown sensor tag")
	ErrInvalidLength       = errors.New("invalid packet length")
	ErrInvalidChecksum     = errors.New("invalid checksum")
)

// Reason returns a short label for a decode error, suitable for counters and
// log fields. Unknown errors map to "other".
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrShortPacket):
		return "short_packet"
	case errors.Is(err, ErrUnknownManufacturer):
		return "unknown_manufacturer"
	case errors.Is(err, ErrUnknownTag):
		return "unknown_tag"
	case errors.Is(err, ErrInvalidLength):
		return "invalid_length"
	case errors.Is(err, ErrInvalidChecksum):
		return "invalid_checksum"
	default:
		return "other"
	}
}
