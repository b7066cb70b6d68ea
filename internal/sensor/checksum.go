package sensor

import (
	"encoding/binary"
	"hash/crc32"
)

var zeroChecksum [checksumEnd - checksumOffset]byte

// Checksum computes the packet CRC-32 (IEEE) over bytes [6, len) with the
// checksum field itself taken as zero. b must be at least MinPacketLen long.
func Checksum(b []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write(b[checksumStart:checksumOffset])
	h.Write(zeroChecksum[:])
	h.Write(b[checksumEnd:])
	return h.Sum32()
}

// SetChecksum writes the packet's checksum into its checksum field.
func SetChecksum(b []byte) {
	binary.LittleEndian.PutUint32(b[checksumOffset:], Checksum(b))
}
