package envbeacon

// This file implements 16-bit and 128-bit UUIDs as defined in the Bluetooth
// specification, plus the text identifiers the sensor firmware uses to name
// its services and characteristics.

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
)

// UUID is a single UUID as used in the Bluetooth stack. It is represented as a
// [4]uint32 instead of a [16]byte for efficiency. uuid[0] holds the least
// significant bytes, which come first on the wire.
type UUID [4]uint32

var errInvalidUUID = errors.New("envbeacon: failed to parse UUID")

// NewUUID returns a new UUID based on the 128-bit (16-byte) input, in the
// little-endian byte order used on the wire.
func NewUUID(uuid [16]byte) UUID {
	return UUID{
		binary.LittleEndian.Uint32(uuid[0:4]),
		binary.LittleEndian.Uint32(uuid[4:8]),
		binary.LittleEndian.Uint32(uuid[8:12]),
		binary.LittleEndian.Uint32(uuid[12:16]),
	}
}

// New16BitUUID returns a new 128-bit UUID based on a 16-bit UUID.
//
// Note: only use registered UUIDs. See
// https://www.bluetooth.com/specifications/gatt/services/ for a list.
func New16BitUUID(shortUUID uint16) UUID {
	var uuid UUID
	uuid[0] = 0x5F9B34FB
	uuid[1] = 0x80000080
	uuid[2] = 0x00001000
	uuid[3] = uint32(shortUUID)
	return uuid
}

// Is16Bit returns whether this UUID is a 16-bit BLE UUID.
func (uuid UUID) Is16Bit() bool {
	return uuid.Is32Bit() && uuid[3] == uint32(uint16(uuid[3]))
}

// Is32Bit returns whether this UUID is a 32-bit BLE UUID.
func (uuid UUID) Is32Bit() bool {
	return uuid[0] == 0x5F9B34FB && uuid[1] == 0x80000080 && uuid[2] == 0x00001000
}

// Get16Bit returns the 16-bit version of this UUID. This is only valid if it
// actually is a 16-bit UUID, see Is16Bit.
func (uuid UUID) Get16Bit() uint16 {
	return uint16(uuid[3])
}

// Bytes returns the UUID in wire (little-endian) byte order.
func (uuid UUID) Bytes() [16]byte {
	var b [16]byte
	binary.LittleEndian.PutUint32(b[0:4], uuid[0])
	binary.LittleEndian.PutUint32(b[4:8], uuid[1])
	binary.LittleEndian.PutUint32(b[8:12], uuid[2])
	binary.LittleEndian.PutUint32(b[12:16], uuid[3])
	return b
}

// ParseUUID parses a canonical UUID string such as
// 00001234-0000-1000-8000-00805f9b34fb. Both upper and lower case hex digits
// are accepted.
func ParseUUID(s string) (UUID, error) {
	if len(s) != 36 || s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
		return UUID{}, errInvalidUUID
	}
	var be [16]byte
	digits := s[0:8] + s[9:13] + s[14:18] + s[19:23] + s[24:36]
	if _, err := hex.Decode(be[:], []byte(digits)); err != nil {
		return UUID{}, errInvalidUUID
	}
	// The canonical form is big-endian.
	var le [16]byte
	for i := range be {
		le[15-i] = be[i]
	}
	return NewUUID(le), nil
}

// String returns a human-readable version of this UUID, such as
// 00001234-0000-1000-8000-00805f9b34fb.
func (uuid UUID) String() string {
	le := uuid.Bytes()
	var be [16]byte
	for i := range le {
		be[15-i] = le[i]
	}
	var buf [36]byte
	hex.Encode(buf[0:8], be[0:4])
	buf[8] = '-'
	hex.Encode(buf[9:13], be[4:6])
	buf[13] = '-'
	hex.Encode(buf[14:18], be[6:8])
	buf[18] = '-'
	hex.Encode(buf[19:23], be[8:10])
	buf[23] = '-'
	hex.Encode(buf[24:36], be[10:16])
	return string(buf[:])
}

// TextUUIDLen is the number of characters of a text identifier that end up in
// a UUID.
const TextUUIDLen = 16

// CopyReversed copies up to len(dst) characters of text into dst in reverse
// order: character i lands at index len(dst)-i-1. Characters past len(dst) are
// ignored. Bytes of dst that are not written keep their previous value. It
// returns the number of characters copied.
func CopyReversed(dst []byte, text string) int {
	n := len(text)
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[len(dst)-i-1] = text[i]
	}
	return n
}

// TextUUIDBytes converts a text identifier such as "EPSG-GTI-PROY-3A" into the
// 16 wire bytes of a UUID. Texts longer than 16 characters are truncated,
// shorter texts leave the leading wire bytes zero.
func TextUUIDBytes(text string) [16]byte {
	var b [16]byte
	CopyReversed(b[:], text)
	return b
}

// TextUUID returns the UUID named by a text identifier, see TextUUIDBytes.
func TextUUID(text string) UUID {
	return NewUUID(TextUUIDBytes(text))
}
