package envbeacon

import (
	"encoding/hex"
	"errors"
	"strings"
)

// MAC represents a MAC address, in little endian format.
type MAC [6]byte

var errInvalidMAC = errors.New("envbeacon: failed to parse MAC address")

// ParseMAC parses the given MAC address, which must be in 11:22:33:AA:BB:CC
// format. If it cannot be parsed, an error is returned.
func ParseMAC(s string) (mac MAC, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return MAC{}, errInvalidMAC
	}
	for i, part := range parts {
		if len(part) != 2 {
			return MAC{}, errInvalidMAC
		}
		var b [1]byte
		if _, err := hex.Decode(b[:], []byte(part)); err != nil {
			return MAC{}, errInvalidMAC
		}
		mac[5-i] = b[0]
	}
	return mac, nil
}

// String returns a human-readable version of this MAC address, such as
// 11:22:33:AA:BB:CC.
func (mac MAC) String() string {
	var b strings.Builder
	for i := 5; i >= 0; i-- {
		if i != 5 {
			b.WriteByte(':')
		}
		b.WriteString(strings.ToUpper(hex.EncodeToString(mac[i : i+1])))
	}
	return b.String()
}
