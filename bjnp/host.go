package bjnp

import (
	"encoding/binary"
	"unicode/utf16"
)

// hostSize is the fixed wire size of a Host: 32 UTF-16BE code units.
const hostSize = 64
const hostMaxUnits = hostSize / 2

// Host is a fixed 64-byte big-endian UTF-16 buffer carrying a display
// hostname in poll command bodies.
type Host [hostSize]byte

// NewHost encodes s as a Host. If the UTF-16 encoding of s exceeds 32 code
// units, it is truncated with an ellipsis: characters are dropped from the
// end, respecting surrogate pair boundaries, until "..." fits within 32
// code units. The remainder is zero-padded.
func NewHost(s string) Host {
	units := utf16.Encode([]rune(s))

	var h Host
	if len(units) <= hostMaxUnits {
		putUnits(&h, units)
		return h
	}

	const ellipsisLen = 3
	prefix := units[:hostMaxUnits-ellipsisLen]
	if n := len(prefix); n > 0 && isHighSurrogate(prefix[n-1]) {
		prefix = prefix[:n-1]
	}

	out := make([]uint16, 0, hostMaxUnits)
	out = append(out, prefix...)
	out = append(out, utf16.Encode([]rune("..."))...)
	putUnits(&h, out)
	return h
}

func putUnits(h *Host, units []uint16) {
	for i, u := range units {
		binary.BigEndian.PutUint16(h[i*2:], u)
	}
}

func isHighSurrogate(u uint16) bool { return u >= 0xD800 && u <= 0xDBFF }

// String decodes the Host lossily (invalid code units become U+FFFD), up
// to the first NUL code unit.
func (h Host) String() string {
	units := make([]uint16, 0, hostMaxUnits)
	for i := 0; i < hostSize; i += 2 {
		u := binary.BigEndian.Uint16(h[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}
