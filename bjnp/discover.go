package bjnp

import (
	"bytes"
	"io"
	"net"
)

// discoverPreamble is the fixed 4-byte prefix of every DiscoverResponse.
var discoverPreamble = [4]byte{0x00, 0x01, 0x08, 0x00}

// DiscoverResponse is the reply to a Discover command: the responding
// device's hardware address and IP address.
//
// MAC is a net.HardwareAddr of length 6 (EUI-48) or 8 (EUI-64); IP is a
// net.IP of length 4 (IPv4) or 16 (IPv6). Both types already behave as the
// tagged unions MacAddr/IpAddr describe — their wire form is discriminated
// purely by length, and net.HardwareAddr/net.IP format themselves the way
// the wire layout needs (colon-separated hex, dotted/colon IP notation).
type DiscoverResponse struct {
	MAC net.HardwareAddr
	IP  net.IP
}

func (d DiscoverResponse) Size() int {
	return len(discoverPreamble) + 2 + len(d.MAC) + len(d.IP)
}

func (d DiscoverResponse) Serialize(w io.Writer) error {
	buf := make([]byte, 0, d.Size())
	buf = append(buf, discoverPreamble[:]...)
	buf = append(buf, byte(len(d.MAC)), byte(len(d.IP)))
	buf = append(buf, d.MAC...)
	buf = append(buf, d.IP...)
	_, err := w.Write(buf)
	return err
}

// ParseDiscoverResponse decodes a DiscoverResponse payload.
func ParseDiscoverResponse(buf []byte) (DiscoverResponse, int, error) {
	const prefixLen = len(discoverPreamble) + 2
	if len(buf) < prefixLen {
		return DiscoverResponse{}, 0, &UnexpectedEndError{Expected: prefixLen, Actual: len(buf)}
	}
	if !bytes.Equal(buf[:4], discoverPreamble[:]) {
		return DiscoverResponse{}, 0, &InvalidSliceError{Span: [2]int{0, 4}, Message: "bad discover response preamble"}
	}
	macLen := int(buf[4])
	if macLen != 6 && macLen != 8 {
		return DiscoverResponse{}, 0, &InvalidByteError{Byte: buf[4], Offset: 4, Message: "invalid MAC address length"}
	}
	ipLen := int(buf[5])
	if ipLen != 4 && ipLen != 16 {
		return DiscoverResponse{}, 0, &InvalidByteError{Byte: buf[5], Offset: 5, Message: "invalid IP address length"}
	}
	need := prefixLen + macLen + ipLen
	if len(buf) < need {
		return DiscoverResponse{}, 0, &UnexpectedEndError{Expected: need, Actual: len(buf)}
	}
	mac := append(net.HardwareAddr(nil), buf[prefixLen:prefixLen+macLen]...)
	ip := append(net.IP(nil), buf[prefixLen+macLen:need]...)
	return DiscoverResponse{MAC: mac, IP: ip}, need, nil
}
