package bjnp

import (
	"bytes"
	"io"
)

// Packet is a header plus a typed payload. Immutable once built.
type Packet[T Serializer] struct {
	Header  Header
	Payload T
}

func (p Packet[T]) Size() int { return headerSize + p.Payload.Size() }

func (p Packet[T]) Serialize(w io.Writer) error {
	h := p.Header
	h.PayloadSize = uint32(p.Payload.Size())
	if _, err := w.Write(WriteWire(h.toWire())); err != nil {
		return err
	}
	return p.Payload.Serialize(w)
}

// SerializeToBytes returns the full wire encoding of the packet.
func (p Packet[T]) SerializeToBytes() []byte {
	var buf bytes.Buffer
	// Packet.Serialize only fails on a writer error, and bytes.Buffer
	// never returns one.
	_ = p.Serialize(&buf)
	return buf.Bytes()
}

// PacketBuilder is a fluent assembler for outbound packets. Packet type and
// payload type are required at construction; error/sequence/job id default
// to 0/0/none.
type PacketBuilder struct {
	packetType  PacketType
	payloadType PayloadType
	sequence    uint16
	jobID       uint16
}

// NewPacketBuilder starts building a packet of the given packet and
// payload type.
func NewPacketBuilder(packetType PacketType, payloadType PayloadType) *PacketBuilder {
	return &PacketBuilder{packetType: packetType, payloadType: payloadType}
}

func (b *PacketBuilder) Sequence(seq uint16) *PacketBuilder {
	b.sequence = seq
	return b
}

func (b *PacketBuilder) JobID(id uint16) *PacketBuilder {
	b.jobID = id
	return b
}

// Build computes payload_size from payload.Size() and returns a complete
// Packet. Build is a free function, not a PacketBuilder method, because Go
// methods cannot introduce their own type parameters.
func Build[T Serializer](b *PacketBuilder, payload T) Packet[T] {
	return Packet[T]{
		Header: Header{
			PacketType:  b.packetType,
			PayloadType: b.payloadType,
			Sequence:    b.sequence,
			JobID:       b.jobID,
			PayloadSize: uint32(payload.Size()),
		},
		Payload: payload,
	}
}

// PacketHeaderOnly is the result of the first parse phase: the header has
// been validated and decoded, and the declared payload bytes have been
// sliced out, but not yet decoded into a typed payload.
type PacketHeaderOnly struct {
	Header  Header
	Payload []byte
}

// ParsePacketHeaderOnly validates magic, parses the header, and slices the
// declared payload bytes without decoding them. It fails with
// UnexpectedEndError if buf is shorter than 16+payload_size.
func ParsePacketHeaderOnly(buf []byte) (PacketHeaderOnly, error) {
	h, err := parseHeader(buf)
	if err != nil {
		return PacketHeaderOnly{}, err
	}
	total := headerSize + int(h.PayloadSize)
	if len(buf) < total {
		return PacketHeaderOnly{}, &UnexpectedEndError{Expected: total, Actual: len(buf)}
	}
	return PacketHeaderOnly{Header: h, Payload: buf[headerSize:total]}, nil
}

// IsRemoteError reports whether the header carries a remote error report:
// a nonzero error byte with a zero-length payload. A nonzero error byte
// accompanied by a nonzero payload is treated as success, matching the
// asymmetry observed on real devices.
func (p PacketHeaderOnly) IsRemoteError() bool {
	return p.Header.Error != 0 && len(p.Payload) == 0
}

// DecodePayload consumes a PacketHeaderOnly, decoding its payload slice
// with parse. This is the second phase of the two-phase parse: callers
// inspect the header (and IsRemoteError) before picking a payload parser.
func DecodePayload[T Serializer](p PacketHeaderOnly, parse parseFunc[T]) (Packet[T], error) {
	value, _, err := parse(p.Payload)
	if err != nil {
		return Packet[T]{}, offsetBy(err, headerSize)
	}
	return Packet[T]{Header: p.Header, Payload: value}, nil
}
