package bjnp

import "fmt"

// Port is the UDP port BJNP devices listen on.
const Port = 8612

const headerSize = 16

var magic = [4]byte{'B', 'J', 'N', 'P'}

// PacketType distinguishes printer/scanner commands from their responses.
type PacketType byte

const (
	PrinterCommand  PacketType = 0x01
	ScannerCommand  PacketType = 0x02
	PrinterResponse PacketType = 0x81
	ScannerResponse PacketType = 0x82
)

func (t PacketType) String() string {
	switch t {
	case PrinterCommand:
		return "PrinterCommand"
	case ScannerCommand:
		return "ScannerCommand"
	case PrinterResponse:
		return "PrinterResponse"
	case ScannerResponse:
		return "ScannerResponse"
	default:
		return fmt.Sprintf("0x%02x", byte(t))
	}
}

// PayloadType identifies the payload carried by a packet.
type PayloadType byte

const (
	Discover   PayloadType = 0x01
	StartScan  PayloadType = 0x02
	JobDetails PayloadType = 0x10
	Close      PayloadType = 0x11
	Read       PayloadType = 0x20
	Write      PayloadType = 0x21
	GetID      PayloadType = 0x30
	Poll       PayloadType = 0x32
)

func (t PayloadType) String() string {
	switch t {
	case Discover:
		return "Discover"
	case StartScan:
		return "StartScan"
	case JobDetails:
		return "JobDetails"
	case Close:
		return "Close"
	case Read:
		return "Read"
	case Write:
		return "Write"
	case GetID:
		return "GetId"
	case Poll:
		return "Poll"
	default:
		return fmt.Sprintf("0x%02x", byte(t))
	}
}

// Header is the 16-byte frame header common to every BJNP packet.
type Header struct {
	PacketType  PacketType
	PayloadType PayloadType
	Error       byte
	Sequence    uint16
	JobID       uint16
	PayloadSize uint32
}

// headerWire is the raw on-wire layout of Header.
type headerWire struct {
	Magic       [4]byte // [0:4]
	PacketType  byte    // [4]
	PayloadType byte    // [5]
	Error       byte    // [6]
	_           byte    // [7] reserved, always 0 on transmit
	Sequence    uint16  // [8:10]
	JobID       uint16  // [10:12]
	PayloadSize uint32  // [12:16]
}

func (h Header) toWire() headerWire {
	return headerWire{
		Magic:       magic,
		PacketType:  byte(h.PacketType),
		PayloadType: byte(h.PayloadType),
		Error:       h.Error,
		Sequence:    h.Sequence,
		JobID:       h.JobID,
		PayloadSize: h.PayloadSize,
	}
}

func parseHeader(buf []byte) (Header, error) {
	if len(buf) < headerSize {
		return Header{}, &UnexpectedEndError{Expected: headerSize, Actual: len(buf)}
	}
	var w headerWire
	if err := ReadWire(buf[:headerSize], &w); err != nil {
		return Header{}, err
	}
	if w.Magic != magic {
		return Header{}, &InvalidSliceError{Span: [2]int{0, 4}, Message: "bad BJNP magic"}
	}
	if !validPacketType(w.PacketType) {
		return Header{}, &InvalidByteError{Byte: w.PacketType, Offset: 4, Message: "unknown packet type"}
	}
	if !validPayloadType(w.PayloadType) {
		return Header{}, &InvalidByteError{Byte: w.PayloadType, Offset: 5, Message: "unknown payload type"}
	}
	return Header{
		PacketType:  PacketType(w.PacketType),
		PayloadType: PayloadType(w.PayloadType),
		Error:       w.Error,
		Sequence:    w.Sequence,
		JobID:       w.JobID,
		PayloadSize: w.PayloadSize,
	}, nil
}

func validPacketType(b byte) bool {
	switch PacketType(b) {
	case PrinterCommand, ScannerCommand, PrinterResponse, ScannerResponse:
		return true
	default:
		return false
	}
}

func validPayloadType(b byte) bool {
	switch PayloadType(b) {
	case Discover, StartScan, JobDetails, Close, Read, Write, GetID, Poll:
		return true
	default:
		return false
	}
}
