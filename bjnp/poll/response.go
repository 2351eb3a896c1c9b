package poll

import (
	"fmt"
	"io"

	"github.com/johnmave126/scanner-button/bjnp"
)

// ColorMode is the scan color mode reported in an Interrupt.
type ColorMode byte

const (
	Color ColorMode = 0x01
	Mono  ColorMode = 0x02
)

func (m ColorMode) String() string {
	switch m {
	case Color:
		return "color"
	case Mono:
		return "mono"
	default:
		return fmt.Sprintf("color mode 0x%02x", byte(m))
	}
}

// Size is the scan page size reported in an Interrupt.
type Size byte

const (
	A4        Size = 0x01
	Letter    Size = 0x02
	Size10x15 Size = 0x08
	Size13x18 Size = 0x09
	Auto      Size = 0x0b
)

func (s Size) String() string {
	switch s {
	case A4:
		return "A4"
	case Letter:
		return "Letter"
	case Size10x15:
		return "10x15"
	case Size13x18:
		return "13x18"
	case Auto:
		return "Auto"
	default:
		return fmt.Sprintf("page size 0x%02x", byte(s))
	}
}

// Format is the scan output format reported in an Interrupt.
type Format byte

const (
	Jpeg       Format = 0x01
	Tiff       Format = 0x02
	Pdf        Format = 0x03
	KompaktPdf Format = 0x04
)

func (f Format) String() string {
	switch f {
	case Jpeg:
		return "JPEG"
	case Tiff:
		return "TIFF"
	case Pdf:
		return "PDF"
	case KompaktPdf:
		return "Kompakt-PDF"
	default:
		return fmt.Sprintf("format 0x%02x", byte(f))
	}
}

// DPI is the scan resolution reported in an Interrupt.
type DPI byte

const (
	DPI75  DPI = 0x01
	DPI150 DPI = 0x02
	DPI300 DPI = 0x03
	DPI600 DPI = 0x04
)

func (d DPI) String() string {
	switch d {
	case DPI75:
		return "75"
	case DPI150:
		return "150"
	case DPI300:
		return "300"
	case DPI600:
		return "600"
	default:
		return fmt.Sprintf("DPI 0x%02x", byte(d))
	}
}

// Value reports the numeric dots-per-inch value, e.g. DPI300.Value()
// returns 300.
func (d DPI) Value() (int, error) {
	switch d {
	case DPI75:
		return 75, nil
	case DPI150:
		return 150, nil
	case DPI300:
		return 300, nil
	case DPI600:
		return 600, nil
	default:
		return 0, fmt.Errorf("poll: %s has no numeric value", d)
	}
}

// Source is the scan input source reported in an Interrupt.
type Source byte

const (
	Flatbed            Source = 0x01
	AutoDocumentFeeder Source = 0x02
)

func (s Source) String() string {
	switch s {
	case Flatbed:
		return "flatbed"
	case AutoDocumentFeeder:
		return "feeder"
	default:
		return fmt.Sprintf("source 0x%02x", byte(s))
	}
}

// FeederType is the duplex mode of the automatic document feeder, present
// only when Source is AutoDocumentFeeder.
type FeederType byte

const (
	Simplex FeederType = 0x01
	Duplex  FeederType = 0x02
)

func (t FeederType) String() string {
	switch t {
	case Simplex:
		return "simplex"
	case Duplex:
		return "duplex"
	default:
		return fmt.Sprintf("feeder type 0x%02x", byte(t))
	}
}

// FeederOrientation is the page orientation of the automatic document
// feeder, present only when Source is AutoDocumentFeeder.
type FeederOrientation byte

const (
	Portrait  FeederOrientation = 0x01
	Landscape FeederOrientation = 0x02
)

func (o FeederOrientation) String() string {
	switch o {
	case Portrait:
		return "portrait"
	case Landscape:
		return "landscape"
	default:
		return fmt.Sprintf("feeder orientation 0x%02x", byte(o))
	}
}

// Interrupt describes the scan job the device wants to start, carried in a
// PollResponse whose status bit 0x8000 is set. FeederType and
// FeederOrientation are nil when their wire byte is zero; Source is not
// consulted.
type Interrupt struct {
	ColorMode         ColorMode
	Size              Size
	Format            Format
	DPI               DPI
	Source            Source
	FeederType        *FeederType
	FeederOrientation *FeederOrientation
}

const interruptSize = 20

// interruptWire is the raw layout observed on an MX920. The meaning of the
// unk fields is unknown; they are zero on every captured response.
type interruptWire struct {
	Unk1              [7]byte
	ColorMode         byte // pos 7
	Source            byte // pos 8
	FeederType        byte // pos 9
	Size              byte // pos 10
	Format            byte // pos 11
	DPI               byte // pos 12
	Unk4              [3]byte
	FeederOrientation byte // pos 16
	Unk5              [3]byte
}

func decodeInterrupt(w interruptWire) (Interrupt, error) {
	colorMode, err := parseColorMode(w.ColorMode)
	if err != nil {
		return Interrupt{}, bjnp.OffsetBy(err, 7)
	}
	source, err := parseSource(w.Source)
	if err != nil {
		return Interrupt{}, bjnp.OffsetBy(err, 8)
	}
	size, err := parseSize(w.Size)
	if err != nil {
		return Interrupt{}, bjnp.OffsetBy(err, 10)
	}
	format, err := parseFormat(w.Format)
	if err != nil {
		return Interrupt{}, bjnp.OffsetBy(err, 11)
	}
	dpi, err := parseDPI(w.DPI)
	if err != nil {
		return Interrupt{}, bjnp.OffsetBy(err, 12)
	}

	var feederType *FeederType
	if w.FeederType != 0 {
		ft, err := parseFeederType(w.FeederType)
		if err != nil {
			return Interrupt{}, bjnp.OffsetBy(err, 9)
		}
		feederType = &ft
	}

	var feederOrientation *FeederOrientation
	if w.FeederOrientation != 0 {
		fo, err := parseFeederOrientation(w.FeederOrientation)
		if err != nil {
			return Interrupt{}, bjnp.OffsetBy(err, 16)
		}
		feederOrientation = &fo
	}

	return Interrupt{
		ColorMode:         colorMode,
		Size:              size,
		Format:            format,
		DPI:               dpi,
		Source:            source,
		FeederType:        feederType,
		FeederOrientation: feederOrientation,
	}, nil
}

func (i Interrupt) toWire() interruptWire {
	w := interruptWire{
		ColorMode: byte(i.ColorMode),
		Source:    byte(i.Source),
		Size:      byte(i.Size),
		Format:    byte(i.Format),
		DPI:       byte(i.DPI),
	}
	if i.FeederType != nil {
		w.FeederType = byte(*i.FeederType)
	}
	if i.FeederOrientation != nil {
		w.FeederOrientation = byte(*i.FeederOrientation)
	}
	return w
}

func parseColorMode(b byte) (ColorMode, error) {
	switch ColorMode(b) {
	case Color, Mono:
		return ColorMode(b), nil
	default:
		return 0, &bjnp.InvalidByteError{Byte: b, Offset: 0, Message: "invalid color mode"}
	}
}

func parseSize(b byte) (Size, error) {
	switch Size(b) {
	case A4, Letter, Size10x15, Size13x18, Auto:
		return Size(b), nil
	default:
		return 0, &bjnp.InvalidByteError{Byte: b, Offset: 0, Message: "invalid page size"}
	}
}

func parseFormat(b byte) (Format, error) {
	switch Format(b) {
	case Jpeg, Tiff, Pdf, KompaktPdf:
		return Format(b), nil
	default:
		return 0, &bjnp.InvalidByteError{Byte: b, Offset: 0, Message: "invalid format"}
	}
}

func parseDPI(b byte) (DPI, error) {
	switch DPI(b) {
	case DPI75, DPI150, DPI300, DPI600:
		return DPI(b), nil
	default:
		return 0, &bjnp.InvalidByteError{Byte: b, Offset: 0, Message: "invalid DPI"}
	}
}

func parseSource(b byte) (Source, error) {
	switch Source(b) {
	case Flatbed, AutoDocumentFeeder:
		return Source(b), nil
	default:
		return 0, &bjnp.InvalidByteError{Byte: b, Offset: 0, Message: "invalid source"}
	}
}

func parseFeederType(b byte) (FeederType, error) {
	switch FeederType(b) {
	case Simplex, Duplex:
		return FeederType(b), nil
	default:
		return 0, &bjnp.InvalidByteError{Byte: b, Offset: 0, Message: "invalid feeder type"}
	}
}

func parseFeederOrientation(b byte) (FeederOrientation, error) {
	switch FeederOrientation(b) {
	case Portrait, Landscape:
		return FeederOrientation(b), nil
	default:
		return 0, &bjnp.InvalidByteError{Byte: b, Offset: 0, Message: "invalid feeder orientation"}
	}
}

// Response is a poll response payload. Exactly one of SessionID or
// (ActionID, Interrupt) is populated, selected by bit 0x00008000 of Status:
// set means the device wants to interrupt the poll loop and start a scan
// job; clear means it is just acknowledging the session.
type Response struct {
	Status    uint32
	SessionID *uint32
	ActionID  *uint32
	Interrupt *Interrupt
}

// InterruptBit is the status bit that marks a Response as an interrupt
// (scan-button press) rather than a session acknowledgement.
const InterruptBit = 0x00008000


const responseSize = 4 + 4 + 4 + 4 + interruptSize

type responseWire struct {
	Status    uint32
	SessionID uint32
	Unk1      [4]byte // 00 00 00 14
	ActionID  uint32
	Interrupt interruptWire
}

// ParseResponse decodes a Response payload.
func ParseResponse(buf []byte) (Response, int, error) {
	if len(buf) < responseSize {
		return Response{}, 0, &bjnp.UnexpectedEndError{Expected: responseSize, Actual: len(buf)}
	}
	var w responseWire
	if err := bjnp.ReadWire(buf[:responseSize], &w); err != nil {
		return Response{}, 0, err
	}

	if w.Status&InterruptBit != 0 {
		interrupt, err := decodeInterrupt(w.Interrupt)
		if err != nil {
			const interruptOffset = 4 + 4 + 4 + 4
			return Response{}, 0, bjnp.OffsetBy(err, interruptOffset)
		}
		actionID := w.ActionID
		return Response{Status: w.Status, ActionID: &actionID, Interrupt: &interrupt}, responseSize, nil
	}

	sessionID := w.SessionID
	return Response{Status: w.Status, SessionID: &sessionID}, responseSize, nil
}

// Size and Serialize let Response satisfy bjnp.Serializer so it can be used
// as a Packet payload type; the device is the only side that ever sends one
// in practice, but the codec is symmetric like every other payload here.
func (r Response) Size() int { return responseSize }

func (r Response) Serialize(w io.Writer) error {
	wire := responseWire{Status: r.Status}
	if r.Status&InterruptBit != 0 {
		if r.ActionID != nil {
			wire.ActionID = *r.ActionID
		}
		if r.Interrupt != nil {
			wire.Interrupt = r.Interrupt.toWire()
		}
	} else {
		wire.Unk1 = [4]byte{0x00, 0x00, 0x00, 0x14}
		if r.SessionID != nil {
			wire.SessionID = *r.SessionID
		}
	}
	_, err := w.Write(bjnp.WriteWire(wire))
	return err
}
