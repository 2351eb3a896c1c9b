// Package bjnp implements the wire codec for the BJNP protocol spoken by
// networked Canon multi-function printers and scanners: packet framing,
// device discovery, identity retrieval, and scan-button poll payloads.
package bjnp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Serializer writes the canonical on-wire representation of a value.
type Serializer interface {
	// Size reports the number of bytes Serialize will write, without
	// encoding anything.
	Size() int
	Serialize(w io.Writer) error
}

// parseFunc decodes a prefix of buf into a T, returning the number of
// bytes consumed. This is the Go shape of the SizedDeserialize/Deserialize
// contract: a plain function rather than a method, since most payload
// values are constructed fresh from bytes rather than decoded into an
// existing receiver.
type parseFunc[T any] func(buf []byte) (value T, consumed int, err error)

// InvalidByteError reports a byte at a fixed offset that is not a member
// of the enum or discriminant it was read as.
type InvalidByteError struct {
	Byte    byte
	Offset  int
	Message string
}

func (e *InvalidByteError) Error() string {
	return fmt.Sprintf("%s: invalid byte 0x%02x at offset %d", e.Message, e.Byte, e.Offset)
}

// InvalidSliceError reports a byte range that failed validation as a
// whole (bad magic, malformed UTF-8, and similar span-level defects).
type InvalidSliceError struct {
	Span    [2]int
	Message string
}

func (e *InvalidSliceError) Error() string {
	return fmt.Sprintf("%s: invalid byte range [%d:%d]", e.Message, e.Span[0], e.Span[1])
}

// UnexpectedEndError reports a buffer shorter than the bytes a decode
// needed to proceed.
type UnexpectedEndError struct {
	Expected, Actual int
}

func (e *UnexpectedEndError) Error() string {
	return fmt.Sprintf("unexpected end of buffer: expected at least %d bytes, got %d", e.Expected, e.Actual)
}

// offsetBy re-anchors an InvalidByteError or InvalidSliceError produced by a
// nested parser, adding n
// to its offset/span so the error still points at the right byte once the
// nested buffer is understood as a slice of a larger one. UnexpectedEndError
// carries no offset and passes through unchanged.
func offsetBy(err error, n int) error {
	if err == nil || n == 0 {
		return err
	}
	var ibe *InvalidByteError
	if errors.As(err, &ibe) {
		return &InvalidByteError{Byte: ibe.Byte, Offset: ibe.Offset + n, Message: ibe.Message}
	}
	var ise *InvalidSliceError
	if errors.As(err, &ise) {
		return &InvalidSliceError{Span: [2]int{ise.Span[0] + n, ise.Span[1] + n}, Message: ise.Message}
	}
	return err
}

// WriteWire encodes a fixed-layout raw wire struct big-endian, the Go
// equivalent of reinterpreting a #[repr(C,packed)] value as bytes. Exported
// so sibling packages (poll) can use the same wire-struct idiom for their
// own payload types.
func WriteWire(v any) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
		// Only possible for a type binary.Write can't reflect over;
		// every wire struct in this package is a fixed-size value.
		panic(err)
	}
	return buf.Bytes()
}

// ReadWire decodes data into a fixed-layout raw wire struct. Callers must
// ensure len(data) is at least the encoded size of v.
func ReadWire(data []byte, v any) error {
	return binary.Read(bytes.NewReader(data), binary.BigEndian, v)
}

// OffsetBy re-anchors a parse error produced by a nested parser, adding n to
// its offset/span. Exported for sibling packages whose parse functions wrap
// a nested buffer understood as a slice of a larger one.
func OffsetBy(err error, n int) error {
	return offsetBy(err, n)
}

// Empty is the zero-length payload used for Discover and GetId commands.
type Empty struct{}

func (Empty) Size() int                   { return 0 }
func (Empty) Serialize(w io.Writer) error { return nil }

// ParseEmpty decodes the empty payload; it always succeeds and consumes
// nothing.
func ParseEmpty(buf []byte) (Empty, int, error) {
	return Empty{}, 0, nil
}
