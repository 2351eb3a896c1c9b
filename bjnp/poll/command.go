// Package poll implements the payloads exchanged on the scan-button poll
// channel: the client's poll command and the device's poll response.
package poll

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/johnmave126/scanner-button/bjnp"
)

// PollType identifies which poll command variant is encoded.
type PollType uint16

const (
	Empty    PollType = 0x00
	HostOnly PollType = 0x01
	Full     PollType = 0x02
	Reset    PollType = 0x05
)

func (t PollType) String() string {
	switch t {
	case Empty:
		return "empty"
	case HostOnly:
		return "host only"
	case Full:
		return "full"
	case Reset:
		return "reset"
	default:
		return fmt.Sprintf("poll type 0x%02x", uint16(t))
	}
}

func validPollType(t uint16) bool {
	switch PollType(t) {
	case Empty, HostOnly, Full, Reset:
		return true
	default:
		return false
	}
}

// datetimeLayout is the fixed-width ASCII timestamp a Full command carries:
// YYYYMMDDHHMMSS, no separators.
const datetimeLayout = "20060102150405"

const (
	emptyBodySize    = 78
	hostOnlyBodySize = 74
	fullBodySize     = 114
	resetBodySize    = 98
)

// Command is a poll command payload sent to the device. The zero value is
// the Empty variant. Which of SessionID/Host/ActionID/DateTime apply depends
// on Type; use CommandBuilder to assemble one, since each variant requires a
// different subset of fields.
type Command struct {
	Type      PollType
	SessionID uint32
	Host      bjnp.Host
	ActionID  uint32
	DateTime  time.Time
}

func (c Command) Size() int {
	switch c.Type {
	case Empty:
		return 2 + emptyBodySize
	case HostOnly:
		return 2 + hostOnlyBodySize
	case Full:
		return 2 + fullBodySize
	case Reset:
		return 2 + resetBodySize
	default:
		return 2
	}
}

type emptyBodyWire struct {
	Empty [emptyBodySize]byte
}

type hostOnlyBodyWire struct {
	Pad1 [6]byte
	Host bjnp.Host
	Unk1 [4]byte
}

type fullBodyWire struct {
	Pad1      [2]byte
	SessionID uint32
	Host      bjnp.Host
	Unk1      [4]byte // 00 00 00 14
	Unk2      [20]byte
	Unk3      [4]byte // 00 00 00 10
	DateTime  [14]byte
	Pad2      [2]byte
}

type resetBodyWire struct {
	Pad1      [2]byte
	SessionID uint32
	Host      bjnp.Host
	Unk1      [4]byte // 00 00 00 14
	ActionID  uint32
	Unk2      [20]byte
}

func (c Command) Serialize(w io.Writer) error {
	var typeTag [2]byte
	binary.BigEndian.PutUint16(typeTag[:], uint16(c.Type))
	if _, err := w.Write(typeTag[:]); err != nil {
		return err
	}

	switch c.Type {
	case Empty:
		_, err := w.Write(bjnp.WriteWire(emptyBodyWire{}))
		return err
	case HostOnly:
		_, err := w.Write(bjnp.WriteWire(hostOnlyBodyWire{Host: c.Host}))
		return err
	case Full:
		var dt [14]byte
		copy(dt[:], c.DateTime.Format(datetimeLayout))
		body := fullBodyWire{
			SessionID: c.SessionID,
			Host:      c.Host,
			Unk1:      [4]byte{0x00, 0x00, 0x00, 0x14},
			Unk3:      [4]byte{0x00, 0x00, 0x00, 0x10},
			DateTime:  dt,
		}
		_, err := w.Write(bjnp.WriteWire(body))
		return err
	case Reset:
		body := resetBodyWire{
			SessionID: c.SessionID,
			Host:      c.Host,
			Unk1:      [4]byte{0x00, 0x00, 0x00, 0x14},
			ActionID:  c.ActionID,
		}
		_, err := w.Write(bjnp.WriteWire(body))
		return err
	default:
		return fmt.Errorf("poll: cannot serialize %s command", c.Type)
	}
}

// ParseCommand decodes a Command payload. Variants have different encoded
// lengths (the Empty and HostOnly bodies are far smaller than Full), so the
// length required depends on the type tag.
func ParseCommand(buf []byte) (Command, int, error) {
	if len(buf) < 2 {
		return Command{}, 0, &bjnp.UnexpectedEndError{Expected: 2, Actual: len(buf)}
	}
	rawType := binary.BigEndian.Uint16(buf[:2])
	if !validPollType(rawType) {
		return Command{}, 0, &bjnp.InvalidSliceError{Span: [2]int{0, 2}, Message: "unknown poll type"}
	}
	pollType := PollType(rawType)

	switch pollType {
	case Empty:
		need := 2 + emptyBodySize
		if len(buf) < need {
			return Command{}, 0, &bjnp.UnexpectedEndError{Expected: need, Actual: len(buf)}
		}
		return Command{Type: Empty}, need, nil

	case HostOnly:
		need := 2 + hostOnlyBodySize
		if len(buf) < need {
			return Command{}, 0, &bjnp.UnexpectedEndError{Expected: need, Actual: len(buf)}
		}
		var body hostOnlyBodyWire
		if err := bjnp.ReadWire(buf[2:need], &body); err != nil {
			return Command{}, 0, err
		}
		return Command{Type: HostOnly, Host: body.Host}, need, nil

	case Full:
		need := 2 + fullBodySize
		if len(buf) < need {
			return Command{}, 0, &bjnp.UnexpectedEndError{Expected: need, Actual: len(buf)}
		}
		var body fullBodyWire
		if err := bjnp.ReadWire(buf[2:need], &body); err != nil {
			return Command{}, 0, err
		}
		raw := strings.TrimRight(string(body.DateTime[:]), "\x00")
		dt, err := time.ParseInLocation(datetimeLayout, raw, time.UTC)
		if err != nil {
			const dtOffset = 2 + 2 + 4 + 64 + 4 + 20 + 4
			return Command{}, 0, &bjnp.InvalidSliceError{Span: [2]int{dtOffset, dtOffset + 14}, Message: "invalid datetime string"}
		}
		return Command{Type: Full, SessionID: body.SessionID, Host: body.Host, DateTime: dt}, need, nil

	case Reset:
		need := 2 + resetBodySize
		if len(buf) < need {
			return Command{}, 0, &bjnp.UnexpectedEndError{Expected: need, Actual: len(buf)}
		}
		var body resetBodyWire
		if err := bjnp.ReadWire(buf[2:need], &body); err != nil {
			return Command{}, 0, err
		}
		return Command{Type: Reset, SessionID: body.SessionID, Host: body.Host, ActionID: body.ActionID}, need, nil

	default:
		// unreachable: validPollType already rejected anything else.
		return Command{}, 0, &bjnp.InvalidSliceError{Span: [2]int{0, 2}, Message: "unknown poll type"}
	}
}

// CommandBuilder assembles a Command, validating that the fields required by
// the chosen PollType are all present before Build succeeds. Each variant
// needs a different subset: Empty needs nothing, HostOnly needs only Host,
// Full needs SessionID+Host+DateTime, Reset needs SessionID+Host+ActionID.
type CommandBuilder struct {
	pollType  PollType
	sessionID *uint32
	host      *bjnp.Host
	actionID  *uint32
	datetime  *time.Time
}

// NewCommandBuilder starts building a command of the given type.
func NewCommandBuilder(pollType PollType) *CommandBuilder {
	return &CommandBuilder{pollType: pollType}
}

func (b *CommandBuilder) SessionID(id uint32) *CommandBuilder {
	b.sessionID = &id
	return b
}

func (b *CommandBuilder) Host(h bjnp.Host) *CommandBuilder {
	b.host = &h
	return b
}

func (b *CommandBuilder) ActionID(id uint32) *CommandBuilder {
	b.actionID = &id
	return b
}

func (b *CommandBuilder) DateTime(t time.Time) *CommandBuilder {
	b.datetime = &t
	return b
}

// Build validates the fields set so far against b's PollType and returns the
// assembled Command, or an error naming the first missing field.
func (b *CommandBuilder) Build() (Command, error) {
	switch b.pollType {
	case Empty:
		return Command{Type: Empty}, nil

	case HostOnly:
		if b.host == nil {
			return Command{}, fmt.Errorf("poll: %s command requires Host", b.pollType)
		}
		return Command{Type: HostOnly, Host: *b.host}, nil

	case Full:
		if b.host == nil {
			return Command{}, fmt.Errorf("poll: %s command requires Host", b.pollType)
		}
		if b.sessionID == nil {
			return Command{}, fmt.Errorf("poll: %s command requires SessionID", b.pollType)
		}
		if b.datetime == nil {
			return Command{}, fmt.Errorf("poll: %s command requires DateTime", b.pollType)
		}
		return Command{Type: Full, Host: *b.host, SessionID: *b.sessionID, DateTime: *b.datetime}, nil

	case Reset:
		if b.host == nil {
			return Command{}, fmt.Errorf("poll: %s command requires Host", b.pollType)
		}
		if b.sessionID == nil {
			return Command{}, fmt.Errorf("poll: %s command requires SessionID", b.pollType)
		}
		if b.actionID == nil {
			return Command{}, fmt.Errorf("poll: %s command requires ActionID", b.pollType)
		}
		return Command{Type: Reset, Host: *b.host, SessionID: *b.sessionID, ActionID: *b.actionID}, nil

	default:
		return Command{}, fmt.Errorf("poll: unknown poll type 0x%02x", uint16(b.pollType))
	}
}
