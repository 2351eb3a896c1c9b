// Package channel implements the connected UDP socket a BJNP session is
// built on: one peer, one monotonically-sequenced send/recv pair. It owns
// no retry or timeout policy of its own — the caller supplies a deadline
// per call via context.Context, and failures are surfaced as plain errors
// for the caller to interpret.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/johnmave126/scanner-button/bjnp"
)

// Channel owns one connected UDP socket and a 16-bit wrapping sequence
// counter. Created once per session; never shared across goroutines.
type Channel struct {
	conn     *net.UDPConn
	sequence uint16
}

// New binds to the unspecified address of addr's IP family on an ephemeral
// port and connects to addr.
func New(addr *net.UDPAddr) (*Channel, error) {
	network := "udp4"
	local := &net.UDPAddr{IP: net.IPv4zero}
	if addr.IP.To4() == nil {
		network = "udp6"
		local = &net.UDPAddr{IP: net.IPv6zero, Zone: addr.Zone}
	}

	conn, err := net.DialUDP(network, local, addr)
	if err != nil {
		return nil, fmt.Errorf("channel: couldn't connect to %s: %w", addr, err)
	}
	slog.Debug("channel connected", "local", conn.LocalAddr(), "remote", addr)
	return &Channel{conn: conn}, nil
}

// Close releases the underlying socket.
func (c *Channel) Close() error {
	return c.conn.Close()
}

// ResetSequence sets the sequence counter back to 0. Used when
// re-initializing a session after failure.
func (c *Channel) ResetSequence() {
	c.sequence = 0
	slog.Debug("channel sequence reset", "remote", c.conn.RemoteAddr())
}

// Send builds a ScannerCommand packet carrying payload at the current
// sequence, serializes it, and sends it. The sequence only advances after
// a successful send. ctx's deadline, if any, bounds the write.
func (c *Channel) Send(ctx context.Context, payloadType bjnp.PayloadType, payload bjnp.Serializer) error {
	if err := applyDeadline(ctx, c.conn.SetWriteDeadline); err != nil {
		return err
	}

	cmd := bjnp.Build(bjnp.NewPacketBuilder(bjnp.ScannerCommand, payloadType).Sequence(c.sequence), payload)
	buf := cmd.SerializeToBytes()
	if _, err := c.conn.Write(buf); err != nil {
		return fmt.Errorf("channel: send %s to %s: %w", payloadType, c.conn.RemoteAddr(), err)
	}
	slog.Debug("channel sent", "payload_type", payloadType, "sequence", c.sequence, "bytes", len(buf))
	c.sequence++
	return nil
}

// Recv reads one datagram (up to 64 KiB), header-parses it, rejects a
// remote error report, and decodes the payload with parse. ctx's deadline,
// if any, bounds the read.
//
// Recv is a free function rather than a Channel method because Go methods
// cannot introduce their own type parameters.
func Recv[T bjnp.Serializer](ctx context.Context, c *Channel, parse func(buf []byte) (T, int, error)) (T, error) {
	var zero T
	if err := applyDeadline(ctx, c.conn.SetReadDeadline); err != nil {
		return zero, err
	}

	buf := make([]byte, 65536)
	n, err := c.conn.Read(buf)
	if err != nil {
		return zero, fmt.Errorf("channel: recv from %s: %w", c.conn.RemoteAddr(), err)
	}

	headerOnly, err := bjnp.ParsePacketHeaderOnly(buf[:n])
	if err != nil {
		return zero, fmt.Errorf("channel: parse header from %s: %w", c.conn.RemoteAddr(), err)
	}
	if headerOnly.IsRemoteError() {
		return zero, fmt.Errorf("channel: remote %s reported error 0x%02x", c.conn.RemoteAddr(), headerOnly.Header.Error)
	}

	packet, err := bjnp.DecodePayload(headerOnly, parse)
	if err != nil {
		return zero, fmt.Errorf("channel: decode %s payload from %s: %w", headerOnly.Header.PayloadType, c.conn.RemoteAddr(), err)
	}
	slog.Debug("channel received", "payload_type", headerOnly.Header.PayloadType, "sequence", headerOnly.Header.Sequence, "bytes", n)
	return packet.Payload, nil
}

func applyDeadline(ctx context.Context, set func(time.Time) error) error {
	if dl, ok := ctx.Deadline(); ok {
		if err := set(dl); err != nil {
			return fmt.Errorf("channel: set deadline: %w", err)
		}
		return nil
	}
	return set(time.Time{})
}
