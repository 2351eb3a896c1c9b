// Package scan implements BJNP device discovery: a Discover broadcast on
// every usable local network interface, a fan-in of the responses, and an
// identity inquiry against each device that answers.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"

	"github.com/johnmave126/scanner-button/bjnp"
	"github.com/johnmave126/scanner-button/internal/channel"
)

var ipv6LinkLocalAllNodes = net.ParseIP("ff02::1")

// Run broadcasts a Discover command on every local interface and prints
// each responding device with its identity, until maxWaiting elapses. The
// returned error collects every per-interface socket failure; discovery on
// the remaining interfaces proceeds regardless.
func Run(ctx context.Context, maxWaiting time.Duration) error {
	// binding to 0.0.0.0 relies on the system routing table, so it is
	// more robust to enumerate the local addresses and bind to each.
	ifaces, err := net.Interfaces()
	if err != nil {
		return fmt.Errorf("scan: couldn't obtain the list of network interfaces: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, maxWaiting)
	defer cancel()

	responses := make(chan bjnp.DiscoverResponse)
	var errMu sync.Mutex
	var errs *multierror.Error

	var probes sync.WaitGroup
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			errMu.Lock()
			errs = multierror.Append(errs, fmt.Errorf("scan: addresses of %s: %w", iface.Name, err))
			errMu.Unlock()
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			probes.Add(1)
			go func(iface net.Interface, ipNet *net.IPNet) {
				defer probes.Done()
				if err := broadcastScan(ctx, iface, ipNet, responses); err != nil {
					errMu.Lock()
					errs = multierror.Append(errs, err)
					errMu.Unlock()
				}
			}(iface, ipNet)
		}
	}

	var inquiries sync.WaitGroup
	done := make(chan struct{})
	go func() {
		defer close(done)
		for resp := range responses {
			slog.Info("detected device", "ip", resp.IP, "mac", resp.MAC)
			inquiries.Add(1)
			go func(resp bjnp.DiscoverResponse) {
				defer inquiries.Done()
				if err := inquireDevice(ctx, resp); err != nil {
					slog.Error("device inquiry failed", "ip", resp.IP, "err", err)
				}
			}(resp)
		}
	}()

	probes.Wait()
	close(responses)
	<-done
	inquiries.Wait()

	return errs.ErrorOrNil()
}

// broadcastScan sends one Discover packet from ipNet's address and feeds
// every decoded response into out, until ctx expires.
func broadcastScan(ctx context.Context, iface net.Interface, ipNet *net.IPNet, out chan<- bjnp.DiscoverResponse) error {
	local := &net.UDPAddr{IP: ipNet.IP}
	network := "udp4"
	if ipNet.IP.To4() == nil {
		network = "udp6"
		local.Zone = iface.Name
	}

	conn, err := net.ListenUDP(network, local)
	if err != nil {
		return fmt.Errorf("scan: couldn't bind to %s on %s: %w", ipNet.IP, iface.Name, err)
	}
	defer conn.Close()

	var dest *net.UDPAddr
	if ipNet.IP.To4() != nil {
		if err := setBroadcast(conn); err != nil {
			return fmt.Errorf("scan: couldn't set socket for %s on %s to broadcast: %w", ipNet.IP, iface.Name, err)
		}
		dest = &net.UDPAddr{IP: directedBroadcast(ipNet), Port: bjnp.Port}
	} else {
		// ff02::1 needs an explicit outgoing interface; the stdlib UDPConn
		// doesn't expose that, ipv6.PacketConn does.
		if err := ipv6.NewPacketConn(conn).SetMulticastInterface(&iface); err != nil {
			return fmt.Errorf("scan: couldn't set multicast interface %s: %w", iface.Name, err)
		}
		dest = &net.UDPAddr{IP: ipv6LinkLocalAllNodes, Port: bjnp.Port, Zone: iface.Name}
	}
	slog.Debug("bound discovery socket", "local", conn.LocalAddr(), "interface", iface.Name)

	command := bjnp.Build(bjnp.NewPacketBuilder(bjnp.ScannerCommand, bjnp.Discover), bjnp.Empty{})
	if _, err := conn.WriteToUDP(command.SerializeToBytes(), dest); err != nil {
		return fmt.Errorf("scan: failed to broadcast to %s from %s on %s: %w", dest, conn.LocalAddr(), iface.Name, err)
	}
	slog.Debug("broadcast discover command", "dest", dest, "interface", iface.Name)

	if dl, ok := ctx.Deadline(); ok {
		if err := conn.SetReadDeadline(dl); err != nil {
			return fmt.Errorf("scan: set deadline on %s: %w", conn.LocalAddr(), err)
		}
	}

	buf := make([]byte, 65536)
	for {
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || isTimeout(err) {
				return nil
			}
			return fmt.Errorf("scan: error receiving packet at %s on %s: %w", conn.LocalAddr(), iface.Name, err)
		}

		resp, err := parseDiscoverPacket(buf[:n])
		if err != nil {
			slog.Warn("ignoring malformed discover response", "remote", remote, "err", err)
			continue
		}

		select {
		case out <- resp:
		case <-ctx.Done():
			return nil
		}
	}
}

func parseDiscoverPacket(buf []byte) (bjnp.DiscoverResponse, error) {
	headerOnly, err := bjnp.ParsePacketHeaderOnly(buf)
	if err != nil {
		return bjnp.DiscoverResponse{}, err
	}
	if headerOnly.IsRemoteError() {
		return bjnp.DiscoverResponse{}, fmt.Errorf("remote peer reported error 0x%02x", headerOnly.Header.Error)
	}
	packet, err := bjnp.DecodePayload(headerOnly, bjnp.ParseDiscoverResponse)
	if err != nil {
		return bjnp.DiscoverResponse{}, err
	}
	return packet.Payload, nil
}

// inquireDevice opens a fresh channel to the discovered device, asks for
// its IEEE 1284 identity, and prints it.
func inquireDevice(ctx context.Context, device bjnp.DiscoverResponse) error {
	ch, err := channel.New(&net.UDPAddr{IP: device.IP, Port: bjnp.Port})
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Send(ctx, bjnp.GetID, bjnp.Empty{}); err != nil {
		return err
	}
	id, err := channel.Recv(ctx, ch, bjnp.ParseIdentityResponse)
	if err != nil {
		return err
	}

	fmt.Println(formatDevice(device, id))
	return nil
}

func formatDevice(device bjnp.DiscoverResponse, id bjnp.IdentityResponse) string {
	keys := make([]string, 0, len(id))
	for k := range id {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "Scanner IP=%s:%d MAC=%s", device.IP, bjnp.Port, device.MAC)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n  %s: %s", k, id[k])
	}
	return b.String()
}

// setBroadcast enables SO_BROADCAST on conn; the stdlib exposes no method
// for it, so it goes through the raw descriptor.
func setBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

// directedBroadcast computes the directed broadcast address of an IPv4
// network, falling back to 255.255.255.255 when the mask is unusable.
func directedBroadcast(ipNet *net.IPNet) net.IP {
	ip := ipNet.IP.To4()
	mask := ipNet.Mask
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if ip == nil || len(mask) != net.IPv4len {
		return net.IPv4bcast
	}
	bcast := make(net.IP, net.IPv4len)
	for i := range bcast {
		bcast[i] = ip[i] | ^mask[i]
	}
	return bcast
}

func isTimeout(err error) bool {
	netErr, ok := err.(net.Error)
	return ok && netErr.Timeout()
}
