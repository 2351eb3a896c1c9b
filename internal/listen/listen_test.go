package listen

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/johnmave126/scanner-button/bjnp"
	"github.com/johnmave126/scanner-button/bjnp/poll"
)

// fakeScanner answers BJNP commands on a loopback UDP socket the way an
// MX920 does: a DiscoverResponse to Discover, and whatever pollHandle
// returns to Poll. Every decoded poll command is recorded on commands.
type fakeScanner struct {
	conn     *net.UDPConn
	commands chan poll.Command
}

func newFakeScanner(t *testing.T, pollHandle func(cmd poll.Command) poll.Response) *fakeScanner {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("couldn't bind fake scanner: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	f := &fakeScanner{conn: conn, commands: make(chan poll.Command, 16)}
	go func() {
		buf := make([]byte, 65536)
		for {
			n, remote, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			req, err := bjnp.ParsePacketHeaderOnly(buf[:n])
			if err != nil {
				continue
			}
			switch req.Header.PayloadType {
			case bjnp.Discover:
				resp := bjnp.DiscoverResponse{
					MAC: net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
					IP:  net.IP{127, 0, 0, 1},
				}
				packet := bjnp.Build(bjnp.NewPacketBuilder(bjnp.ScannerResponse, bjnp.Discover), resp)
				conn.WriteToUDP(packet.SerializeToBytes(), remote)
			case bjnp.Poll:
				cmd, _, err := poll.ParseCommand(req.Payload)
				if err != nil {
					continue
				}
				f.commands <- cmd
				packet := bjnp.Build(bjnp.NewPacketBuilder(bjnp.ScannerResponse, bjnp.Poll), pollHandle(cmd))
				conn.WriteToUDP(packet.SerializeToBytes(), remote)
			}
		}
	}()
	return f
}

func (f *fakeScanner) addr() *net.UDPAddr {
	return f.conn.LocalAddr().(*net.UDPAddr)
}

func testConfig(addr *net.UDPAddr) Config {
	return Config{
		ScannerAddr:       addr,
		Hostname:          bjnp.NewHost("test-host"),
		InitialMaxWaiting: 5 * time.Second,
		BackoffFactor:     2.0,
		BackoffMaximum:    30 * time.Second,
		Command:           "true",
	}
}

func sessionResponse(id uint32) poll.Response {
	return poll.Response{Status: 0, SessionID: &id}
}

func TestTransitionErr(t *testing.T) {
	l, err := New(testConfig(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: bjnp.Port}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer l.Close()

	if l.state != stateInit {
		t.Fatalf("initial state = %v, want Init", l.state)
	}

	// Init failure backs off with the initial max waiting.
	l.transitionErr()
	if l.state != stateBackoff {
		t.Errorf("state after Init failure = %v, want Backoff", l.state)
	}
	if l.backoffDur != 5*time.Second {
		t.Errorf("backoff duration = %v, want 5s", l.backoffDur)
	}

	// Repeated failures grow the backoff by the factor, capped at the
	// maximum.
	for _, want := range []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second, 30 * time.Second} {
		l.transitionErr()
		if l.state != stateBackoff {
			t.Fatalf("state = %v, want Backoff", l.state)
		}
		if l.backoffDur != want {
			t.Errorf("backoff duration = %v, want %v", l.backoffDur, want)
		}
	}

	// Poll failure reinitializes.
	l.state = statePoll
	l.transitionErr()
	if l.state != stateInit {
		t.Errorf("state after Poll failure = %v, want Init", l.state)
	}
}

func TestNext_InitEstablishesSession(t *testing.T) {
	scanner := newFakeScanner(t, func(cmd poll.Command) poll.Response {
		return sessionResponse(0x1234)
	})

	l, err := New(testConfig(scanner.addr()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.next(ctx); err != nil {
		t.Fatalf("next failed: %v", err)
	}
	if l.state != statePoll {
		t.Errorf("state = %v, want Poll", l.state)
	}
	if l.sessionID != 0x1234 {
		t.Errorf("session id = 0x%04x, want 0x1234", l.sessionID)
	}

	cmd := <-scanner.commands
	if cmd.Type != poll.HostOnly {
		t.Errorf("first poll command type = %v, want host only", cmd.Type)
	}
	if cmd.Host != l.cfg.Hostname {
		t.Errorf("first poll command host = %q, want %q", cmd.Host, l.cfg.Hostname)
	}
}

func TestNext_InitRejectsInterrupt(t *testing.T) {
	actionID := uint32(1)
	interrupt := poll.Interrupt{
		ColorMode: poll.Color,
		Size:      poll.A4,
		Format:    poll.Jpeg,
		DPI:       poll.DPI300,
		Source:    poll.Flatbed,
	}
	scanner := newFakeScanner(t, func(cmd poll.Command) poll.Response {
		return poll.Response{Status: poll.InterruptBit, ActionID: &actionID, Interrupt: &interrupt}
	})

	l, err := New(testConfig(scanner.addr()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.next(ctx); err == nil {
		t.Fatal("next succeeded, want unexpected-interrupt error")
	}
	l.transitionErr()
	if l.state != stateBackoff {
		t.Errorf("state = %v, want Backoff", l.state)
	}
}

func TestNext_PollRoundAcknowledgesInterrupt(t *testing.T) {
	actionID := uint32(7)
	interrupt := poll.Interrupt{
		ColorMode: poll.Color,
		Size:      poll.A4,
		Format:    poll.Jpeg,
		DPI:       poll.DPI300,
		Source:    poll.Flatbed,
	}
	scanner := newFakeScanner(t, func(cmd poll.Command) poll.Response {
		switch cmd.Type {
		case poll.Full:
			return poll.Response{Status: poll.InterruptBit, ActionID: &actionID, Interrupt: &interrupt}
		default:
			return sessionResponse(0x1234)
		}
	})

	l, err := New(testConfig(scanner.addr()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := l.next(ctx); err != nil {
		t.Fatalf("init step failed: %v", err)
	}
	<-scanner.commands // host-only
	if err := l.next(ctx); err != nil {
		t.Fatalf("poll step failed: %v", err)
	}
	if l.state != statePoll {
		t.Errorf("state = %v, want Poll", l.state)
	}

	full := <-scanner.commands
	if full.Type != poll.Full {
		t.Fatalf("second command type = %v, want full", full.Type)
	}
	if full.SessionID != 0x1234 {
		t.Errorf("full command session id = 0x%04x, want 0x1234", full.SessionID)
	}
	if full.DateTime.IsZero() {
		t.Error("full command datetime is zero, want current time")
	}

	reset := <-scanner.commands
	if reset.Type != poll.Reset {
		t.Fatalf("third command type = %v, want reset", reset.Type)
	}
	if reset.ActionID != actionID {
		t.Errorf("reset action id = %d, want %d", reset.ActionID, actionID)
	}
	if reset.SessionID != 0x1234 {
		t.Errorf("reset session id = 0x%04x, want 0x1234", reset.SessionID)
	}
}
