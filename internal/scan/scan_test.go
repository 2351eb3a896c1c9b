package scan

import (
	"net"
	"testing"

	"github.com/johnmave126/scanner-button/bjnp"
)

func TestDirectedBroadcast(t *testing.T) {
	tests := []struct {
		name string
		cidr string
		want string
	}{
		{"/24", "192.168.1.17/24", "192.168.1.255"},
		{"/16", "10.1.2.3/16", "10.1.255.255"},
		{"/30", "192.0.2.5/30", "192.0.2.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip, ipNet, err := net.ParseCIDR(tt.cidr)
			if err != nil {
				t.Fatalf("ParseCIDR failed: %v", err)
			}
			ipNet.IP = ip

			got := directedBroadcast(ipNet)
			if got.String() != tt.want {
				t.Errorf("directedBroadcast(%s) = %s, want %s", tt.cidr, got, tt.want)
			}
		})
	}
}

func TestDirectedBroadcast_UnusableMask(t *testing.T) {
	ipNet := &net.IPNet{IP: net.IPv4(192, 0, 2, 1), Mask: nil}
	if got := directedBroadcast(ipNet); !got.Equal(net.IPv4bcast) {
		t.Errorf("directedBroadcast with no mask = %s, want 255.255.255.255", got)
	}
}

func TestParseDiscoverPacket(t *testing.T) {
	resp := bjnp.DiscoverResponse{
		MAC: net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		IP:  net.IP{192, 0, 2, 1},
	}
	buf := bjnp.Build(bjnp.NewPacketBuilder(bjnp.ScannerResponse, bjnp.Discover), resp).SerializeToBytes()

	got, err := parseDiscoverPacket(buf)
	if err != nil {
		t.Fatalf("parseDiscoverPacket failed: %v", err)
	}
	if got.MAC.String() != "00:11:22:33:44:55" {
		t.Errorf("MAC = %s, want 00:11:22:33:44:55", got.MAC)
	}
	if !got.IP.Equal(resp.IP) {
		t.Errorf("IP = %s, want %s", got.IP, resp.IP)
	}
}

func TestParseDiscoverPacket_RemoteError(t *testing.T) {
	buf := bjnp.Packet[bjnp.Empty]{
		Header: bjnp.Header{PacketType: bjnp.ScannerResponse, PayloadType: bjnp.Discover, Error: 0x01},
	}.SerializeToBytes()

	if _, err := parseDiscoverPacket(buf); err == nil {
		t.Error("parseDiscoverPacket succeeded on a remote error report, want error")
	}
}

func TestFormatDevice(t *testing.T) {
	device := bjnp.DiscoverResponse{
		MAC: net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		IP:  net.IP{192, 0, 2, 1},
	}
	id := bjnp.IdentityResponse{"MFG": "Canon", "MDL": "MX925", "CLS": "IMAGE"}

	got := formatDevice(device, id)
	want := "Scanner IP=192.0.2.1:8612 MAC=00:11:22:33:44:55\n" +
		"  CLS: IMAGE\n" +
		"  MFG: Canon\n" +
		"  MDL: MX925"
	if got != want {
		t.Errorf("formatDevice =\n%s\nwant:\n%s", got, want)
	}
}
