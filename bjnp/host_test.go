package bjnp

import (
	"encoding/binary"
	"strings"
	"testing"
)

func hostUnits(h Host) []uint16 {
	units := make([]uint16, hostMaxUnits)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(h[i*2:])
	}
	return units
}

func TestNewHost_Fits(t *testing.T) {
	h := NewHost("my-laptop")
	units := hostUnits(h)

	for i, c := range "my-laptop" {
		if units[i] != uint16(c) {
			t.Errorf("unit %d = 0x%04x, want %q", i, units[i], c)
		}
	}
	for i := len("my-laptop"); i < hostMaxUnits; i++ {
		if units[i] != 0 {
			t.Errorf("unit %d = 0x%04x, want zero padding", i, units[i])
		}
	}
	if got := h.String(); got != "my-laptop" {
		t.Errorf("String() = %q, want %q", got, "my-laptop")
	}
}

func TestNewHost_ExactFit(t *testing.T) {
	s := strings.Repeat("x", hostMaxUnits)
	h := NewHost(s)
	if got := h.String(); got != s {
		t.Errorf("String() = %q, want %q (no ellipsis at exact fit)", got, s)
	}
}

func TestNewHost_Truncates(t *testing.T) {
	// 36 ASCII characters truncate to the first 29 plus "...".
	s := "abcdefghijklmnopqrstuvwxyzabcdefghij"
	h := NewHost(s)
	units := hostUnits(h)

	want := s[:29] + "..."
	for i, c := range want {
		if units[i] != uint16(c) {
			t.Errorf("unit %d = 0x%04x, want %q", i, units[i], c)
		}
	}
	if got := h.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	dots := strings.Count(h.String(), ".")
	if dots != 3 {
		t.Errorf("ellipsis dot count = %d, want 3", dots)
	}
}

func TestNewHost_SurrogatePairBoundary(t *testing.T) {
	// 28 ASCII units followed by three U+1F600 (2 units each) overflows at
	// 34 units. Cutting at 29 would split the first emoji's surrogate pair,
	// so the whole pair is dropped before the ellipsis.
	s := strings.Repeat("a", 28) + strings.Repeat("\U0001F600", 3)
	h := NewHost(s)

	want := strings.Repeat("a", 28) + "..."
	if got := h.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	units := hostUnits(h)
	for i := 31; i < hostMaxUnits; i++ {
		if units[i] != 0 {
			t.Errorf("unit %d = 0x%04x, want zero padding", i, units[i])
		}
	}
}

func TestHostString_StopsAtNul(t *testing.T) {
	var h Host
	binary.BigEndian.PutUint16(h[0:], 'a')
	binary.BigEndian.PutUint16(h[2:], 0)
	binary.BigEndian.PutUint16(h[4:], 'b')

	if got := h.String(); got != "a" {
		t.Errorf("String() = %q, want %q", got, "a")
	}
}

func TestHostString_LossyDecode(t *testing.T) {
	var h Host
	// A lone high surrogate decodes to U+FFFD.
	binary.BigEndian.PutUint16(h[0:], 0xD800)

	if got := h.String(); got != "�" {
		t.Errorf("String() = %q, want replacement character", got)
	}
}
