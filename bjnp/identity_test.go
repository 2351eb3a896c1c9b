package bjnp

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestParseIdentityResponse(t *testing.T) {
	// 0x20-byte payload carrying MFG:Canon;MDL:Dummy;CLS:IMAGE;
	buf := []byte{
		0x00, 0x20,
		0x4D, 0x46, 0x47, 0x3A, 0x43, 0x61, 0x6E, 0x6F, 0x6E, 0x3B,
		0x4D, 0x44, 0x4C, 0x3A, 0x44, 0x75, 0x6D, 0x6D, 0x79, 0x3B,
		0x43, 0x4C, 0x53, 0x3A, 0x49, 0x4D, 0x41, 0x47, 0x45, 0x3B,
		0xFF, 0xFF, // trailing bytes beyond the declared length
	}
	id, consumed, err := ParseIdentityResponse(buf)
	if err != nil {
		t.Fatalf("ParseIdentityResponse failed: %v", err)
	}
	if consumed != 0x20 {
		t.Errorf("consumed = %d, want 32", consumed)
	}
	want := IdentityResponse{"MFG": "Canon", "MDL": "Dummy", "CLS": "IMAGE"}
	if !reflect.DeepEqual(id, want) {
		t.Errorf("identity = %v, want %v", id, want)
	}
}

func TestIdentityResponse_RoundTrip(t *testing.T) {
	id := IdentityResponse{"MFG": "Canon", "MDL": "MX925", "CMD": "BJL,BJRaster3,BSCCe"}

	var buf bytes.Buffer
	if err := id.Serialize(&buf); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if buf.Len() != id.Size() {
		t.Errorf("encoded length = %d, Size() = %d", buf.Len(), id.Size())
	}

	decoded, consumed, err := ParseIdentityResponse(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseIdentityResponse failed: %v", err)
	}
	if consumed != buf.Len() {
		t.Errorf("consumed = %d, want %d", consumed, buf.Len())
	}
	if !reflect.DeepEqual(decoded, id) {
		t.Errorf("round-trip = %v, want %v", decoded, id)
	}
}

func TestParseIdentityResponse_DropsMalformedRecords(t *testing.T) {
	body := "MFG:Canon;NOSEPARATOR;MDL:Dummy;"
	buf := append([]byte{0x00, byte(2 + len(body))}, body...)

	id, _, err := ParseIdentityResponse(buf)
	if err != nil {
		t.Fatalf("ParseIdentityResponse failed: %v", err)
	}
	want := IdentityResponse{"MFG": "Canon", "MDL": "Dummy"}
	if !reflect.DeepEqual(id, want) {
		t.Errorf("identity = %v, want %v (malformed record dropped)", id, want)
	}
}

func TestParseIdentityResponse_LengthTooSmall(t *testing.T) {
	for _, length := range []byte{0, 1} {
		_, _, err := ParseIdentityResponse([]byte{0x00, length})
		var ise *InvalidSliceError
		if !errors.As(err, &ise) {
			t.Fatalf("length %d: error = %v, want InvalidSliceError", length, err)
		}
		if ise.Span != [2]int{0, 2} {
			t.Errorf("length %d: span = %v, want [0 2]", length, ise.Span)
		}
	}
}

func TestParseIdentityResponse_BadUTF8(t *testing.T) {
	buf := []byte{0x00, 0x06, 0xFF, 0xFE, 0x3A, 0x3B}
	_, _, err := ParseIdentityResponse(buf)
	var ise *InvalidSliceError
	if !errors.As(err, &ise) {
		t.Fatalf("error = %v, want InvalidSliceError", err)
	}
	if ise.Span != [2]int{2, 6} {
		t.Errorf("span = %v, want [2 6]", ise.Span)
	}
}

func TestParseIdentityResponse_Truncated(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"no length field", []byte{0x00}},
		{"body shorter than declared", []byte{0x00, 0x10, 'M', 'F', 'G'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseIdentityResponse(tt.buf)
			var uee *UnexpectedEndError
			if !errors.As(err, &uee) {
				t.Fatalf("error = %v, want UnexpectedEndError", err)
			}
		})
	}
}
