package bjnp

import (
	"encoding/binary"
	"io"
	"sort"
	"strings"
	"unicode/utf8"
)

// IdentityResponse is the IEEE 1284 identity mapping returned by a GetId
// command: uppercase ASCII keys (MFG, MDL, CLS, ...) to string values.
type IdentityResponse map[string]string

func (r IdentityResponse) Size() int { return 2 + len(r.encodeBody()) }

func (r IdentityResponse) Serialize(w io.Writer) error {
	body := r.encodeBody()
	var lenPrefix [2]byte
	binary.BigEndian.PutUint16(lenPrefix[:], uint16(2+len(body)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func (r IdentityResponse) encodeBody() []byte {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf strings.Builder
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte(':')
		buf.WriteString(r[k])
		buf.WriteByte(';')
	}
	return []byte(buf.String())
}

// ParseIdentityResponse decodes an IdentityResponse payload. A record
// lacking a ':' separator is silently dropped rather than rejected.
func ParseIdentityResponse(buf []byte) (IdentityResponse, int, error) {
	if len(buf) < 2 {
		return nil, 0, &UnexpectedEndError{Expected: 2, Actual: len(buf)}
	}
	total := int(binary.BigEndian.Uint16(buf[:2]))
	if total < 2 {
		return nil, 0, &InvalidSliceError{Span: [2]int{0, 2}, Message: "identity length field must be at least 2"}
	}
	if len(buf) < total {
		return nil, 0, &UnexpectedEndError{Expected: total, Actual: len(buf)}
	}
	body := buf[2:total]
	if !utf8.Valid(body) {
		return nil, 0, &InvalidSliceError{Span: [2]int{2, total}, Message: "identity body is not valid UTF-8"}
	}

	result := make(IdentityResponse)
	for _, record := range strings.Split(string(body), ";") {
		if record == "" {
			continue
		}
		key, value, ok := strings.Cut(record, ":")
		if !ok {
			continue
		}
		result[key] = value
	}
	return result, total, nil
}
