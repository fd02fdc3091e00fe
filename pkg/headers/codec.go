package headers

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

const (
	prefixLen   = 3 // id + 2 byte length
	maxEntryLen = 0xFFFF
)

// Encode serializes every header in insertion order.
func Encode(h *HeaderSet) ([]byte, error) {
	if h == nil {
		return nil, nil
	}
	out := make([]byte, 0, EncodedLen(h))
	for _, id := range h.order {
		var err error
		out, err = AppendHeader(out, id, h.values[id])
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// EncodedLen returns the number of bytes Encode produces.
func EncodedLen(h *HeaderSet) int {
	if h == nil {
		return 0
	}
	n := 0
	for _, id := range h.order {
		n += entryLen(id, h.values[id])
	}
	return n
}

func entryLen(id ID, v interface{}) int {
	switch id.Encoding() {
	case EncodingUnicode:
		s, _ := v.(string)
		if s == "" {
			return prefixLen
		}
		return prefixLen + 2*(len(utf16.Encode([]rune(s)))+1)
	case EncodingBytes:
		return prefixLen + len(bytesPayload(id, v))
	case EncodingByte:
		return 2
	default:
		return 5
	}
}

func bytesPayload(id ID, v interface{}) []byte {
	switch val := v.(type) {
	case []byte:
		return val
	case string:
		if id == Type {
			return append([]byte(val), 0)
		}
		return []byte(val)
	}
	return nil
}

// AppendHeader appends one encoded header to dst.
func AppendHeader(dst []byte, id ID, v interface{}) ([]byte, error) {
	switch id.Encoding() {
	case EncodingUnicode:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s holds %T", ErrHeaderType, id, v)
		}
		var payload []byte
		if s != "" {
			units := utf16.Encode([]rune(s))
			payload = make([]byte, 0, 2*(len(units)+1))
			for _, u := range units {
				payload = binary.BigEndian.AppendUint16(payload, u)
			}
			payload = append(payload, 0, 0)
		}
		return appendPrefixed(dst, id, payload)
	case EncodingBytes:
		return appendPrefixed(dst, id, bytesPayload(id, v))
	case EncodingByte:
		b, ok := v.(uint8)
		if !ok {
			return nil, fmt.Errorf("%w: %s holds %T", ErrHeaderType, id, v)
		}
		return append(dst, byte(id), b), nil
	default:
		n, ok := v.(uint32)
		if !ok {
			return nil, fmt.Errorf("%w: %s holds %T", ErrHeaderType, id, v)
		}
		dst = append(dst, byte(id))
		return binary.BigEndian.AppendUint32(dst, n), nil
	}
}

func appendPrefixed(dst []byte, id ID, payload []byte) ([]byte, error) {
	total := prefixLen + len(payload)
	if total > maxEntryLen {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrHeaderTooLarge, id, total)
	}
	dst = append(dst, byte(id))
	dst = binary.BigEndian.AppendUint16(dst, uint16(total))
	return append(dst, payload...), nil
}

// Decode parses a packet body into a header set.
// Later occurrences of an identifier overwrite earlier ones.
func Decode(data []byte) (*HeaderSet, error) {
	h := New()
	err := Scan(data, func(id ID, v interface{}) error {
		h.put(id, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// DecodeWithBody decodes data but collects BODY and END-OF-BODY payloads in
// wire order instead of storing them in the set. body is nil when neither
// header is present; eob reports an END-OF-BODY header.
func DecodeWithBody(data []byte) (h *HeaderSet, body []byte, eob bool, err error) {
	h = New()
	err = Scan(data, func(id ID, v interface{}) error {
		switch id {
		case Body, EndOfBody:
			if body == nil {
				body = []byte{}
			}
			body = append(body, v.([]byte)...)
			if id == EndOfBody {
				eob = true
			}
		default:
			h.put(id, v)
		}
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	return h, body, eob, nil
}

// Scan walks the encoded headers in data in wire order.
func Scan(data []byte, fn func(id ID, v interface{}) error) error {
	offset := 0
	for offset < len(data) {
		id := ID(data[offset])
		remaining := len(data) - offset

		var (
			v    interface{}
			size int
		)
		switch id.Encoding() {
		case EncodingUnicode, EncodingBytes:
			if remaining < prefixLen {
				return fmt.Errorf("%w: %s truncated length prefix at offset %d", ErrHeaderDecode, id, offset)
			}
			size = int(binary.BigEndian.Uint16(data[offset+1 : offset+3]))
			if size < prefixLen || size > remaining {
				return fmt.Errorf("%w: %s declares %d bytes, %d available", ErrHeaderDecode, id, size, remaining)
			}
			payload := data[offset+prefixLen : offset+size]
			if id.Encoding() == EncodingUnicode {
				s, err := decodeUnicode(payload)
				if err != nil {
					return fmt.Errorf("%w: %s: %v", ErrHeaderDecode, id, err)
				}
				v = s
			} else if id.textual() {
				v = trimNull(string(payload))
			} else {
				v = append([]byte{}, payload...)
			}
		case EncodingByte:
			if remaining < 2 {
				return fmt.Errorf("%w: %s truncated at offset %d", ErrHeaderDecode, id, offset)
			}
			size = 2
			v = data[offset+1]
		default:
			if remaining < 5 {
				return fmt.Errorf("%w: %s truncated at offset %d", ErrHeaderDecode, id, offset)
			}
			size = 5
			v = binary.BigEndian.Uint32(data[offset+1 : offset+5])
		}

		if err := fn(id, v); err != nil {
			return err
		}
		offset += size
	}
	return nil
}

func decodeUnicode(payload []byte) (string, error) {
	if len(payload)%2 != 0 {
		return "", fmt.Errorf("odd unicode payload length %d", len(payload))
	}
	units := make([]uint16, 0, len(payload)/2)
	for i := 0; i < len(payload); i += 2 {
		units = append(units, binary.BigEndian.Uint16(payload[i:i+2]))
	}
	for len(units) > 0 && units[len(units)-1] == 0 {
		units = units[:len(units)-1]
	}
	return string(utf16.Decode(units)), nil
}

func trimNull(s string) string {
	for len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	return s
}
