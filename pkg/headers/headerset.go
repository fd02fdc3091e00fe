package headers

import (
	"errors"
	"fmt"

	"avaneesh/obex-go/pkg/packet"
)

var (
	ErrHeaderDecode     = errors.New("headers: decode error")
	ErrHeaderType       = errors.New("headers: value type does not match header encoding")
	ErrHeaderTooLarge   = errors.New("headers: header exceeds 65535 bytes")
	ErrForeignHeaderSet = errors.New("headers: header set was created by another session")
)

// HeaderSet is an ordered collection of typed headers.
// Values are string (unicode and textual byte headers), []byte, uint8 or uint32.
// The response code is only meaningful on reply headers.
type HeaderSet struct {
	owner        uint64
	order        []ID
	values       map[ID]interface{}
	responseCode packet.ResponseCode
}

// New creates an empty header set that belongs to no session.
func New() *HeaderSet {
	return NewOwned(0)
}

// NewOwned creates an empty header set bound to the session identified by owner.
func NewOwned(owner uint64) *HeaderSet {
	return &HeaderSet{
		owner:  owner,
		values: make(map[ID]interface{}),
	}
}

// Owner returns the token of the session that created the set.
func (h *HeaderSet) Owner() uint64 {
	return h.owner
}

// Set stores value under id. A nil value removes the header.
func (h *HeaderSet) Set(id ID, value interface{}) error {
	if value == nil {
		h.Delete(id)
		return nil
	}
	v, err := normalize(id, value)
	if err != nil {
		return err
	}
	h.put(id, v)
	return nil
}

func (h *HeaderSet) put(id ID, v interface{}) {
	if _, exists := h.values[id]; !exists {
		h.order = append(h.order, id)
	}
	h.values[id] = v
}

func normalize(id ID, value interface{}) (interface{}, error) {
	switch id.Encoding() {
	case EncodingUnicode:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case EncodingBytes:
		switch v := value.(type) {
		case []byte:
			if id.textual() {
				return string(v), nil
			}
			return append([]byte{}, v...), nil
		case string:
			if id.textual() {
				return v, nil
			}
		}
	case EncodingByte:
		switch v := value.(type) {
		case uint8:
			return v, nil
		case int:
			if v >= 0 && v <= 0xFF {
				return uint8(v), nil
			}
		}
	case EncodingUint32:
		switch v := value.(type) {
		case uint32:
			return v, nil
		case int:
			if v >= 0 && int64(v) <= int64(LengthUnknown) {
				return uint32(v), nil
			}
		case int64:
			if v >= 0 && v <= int64(LengthUnknown) {
				return uint32(v), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s does not accept %T", ErrHeaderType, id, value)
}

// Get returns the raw value of id.
func (h *HeaderSet) Get(id ID) (interface{}, bool) {
	v, ok := h.values[id]
	return v, ok
}

// Text returns a unicode or textual header.
func (h *HeaderSet) Text(id ID) (string, bool) {
	s, ok := h.values[id].(string)
	return s, ok
}

// Bytes returns a byte sequence header.
func (h *HeaderSet) Bytes(id ID) ([]byte, bool) {
	b, ok := h.values[id].([]byte)
	return b, ok
}

// Byte returns a single byte header.
func (h *HeaderSet) Byte(id ID) (uint8, bool) {
	b, ok := h.values[id].(uint8)
	return b, ok
}

// Uint32 returns a 4 byte header.
func (h *HeaderSet) Uint32(id ID) (uint32, bool) {
	v, ok := h.values[id].(uint32)
	return v, ok
}

// Has reports whether id is present.
func (h *HeaderSet) Has(id ID) bool {
	_, ok := h.values[id]
	return ok
}

// Delete removes id.
func (h *HeaderSet) Delete(id ID) {
	if _, ok := h.values[id]; !ok {
		return
	}
	delete(h.values, id)
	for i, cur := range h.order {
		if cur == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// IDs returns the identifiers in insertion order.
func (h *HeaderSet) IDs() []ID {
	return append([]ID(nil), h.order...)
}

// Len returns the number of headers.
func (h *HeaderSet) Len() int {
	return len(h.order)
}

// ResponseCode returns the code of the reply that carried these headers.
func (h *HeaderSet) ResponseCode() packet.ResponseCode {
	return h.responseCode
}

// SetResponseCode records the reply code.
func (h *HeaderSet) SetResponseCode(code packet.ResponseCode) {
	h.responseCode = code
}

// Clone returns a deep copy, keeping owner and response code.
func (h *HeaderSet) Clone() *HeaderSet {
	out := NewOwned(h.owner)
	out.responseCode = h.responseCode
	for _, id := range h.order {
		v := h.values[id]
		if b, ok := v.([]byte); ok {
			v = append([]byte{}, b...)
		}
		out.put(id, v)
	}
	return out
}

// Merge copies every header of other into h, overwriting duplicates.
func (h *HeaderSet) Merge(other *HeaderSet) {
	if other == nil {
		return
	}
	for _, id := range other.order {
		h.put(id, other.values[id])
	}
}

// ValidateOwner checks that h was created by the session identified by owner.
// A nil set and a set created with New belong to no session and are valid.
func ValidateOwner(h *HeaderSet, owner uint64) error {
	if h == nil || h.owner == 0 || h.owner == owner {
		return nil
	}
	return ErrForeignHeaderSet
}
