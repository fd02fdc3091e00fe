package server

import (
	"bytes"

	"avaneesh/obex-go/pkg/headers"
)

// assembly reassembles a request body from successive BODY and
// END-OF-BODY payloads.
type assembly struct {
	buffer    bytes.Buffer
	declared  int64 // -1 = no limit
	noBody    bool
	seen      bool
	discarded int
}

// newAssembly sizes the assembly from the LENGTH header of the opening packet.
func newAssembly(h *headers.HeaderSet) *assembly {
	a := &assembly{declared: -1}
	if n, ok := h.Uint32(headers.Length); ok {
		if n == headers.LengthUnknown {
			a.noBody = true
		} else {
			a.declared = int64(n)
		}
	}
	return a
}

// Add appends one payload. Bytes past the declared length are dropped and
// counted; payloads of a no-body request are ignored.
func (a *assembly) Add(chunk []byte) {
	if chunk == nil || a.noBody {
		return
	}
	a.seen = true
	if a.declared >= 0 {
		room := a.declared - int64(a.buffer.Len())
		if room < int64(len(chunk)) {
			keep := max(room, 0)
			a.discarded += len(chunk) - int(keep)
			chunk = chunk[:keep]
		}
	}
	a.buffer.Write(chunk)
}

// Body returns the assembled bytes, or nil when no body was received.
func (a *assembly) Body() []byte {
	if !a.seen {
		return nil
	}
	result := make([]byte, a.buffer.Len())
	copy(result, a.buffer.Bytes())
	return result
}

// Declared returns the LENGTH the client announced, or -1.
func (a *assembly) Declared() int64 {
	return a.declared
}

// Discarded returns the number of bytes dropped past the declared length.
func (a *assembly) Discarded() int {
	return a.discarded
}
