package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Packet is one OBEX request or response.
// Code holds the opcode of a request or the response code of a reply.
type Packet struct {
	Code uint8
	Body []byte
}

// Opcode returns the code interpreted as a request opcode.
func (p *Packet) Opcode() Opcode {
	return Opcode(p.Code)
}

// ResponseCode returns the code interpreted as a response code.
func (p *Packet) ResponseCode() ResponseCode {
	return ResponseCode(p.Code)
}

// Len returns the declared packet length.
func (p *Packet) Len() int {
	return HeaderSize + len(p.Body)
}

// String returns string representation of Packet
func (p *Packet) String() string {
	return fmt.Sprintf("Packet{Code=0x%02X, Len=%d}", p.Code, p.Len())
}

// Encode frames code and the concatenated body parts into wire format.
func Encode(code uint8, parts ...[]byte) ([]byte, error) {
	bodyLen := 0
	for _, part := range parts {
		bodyLen += len(part)
	}
	total := HeaderSize + bodyLen
	if total > MaxPacketSizeLimit {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, total)
	}

	buf := make([]byte, HeaderSize, total)
	buf[0] = code
	binary.BigEndian.PutUint16(buf[1:3], uint16(total))
	for _, part := range parts {
		buf = append(buf, part...)
	}
	return buf, nil
}

// Read reads exactly one packet from r.
// A clean end of stream before the opcode byte is reported as io.EOF; every other
// short read or inconsistent length is ErrMalformedPacket.
// maxSize bounds the accepted declared length (0 means no bound beyond the wire limit).
func Read(r io.Reader, maxSize int) (*Packet, error) {
	var hdr [HeaderSize]byte
	n, err := io.ReadFull(r, hdr[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated header", ErrMalformedPacket)
		}
		return nil, err
	}

	length := int(binary.BigEndian.Uint16(hdr[1:3]))
	if length < HeaderSize {
		return nil, fmt.Errorf("%w: declared length %d", ErrMalformedPacket, length)
	}
	if maxSize > 0 && length > maxSize {
		return nil, fmt.Errorf("%w: declared length %d exceeds %d", ErrMalformedPacket, length, maxSize)
	}

	body := make([]byte, length-HeaderSize)
	if len(body) > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: body truncated, want %d bytes", ErrMalformedPacket, len(body))
			}
			return nil, err
		}
	}

	return &Packet{Code: hdr[0], Body: body}, nil
}

// Parse decodes a complete packet held in data.
func Parse(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedPacket, len(data))
	}
	length := int(binary.BigEndian.Uint16(data[1:3]))
	if length < HeaderSize || length != len(data) {
		return nil, fmt.Errorf("%w: declared length %d, have %d", ErrMalformedPacket, length, len(data))
	}
	body := make([]byte, length-HeaderSize)
	copy(body, data[HeaderSize:])
	return &Packet{Code: data[0], Body: body}, nil
}

// Write frames code and parts and writes the packet to w in a single call.
// The framed bytes are returned for diagnostics.
func Write(w io.Writer, code uint8, parts ...[]byte) ([]byte, error) {
	data, err := Encode(code, parts...)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return data, err
	}
	return data, nil
}
