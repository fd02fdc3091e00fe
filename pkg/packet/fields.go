package packet

import (
	"encoding/binary"
	"fmt"
)

// Fixed field sizes that precede the headers in some packets.
const (
	ConnectFieldsSize = 4
	SetPathFieldsSize = 2
)

// ConnectFields are carried by CONNECT requests and by the response to a CONNECT.
type ConnectFields struct {
	Version       uint8
	Flags         uint8
	MaxPacketSize uint16
}

// Encode serializes the connect fields.
func (c ConnectFields) Encode() []byte {
	buf := make([]byte, ConnectFieldsSize)
	buf[0] = c.Version
	buf[1] = c.Flags
	binary.BigEndian.PutUint16(buf[2:4], c.MaxPacketSize)
	return buf
}

// DecodeConnectFields splits body into connect fields and the header bytes after them.
func DecodeConnectFields(body []byte) (ConnectFields, []byte, error) {
	if len(body) < ConnectFieldsSize {
		return ConnectFields{}, nil, fmt.Errorf("%w: connect needs %d bytes, have %d", ErrShortFields, ConnectFieldsSize, len(body))
	}
	return ConnectFields{
		Version:       body[0],
		Flags:         body[1],
		MaxPacketSize: binary.BigEndian.Uint16(body[2:4]),
	}, body[ConnectFieldsSize:], nil
}

// SetPath flag bits
const (
	SetPathBackup   uint8 = 0x01 // go to the parent folder first
	SetPathNoCreate uint8 = 0x02 // do not create the folder if missing
)

// SetPathFields are carried by SETPATH requests.
type SetPathFields struct {
	Flags     uint8
	Constants uint8
}

// Backup reports whether the backup flag is set.
func (s SetPathFields) Backup() bool {
	return s.Flags&SetPathBackup != 0
}

// Create reports whether the peer allows folder creation.
func (s SetPathFields) Create() bool {
	return s.Flags&SetPathNoCreate == 0
}

// Encode serializes the setpath fields.
func (s SetPathFields) Encode() []byte {
	return []byte{s.Flags, s.Constants}
}

// DecodeSetPathFields splits body into setpath fields and the header bytes after them.
func DecodeSetPathFields(body []byte) (SetPathFields, []byte, error) {
	if len(body) < SetPathFieldsSize {
		return SetPathFields{}, nil, fmt.Errorf("%w: setpath needs %d bytes, have %d", ErrShortFields, SetPathFieldsSize, len(body))
	}
	return SetPathFields{Flags: body[0], Constants: body[1]}, body[SetPathFieldsSize:], nil
}

// NewSetPathFields builds the flag byte from the backup/create options.
func NewSetPathFields(backup, create bool) SetPathFields {
	var flags uint8
	if backup {
		flags |= SetPathBackup
	}
	if !create {
		flags |= SetPathNoCreate
	}
	return SetPathFields{Flags: flags}
}

// NegotiateMaxPacketSize returns the packet size both peers can handle.
func NegotiateMaxPacketSize(local, remote int) int {
	size := local
	if remote > 0 && remote < size {
		size = remote
	}
	if size < MinMaxPacketSize {
		size = MinMaxPacketSize
	}
	if size > MaxPacketSizeLimit {
		size = MaxPacketSizeLimit
	}
	return size
}
