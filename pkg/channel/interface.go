package channel

import (
	"context"
	"errors"
	"io"
	"net"
)

var (
	ErrChannelClosed = errors.New("channel: closed")
	ErrNoAddress     = errors.New("channel: address is required")
)

// Transport is the ordered, reliable byte channel an OBEX session runs over.
// Reads and writes block; Close must unblock any pending Read or Write.
// MTU is the largest packet the local side accepts on this channel.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
	MTU() int
}

// Listener accepts inbound transports, one per OBEX session.
type Listener interface {
	Accept(ctx context.Context) (Transport, error)
	Close() error
	Addr() net.Addr
}

// TransportStats provides transport-level statistics
type TransportStats struct {
	BytesSent     uint64 // Total bytes sent
	BytesReceived uint64 // Total bytes received
	WriteErrors   uint64 // Number of write errors
	ReadErrors    uint64 // Number of read errors
	Connects      uint64 // Number of connections (for connection-oriented transports)
	Disconnects   uint64 // Number of disconnections
}

// ChannelState represents the state of a channel
type ChannelState int

const (
	ChannelStateOpen ChannelState = iota
	ChannelStateClosed
)

// String returns string representation of ChannelState
func (s ChannelState) String() string {
	switch s {
	case ChannelStateOpen:
		return "Open"
	case ChannelStateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
