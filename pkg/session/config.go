package session

import "avaneesh/obex-go/pkg/packet"

// Config configures an OBEX session
type Config struct {
	// Largest packet this side accepts, announced in CONNECT.
	// The transport MTU caps it further.
	MaxPacketSize int

	// CONNECT fixed fields
	Version uint8
	Flags   uint8
}

// DefaultConfig returns default session configuration
func DefaultConfig() Config {
	return Config{
		MaxPacketSize: packet.DefaultMaxPacketSize,
		Version:       packet.Version,
	}
}

// WithDefaults fills unset fields and clamps the packet size to the wire limits.
func (c Config) WithDefaults() Config {
	if c.MaxPacketSize <= 0 {
		c.MaxPacketSize = packet.DefaultMaxPacketSize
	}
	if c.MaxPacketSize < packet.MinMaxPacketSize {
		c.MaxPacketSize = packet.MinMaxPacketSize
	}
	if c.MaxPacketSize > packet.MaxPacketSizeLimit {
		c.MaxPacketSize = packet.MaxPacketSizeLimit
	}
	if c.Version == 0 {
		c.Version = packet.Version
	}
	return c
}
