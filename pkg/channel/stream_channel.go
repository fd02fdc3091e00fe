package channel

import (
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"avaneesh/obex-go/pkg/packet"
)

// StreamConfig configures a stream backed transport
type StreamConfig struct {
	MTU          int           // Largest accepted packet (0 = packet.DefaultMaxPacketSize)
	ReadTimeout  time.Duration // Read timeout (0 = no timeout)
	WriteTimeout time.Duration // Write timeout (0 = no timeout)
}

// DefaultStreamConfig returns a config with the default MTU and no timeouts.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{MTU: packet.DefaultMaxPacketSize}
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.MTU <= 0 {
		c.MTU = packet.DefaultMaxPacketSize
	}
	if c.MTU < packet.MinMaxPacketSize {
		c.MTU = packet.MinMaxPacketSize
	}
	if c.MTU > packet.MaxPacketSizeLimit {
		c.MTU = packet.MaxPacketSizeLimit
	}
	return c
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

type addresser interface {
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// StreamChannel implements Transport over any ordered byte stream
// (a TCP connection, a QUIC stream, one end of an in-memory pipe).
type StreamChannel struct {
	rwc     io.ReadWriteCloser
	closeFn func() error
	addrs   addresser

	mtu          int
	readTimeout  time.Duration
	writeTimeout time.Duration

	// Statistics
	stats struct {
		bytesSent     atomic.Uint64
		bytesReceived atomic.Uint64
		writeErrors   atomic.Uint64
		readErrors    atomic.Uint64
		disconnects   atomic.Uint64
	}

	closed atomic.Bool
}

// NewStreamChannel wraps rwc. Closing the channel closes rwc.
func NewStreamChannel(rwc io.ReadWriteCloser, config StreamConfig) *StreamChannel {
	return newStreamChannel(rwc, config, rwc.Close)
}

func newStreamChannel(rwc io.ReadWriteCloser, config StreamConfig, closeFn func() error) *StreamChannel {
	config = config.withDefaults()
	sc := &StreamChannel{
		rwc:          rwc,
		closeFn:      closeFn,
		mtu:          config.MTU,
		readTimeout:  config.ReadTimeout,
		writeTimeout: config.WriteTimeout,
	}
	if a, ok := rwc.(addresser); ok {
		sc.addrs = a
	}
	return sc
}

// MTU implements Transport.MTU
func (sc *StreamChannel) MTU() int {
	return sc.mtu
}

// Read implements io.Reader
func (sc *StreamChannel) Read(p []byte) (int, error) {
	if sc.closed.Load() {
		return 0, ErrChannelClosed
	}
	if sc.readTimeout > 0 {
		if d, ok := sc.rwc.(readDeadliner); ok {
			d.SetReadDeadline(time.Now().Add(sc.readTimeout))
		}
	}

	n, err := sc.rwc.Read(p)
	sc.stats.bytesReceived.Add(uint64(n))
	if err != nil {
		if sc.closed.Load() {
			return n, ErrChannelClosed
		}
		if !errors.Is(err, io.EOF) {
			sc.stats.readErrors.Add(1)
		}
	}
	return n, err
}

// Write implements io.Writer
func (sc *StreamChannel) Write(data []byte) (int, error) {
	if sc.closed.Load() {
		return 0, ErrChannelClosed
	}
	if sc.writeTimeout > 0 {
		if d, ok := sc.rwc.(writeDeadliner); ok {
			d.SetWriteDeadline(time.Now().Add(sc.writeTimeout))
		}
	}

	n, err := sc.rwc.Write(data)
	sc.stats.bytesSent.Add(uint64(n))
	if err != nil {
		sc.stats.writeErrors.Add(1)
		if sc.closed.Load() {
			return n, ErrChannelClosed
		}
	}
	return n, err
}

// Close implements io.Closer. It is safe to call more than once.
func (sc *StreamChannel) Close() error {
	if !sc.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}
	sc.stats.disconnects.Add(1)
	return sc.closeFn()
}

// State returns whether the channel is still open
func (sc *StreamChannel) State() ChannelState {
	if sc.closed.Load() {
		return ChannelStateClosed
	}
	return ChannelStateOpen
}

// Statistics returns the byte and error counters
func (sc *StreamChannel) Statistics() TransportStats {
	return TransportStats{
		BytesSent:     sc.stats.bytesSent.Load(),
		BytesReceived: sc.stats.bytesReceived.Load(),
		WriteErrors:   sc.stats.writeErrors.Load(),
		ReadErrors:    sc.stats.readErrors.Load(),
		Connects:      1,
		Disconnects:   sc.stats.disconnects.Load(),
	}
}

// LocalAddr returns the local address, if the stream has one
func (sc *StreamChannel) LocalAddr() net.Addr {
	if sc.addrs == nil {
		return nil
	}
	return sc.addrs.LocalAddr()
}

// RemoteAddr returns the remote address, if the stream has one
func (sc *StreamChannel) RemoteAddr() net.Addr {
	if sc.addrs == nil {
		return nil
	}
	return sc.addrs.RemoteAddr()
}
