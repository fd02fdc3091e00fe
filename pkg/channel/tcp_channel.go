package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// TCPChannelConfig configures a TCP transport
type TCPChannelConfig struct {
	Address      string        // "host:port" format
	DialTimeout  time.Duration // Connect timeout (client only)
	MTU          int           // Largest accepted packet
	ReadTimeout  time.Duration // Read timeout (0 = no timeout)
	WriteTimeout time.Duration // Write timeout (0 = no timeout)
}

func (c TCPChannelConfig) stream() StreamConfig {
	return StreamConfig{MTU: c.MTU, ReadTimeout: c.ReadTimeout, WriteTimeout: c.WriteTimeout}
}

// DialTCP connects to an OBEX server over TCP
func DialTCP(ctx context.Context, config TCPChannelConfig) (*StreamChannel, error) {
	if config.Address == "" {
		return nil, ErrNoAddress
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 10 * time.Second
	}

	dialer := net.Dialer{Timeout: config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", config.Address, err)
	}
	return NewStreamChannel(conn, config.stream()), nil
}

// TCPListener accepts OBEX sessions over TCP, one connection per session
type TCPListener struct {
	listener net.Listener
	config   TCPChannelConfig
	accepted atomic.Uint64
	closed   atomic.Bool
}

// ListenTCP starts listening for incoming connections
func ListenTCP(config TCPChannelConfig) (*TCPListener, error) {
	if config.Address == "" {
		return nil, ErrNoAddress
	}
	listener, err := net.Listen("tcp", config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", config.Address, err)
	}
	return &TCPListener{listener: listener, config: config}, nil
}

// Accept implements Listener.Accept
func (tl *TCPListener) Accept(ctx context.Context) (Transport, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// Set accept deadline to allow periodic context checks
		if tcpListener, ok := tl.listener.(*net.TCPListener); ok {
			tcpListener.SetDeadline(time.Now().Add(1 * time.Second))
		}

		conn, err := tl.listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// Timeout is expected, continue loop
				continue
			}
			if tl.closed.Load() {
				return nil, ErrChannelClosed
			}
			return nil, err
		}

		tl.accepted.Add(1)
		return NewStreamChannel(conn, tl.config.stream()), nil
	}
}

// Accepted returns the number of connections accepted so far
func (tl *TCPListener) Accepted() uint64 {
	return tl.accepted.Load()
}

// Addr implements Listener.Addr
func (tl *TCPListener) Addr() net.Addr {
	return tl.listener.Addr()
}

// Close implements Listener.Close
func (tl *TCPListener) Close() error {
	if !tl.closed.CompareAndSwap(false, true) {
		return nil
	}
	return tl.listener.Close()
}
