package channel

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
)

// ALPN protocol announced on OBEX QUIC connections
const QUICProtocol = "obex-quic"

// QUICChannelConfig configures a QUIC transport
type QUICChannelConfig struct {
	Address      string        // "host:port" format
	MTU          int           // Largest accepted packet
	ReadTimeout  time.Duration // Read timeout (0 = no timeout)
	WriteTimeout time.Duration // Write timeout (0 = no timeout)
	TLSConfig    *tls.Config   // Optional TLS config (if nil, will generate self-signed cert)
}

func (c QUICChannelConfig) stream() StreamConfig {
	return StreamConfig{MTU: c.MTU, ReadTimeout: c.ReadTimeout, WriteTimeout: c.WriteTimeout}
}

func (c QUICChannelConfig) resolveTLS() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	tlsConfig, err := generateTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to generate TLS config: %w", err)
	}
	return tlsConfig, nil
}

// generateTLSConfig generates a self-signed certificate for QUIC
func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates:       []tls.Certificate{tlsCert},
		NextProtos:         []string{QUICProtocol},
		InsecureSkipVerify: true, // For self-signed certs
	}, nil
}

// newQUICTransport binds one bidirectional stream as an OBEX transport.
// Closing the transport tears down the whole QUIC connection.
// A dialing side also owns its UDP socket and passes it as udpConn.
func newQUICTransport(conn *quic.Conn, stream *quic.Stream, config StreamConfig, udpConn *net.UDPConn) *StreamChannel {
	sc := newStreamChannel(stream, config, func() error {
		stream.CancelRead(0)
		stream.Close()
		err := conn.CloseWithError(0, "transport closed")
		if udpConn != nil {
			udpConn.Close()
		}
		return err
	})
	sc.addrs = conn
	return sc
}

// DialQUIC connects to an OBEX server over QUIC and opens the session stream
func DialQUIC(ctx context.Context, config QUICChannelConfig) (*StreamChannel, error) {
	if config.Address == "" {
		return nil, ErrNoAddress
	}
	tlsConfig, err := config.resolveTLS()
	if err != nil {
		return nil, err
	}

	udpAddr, err := net.ResolveUDPAddr("udp", "0.0.0.0:0")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve local UDP address: %w", err)
	}

	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create UDP socket: %w", err)
	}

	// Resolve the remote address
	remoteAddr, err := net.ResolveUDPAddr("udp", config.Address)
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("failed to resolve remote address %s: %w", config.Address, err)
	}

	conn, err := quic.Dial(ctx, udpConn, remoteAddr, tlsConfig, nil)
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", config.Address, err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "failed to open stream")
		udpConn.Close()
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}

	return newQUICTransport(conn, stream, config.stream(), udpConn), nil
}

// QUICListener accepts OBEX sessions over QUIC, one connection per session
type QUICListener struct {
	listener *quic.Listener
	udpConn  *net.UDPConn
	config   QUICChannelConfig
	closed   atomic.Bool
}

// ListenQUIC starts listening for incoming QUIC connections
func ListenQUIC(config QUICChannelConfig) (*QUICListener, error) {
	if config.Address == "" {
		return nil, ErrNoAddress
	}
	tlsConfig, err := config.resolveTLS()
	if err != nil {
		return nil, err
	}

	udpAddr, err := net.ResolveUDPAddr("udp", config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address %s: %w", config.Address, err)
	}

	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", config.Address, err)
	}

	listener, err := quic.Listen(udpConn, tlsConfig, nil)
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("failed to create QUIC listener: %w", err)
	}

	return &QUICListener{listener: listener, udpConn: udpConn, config: config}, nil
}

// Accept implements Listener.Accept. It returns once the peer has opened
// its stream and sent the first bytes on it.
func (ql *QUICListener) Accept(ctx context.Context) (Transport, error) {
	for {
		conn, err := ql.listener.Accept(ctx)
		if err != nil {
			if ql.closed.Load() {
				return nil, ErrChannelClosed
			}
			return nil, err
		}

		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			conn.CloseWithError(0, "no stream")
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Peer went away before opening a stream, wait for the next one
			continue
		}
		return newQUICTransport(conn, stream, ql.config.stream(), nil), nil
	}
}

// Addr implements Listener.Addr
func (ql *QUICListener) Addr() net.Addr {
	return ql.listener.Addr()
}

// Close implements Listener.Close
func (ql *QUICListener) Close() error {
	if !ql.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := ql.listener.Close()
	ql.udpConn.Close()
	return err
}
