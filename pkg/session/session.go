package session

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"avaneesh/obex-go/pkg/channel"
	"avaneesh/obex-go/pkg/headers"
	"avaneesh/obex-go/pkg/internal/logger"
	"avaneesh/obex-go/pkg/internal/metrics"
	"avaneesh/obex-go/pkg/packet"
)

// Role tells whether a session sends requests or answers them.
type Role string

const (
	RoleClient Role = metrics.RoleClient
	RoleServer Role = metrics.RoleServer
)

var ownerSeq atomic.Uint64

// Session owns one transport and carries at most one operation at a time.
//
// ioMu serializes packet exchanges on the transport. mu guards the state
// fields and is never held across a transport call, so Close and Abort from
// another goroutine can always make progress.
type Session struct {
	transport channel.Transport
	cfg       Config
	log       logger.Logger
	role      Role
	owner     uint64

	ioMu sync.Mutex

	mu        sync.Mutex
	maxPacket int
	connected bool
	closed    bool
	connID    uint32
	hasConnID bool
	active    interface{}
	written   uint64
	read      uint64
}

// New creates a session over an established transport.
func New(t channel.Transport, cfg Config, log logger.Logger, role Role) *Session {
	s := &Session{
		transport: t,
		cfg:       cfg.WithDefaults(),
		log:       logger.OrDefault(log),
		role:      role,
		owner:     ownerSeq.Add(1),
		maxPacket: packet.MinMaxPacketSize,
	}
	metrics.SessionOpened(string(role))
	return s
}

// Role returns the session role
func (s *Session) Role() Role {
	return s.role
}

// Logger returns the session logger
func (s *Session) Logger() logger.Logger {
	return s.log
}

// Config returns the session configuration
func (s *Session) Config() Config {
	return s.cfg
}

// Transport returns the underlying transport
func (s *Session) Transport() channel.Transport {
	return s.transport
}

// LocalMTU is the largest packet this side accepts.
func (s *Session) LocalMTU() int {
	mtu := s.cfg.MaxPacketSize
	if tm := s.transport.MTU(); tm > 0 && tm < mtu {
		mtu = tm
	}
	if mtu < packet.MinMaxPacketSize {
		mtu = packet.MinMaxPacketSize
	}
	return mtu
}

// MaxPacketSize is the largest packet this side may send.
// It is 255 until CONNECT has been negotiated.
func (s *Session) MaxPacketSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxPacket
}

// SetMaxPacketSize records the negotiated packet size.
func (s *Session) SetMaxPacketSize(n int) {
	s.mu.Lock()
	s.maxPacket = n
	s.mu.Unlock()
}

// MarkConnected records a completed CONNECT handshake.
func (s *Session) MarkConnected(maxPacket int) {
	s.mu.Lock()
	s.maxPacket = maxPacket
	s.connected = true
	s.mu.Unlock()
}

// IsConnected reports whether CONNECT completed and the session is still open.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected && !s.closed
}

// IsClosed reports whether the session has ended.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ConnectionID returns the CONNECTION-ID assigned by the server, if any.
func (s *Session) ConnectionID() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID, s.hasConnID
}

// SetConnectionID sets the CONNECTION-ID added to every request.
func (s *Session) SetConnectionID(id uint32) {
	s.mu.Lock()
	s.connID = id
	s.hasConnID = true
	s.mu.Unlock()
}

// PacketsWritten returns the number of packets sent on the session.
func (s *Session) PacketsWritten() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// PacketsRead returns the number of packets received on the session.
func (s *Session) PacketsRead() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read
}

// NewHeaderSet creates a header set bound to this session.
func (s *Session) NewHeaderSet() *headers.HeaderSet {
	return headers.NewOwned(s.owner)
}

// ValidateHeaderSet rejects sets created by another session.
func (s *Session) ValidateHeaderSet(h *headers.HeaderSet) error {
	return headers.ValidateOwner(h, s.owner)
}

// EncodeHeaders validates and encodes request headers. A client session
// puts its CONNECTION-ID first unless h already carries one.
func (s *Session) EncodeHeaders(h *headers.HeaderSet) ([]byte, error) {
	if err := s.ValidateHeaderSet(h); err != nil {
		return nil, err
	}
	var out []byte
	if id, ok := s.ConnectionID(); ok && s.role == RoleClient && (h == nil || !h.Has(headers.ConnectionID)) {
		out, _ = headers.AppendHeader(out, headers.ConnectionID, id)
	}
	body, err := headers.Encode(h)
	if err != nil {
		return nil, err
	}
	return append(out, body...), nil
}

// Begin claims the session for op. A different operation still in progress
// is a sequencing error.
func (s *Session) Begin(op interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.active != nil && s.active != op {
		return ErrSequence
	}
	s.active = op
	return nil
}

// End releases the session if op holds it.
func (s *Session) End(op interface{}) {
	s.mu.Lock()
	if s.active == op {
		s.active = nil
	}
	s.mu.Unlock()
}

// Busy reports whether an operation holds the session.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Close ends the session and closes the transport. Any exchange blocked on
// the transport returns ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	s.active = nil
	s.mu.Unlock()

	metrics.SessionClosed(string(s.role))
	return s.transport.Close()
}

// ReadPacket reads the next packet. Read failures leave the session open so
// a final reply can still be attempted; the caller closes it afterwards.
// A clean end of stream is io.EOF, a broken stream wraps ErrTransport.
func (s *Session) ReadPacket() (*packet.Packet, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	p, err := s.readLocked()
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, ErrSessionClosed) && !errors.Is(err, packet.ErrMalformedPacket) {
		err = fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return p, err
}

// WritePacket frames and sends one packet.
func (s *Session) WritePacket(code uint8, parts ...[]byte) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	return s.writeLocked(code, parts...)
}

// RoundTrip sends one request and blocks for its reply.
func (s *Session) RoundTrip(op packet.Opcode, parts ...[]byte) (*packet.Packet, error) {
	return s.RoundTripIf(nil, op, parts...)
}

// RoundTripIf is RoundTrip for an exchange that can be cancelled while it
// waits for the transport. check runs once the transport is held; when it
// fails nothing is sent and its error is returned.
func (s *Session) RoundTripIf(check func() error, op packet.Opcode, parts ...[]byte) (*packet.Packet, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if check != nil {
		if err := check(); err != nil {
			return nil, err
		}
	}
	if err := s.writeLocked(uint8(op), parts...); err != nil {
		return nil, err
	}
	p, err := s.readLocked()
	if err != nil {
		return nil, s.readFailed(err)
	}
	return p, nil
}

// Request sends op with prefix and headers and decodes the reply headers.
func (s *Session) Request(op packet.Opcode, prefix []byte, h *headers.HeaderSet) (*headers.HeaderSet, error) {
	body, err := s.EncodeHeaders(h)
	if err != nil {
		return nil, err
	}
	p, err := s.RoundTrip(op, prefix, body)
	if err != nil {
		return nil, err
	}
	return DecodeReply(p.ResponseCode(), p.Body)
}

// DecodeReply decodes reply headers and attaches the response code.
func DecodeReply(code packet.ResponseCode, body []byte) (*headers.HeaderSet, error) {
	h, err := headers.Decode(body)
	if err != nil {
		return nil, err
	}
	h.SetResponseCode(code)
	return h, nil
}

func (s *Session) writeLocked(code uint8, parts ...[]byte) error {
	if s.IsClosed() {
		return ErrSessionClosed
	}
	data, err := packet.Encode(code, parts...)
	if err != nil {
		return err
	}
	if limit := s.MaxPacketSize(); len(data) > limit {
		return fmt.Errorf("%w: %d bytes, peer accepts %d", packet.ErrPacketTooLarge, len(data), limit)
	}

	logger.Frame(s.log, "TX", data)
	if _, err := s.transport.Write(data); err != nil {
		return s.fault(err)
	}

	s.mu.Lock()
	s.written++
	s.mu.Unlock()
	metrics.RecordPacket(string(s.role), metrics.DirectionTx, s.codeName(code, true))
	return nil
}

func (s *Session) readLocked() (*packet.Packet, error) {
	if s.IsClosed() {
		return nil, ErrSessionClosed
	}
	p, err := packet.Read(s.transport, s.LocalMTU())
	if err != nil {
		if s.IsClosed() {
			return nil, ErrSessionClosed
		}
		return nil, err
	}

	if logger.FrameDebugEnabled() {
		raw, _ := packet.Encode(p.Code, p.Body)
		logger.Frame(s.log, "RX", raw)
	}
	s.mu.Lock()
	s.read++
	s.mu.Unlock()
	metrics.RecordPacket(string(s.role), metrics.DirectionRx, s.codeName(p.Code, false))
	return p, nil
}

// readFailed closes the session after a reply could not be read.
func (s *Session) readFailed(err error) error {
	switch {
	case errors.Is(err, ErrSessionClosed):
		return err
	case errors.Is(err, io.EOF):
		return s.fault(io.ErrUnexpectedEOF)
	case errors.Is(err, packet.ErrMalformedPacket):
		s.log.Warn("Session %s: %v", s.role, err)
		s.Close()
		return err
	default:
		return s.fault(err)
	}
}

// fault closes the session after a transport failure.
func (s *Session) fault(err error) error {
	if s.IsClosed() {
		return ErrSessionClosed
	}
	s.log.Warn("Session %s: transport fault: %v", s.role, err)
	s.Close()
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

func (s *Session) codeName(code uint8, tx bool) string {
	if (s.role == RoleClient) == tx {
		return packet.Opcode(code).String()
	}
	return packet.ResponseCode(code).String()
}
