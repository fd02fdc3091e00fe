package session

import (
	"fmt"

	"avaneesh/obex-go/pkg/headers"
	"avaneesh/obex-go/pkg/internal/metrics"
	"avaneesh/obex-go/pkg/packet"
)

// Connect performs the CONNECT handshake. On a success reply the smaller of
// the two announced packet sizes governs every later packet, and a
// CONNECTION-ID in the reply is remembered. A refusal is returned as reply
// headers carrying the response code, not as an error.
func (s *Session) Connect(h *headers.HeaderSet) (*headers.HeaderSet, error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return nil, ErrSessionClosed
	case s.connected, s.active != nil:
		s.mu.Unlock()
		return nil, ErrSequence
	}
	s.mu.Unlock()

	body, err := s.EncodeHeaders(h)
	if err != nil {
		return nil, err
	}
	local := s.LocalMTU()
	fields := packet.ConnectFields{
		Version:       s.cfg.Version,
		Flags:         s.cfg.Flags,
		MaxPacketSize: uint16(local),
	}

	p, err := s.RoundTrip(packet.OpConnect, fields.Encode(), body)
	if err != nil {
		return nil, err
	}

	code := p.ResponseCode()
	remote, rest, ferr := packet.DecodeConnectFields(p.Body)
	if ferr != nil {
		if code.IsSuccess() {
			s.Close()
			return nil, fmt.Errorf("%w: %v", ErrProtocolViolation, ferr)
		}
		rest = p.Body
	}

	reply, err := DecodeReply(code, rest)
	if err != nil {
		return nil, err
	}
	if !code.IsSuccess() {
		s.log.Info("Session %s: CONNECT refused with %s", s.role, code)
		return reply, nil
	}

	negotiated := packet.NegotiateMaxPacketSize(local, int(remote.MaxPacketSize))
	s.MarkConnected(negotiated)
	if id, ok := reply.Uint32(headers.ConnectionID); ok {
		s.SetConnectionID(id)
	}
	s.log.Info("Session %s: connected, version 0x%02X, max packet %d", s.role, remote.Version, negotiated)
	return reply, nil
}

// Disconnect sends DISCONNECT. The session is closed afterwards whatever
// the reply, and every further call fails with ErrSessionClosed.
//
// While an operation holds the session the packet cannot be interleaved
// with its exchange, so the session is closed without sending anything.
// The operation is closed with it and a call blocked on its reply returns
// ErrSessionClosed. The returned header set then carries no response code.
func (s *Session) Disconnect(h *headers.HeaderSet) (*headers.HeaderSet, error) {
	s.mu.Lock()
	closed, busy := s.closed, s.active != nil
	s.mu.Unlock()
	if closed {
		return nil, ErrSessionClosed
	}
	if err := s.ValidateHeaderSet(h); err != nil {
		return nil, err
	}

	if busy || !s.ioMu.TryLock() {
		s.log.Warn("Session %s: disconnect during an operation, closing session", s.role)
		s.Close()
		return headers.New(), nil
	}
	defer s.ioMu.Unlock()
	defer s.Close()

	body, err := s.EncodeHeaders(h)
	if err != nil {
		return nil, err
	}
	if err := s.writeLocked(uint8(packet.OpDisconnect), body); err != nil {
		return nil, err
	}
	p, err := s.readLocked()
	if err != nil {
		return nil, s.readFailed(err)
	}
	reply, err := DecodeReply(p.ResponseCode(), p.Body)
	if err != nil {
		return nil, err
	}
	s.log.Info("Session %s: disconnected (%s)", s.role, reply.ResponseCode())
	return reply, nil
}

// Abort sends ABORT on behalf of op and releases the session from it.
// The reply must be a success code. When another goroutine is blocked in
// an exchange the packet cannot be interleaved, so the session is closed
// instead and the blocked call returns ErrSessionClosed.
func (s *Session) Abort(op interface{}) error {
	defer s.End(op)

	if s.IsClosed() {
		return ErrSessionClosed
	}
	metrics.RecordAbort(string(s.role))

	if !s.ioMu.TryLock() {
		s.log.Warn("Session %s: abort during a blocked exchange, closing session", s.role)
		s.Close()
		return nil
	}
	defer s.ioMu.Unlock()

	if err := s.writeLocked(uint8(packet.OpAbort)); err != nil {
		return err
	}
	p, err := s.readLocked()
	if err != nil {
		return s.readFailed(err)
	}
	if code := p.ResponseCode(); !code.IsSuccess() {
		return &ResponseError{Op: packet.OpAbort, Code: code}
	}
	return nil
}
