package session

import (
	"errors"
	"testing"
	"time"

	"avaneesh/obex-go/pkg/channel"
	"avaneesh/obex-go/pkg/headers"
	"avaneesh/obex-go/pkg/internal/logger"
	"avaneesh/obex-go/pkg/packet"
)

// reply answers one request on the peer end of a pipe.
type reply func(req *packet.Packet) (packet.ResponseCode, []byte)

// servePeer answers requests in order until the replies run out.
func servePeer(t *testing.T, peer channel.Transport, replies ...reply) <-chan []*packet.Packet {
	t.Helper()
	seen := make(chan []*packet.Packet, 1)
	go func() {
		var got []*packet.Packet
		defer func() { seen <- got }()
		for _, r := range replies {
			req, err := packet.Read(peer, packet.MaxPacketSizeLimit)
			if err != nil {
				return
			}
			got = append(got, req)
			code, body := r(req)
			if _, err := packet.Write(peer, uint8(code), body); err != nil {
				return
			}
		}
	}()
	return seen
}

func connectOK(mtu uint16, connID uint32) reply {
	return func(req *packet.Packet) (packet.ResponseCode, []byte) {
		body := packet.ConnectFields{Version: packet.Version, MaxPacketSize: mtu}.Encode()
		if connID != 0 {
			body, _ = headers.AppendHeader(body, headers.ConnectionID, connID)
		}
		return packet.ResponseOK, body
	}
}

func simple(code packet.ResponseCode) reply {
	return func(*packet.Packet) (packet.ResponseCode, []byte) { return code, nil }
}

func newTestSession(mtu int) (*Session, channel.Transport) {
	a, b := channel.Pipe(mtu)
	cfg := DefaultConfig()
	cfg.MaxPacketSize = mtu
	return New(a, cfg, logger.NewNoOpLogger(), RoleClient), b
}

func TestSession_ConnectNegotiatesPacketSize(t *testing.T) {
	s, peer := newTestSession(4096)
	defer s.Close()
	seen := servePeer(t, peer, connectOK(1024, 7))

	reply, err := s.Connect(nil)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if reply.ResponseCode() != packet.ResponseOK {
		t.Errorf("ResponseCode = %s, want OK", reply.ResponseCode())
	}
	if !s.IsConnected() {
		t.Fatalf("session should be connected")
	}
	if s.MaxPacketSize() != 1024 {
		t.Errorf("MaxPacketSize = %d, want 1024", s.MaxPacketSize())
	}
	if id, ok := s.ConnectionID(); !ok || id != 7 {
		t.Errorf("ConnectionID = %d/%v, want 7", id, ok)
	}
	if s.PacketsWritten() != 1 || s.PacketsRead() != 1 {
		t.Errorf("packets = %d/%d, want 1/1", s.PacketsWritten(), s.PacketsRead())
	}

	reqs := <-seen
	if len(reqs) != 1 || reqs[0].Opcode() != packet.OpConnect {
		t.Fatalf("peer saw %v", reqs)
	}
	fields, _, err := packet.DecodeConnectFields(reqs[0].Body)
	if err != nil {
		t.Fatalf("DecodeConnectFields failed: %v", err)
	}
	if fields.MaxPacketSize != 4096 || fields.Version != packet.Version {
		t.Errorf("announced %+v", fields)
	}
}

func TestSession_ConnectRefused(t *testing.T) {
	s, peer := newTestSession(0)
	defer s.Close()
	servePeer(t, peer, simple(packet.ResponseForbidden))

	reply, err := s.Connect(nil)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if reply.ResponseCode() != packet.ResponseForbidden {
		t.Errorf("ResponseCode = %s, want FORBIDDEN", reply.ResponseCode())
	}
	if s.IsConnected() {
		t.Errorf("session should not be connected")
	}
}

func TestSession_ConnectTwice(t *testing.T) {
	s, peer := newTestSession(0)
	defer s.Close()
	servePeer(t, peer, connectOK(512, 0))

	if _, err := s.Connect(nil); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if _, err := s.Connect(nil); !errors.Is(err, ErrSequence) {
		t.Errorf("second Connect = %v, want ErrSequence", err)
	}
}

func TestSession_DisconnectIsTerminal(t *testing.T) {
	s, peer := newTestSession(0)
	servePeer(t, peer, connectOK(512, 0), simple(packet.ResponseOK))

	if _, err := s.Connect(nil); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	reply, err := s.Disconnect(nil)
	if err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if reply.ResponseCode() != packet.ResponseOK {
		t.Errorf("ResponseCode = %s", reply.ResponseCode())
	}
	if !s.IsClosed() {
		t.Fatalf("session should be closed")
	}

	if _, err := s.Disconnect(nil); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Disconnect after close = %v, want ErrSessionClosed", err)
	}
	if _, err := s.Connect(nil); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Connect after close = %v, want ErrSessionClosed", err)
	}
	if err := s.Begin("op"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Begin after close = %v, want ErrSessionClosed", err)
	}
}

func TestSession_DisconnectDuringOperation(t *testing.T) {
	s, peer := newTestSession(0)
	seen := servePeer(t, peer, connectOK(512, 0))
	if _, err := s.Connect(nil); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	<-seen

	op := new(int)
	if err := s.Begin(op); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	reply, err := s.Disconnect(nil)
	if err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if reply.ResponseCode() != 0 {
		t.Errorf("ResponseCode = %s, want none", reply.ResponseCode())
	}
	if !s.IsClosed() || s.Busy() {
		t.Errorf("Disconnect should close the session and release the operation")
	}
	if _, err := s.RoundTrip(packet.OpPut); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("RoundTrip after Disconnect = %v, want ErrSessionClosed", err)
	}
}

func TestSession_RoundTripIfChecksWithTransportHeld(t *testing.T) {
	s, _ := newTestSession(0)
	defer s.Close()

	cancelled := errors.New("cancelled")
	held := false
	_, err := s.RoundTripIf(func() error {
		held = !s.ioMu.TryLock()
		return cancelled
	}, packet.OpPut)
	if !errors.Is(err, cancelled) {
		t.Fatalf("RoundTripIf = %v, want the check error", err)
	}
	if !held {
		t.Errorf("check ran without the transport held")
	}
	if s.PacketsWritten() != 0 {
		t.Errorf("PacketsWritten = %d, want 0", s.PacketsWritten())
	}
}

func TestSession_SequencingGuard(t *testing.T) {
	s, _ := newTestSession(0)
	defer s.Close()

	first, second := new(int), new(int)
	if err := s.Begin(first); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := s.Begin(first); err != nil {
		t.Errorf("re-Begin by the holder failed: %v", err)
	}
	if err := s.Begin(second); !errors.Is(err, ErrSequence) {
		t.Errorf("Begin = %v, want ErrSequence", err)
	}

	s.End(second)
	if !s.Busy() {
		t.Errorf("End by a non-holder released the session")
	}
	s.End(first)
	if err := s.Begin(second); err != nil {
		t.Errorf("Begin after End failed: %v", err)
	}
}

func TestSession_Abort(t *testing.T) {
	tests := []struct {
		name    string
		code    packet.ResponseCode
		wantErr bool
	}{
		{name: "Acknowledged", code: packet.ResponseOK},
		{name: "Refused", code: packet.ResponseBadRequest, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, peer := newTestSession(0)
			defer s.Close()
			seen := servePeer(t, peer, simple(tt.code))

			op := new(int)
			if err := s.Begin(op); err != nil {
				t.Fatalf("Begin failed: %v", err)
			}
			err := s.Abort(op)
			if tt.wantErr {
				var respErr *ResponseError
				if !errors.As(err, &respErr) || respErr.Code != tt.code {
					t.Fatalf("Abort = %v, want ResponseError %s", err, tt.code)
				}
				if !errors.Is(err, ErrProtocolViolation) {
					t.Errorf("ResponseError should match ErrProtocolViolation")
				}
			} else if err != nil {
				t.Fatalf("Abort failed: %v", err)
			}
			if s.Busy() {
				t.Errorf("Abort left the operation active")
			}

			reqs := <-seen
			if len(reqs) != 1 || reqs[0].Opcode() != packet.OpAbort || len(reqs[0].Body) != 0 {
				t.Errorf("peer saw %v", reqs)
			}
		})
	}
}

func TestSession_AbortUnblocksExchange(t *testing.T) {
	s, peer := newTestSession(0)
	defer peer.Close()

	// Peer reads the request and never answers
	go packet.Read(peer, packet.MaxPacketSizeLimit)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.RoundTrip(packet.OpPut)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if err := s.Abort("op"); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrSessionClosed) {
			t.Errorf("blocked RoundTrip = %v, want ErrSessionClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("RoundTrip did not unblock")
	}
	if !s.IsClosed() {
		t.Errorf("session should be closed")
	}
}

func TestSession_TransportFault(t *testing.T) {
	s, peer := newTestSession(0)
	go func() {
		packet.Read(peer, packet.MaxPacketSizeLimit)
		peer.Close()
	}()

	_, err := s.RoundTrip(packet.OpGetFinal)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("RoundTrip = %v, want ErrTransport", err)
	}
	if !s.IsClosed() {
		t.Errorf("transport fault should close the session")
	}
	if _, err := s.RoundTrip(packet.OpGetFinal); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("RoundTrip after fault = %v, want ErrSessionClosed", err)
	}
}

func TestSession_MalformedReply(t *testing.T) {
	s, peer := newTestSession(0)
	go func() {
		packet.Read(peer, packet.MaxPacketSizeLimit)
		peer.Write([]byte{0xA0, 0x00, 0x01})
	}()

	if _, err := s.RoundTrip(packet.OpGetFinal); !errors.Is(err, packet.ErrMalformedPacket) {
		t.Fatalf("RoundTrip = %v, want ErrMalformedPacket", err)
	}
	if !s.IsClosed() {
		t.Errorf("malformed reply should close the session")
	}
}

func TestSession_ForeignHeaderSet(t *testing.T) {
	s, _ := newTestSession(0)
	defer s.Close()
	other, _ := newTestSession(0)
	defer other.Close()

	if _, err := s.Connect(other.NewHeaderSet()); !errors.Is(err, headers.ErrForeignHeaderSet) {
		t.Errorf("Connect = %v, want ErrForeignHeaderSet", err)
	}
	if err := s.ValidateHeaderSet(s.NewHeaderSet()); err != nil {
		t.Errorf("own set rejected: %v", err)
	}
}

func TestSession_EncodeHeadersAddsConnectionID(t *testing.T) {
	s, _ := newTestSession(0)
	defer s.Close()
	s.SetConnectionID(0x01020304)

	h := s.NewHeaderSet()
	h.Set(headers.Name, "a")
	data, err := s.EncodeHeaders(h)
	if err != nil {
		t.Fatalf("EncodeHeaders failed: %v", err)
	}

	out, err := headers.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	ids := out.IDs()
	if len(ids) != 2 || ids[0] != headers.ConnectionID {
		t.Fatalf("IDs = %v, want CONNECTION_ID first", ids)
	}
	if id, _ := out.Uint32(headers.ConnectionID); id != 0x01020304 {
		t.Errorf("ConnectionID = 0x%X", id)
	}
}

func TestSession_PacketTooLarge(t *testing.T) {
	s, _ := newTestSession(0)
	defer s.Close()

	// Before CONNECT only 255 byte packets may be sent
	err := s.WritePacket(uint8(packet.OpPut), make([]byte, 300))
	if !errors.Is(err, packet.ErrPacketTooLarge) {
		t.Fatalf("WritePacket = %v, want ErrPacketTooLarge", err)
	}
	if s.IsClosed() {
		t.Errorf("an oversized packet must not close the session")
	}
}
