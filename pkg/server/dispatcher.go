package server

import (
	"context"
	"errors"
	"io"
	"time"

	"avaneesh/obex-go/pkg/headers"
	"avaneesh/obex-go/pkg/internal/logger"
	"avaneesh/obex-go/pkg/internal/metrics"
	"avaneesh/obex-go/pkg/packet"
	"avaneesh/obex-go/pkg/session"
)

// dispatcher answers the requests of one session. It runs on a single
// goroutine, so at most one exchange is in progress at a time.
type dispatcher struct {
	srv       *Server
	sess      *session.Session
	log       logger.Logger
	connected bool
}

func (d *dispatcher) serve(ctx context.Context) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			d.sess.Close()
		case <-stop:
		}
	}()
	defer d.sess.Close()

	for {
		p, err := d.sess.ReadPacket()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				d.log.Debug("Server: peer closed the session")
			case errors.Is(err, session.ErrSessionClosed):
				d.log.Debug("Server: session closed")
			default:
				d.log.Warn("Server: read failed: %v", err)
			}
			return
		}
		if done := d.dispatch(p); done {
			return
		}
	}
}

// dispatch handles one request. It reports whether the session is over.
func (d *dispatcher) dispatch(p *packet.Packet) bool {
	op := p.Opcode()
	if !d.connected && op != packet.OpConnect {
		d.log.Debug("Server: %s before CONNECT", op)
		return d.reply(packet.ResponseBadRequest, nil) != nil
	}

	switch op {
	case packet.OpConnect:
		return d.handleConnect(p)
	case packet.OpDisconnect:
		return d.handleDisconnect(p)
	case packet.OpPut, packet.OpPutFinal:
		return d.handlePut(p)
	case packet.OpGet, packet.OpGetFinal:
		return d.handleGet(p)
	case packet.OpSetPath:
		return d.handleSetPath(p)
	case packet.OpAbort:
		// Nothing in progress to abort
		return d.reply(packet.ResponseOK, nil) != nil
	default:
		d.log.Debug("Server: unsupported opcode %s", op)
		return d.reply(packet.ResponseNotImplemented, nil) != nil
	}
}

// reply sends a response packet. parts precede the encoded headers.
func (d *dispatcher) reply(code packet.ResponseCode, h *headers.HeaderSet, parts ...[]byte) error {
	hdr, err := headers.Encode(h)
	if err != nil {
		d.log.Error("Server: encoding %s reply: %v", code, err)
		code, hdr = packet.ResponseInternalError, nil
	}
	err = d.sess.WritePacket(uint8(code), append(parts, hdr)...)
	if errors.Is(err, packet.ErrPacketTooLarge) {
		d.log.Error("Server: %s reply: %v", code, err)
		err = d.sess.WritePacket(uint8(packet.ResponseInternalError), parts...)
	}
	return err
}

// invoke runs the handler for op. A panic or a non-final code becomes
// INTERNAL_ERROR.
func (d *dispatcher) invoke(op packet.Opcode, req *Request, resp *Response) (code packet.ResponseCode) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Server: %s handler panic: %v", op, r)
			code = packet.ResponseInternalError
		}
		if resp.Headers == nil {
			resp.Headers = headers.New()
		}
	}()

	h := d.srv.handler
	switch op {
	case packet.OpConnect:
		code = h.OnConnect(req, resp)
	case packet.OpDisconnect:
		h.OnDisconnect(req, resp)
		code = packet.ResponseOK
	case packet.OpPut:
		code = h.OnPut(req, resp)
	case packet.OpGet:
		code = h.OnGet(req, resp)
	case packet.OpSetPath:
		code = h.OnSetPath(req, resp)
	}

	if !code.IsFinal() {
		d.log.Warn("Server: %s handler returned non-final %s", op, code)
		code = packet.ResponseInternalError
	}
	return code
}

func (d *dispatcher) handleConnect(p *packet.Packet) bool {
	local := d.sess.LocalMTU()
	cfg := d.sess.Config()
	ours := packet.ConnectFields{
		Version:       cfg.Version,
		Flags:         cfg.Flags,
		MaxPacketSize: uint16(local),
	}.Encode()

	fields, rest, err := packet.DecodeConnectFields(p.Body)
	if err != nil || d.connected {
		d.log.Debug("Server: bad CONNECT (connected=%v, err=%v)", d.connected, err)
		return d.reply(packet.ResponseBadRequest, nil, ours) != nil
	}
	h, err := headers.Decode(rest)
	if err != nil {
		d.log.Debug("Server: CONNECT headers: %v", err)
		return d.reply(packet.ResponseBadRequest, nil, ours) != nil
	}

	req := &Request{Headers: h, Length: -1}
	resp := newResponse()
	code := d.invoke(packet.OpConnect, req, resp)

	negotiated := packet.NegotiateMaxPacketSize(local, int(fields.MaxPacketSize))
	d.sess.SetMaxPacketSize(negotiated)
	if code.IsSuccess() {
		if target, ok := h.Bytes(headers.Target); ok && d.srv.config.AssignConnectionID && !resp.Headers.Has(headers.ConnectionID) {
			resp.Headers.Set(headers.ConnectionID, d.srv.nextConnectionID())
			if !resp.Headers.Has(headers.Who) {
				resp.Headers.Set(headers.Who, target)
			}
		}
		d.connected = true
		d.sess.MarkConnected(negotiated)
		d.log.Info("Server: client connected, version 0x%02X, max packet %d", fields.Version, negotiated)
	}
	return d.reply(code, resp.Headers, ours) != nil
}

func (d *dispatcher) handleDisconnect(p *packet.Packet) bool {
	h, err := headers.Decode(p.Body)
	if err != nil {
		h = headers.New()
	}
	resp := newResponse()
	d.invoke(packet.OpDisconnect, &Request{Headers: h, Length: -1}, resp)
	d.connected = false
	d.reply(packet.ResponseOK, resp.Headers)
	d.log.Info("Server: client disconnected")
	return true
}

func (d *dispatcher) handleSetPath(p *packet.Packet) bool {
	fields, rest, err := packet.DecodeSetPathFields(p.Body)
	if err != nil {
		return d.reply(packet.ResponseBadRequest, nil) != nil
	}
	h, err := headers.Decode(rest)
	if err != nil {
		return d.reply(packet.ResponseBadRequest, nil) != nil
	}

	req := &Request{Headers: h, Length: -1, Backup: fields.Backup(), Create: fields.Create()}
	resp := newResponse()
	code := d.invoke(packet.OpSetPath, req, resp)
	return d.reply(code, resp.Headers) != nil
}

func (d *dispatcher) handlePut(first *packet.Packet) bool {
	begun := time.Now()
	req, done := d.readRequest(packet.OpPut, first)
	if req == nil {
		return done
	}

	resp := newResponse()
	code := d.invoke(packet.OpPut, req, resp)
	metrics.RecordOperation(metrics.RoleServer, packet.OpPut.String(), code.String(), time.Since(begun))
	if err := d.reply(code, resp.Headers); err != nil {
		return true
	}
	return done
}

func (d *dispatcher) handleGet(first *packet.Packet) bool {
	begun := time.Now()
	req, done := d.readRequest(packet.OpGet, first)
	if req == nil {
		return done
	}

	resp := newResponse()
	code := d.invoke(packet.OpGet, req, resp)
	metrics.RecordOperation(metrics.RoleServer, packet.OpGet.String(), code.String(), time.Since(begun))
	if done || !code.IsSuccess() {
		d.reply(code, resp.Headers)
		return done
	}
	return d.streamBody(code, resp)
}

// readRequest assembles a PUT or GET request that opened with first.
//
// It returns a nil request when the exchange ended without one for the
// handler (refused, aborted or failed). done reports that the session is
// over; a request returned with done set was cut short by the end of the
// stream and gets a best-effort reply.
func (d *dispatcher) readRequest(kind packet.Opcode, first *packet.Packet) (req *Request, done bool) {
	h, body, _, err := headers.DecodeWithBody(first.Body)
	if err != nil {
		d.log.Debug("Server: %s: %v", kind, err)
		return nil, d.reply(packet.ResponseBadRequest, nil) != nil
	}
	if d.srv.config.RequireLength && !h.Has(headers.Length) {
		d.log.Debug("Server: %s without LENGTH", kind)
		return nil, d.reply(packet.ResponseLengthRequired, nil) != nil
	}

	asm := newAssembly(h)
	asm.Add(body)
	final := first.Opcode().IsFinal()
	ack := true

	for !final {
		if ack {
			if err := d.reply(packet.ResponseContinue, nil); err != nil {
				return nil, true
			}
		}
		ack = true

		p, err := d.await(kind)
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.log.Warn("Server: %s: stream ended before the final packet", kind)
				req := &Request{Headers: h, Body: asm.Body(), Length: asm.Declared(), Truncated: true}
				return req, true
			}
			d.log.Warn("Server: %s: %v", kind, err)
			d.reply(packet.ResponseServiceUnavailable, nil)
			return nil, true
		}

		switch p.Opcode() {
		case packet.OpAbort:
			d.log.Info("Server: %s aborted by client", kind)
			metrics.RecordAbort(metrics.RoleServer)
			return nil, d.reply(packet.ResponseOK, nil) != nil
		case packet.OpDisconnect:
			return nil, d.handleDisconnect(p)
		}

		ph, pbody, _, err := headers.DecodeWithBody(p.Body)
		if err != nil {
			d.log.Debug("Server: %s: %v", kind, err)
			return nil, d.reply(packet.ResponseBadRequest, nil) != nil
		}
		if ph.Has(headers.Length) {
			// A new request opening while this one is still in progress
			d.log.Debug("Server: second %s while one is in progress", kind)
			if err := d.reply(packet.ResponseBadRequest, nil); err != nil {
				return nil, true
			}
			ack = false
			continue
		}

		h.Merge(ph)
		asm.Add(pbody)
		final = p.Opcode().IsFinal()
	}

	if n := asm.Discarded(); n > 0 {
		d.log.Debug("Server: %s: dropped %d bytes past LENGTH %d", kind, n, asm.Declared())
	}
	return &Request{Headers: h, Body: asm.Body(), Length: asm.Declared()}, false
}

// await reads the next packet of an exchange of kind. Other requests are
// answered BAD_REQUEST and skipped; ABORT and DISCONNECT are returned.
func (d *dispatcher) await(kind packet.Opcode) (*packet.Packet, error) {
	for {
		p, err := d.sess.ReadPacket()
		if err != nil {
			return nil, err
		}
		switch op := p.Opcode(); op {
		case kind, kind | packet.Opcode(packet.FinalBit), packet.OpAbort, packet.OpDisconnect:
			return p, nil
		default:
			d.log.Debug("Server: %s while a %s is in progress", op, kind)
			if err := d.reply(packet.ResponseBadRequest, nil); err != nil {
				return nil, err
			}
		}
	}
}

// streamBody sends a GET reply, splitting the body across CONTINUE packets
// that each wait for the client's next GET. The last packet carries
// END-OF-BODY and code.
func (d *dispatcher) streamBody(code packet.ResponseCode, resp *Response) bool {
	hdr, err := headers.Encode(resp.Headers)
	if err != nil {
		d.log.Error("Server: GET reply headers: %v", err)
		return d.reply(packet.ResponseInternalError, nil) != nil
	}

	data := resp.Body
	for {
		room := d.sess.MaxPacketSize() - packet.HeaderSize - len(hdr) - 3
		if room < 0 {
			d.log.Error("Server: GET reply headers exceed the packet size")
			return d.reply(packet.ResponseInternalError, nil) != nil
		}
		if room >= len(data) {
			var body []byte
			if resp.Body != nil {
				body, _ = headers.AppendHeader(nil, headers.EndOfBody, data)
			}
			return d.sess.WritePacket(uint8(code), hdr, body) != nil
		}

		var body []byte
		if room > 0 {
			body, _ = headers.AppendHeader(nil, headers.Body, data[:room])
			data = data[room:]
		}
		if err := d.sess.WritePacket(uint8(packet.ResponseContinue), hdr, body); err != nil {
			return true
		}
		hdr = nil

		p, err := d.await(packet.OpGet)
		if err != nil {
			d.log.Debug("Server: GET reply interrupted: %v", err)
			return true
		}
		switch p.Opcode() {
		case packet.OpAbort:
			d.log.Info("Server: GET aborted by client")
			metrics.RecordAbort(metrics.RoleServer)
			return d.reply(packet.ResponseOK, nil) != nil
		case packet.OpDisconnect:
			return d.handleDisconnect(p)
		}
	}
}
