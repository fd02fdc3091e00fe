package client

import (
	"fmt"

	"avaneesh/obex-go/pkg/headers"
	"avaneesh/obex-go/pkg/packet"
	"avaneesh/obex-go/pkg/session"
)

// PutOperation streams one object to the server.
//
// Bytes written to the output stream are buffered and sent in BODY headers
// of continuation packets whenever the buffer fills the negotiated packet
// size or the stream is flushed. Closing the stream, or calling
// ResponseCode or Close, sends the final packet.
type PutOperation struct {
	operation

	// guarded by xfer
	buf        []byte
	bodySent   bool
	noBody     bool // LENGTH carried the no-body sentinel
	outputDone bool
}

func startPut(sess *session.Session, h *headers.HeaderSet) (*PutOperation, error) {
	op := &PutOperation{}
	op.init(sess, packet.OpPut)
	if h != nil {
		if n, ok := h.Uint32(headers.Length); ok && n == headers.LengthUnknown {
			op.noBody = true
		}
	}
	if _, _, err := op.open(op, packet.OpPut, h, nil); err != nil {
		return nil, err
	}
	return op, nil
}

// OpenOutputStream returns the stream the object body is written to.
// It may be opened once.
func (op *PutOperation) OpenOutputStream() (*OutputStream, error) {
	if err := op.checkOpen(); err != nil {
		return nil, err
	}
	op.started()

	op.mu.Lock()
	defer op.mu.Unlock()
	if op.outputOpened {
		return nil, fmt.Errorf("%w: output stream already opened", session.ErrSequence)
	}
	op.outputOpened = true
	return &OutputStream{op: op}, nil
}

// ResponseCode finishes the request if it is still open and returns the
// server's final response code.
func (op *PutOperation) ResponseCode() (packet.ResponseCode, error) {
	if err := op.checkOpen(); err != nil {
		return 0, err
	}
	op.started()

	op.xfer.Lock()
	err := op.closeOutput()
	op.xfer.Unlock()
	if err != nil {
		return 0, err
	}

	op.mu.Lock()
	defer op.mu.Unlock()
	return op.reply.ResponseCode(), nil
}

// Close finishes the request if it is still open and closes the operation.
func (op *PutOperation) Close() error {
	op.started()

	var err error
	op.xfer.Lock()
	if op.currentState() != StateClosed {
		err = op.closeOutput()
	}
	op.outputDone = true
	op.xfer.Unlock()

	op.mu.Lock()
	op.state = StateClosed
	op.mu.Unlock()
	op.sess.End(op)
	return err
}

// Abort cancels the exchange. It fails with a sequence error when the
// final reply has already been received.
func (op *PutOperation) Abort() error {
	return op.abort(op)
}

// capacity is the number of body bytes the next packet can carry.
func (op *PutOperation) capacity() int {
	return op.sess.MaxPacketSize() - packet.HeaderSize - 3 - op.pendingSize()
}

// sendChunk sends the first n buffered bytes, with any pending headers, in
// a continuation packet.
func (op *PutOperation) sendChunk(n int) error {
	hdr, err := op.takePending()
	if err != nil {
		return err
	}
	var body []byte
	if n > 0 {
		if body, err = headers.AppendHeader(nil, headers.Body, op.buf[:n]); err != nil {
			return err
		}
	}

	code, _, err := op.exchange(op, packet.OpPut, hdr, body)
	if err != nil {
		return err
	}
	if n > 0 {
		op.bodySent = true
		op.buf = append(op.buf[:0], op.buf[n:]...)
	}
	if code != packet.ResponseContinue {
		return op.violation(op, packet.OpPut, code)
	}
	return nil
}

// closeOutput sends the final packet. END-OF-BODY carries what is left in
// the buffer; it is left out when the buffer is empty and either body bytes
// were already sent or LENGTH announced no body. Caller holds xfer.
func (op *PutOperation) closeOutput() error {
	if op.outputDone {
		return nil
	}
	op.outputDone = true
	if !op.inProgress() {
		return nil
	}

	// Headers queued after the buffer filled may leave no room for it
	if c := op.capacity(); len(op.buf) > c {
		if err := op.sendChunk(max(c, 0)); err != nil {
			return err
		}
	}

	hdr, err := op.takePending()
	if err != nil {
		return err
	}
	var body []byte
	if len(op.buf) > 0 || (!op.bodySent && !op.noBody) {
		if body, err = headers.AppendHeader(nil, headers.EndOfBody, op.buf); err != nil {
			return err
		}
	}

	code, _, err := op.exchange(op, packet.OpPutFinal, hdr, body)
	if err != nil {
		return err
	}
	op.buf = nil
	if code == packet.ResponseContinue {
		return op.violation(op, packet.OpPutFinal, code)
	}
	return nil
}

// OutputStream is the writer side of a PUT.
type OutputStream struct {
	op *PutOperation
}

func (w *OutputStream) writable() error {
	if w.op.outputDone {
		return fmt.Errorf("%w: output stream closed", session.ErrSessionClosed)
	}
	if err := w.op.checkOpen(); err != nil {
		return err
	}
	if !w.op.inProgress() {
		return fmt.Errorf("%w: the transaction has already ended", session.ErrSequence)
	}
	return nil
}

// Write buffers p, sending a continuation packet each time the buffer fills.
func (w *OutputStream) Write(p []byte) (int, error) {
	op := w.op
	op.xfer.Lock()
	defer op.xfer.Unlock()

	if err := w.writable(); err != nil {
		return 0, err
	}

	written := 0
	for len(p) > 0 {
		c := op.capacity()
		if room := c - len(op.buf); room > 0 {
			k := min(room, len(p))
			op.buf = append(op.buf, p[:k]...)
			p = p[k:]
			written += k
		}
		if len(op.buf) >= c {
			if err := op.sendChunk(min(len(op.buf), max(c, 0))); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// Flush sends the buffered bytes now. An empty buffer sends nothing.
func (w *OutputStream) Flush() error {
	op := w.op
	op.xfer.Lock()
	defer op.xfer.Unlock()

	if len(op.buf) == 0 {
		return nil
	}
	if err := w.writable(); err != nil {
		return err
	}
	for len(op.buf) > 0 {
		if err := op.sendChunk(min(len(op.buf), max(op.capacity(), 0))); err != nil {
			return err
		}
	}
	return nil
}

// Close sends the final packet of the request.
func (w *OutputStream) Close() error {
	op := w.op
	op.xfer.Lock()
	defer op.xfer.Unlock()

	if op.outputDone {
		return nil
	}
	if err := op.checkOpen(); err != nil {
		op.outputDone = true
		return err
	}
	return op.closeOutput()
}
