package client

import (
	"fmt"
	"io"

	"avaneesh/obex-go/pkg/headers"
	"avaneesh/obex-go/pkg/packet"
	"avaneesh/obex-go/pkg/session"
)

// GetOperation retrieves one object from the server.
//
// The request goes out as GET-FINAL when the operation is created. Every
// read that finds the buffer empty while the server still answers CONTINUE
// sends another GET-FINAL and buffers the BODY it returns.
type GetOperation struct {
	operation

	// guarded by xfer
	buf       []byte
	inputDone bool
}

func startGet(sess *session.Session, h *headers.HeaderSet) (*GetOperation, error) {
	op := &GetOperation{}
	op.init(sess, packet.OpGet)
	_, body, err := op.open(op, packet.OpGetFinal, h, nil)
	if err != nil {
		return nil, err
	}
	op.buf = append(op.buf, body...)
	return op, nil
}

// OpenInputStream returns the stream the object body is read from.
// It may be opened once.
func (op *GetOperation) OpenInputStream() (*InputStream, error) {
	if err := op.checkOpen(); err != nil {
		return nil, err
	}
	op.started()

	op.mu.Lock()
	defer op.mu.Unlock()
	if op.inputOpened {
		return nil, fmt.Errorf("%w: input stream already opened", session.ErrSequence)
	}
	op.inputOpened = true
	return &InputStream{op: op}, nil
}

// requestMore asks for the next part of the object. Caller holds xfer.
func (op *GetOperation) requestMore() error {
	hdr, err := op.takePending()
	if err != nil {
		return err
	}
	_, body, err := op.exchange(op, packet.OpGetFinal, hdr)
	if err != nil {
		return err
	}
	op.buf = append(op.buf, body...)
	return nil
}

// drain requests the rest of the object. Caller holds xfer.
func (op *GetOperation) drain() error {
	for op.inProgress() {
		if err := op.requestMore(); err != nil {
			return err
		}
	}
	return nil
}

// ResponseCode fetches the rest of the object if needed and returns the
// server's final response code. Fetched bytes stay readable.
func (op *GetOperation) ResponseCode() (packet.ResponseCode, error) {
	if err := op.checkOpen(); err != nil {
		return 0, err
	}
	op.started()

	op.xfer.Lock()
	err := op.drain()
	op.xfer.Unlock()
	if err != nil {
		return 0, err
	}

	op.mu.Lock()
	defer op.mu.Unlock()
	return op.reply.ResponseCode(), nil
}

// Close finishes the exchange, discarding unread data, and closes the operation.
func (op *GetOperation) Close() error {
	op.started()

	var err error
	op.xfer.Lock()
	if op.currentState() != StateClosed {
		err = op.drain()
	}
	op.buf = nil
	op.inputDone = true
	op.xfer.Unlock()

	op.mu.Lock()
	op.state = StateClosed
	op.mu.Unlock()
	op.sess.End(op)
	return err
}

// Abort cancels the exchange. It fails with a sequence error when the
// final reply has already been received.
func (op *GetOperation) Abort() error {
	return op.abort(op)
}

// InputStream is the reader side of a GET.
type InputStream struct {
	op *GetOperation
}

// Read returns buffered body bytes, requesting more from the server when
// the buffer is empty. It returns io.EOF after the final reply is consumed.
func (r *InputStream) Read(p []byte) (int, error) {
	op := r.op
	op.xfer.Lock()
	defer op.xfer.Unlock()

	if op.inputDone {
		return 0, fmt.Errorf("%w: input stream closed", session.ErrSessionClosed)
	}
	if len(p) == 0 {
		return 0, nil
	}
	for len(op.buf) == 0 {
		if err := op.checkOpen(); err != nil {
			return 0, err
		}
		if !op.inProgress() {
			return 0, io.EOF
		}
		if err := op.requestMore(); err != nil {
			return 0, err
		}
	}

	n := copy(p, op.buf)
	op.buf = op.buf[n:]
	return n, nil
}

// Close finishes the exchange and discards what was not read.
func (r *InputStream) Close() error {
	op := r.op
	op.xfer.Lock()
	defer op.xfer.Unlock()

	if op.inputDone {
		return nil
	}
	op.inputDone = true
	op.buf = nil
	if op.currentState() == StateClosed {
		return nil
	}
	return op.drain()
}
