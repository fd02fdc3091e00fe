package client

import (
	"fmt"
	"sync"
	"time"

	"avaneesh/obex-go/pkg/headers"
	"avaneesh/obex-go/pkg/internal/metrics"
	"avaneesh/obex-go/pkg/packet"
	"avaneesh/obex-go/pkg/session"
)

// State is the position of an operation in its exchange.
type State int

const (
	StateInit       State = iota // created, opening reply known
	StateStarted                 // caller has touched the operation
	StateInProgress              // peer answered CONTINUE, more packets follow
	StateTerminated              // final reply received
	StateClosed                  // no further use allowed
)

// String returns string representation of State
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateStarted:
		return "STARTED"
	case StateInProgress:
		return "IN_PROGRESS"
	case StateTerminated:
		return "TERMINATED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// operation is the state shared by PUT and GET.
//
// xfer serializes stream calls on one operation and is held across packet
// exchanges. mu guards the fields below it and is only held for short
// state checks, so Abort and the accessors never wait on the transport.
type operation struct {
	sess  *session.Session
	kind  packet.Opcode
	begun time.Time

	xfer sync.Mutex

	mu           sync.Mutex
	state        State
	outputOpened bool
	inputOpened  bool
	pending      *headers.HeaderSet
	pendingLen   int
	reply        *headers.HeaderSet
}

func (op *operation) init(sess *session.Session, kind packet.Opcode) {
	op.sess = sess
	op.kind = kind
	op.begun = time.Now()
	op.reply = headers.New()
}

// open sends the request-issuing packet and records the opening reply.
// body is the rest of the packet after the encoded headers.
func (op *operation) open(self interface{}, code packet.Opcode, h *headers.HeaderSet, body []byte) (packet.ResponseCode, []byte, error) {
	if err := op.sess.Begin(self); err != nil {
		return 0, nil, err
	}
	hdr, err := op.sess.EncodeHeaders(h)
	if err != nil {
		op.sess.End(self)
		return 0, nil, err
	}
	p, err := op.sess.RoundTrip(code, hdr, body)
	if err != nil {
		op.forceClose(self)
		return 0, nil, err
	}
	return op.absorb(self, p)
}

// exchange sends one packet of an operation already under way.
func (op *operation) exchange(self interface{}, code packet.Opcode, parts ...[]byte) (packet.ResponseCode, []byte, error) {
	if err := op.checkOpen(); err != nil {
		return 0, nil, err
	}
	// An abort may have taken the transport between the check above and here
	p, err := op.sess.RoundTripIf(op.checkOpen, code, parts...)
	if err != nil {
		op.forceClose(self)
		return 0, nil, err
	}
	return op.absorb(self, p)
}

// absorb merges reply headers and advances the state from the reply code.
// BODY and END-OF-BODY payloads are handed back to the caller.
func (op *operation) absorb(self interface{}, p *packet.Packet) (packet.ResponseCode, []byte, error) {
	h, body, _, err := headers.DecodeWithBody(p.Body)
	if err != nil {
		op.forceClose(self)
		return 0, nil, err
	}
	code := p.ResponseCode()

	op.mu.Lock()
	op.reply.Merge(h)
	op.reply.SetResponseCode(code)
	if code == packet.ResponseContinue {
		if op.state < StateInProgress {
			op.state = StateInProgress
		}
	} else if op.state < StateTerminated {
		op.state = StateTerminated
	}
	terminated := op.state == StateTerminated
	op.mu.Unlock()

	if terminated {
		op.finish(self, code)
	}
	return code, body, nil
}

// finish releases the session once the final reply arrived.
func (op *operation) finish(self interface{}, code packet.ResponseCode) {
	op.sess.End(self)
	metrics.RecordOperation(string(op.sess.Role()), op.kind.String(), code.String(), time.Since(op.begun))
}

// violation closes the operation after a reply code the exchange does not allow.
func (op *operation) violation(self interface{}, sent packet.Opcode, code packet.ResponseCode) error {
	op.forceClose(self)
	err := &session.ResponseError{Op: sent, Code: code}
	op.sess.Logger().Warn("Client %s: %v", op.kind, err)
	return err
}

func (op *operation) forceClose(self interface{}) {
	op.mu.Lock()
	op.state = StateClosed
	op.mu.Unlock()
	op.sess.End(self)
}

// started marks that the caller began interacting. It sends nothing.
func (op *operation) started() {
	op.mu.Lock()
	if op.state == StateInit {
		op.state = StateStarted
	}
	op.mu.Unlock()
}

// currentState reports CLOSED once the session is gone, even when a call
// blocked on the transport has not noticed yet.
func (op *operation) currentState() State {
	closed := op.sess.IsClosed()
	op.mu.Lock()
	defer op.mu.Unlock()
	if closed {
		op.state = StateClosed
	}
	return op.state
}

func (op *operation) checkOpen() error {
	if op.currentState() == StateClosed {
		return fmt.Errorf("%w: operation closed", session.ErrSessionClosed)
	}
	if op.sess.IsClosed() {
		op.mu.Lock()
		op.state = StateClosed
		op.mu.Unlock()
		return session.ErrSessionClosed
	}
	return nil
}

func (op *operation) inProgress() bool {
	s := op.currentState()
	return s != StateTerminated && s != StateClosed
}

// takePending returns the encoded headers queued by SendHeaders.
func (op *operation) takePending() ([]byte, error) {
	op.mu.Lock()
	h := op.pending
	op.pending = nil
	op.pendingLen = 0
	op.mu.Unlock()
	return headers.Encode(h)
}

func (op *operation) pendingSize() int {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.pendingLen
}

// SendHeaders queues h for the next packet. Only one set may be queued at a
// time, and none once the exchange has ended.
func (op *operation) SendHeaders(h *headers.HeaderSet) error {
	if h == nil {
		return fmt.Errorf("%w: nil header set", headers.ErrHeaderType)
	}
	if err := op.sess.ValidateHeaderSet(h); err != nil {
		return err
	}
	if err := op.checkOpen(); err != nil {
		return err
	}
	op.started()

	op.mu.Lock()
	defer op.mu.Unlock()
	if op.state == StateTerminated {
		return fmt.Errorf("%w: the transaction has already ended", session.ErrSequence)
	}
	if op.pending != nil {
		return fmt.Errorf("%w: headers already pending", session.ErrSequence)
	}
	op.pending = h.Clone()
	op.pendingLen = headers.EncodedLen(h)
	return nil
}

// ReceivedHeaders returns a copy of the headers received so far.
func (op *operation) ReceivedHeaders() (*headers.HeaderSet, error) {
	if err := op.checkOpen(); err != nil {
		return nil, err
	}
	op.started()
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.reply.Clone(), nil
}

// Length returns the LENGTH reply header, or -1 when the peer sent none.
func (op *operation) Length() int64 {
	op.mu.Lock()
	defer op.mu.Unlock()
	n, ok := op.reply.Uint32(headers.Length)
	if !ok {
		return -1
	}
	return int64(n)
}

// Type returns the TYPE reply header, or "" when the peer sent none.
func (op *operation) Type() string {
	op.mu.Lock()
	defer op.mu.Unlock()
	t, _ := op.reply.Text(headers.Type)
	return t
}

// State returns the current state.
func (op *operation) State() State {
	return op.currentState()
}

// IsClosed reports whether the operation can no longer be used.
func (op *operation) IsClosed() bool {
	return op.currentState() == StateClosed
}

// abort sends ABORT for an exchange still under way.
func (op *operation) abort(self interface{}) error {
	op.mu.Lock()
	switch op.state {
	case StateClosed:
		op.mu.Unlock()
		return fmt.Errorf("%w: operation closed", session.ErrSessionClosed)
	case StateTerminated:
		op.mu.Unlock()
		return fmt.Errorf("%w: the transaction has already ended", session.ErrSequence)
	}
	op.state = StateClosed
	op.mu.Unlock()

	op.sess.Logger().Debug("Client %s: abort", op.kind)
	return op.sess.Abort(self)
}
