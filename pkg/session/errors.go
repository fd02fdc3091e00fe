package session

import (
	"errors"
	"fmt"

	"avaneesh/obex-go/pkg/packet"
)

var (
	ErrSessionClosed     = errors.New("session: closed")
	ErrSequence          = errors.New("session: operation out of sequence")
	ErrProtocolViolation = errors.New("session: protocol violation")
	ErrTransport         = errors.New("session: transport fault")
	ErrNotConnected      = errors.New("session: not connected")
)

// ResponseError reports a reply code the exchange did not allow.
type ResponseError struct {
	Op   packet.Opcode
	Code packet.ResponseCode
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("session: unexpected response %s to %s", e.Code, e.Op)
}

// Unwrap lets errors.Is match ErrProtocolViolation.
func (e *ResponseError) Unwrap() error {
	return ErrProtocolViolation
}
