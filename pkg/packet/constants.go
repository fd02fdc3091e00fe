package packet

import (
	"errors"
	"fmt"
)

// OBEX packet constants
const (
	HeaderSize           = 3      // opcode + 2 byte length
	MinMaxPacketSize     = 255    // smallest maximum packet size a peer may announce
	MaxPacketSizeLimit   = 0xFFFF // largest length the 2 byte field can carry
	DefaultMaxPacketSize = 4096
	Version              = 0x10 // OBEX 1.0
)

// FinalBit marks the last packet of a request and a final response.
const FinalBit uint8 = 0x80

// Opcode identifies a request packet.
type Opcode uint8

const (
	OpConnect    Opcode = 0x80
	OpDisconnect Opcode = 0x81
	OpPut        Opcode = 0x02
	OpPutFinal   Opcode = 0x82
	OpGet        Opcode = 0x03
	OpGetFinal   Opcode = 0x83
	OpSetPath    Opcode = 0x85
	OpSession    Opcode = 0x87
	OpAbort      Opcode = 0xFF
)

// Base strips the final bit (ABORT keeps all bits).
func (o Opcode) Base() Opcode {
	if o == OpAbort {
		return o
	}
	return o &^ Opcode(FinalBit)
}

// IsFinal reports whether the final bit is set.
func (o Opcode) IsFinal() bool {
	return uint8(o)&FinalBit != 0
}

// String returns string representation of Opcode
func (o Opcode) String() string {
	switch o {
	case OpConnect:
		return "CONNECT"
	case OpDisconnect:
		return "DISCONNECT"
	case OpPut:
		return "PUT"
	case OpPutFinal:
		return "PUT_FINAL"
	case OpGet:
		return "GET"
	case OpGetFinal:
		return "GET_FINAL"
	case OpSetPath:
		return "SETPATH"
	case OpSession:
		return "SESSION"
	case OpAbort:
		return "ABORT"
	default:
		return fmt.Sprintf("OPCODE(0x%02X)", uint8(o))
	}
}

// ResponseCode is the first byte of a response packet.
type ResponseCode uint8

// Response codes. The final bit is always part of the value.
const (
	ResponseContinue           ResponseCode = 0x90
	ResponseOK                 ResponseCode = 0xA0
	ResponseCreated            ResponseCode = 0xA1
	ResponseAccepted           ResponseCode = 0xA2
	ResponseNonAuthoritative   ResponseCode = 0xA3
	ResponseNoContent          ResponseCode = 0xA4
	ResponseResetContent       ResponseCode = 0xA5
	ResponsePartialContent     ResponseCode = 0xA6
	ResponseMultipleChoices    ResponseCode = 0xB0
	ResponseMovedPermanently   ResponseCode = 0xB1
	ResponseMovedTemporarily   ResponseCode = 0xB2
	ResponseSeeOther           ResponseCode = 0xB3
	ResponseNotModified        ResponseCode = 0xB4
	ResponseUseProxy           ResponseCode = 0xB5
	ResponseBadRequest         ResponseCode = 0xC0
	ResponseUnauthorized       ResponseCode = 0xC1
	ResponsePaymentRequired    ResponseCode = 0xC2
	ResponseForbidden          ResponseCode = 0xC3
	ResponseNotFound           ResponseCode = 0xC4
	ResponseMethodNotAllowed   ResponseCode = 0xC5
	ResponseNotAcceptable      ResponseCode = 0xC6
	ResponseProxyAuthRequired  ResponseCode = 0xC7
	ResponseRequestTimeout     ResponseCode = 0xC8
	ResponseConflict           ResponseCode = 0xC9
	ResponseGone               ResponseCode = 0xCA
	ResponseLengthRequired     ResponseCode = 0xCB
	ResponsePreconditionFailed ResponseCode = 0xCC
	ResponseEntityTooLarge     ResponseCode = 0xCD
	ResponseURITooLarge        ResponseCode = 0xCE
	ResponseUnsupportedType    ResponseCode = 0xCF
	ResponseInternalError      ResponseCode = 0xD0
	ResponseNotImplemented     ResponseCode = 0xD1
	ResponseBadGateway         ResponseCode = 0xD2
	ResponseServiceUnavailable ResponseCode = 0xD3
	ResponseGatewayTimeout     ResponseCode = 0xD4
	ResponseVersionUnsupported ResponseCode = 0xD5
	ResponseDatabaseFull       ResponseCode = 0xE0
	ResponseDatabaseLocked     ResponseCode = 0xE1
)

// IsFinal reports whether the code carries the final bit and is not CONTINUE.
func (c ResponseCode) IsFinal() bool {
	return uint8(c)&FinalBit != 0 && c != ResponseContinue
}

// IsSuccess reports whether the code is in the 2xx success class.
func (c ResponseCode) IsSuccess() bool {
	return c >= ResponseOK && c <= ResponsePartialContent
}

// String returns string representation of ResponseCode
func (c ResponseCode) String() string {
	switch c {
	case ResponseContinue:
		return "CONTINUE"
	case ResponseOK:
		return "OK"
	case ResponseCreated:
		return "CREATED"
	case ResponseAccepted:
		return "ACCEPTED"
	case ResponseNoContent:
		return "NO_CONTENT"
	case ResponseBadRequest:
		return "BAD_REQUEST"
	case ResponseUnauthorized:
		return "UNAUTHORIZED"
	case ResponseForbidden:
		return "FORBIDDEN"
	case ResponseNotFound:
		return "NOT_FOUND"
	case ResponseNotAcceptable:
		return "NOT_ACCEPTABLE"
	case ResponseConflict:
		return "CONFLICT"
	case ResponseLengthRequired:
		return "LENGTH_REQUIRED"
	case ResponsePreconditionFailed:
		return "PRECONDITION_FAILED"
	case ResponseEntityTooLarge:
		return "ENTITY_TOO_LARGE"
	case ResponseUnsupportedType:
		return "UNSUPPORTED_TYPE"
	case ResponseInternalError:
		return "INTERNAL_ERROR"
	case ResponseNotImplemented:
		return "NOT_IMPLEMENTED"
	case ResponseServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return fmt.Sprintf("RESPONSE(0x%02X)", uint8(c))
	}
}

var (
	ErrMalformedPacket = errors.New("packet: malformed packet")
	ErrPacketTooLarge  = errors.New("packet: packet exceeds maximum size")
	ErrShortFields     = errors.New("packet: short fixed fields")
)
