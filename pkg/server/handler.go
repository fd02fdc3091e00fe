package server

import (
	"avaneesh/obex-go/pkg/headers"
	"avaneesh/obex-go/pkg/packet"
)

// Request is one assembled client request.
type Request struct {
	Headers *headers.HeaderSet

	// Body holds the reassembled object. It is nil when the client sent no
	// body headers or LENGTH announced no body, and empty when the client
	// sent an empty END-OF-BODY.
	Body []byte

	// Length is the declared LENGTH, or -1 when absent or the no-body sentinel.
	Length int64

	// Truncated is set when the transport ended before the final packet.
	Truncated bool

	// SETPATH flags
	Backup bool
	Create bool
}

// HasBody reports whether the client sent an object body.
func (r *Request) HasBody() bool {
	return r.Body != nil
}

// Response collects what a handler sends back. Body is only used for GET.
type Response struct {
	Headers *headers.HeaderSet
	Body    []byte
}

func newResponse() *Response {
	return &Response{Headers: headers.New()}
}

// Handler answers assembled requests. The returned code is sent on the
// final response packet; a code that is not final is replaced by
// INTERNAL_ERROR.
type Handler interface {
	OnConnect(req *Request, resp *Response) packet.ResponseCode
	OnDisconnect(req *Request, resp *Response)
	OnPut(req *Request, resp *Response) packet.ResponseCode
	OnGet(req *Request, resp *Response) packet.ResponseCode
	OnSetPath(req *Request, resp *Response) packet.ResponseCode
}

// BaseHandler accepts CONNECT and DISCONNECT and refuses everything else.
// Embed it to implement only the requests a service supports.
type BaseHandler struct{}

func (BaseHandler) OnConnect(*Request, *Response) packet.ResponseCode {
	return packet.ResponseOK
}

func (BaseHandler) OnDisconnect(*Request, *Response) {}

func (BaseHandler) OnPut(*Request, *Response) packet.ResponseCode {
	return packet.ResponseNotImplemented
}

func (BaseHandler) OnGet(*Request, *Response) packet.ResponseCode {
	return packet.ResponseNotImplemented
}

func (BaseHandler) OnSetPath(*Request, *Response) packet.ResponseCode {
	return packet.ResponseNotImplemented
}
