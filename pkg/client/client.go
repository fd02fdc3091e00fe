package client

import (
	"avaneesh/obex-go/pkg/channel"
	"avaneesh/obex-go/pkg/headers"
	"avaneesh/obex-go/pkg/internal/logger"
	"avaneesh/obex-go/pkg/packet"
	"avaneesh/obex-go/pkg/session"
)

// Client is the requesting side of one OBEX session.
type Client struct {
	sess   *session.Session
	logger logger.Logger
}

// exchange holds the session during single packet requests.
type exchange struct {
	op packet.Opcode
}

// New creates a client over an established transport. Call Connect before
// issuing operations.
func New(t channel.Transport, config session.Config, log logger.Logger) *Client {
	log = logger.ForComponent(log, "client")
	return &Client{
		sess:   session.New(t, config, log, session.RoleClient),
		logger: log,
	}
}

// Session returns the underlying session
func (c *Client) Session() *session.Session {
	return c.sess
}

// CreateHeaderSet returns a header set bound to this client's session.
func (c *Client) CreateHeaderSet() *headers.HeaderSet {
	return c.sess.NewHeaderSet()
}

// Connect performs the CONNECT handshake.
func (c *Client) Connect(h *headers.HeaderSet) (*headers.HeaderSet, error) {
	return c.sess.Connect(h)
}

// Disconnect ends the session.
func (c *Client) Disconnect(h *headers.HeaderSet) (*headers.HeaderSet, error) {
	return c.sess.Disconnect(h)
}

// SetConnectionID overrides the CONNECTION-ID sent with every request.
func (c *Client) SetConnectionID(id uint32) {
	c.sess.SetConnectionID(id)
}

// ConnectionID returns the CONNECTION-ID in use, if any.
func (c *Client) ConnectionID() (uint32, bool) {
	return c.sess.ConnectionID()
}

func (c *Client) ready() error {
	if c.sess.IsClosed() {
		return session.ErrSessionClosed
	}
	if !c.sess.IsConnected() {
		return session.ErrNotConnected
	}
	return nil
}

// Put starts a PUT. The opening packet carrying h is sent immediately.
func (c *Client) Put(h *headers.HeaderSet) (*PutOperation, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	op, err := startPut(c.sess, h)
	if err != nil {
		c.logger.Debug("Client: PUT failed: %v", err)
		return nil, err
	}
	return op, nil
}

// Get starts a GET. The request carrying h is sent immediately.
func (c *Client) Get(h *headers.HeaderSet) (*GetOperation, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	op, err := startGet(c.sess, h)
	if err != nil {
		c.logger.Debug("Client: GET failed: %v", err)
		return nil, err
	}
	return op, nil
}

// Delete removes the object named in h: a single PUT-FINAL without body.
// LENGTH announces the missing body unless h already carries one.
func (c *Client) Delete(h *headers.HeaderSet) (*headers.HeaderSet, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if err := c.sess.ValidateHeaderSet(h); err != nil {
		return nil, err
	}
	if h == nil {
		h = headers.New()
	} else {
		h = h.Clone()
	}
	if !h.Has(headers.Length) {
		h.Set(headers.Length, headers.LengthUnknown)
	}

	op := &PutOperation{noBody: true}
	op.init(c.sess, packet.OpPut)
	code, _, err := op.open(op, packet.OpPutFinal, h, nil)
	if err != nil {
		return nil, err
	}
	if code == packet.ResponseContinue {
		return nil, op.violation(op, packet.OpPutFinal, code)
	}
	return op.ReceivedHeaders()
}

// SetPath changes the current folder on the server.
func (c *Client) SetPath(h *headers.HeaderSet, backup, create bool) (*headers.HeaderSet, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	tok := &exchange{op: packet.OpSetPath}
	if err := c.sess.Begin(tok); err != nil {
		return nil, err
	}
	defer c.sess.End(tok)

	return c.sess.Request(packet.OpSetPath, packet.NewSetPathFields(backup, create).Encode(), h)
}

// MaxPacketSize returns the negotiated packet size.
func (c *Client) MaxPacketSize() int {
	return c.sess.MaxPacketSize()
}

// PacketsWritten returns the number of packets sent.
func (c *Client) PacketsWritten() uint64 {
	return c.sess.PacketsWritten()
}

// PacketsRead returns the number of packets received.
func (c *Client) PacketsRead() uint64 {
	return c.sess.PacketsRead()
}

// Close closes the session without DISCONNECT.
func (c *Client) Close() error {
	return c.sess.Close()
}
