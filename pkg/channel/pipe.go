package channel

import (
	"context"
	"net"
	"sync"
)

// Pipe returns two connected in-memory transports sharing the same MTU.
// Writes block until the other end reads, as with net.Pipe.
func Pipe(mtu int) (*StreamChannel, *StreamChannel) {
	a, b := net.Pipe()
	config := StreamConfig{MTU: mtu}
	return NewStreamChannel(a, config), NewStreamChannel(b, config)
}

// PipeListener hands out the server ends of in-memory pipes created by Dial.
type PipeListener struct {
	mtu     int
	pending chan Transport
	done    chan struct{}
	once    sync.Once
}

// NewPipeListener creates an in-memory listener
func NewPipeListener(mtu int) *PipeListener {
	return &PipeListener{
		mtu:     mtu,
		pending: make(chan Transport),
		done:    make(chan struct{}),
	}
}

// Dial creates a pipe and queues its server end for Accept
func (pl *PipeListener) Dial(ctx context.Context) (Transport, error) {
	client, server := Pipe(pl.mtu)
	select {
	case pl.pending <- server:
		return client, nil
	case <-pl.done:
		return nil, ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Accept implements Listener.Accept
func (pl *PipeListener) Accept(ctx context.Context) (Transport, error) {
	select {
	case t := <-pl.pending:
		return t, nil
	case <-pl.done:
		return nil, ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Addr implements Listener.Addr
func (pl *PipeListener) Addr() net.Addr {
	return pipeAddr{}
}

// Close implements Listener.Close
func (pl *PipeListener) Close() error {
	pl.once.Do(func() { close(pl.done) })
	return nil
}

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }
