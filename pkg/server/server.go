package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"avaneesh/obex-go/pkg/channel"
	"avaneesh/obex-go/pkg/internal/logger"
	"avaneesh/obex-go/pkg/session"
)

// Server accepts OBEX sessions and dispatches their requests to a Handler.
type Server struct {
	handler Handler
	config  Config
	logger  logger.Logger

	connSeq atomic.Uint32
	wg      sync.WaitGroup
}

// New creates a server
func New(handler Handler, config Config, log logger.Logger) *Server {
	if handler == nil {
		handler = BaseHandler{}
	}
	return &Server{
		handler: handler,
		config:  config,
		logger:  logger.ForComponent(log, "server"),
	}
}

// Serve accepts sessions from l until ctx is cancelled or the listener is
// closed. Each session is served on its own goroutine.
func (s *Server) Serve(ctx context.Context, l channel.Listener) error {
	s.logger.Info("Server: listening on %s", l.Addr())
	for {
		t, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return ctx.Err()
			}
			if errors.Is(err, channel.ErrChannelClosed) {
				s.wg.Wait()
				return nil
			}
			s.logger.Warn("Server: accept failed: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeTransport(ctx, t)
		}()
	}
}

// ServeTransport serves one session over t and returns when it ends.
// The transport is closed on return.
func (s *Server) ServeTransport(ctx context.Context, t channel.Transport) {
	sess := session.New(t, s.config.Session, s.logger, session.RoleServer)
	d := &dispatcher{srv: s, sess: sess, log: s.logger}
	d.serve(ctx)
}

// Wait blocks until every session started by Serve has ended.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) nextConnectionID() uint32 {
	return s.connSeq.Add(1)
}
