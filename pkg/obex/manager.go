package obex

import (
	"context"
	"fmt"
	"sync"

	"avaneesh/obex-go/pkg/channel"
	"avaneesh/obex-go/pkg/client"
	"avaneesh/obex-go/pkg/internal/logger"
	"avaneesh/obex-go/pkg/server"
)

// Manager is the root object for OBEX endpoints.
// It keeps named client sessions and creates servers and listeners.
type Manager struct {
	clients map[string]*client.Client
	mu      sync.RWMutex
	logger  Logger
}

// NewManager creates a new OBEX manager
func NewManager() *Manager {
	return NewManagerWithLogger(logger.GetDefault())
}

// NewManagerWithLogger creates a new OBEX manager with custom logger
func NewManagerWithLogger(log Logger) *Manager {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Manager{
		clients: make(map[string]*client.Client),
		logger:  log,
	}
}

// Dial opens a transport to cfg.Address and registers a client for it under id.
// The client is not connected; call Connect before issuing requests.
func (m *Manager) Dial(ctx context.Context, id string, cfg Config) (*client.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, exists := m.GetClient(id); exists {
		return nil, fmt.Errorf("client %s already exists", id)
	}

	t, err := dialTransport(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s %s: %w", cfg.Network, cfg.Address, err)
	}
	c, err := m.AddClient(id, t, cfg)
	if err != nil {
		t.Close()
		return nil, err
	}
	return c, nil
}

// AddClient registers a client over an already established transport.
func (m *Manager) AddClient(id string, t channel.Transport, cfg Config) (*client.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[id]; exists {
		return nil, fmt.Errorf("client %s already exists", id)
	}
	c := client.New(t, cfg.Session, m.logger)
	m.clients[id] = c
	m.logger.Info("Manager: Added client %s", id)
	return c, nil
}

// GetClient returns a client by ID
func (m *Manager) GetClient(id string) (*client.Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, exists := m.clients[id]
	return c, exists
}

// RemoveClient closes a client and forgets it
func (m *Manager) RemoveClient(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, exists := m.clients[id]
	if !exists {
		return fmt.Errorf("client %s not found", id)
	}
	if err := c.Close(); err != nil {
		m.logger.Error("Error closing client %s: %v", id, err)
	}
	delete(m.clients, id)
	m.logger.Info("Manager: Removed client %s", id)
	return nil
}

// ClientCount returns the number of clients
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Listen opens a listener on cfg.Address.
func (m *Manager) Listen(cfg Config) (channel.Listener, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Network {
	case NetworkQUIC:
		l, err := channel.ListenQUIC(cfg.quic())
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		l, err := channel.ListenTCP(cfg.tcp())
		if err != nil {
			return nil, err
		}
		return l, nil
	}
}

// NewServer creates a server that logs through the manager's logger.
func (m *Manager) NewServer(handler server.Handler, cfg Config) *server.Server {
	return server.New(handler, cfg.ServerConfig(), m.logger)
}

// Shutdown closes every client
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Manager: Shutting down")
	for id, c := range m.clients {
		if err := c.Close(); err != nil {
			m.logger.Error("Error closing client %s: %v", id, err)
		}
	}
	m.clients = make(map[string]*client.Client)
	m.logger.Info("Manager: Shutdown complete")
	return nil
}

func dialTransport(ctx context.Context, cfg Config) (channel.Transport, error) {
	switch cfg.Network {
	case NetworkQUIC:
		t, err := channel.DialQUIC(ctx, cfg.quic())
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		t, err := channel.DialTCP(ctx, cfg.tcp())
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}
