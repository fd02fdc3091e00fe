package server

import "avaneesh/obex-go/pkg/session"

// Config configures an OBEX server
type Config struct {
	Session session.Config

	// Refuse PUT and GET openings without a LENGTH header.
	RequireLength bool

	// Issue a CONNECTION-ID to clients that connect with a TARGET header.
	AssignConnectionID bool
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Session:            session.DefaultConfig(),
		RequireLength:      true,
		AssignConnectionID: true,
	}
}
