package obex

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"avaneesh/obex-go/pkg/channel"
	"avaneesh/obex-go/pkg/packet"
	"avaneesh/obex-go/pkg/server"
	"avaneesh/obex-go/pkg/session"
)

// Transport networks
const (
	NetworkTCP  = "tcp"
	NetworkQUIC = "quic"
)

// Config describes one OBEX endpoint: where it dials or listens and how
// its sessions behave.
type Config struct {
	Network      string
	Address      string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Session session.Config

	// Server only
	RequireLength      bool
	AssignConnectionID bool
	MetricsAddress     string // empty disables the /metrics endpoint

	LogLevel   LogLevel
	FrameDebug bool
}

// DefaultConfig returns default endpoint configuration
func DefaultConfig() Config {
	srv := server.DefaultConfig()
	return Config{
		Network:            NetworkTCP,
		Address:            "127.0.0.1:6650",
		DialTimeout:        10 * time.Second,
		Session:            session.DefaultConfig(),
		RequireLength:      srv.RequireLength,
		AssignConnectionID: srv.AssignConnectionID,
		LogLevel:           LevelInfo,
	}
}

type fileConfig struct {
	Network            string `toml:"network"`
	Address            string `toml:"address"`
	DialTimeout        string `toml:"dial_timeout"`
	ReadTimeout        string `toml:"read_timeout"`
	WriteTimeout       string `toml:"write_timeout"`
	MaxPacketSize      int    `toml:"max_packet_size"`
	RequireLength      bool   `toml:"require_length"`
	AssignConnectionID bool   `toml:"assign_connection_id"`
	MetricsAddress     string `toml:"metrics_address"`
	LogLevel           string `toml:"log_level"`
	FrameDebug         bool   `toml:"frame_debug"`
}

// LoadConfig reads a TOML file. Keys absent from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load obex config: %w", err)
	}
	return overlay(raw, meta)
}

// ParseConfig is LoadConfig for TOML held in memory.
func ParseConfig(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse obex config: %w", err)
	}
	return overlay(raw, meta)
}

func overlay(raw fileConfig, meta toml.MetaData) (Config, error) {
	cfg := DefaultConfig()

	if meta.IsDefined("network") {
		cfg.Network = strings.ToLower(strings.TrimSpace(raw.Network))
	}
	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"dial_timeout", raw.DialTimeout, &cfg.DialTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("max_packet_size") {
		cfg.Session.MaxPacketSize = raw.MaxPacketSize
	}
	if meta.IsDefined("require_length") {
		cfg.RequireLength = raw.RequireLength
	}
	if meta.IsDefined("assign_connection_id") {
		cfg.AssignConnectionID = raw.AssignConnectionID
	}
	if meta.IsDefined("metrics_address") {
		cfg.MetricsAddress = strings.TrimSpace(raw.MetricsAddress)
	}
	if meta.IsDefined("log_level") {
		level, err := ParseLogLevel(raw.LogLevel)
		if err != nil {
			return Config{}, err
		}
		cfg.LogLevel = level
	}
	if meta.IsDefined("frame_debug") {
		cfg.FrameDebug = raw.FrameDebug
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the network, address and packet size.
func (c Config) Validate() error {
	switch c.Network {
	case NetworkTCP, NetworkQUIC:
	default:
		return fmt.Errorf("obex: unsupported network %q", c.Network)
	}
	if c.Address == "" {
		return channel.ErrNoAddress
	}
	if n := c.Session.MaxPacketSize; n != 0 && (n < packet.MinMaxPacketSize || n > packet.MaxPacketSizeLimit) {
		return fmt.Errorf("obex: max_packet_size %d outside [%d, %d]", n, packet.MinMaxPacketSize, packet.MaxPacketSizeLimit)
	}
	return nil
}

// ServerConfig returns the server part of the configuration.
func (c Config) ServerConfig() server.Config {
	return server.Config{
		Session:            c.Session,
		RequireLength:      c.RequireLength,
		AssignConnectionID: c.AssignConnectionID,
	}
}

// ApplyLogging installs the configured log level and frame debug switch.
func (c Config) ApplyLogging() {
	SetLogLevel(c.LogLevel)
	EnableFrameDebug(c.FrameDebug)
}

func (c Config) mtu() int {
	return c.Session.WithDefaults().MaxPacketSize
}

func (c Config) tcp() channel.TCPChannelConfig {
	return channel.TCPChannelConfig{
		Address:      c.Address,
		DialTimeout:  c.DialTimeout,
		MTU:          c.mtu(),
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

func (c Config) quic() channel.QUICChannelConfig {
	return channel.QUICChannelConfig{
		Address:      c.Address,
		MTU:          c.mtu(),
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}
