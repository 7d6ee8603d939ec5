package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/agent-racer/tcpsess/internal/network"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Network  NetworkConfig   `yaml:"network"`
	Sessions []SessionConfig `yaml:"sessions"`
	Observer ObserverConfig  `yaml:"observer"`
	Console  ConsoleConfig   `yaml:"console"`
}

type NetworkConfig struct {
	CommandQueue  int           `yaml:"command_queue"`
	EventQueue    int           `yaml:"event_queue"`
	MessageBuffer int           `yaml:"message_buffer"`
	ControlQueue  int           `yaml:"control_queue"`
	OutboundQueue int           `yaml:"outbound_queue"`
	ReadBuffer    int           `yaml:"read_buffer"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	KeepAlive     time.Duration `yaml:"keep_alive"`
	MaxPerCall    int           `yaml:"max_per_call"`
}

// SessionConfig describes a session opened at startup.
type SessionConfig struct {
	ID         int    `yaml:"id"`
	Name       string `yaml:"name"`
	Addr       string `yaml:"addr"`
	Proxy      string `yaml:"proxy"`
	Encoding   string `yaml:"encoding"`
	LineEnding string `yaml:"line_ending"`
}

type ObserverConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	AuthToken        string        `yaml:"auth_token"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	MaxConnections   int           `yaml:"max_connections"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

type ConsoleConfig struct {
	Scrollback         int           `yaml:"scrollback"`
	TickInterval       time.Duration `yaml:"tick_interval"`
	MaxMessagesPerTick int           `yaml:"max_messages_per_tick"`
	LogFile            string        `yaml:"log_file"`
}

const (
	DefaultLineEnding = "\r\n"
	DefaultEncoding   = "ascii"
)

func defaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			CommandQueue:  32,
			EventQueue:    32,
			MessageBuffer: 512,
			ControlQueue:  32,
			OutboundQueue: 32,
			ReadBuffer:    4096,
			MaxPerCall:    1,
		},
		Observer: ObserverConfig{
			Host:             "127.0.0.1",
			Port:             8090,
			SnapshotInterval: 5 * time.Second,
		},
		Console: ConsoleConfig{
			Scrollback:         500,
			TickInterval:       20 * time.Millisecond,
			MaxMessagesPerTick: 64,
			LogFile:            "tcpsess.log",
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applySessionDefaults()

	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when path does not
// exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

func (c *Config) applySessionDefaults() {
	for i := range c.Sessions {
		s := &c.Sessions[i]
		if s.Name == "" {
			s.Name = fmt.Sprintf("session %d", s.ID)
		}
		if s.Encoding == "" {
			s.Encoding = DefaultEncoding
		}
		if s.LineEnding == "" {
			s.LineEnding = DefaultLineEnding
		}
	}
}

// Validate reports the first setting that would make the manager misbehave.
func (c *Config) Validate() error {
	n := c.Network
	sizes := []struct {
		name  string
		value int
	}{
		{"network.command_queue", n.CommandQueue},
		{"network.event_queue", n.EventQueue},
		{"network.message_buffer", n.MessageBuffer},
		{"network.control_queue", n.ControlQueue},
		{"network.outbound_queue", n.OutboundQueue},
		{"network.read_buffer", n.ReadBuffer},
		{"console.max_messages_per_tick", c.Console.MaxMessagesPerTick},
	}
	for _, sz := range sizes {
		if sz.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", sz.name, sz.value)
		}
	}
	if n.DialTimeout < 0 {
		return fmt.Errorf("network.dial_timeout must not be negative, got %v", n.DialTimeout)
	}

	seen := make(map[int]bool, len(c.Sessions))
	for _, s := range c.Sessions {
		if s.ID < 0 {
			return fmt.Errorf("session %q: id must not be negative", s.Name)
		}
		if seen[s.ID] {
			return fmt.Errorf("session id %d is used more than once", s.ID)
		}
		seen[s.ID] = true
		if s.Addr == "" {
			return fmt.Errorf("session %d: addr is required", s.ID)
		}
	}

	if c.Observer.Enabled && (c.Observer.Port <= 0 || c.Observer.Port > 65535) {
		return fmt.Errorf("observer.port %d out of range", c.Observer.Port)
	}
	return nil
}

// Options maps the network section onto manager options.
func (n NetworkConfig) Options() network.Options {
	return network.Options{
		CommandQueue:  n.CommandQueue,
		EventQueue:    n.EventQueue,
		MessageBuffer: n.MessageBuffer,
		ControlQueue:  n.ControlQueue,
		OutboundQueue: n.OutboundQueue,
		ReadBuffer:    n.ReadBuffer,
		DialTimeout:   n.DialTimeout,
		KeepAlive:     n.KeepAlive,
	}
}

// Request builds the connect request for a configured session.
func (s SessionConfig) Request() network.ConnectRequest {
	return network.ConnectRequest{
		ID:       s.ID,
		Name:     s.Name,
		Addr:     s.Addr,
		Proxy:    s.Proxy,
		Encoding: s.Encoding,
	}
}

// Session returns the configured session with the given id.
func (c *Config) Session(id int) (SessionConfig, bool) {
	for _, s := range c.Sessions {
		if s.ID == id {
			return s, true
		}
	}
	return SessionConfig{}, false
}
