package telnet

import (
	"errors"
	"net"
	"strconv"
	"time"
)

const (
	DefaultPort             = 23
	DefaultInitialReconnect = time.Second
	DefaultMaxReconnect     = 60 * time.Second
	DefaultMaxMessageSize   = 1024 * 1024
)

// LinkConfig describes where the client connects and how it reconnects.
type LinkConfig struct {
	Host string
	Port int

	// MaxReconnectAttempts is the number of reconnects after the first
	// failure; 0 retries forever.
	MaxReconnectAttempts  int
	InitialReconnectDelay time.Duration
	MaxReconnectDelay     time.Duration

	// MaxMessageSize drops any payload line longer than this many bytes.
	MaxMessageSize int
}

// withDefaults fills zero values and checks the required fields.
func (c LinkConfig) withDefaults() (LinkConfig, error) {
	if c.Host == "" {
		return c, errors.New("missing required config: host")
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.InitialReconnectDelay <= 0 {
		c.InitialReconnectDelay = DefaultInitialReconnect
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = DefaultMaxReconnect
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	return c, nil
}

// Address returns host:port.
func (c LinkConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
