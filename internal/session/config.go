package session

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Config describes one target server and the identity used on it. It is
// fixed for the lifetime of a session; a new Start after Stop replaces it.
type Config struct {
	Host             string `json:"host" yaml:"host"`
	Port             int    `json:"port" yaml:"port"`
	Username         string `json:"username" yaml:"username"`
	HeartbeatMessage string `json:"heartbeatMessage" yaml:"heartbeat_message"`
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate reports the first problem with c, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range 1-65535", ErrInvalidConfig, c.Port)
	}
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidConfig)
	}
	return nil
}
