package session

import "errors"

var (
	// ErrConfigMissing means a connect step ran without a stored Config.
	ErrConfigMissing = errors.New("session config missing")
	// ErrInvalidConfig is returned by Start for a Config that fails validation.
	ErrInvalidConfig = errors.New("invalid session config")
	// ErrNotConnected is returned by SendChat unless the session is Online.
	ErrNotConnected = errors.New("bot is not online")
	// ErrSendFailed wraps an adapter failure during SendChat.
	ErrSendFailed = errors.New("send failed")
	// ErrClosed is returned once the manager's Run loop has exited.
	ErrClosed = errors.New("session manager closed")
)
