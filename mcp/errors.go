package mcp

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when using a channel before Connect.
	ErrNotConnected = errors.New("tool channel not connected")

	// ErrInitializationFailed is returned when the protocol handshake fails.
	ErrInitializationFailed = errors.New("tool channel initialization failed")

	// ErrNoSessionID is returned when the transport reports no session id
	// after a successful connect.
	ErrNoSessionID = errors.New("tool channel reported no session id")
)

// ChannelError wraps a tool channel failure with the operation and endpoint
// it occurred on.
type ChannelError struct {
	Operation string
	Endpoint  string
	Err       error
}

func (e *ChannelError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("tool channel %s failed for %s: %v", e.Operation, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("tool channel %s failed: %v", e.Operation, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// NewChannelError creates a ChannelError.
func NewChannelError(operation, endpoint string, err error) *ChannelError {
	return &ChannelError{Operation: operation, Endpoint: endpoint, Err: err}
}

// IsNotConnectedError reports whether err stems from using a disconnected
// channel.
func IsNotConnectedError(err error) bool {
	return errors.Is(err, ErrNotConnected)
}
