package realtime

import "errors"

var (
	// ErrNotInitialized is returned when an operation requires Initialize
	// to have run with a usable configuration.
	ErrNotInitialized = errors.New("realtime: connection not initialized")
	// ErrNotConnected is returned by sends attempted while the socket is
	// down.
	ErrNotConnected = errors.New("realtime: not connected")
	// ErrConnClosed is returned after Destroy; the Conn cannot be revived.
	ErrConnClosed = errors.New("realtime: connection destroyed")
	// ErrCircuitOpen is returned when the circuit breaker is rejecting
	// connection attempts.
	ErrCircuitOpen = errors.New("realtime: circuit open")
)
