package h2h

import "errors"

// Sentinel errors. ErrProtocol and ErrTransport are connection-fatal: the
// demultiplexing loop stops and the connection is torn down. The rest are
// local to the failing call.
var (
	// ErrTimeout means a bounded wait elapsed. The channel and connection
	// stay usable; the caller may retry.
	ErrTimeout = errors.New("h2h: operation timed out")

	// ErrClosed means the operation ran against a closed channel.
	ErrClosed = errors.New("h2h: channel closed")

	// ErrChannelCreation means an open request timed out or was rejected.
	ErrChannelCreation = errors.New("h2h: channel creation failed")

	// ErrHandshake means the handshake retry budget was exhausted.
	ErrHandshake = errors.New("h2h: handshake failed")

	// ErrProtocol means the peer violated the wire protocol.
	ErrProtocol = errors.New("h2h: protocol violation")

	// ErrTransport wraps a failure reported by the underlying transport.
	ErrTransport = errors.New("h2h: transport failure")
)
