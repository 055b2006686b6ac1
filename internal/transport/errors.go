package transport

import "errors"

var (
	ErrAddrInUse    = errors.New("transport: address in use")
	ErrUnreachable  = errors.New("transport: peer unreachable")
	ErrNotSupported = errors.New("transport: protocol not supported")
	ErrNotConnected = errors.New("transport: not connected")
	ErrClosed       = errors.New("transport: endpoint closed")

	// ErrWouldBlock marks a transient send failure. The caller may retry;
	// this layer does not.
	ErrWouldBlock = errors.New("transport: send would block")

	// ErrPeerGone marks a fatal condition. The connection is unusable and
	// the session must be torn down.
	ErrPeerGone = errors.New("transport: peer gone")

	ErrMessageTooLarge = errors.New("transport: message too large")
)
