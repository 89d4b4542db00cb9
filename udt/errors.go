package udt

import "errors"

// Sentinel errors for this package's error taxonomy. Callers should compare
// with errors.Is rather than direct equality, since these may be wrapped
// with additional context.
var (
	// errConnectionClosed is returned by Connection methods invoked after
	// Close.
	errConnectionClosed = errors.New("udt: connection closed")

	// ErrBadPacket marks a decode failure: malformed header, unknown type,
	// or truncated payload. The offending datagram is dropped; the
	// connection is not affected.
	ErrBadPacket = errors.New("udt: malformed packet")

	// ErrProtocolViolation marks a field that violates a protocol
	// invariant (an ACK beyond the sender's current sequence number, a
	// sub-sequence that was never emitted). The offending field is
	// dropped and the connection continues.
	ErrProtocolViolation = errors.New("udt: protocol violation")

	// ErrUnreachablePeer is surfaced by a Socket after repeated write
	// failures to a peer.
	ErrUnreachablePeer = errors.New("udt: peer unreachable")
)
