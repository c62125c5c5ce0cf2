package tftp

import (
	"fmt"

	"github.com/pkg/errors"
)

// Engine-internal errors. These never cross the wire; they are the taxonomy
// a Conn or transfer loop returns to its caller. TFTP-level failures that do
// cross the wire are ERROR packets (see ErrorCode below) and, when received
// from a peer, are surfaced wrapped in a *PeerError.
var (
	ErrCancelled          = errors.New("tftp: transfer cancelled")
	ErrUnexpectedPacket   = errors.New("tftp: unexpected packet")
	ErrUnexpectedBlockAck = errors.New("tftp: ack for unexpected block")
	ErrTimeout            = errors.New("tftp: timeout waiting for reply")
	ErrUnknownTid         = errors.New("tftp: reply from unexpected source address")
	ErrUnsupportedTxMode  = errors.New("tftp: unsupported transfer mode")
)

// PeerError wraps an ERROR packet received from the remote side of a
// transfer. It is returned, never sent: receiving one always terminates the
// transfer without emitting a further ERROR packet of our own.
type PeerError struct {
	Code ErrorCode
	Msg  string
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("tftp: peer sent error %s (%d): %s", e.Code, e.Code, e.Msg)
}

// InvalidResponseError wraps a packet-parse failure encountered while
// decoding a datagram the engine expected to be well-formed.
type InvalidResponseError struct {
	Cause error
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("tftp: invalid response: %v", e.Cause)
}

func (e *InvalidResponseError) Unwrap() error { return e.Cause }

// OptionNegotiationError reports a failure during option negotiation, e.g. an
// OACK mentioning an option the client never requested.
type OptionNegotiationError struct {
	Reason string
}

func (e *OptionNegotiationError) Error() string {
	return fmt.Sprintf("tftp: option negotiation failed: %s", e.Reason)
}

// ParseError is returned by the codec (ParsePacket and friends) when a
// datagram cannot be decoded. These map 1:1 to the codec failure modes named
// by the specification.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "tftp: " + e.Reason }

var (
	errUnexpectedEOF     = &ParseError{"unexpected end of packet"}
	errInvalidOpcode     = &ParseError{"opcode out of range"}
	errNotNullTerminated = &ParseError{"field is not NUL-terminated"}
	errNotAscii          = &ParseError{"field contains non-ASCII bytes"}
	errUnknownTxMode     = &ParseError{"unknown transfer mode"}
	errMalformedPacket   = &ParseError{"malformed packet"}
)
