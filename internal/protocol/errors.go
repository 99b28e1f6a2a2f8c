package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocolViolation marks any frame a peer was not allowed to send.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrVersionMismatch is returned when the announced version differs from
	// the one this side speaks.
	ErrVersionMismatch = fmt.Errorf("%w: protocol version mismatch", ErrProtocolViolation)

	// ErrLivenessTimeout is returned when a peer went silent for too long.
	ErrLivenessTimeout = errors.New("liveness timeout")

	// ErrPeerUnresponsive is returned by clients when a Ping went unanswered.
	ErrPeerUnresponsive = fmt.Errorf("%w: no pong from server", ErrLivenessTimeout)
)

// DecodeError describes a frame that could not be turned into a Message.
// It matches ErrProtocolViolation under errors.Is.
type DecodeError struct {
	Type Type
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("decode message: %v", e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrProtocolViolation, e.Err}
}
