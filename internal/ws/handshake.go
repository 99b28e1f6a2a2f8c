package ws

import (
	"fmt"
	"time"

	"github.com/humanophone/humanophone/internal/protocol"
)

// handshakeError records why a connection was dropped before identifying.
// reason is a short metric label.
type handshakeError struct {
	reason string
	err    error
}

func (e *handshakeError) Error() string { return e.reason + ": " + e.err.Error() }
func (e *handshakeError) Unwrap() error { return e.err }

func failHandshake(reason string, err error) error {
	return &handshakeError{reason: reason, err: err}
}

// handshake reads the version frame and then the identity frame, both within
// timeout. Any failure leaves the session unidentified and the caller closes
// the connection without a reply.
func (s *session) handshake(timeout time.Duration, version uint32) error {
	deadline := time.Now().Add(timeout)

	msg, err := s.readHandshakeFrame(deadline)
	if err != nil {
		return err
	}
	v, ok := msg.(protocol.ProtocolVersion)
	if !ok {
		return failHandshake("unexpected", fmt.Errorf("%w: expected %s, got %s",
			protocol.ErrProtocolViolation, protocol.TypeProtocolVersion, msg.Type()))
	}
	if v.Version != version {
		return failHandshake("version", fmt.Errorf("%w: client speaks %d, server %d",
			protocol.ErrVersionMismatch, v.Version, version))
	}
	if err := s.advance(stateAwaitingIdentity); err != nil {
		return failHandshake("state", err)
	}

	msg, err = s.readHandshakeFrame(deadline)
	if err != nil {
		return err
	}
	switch m := msg.(type) {
	case protocol.IAmPublisher:
		s.role, s.clientID = protocol.RolePublisher, m.ID
	case protocol.IAmConsumer:
		s.role, s.clientID = protocol.RoleConsumer, m.ID
	default:
		return failHandshake("unexpected", fmt.Errorf("%w: expected identification, got %s",
			protocol.ErrProtocolViolation, msg.Type()))
	}
	if err := s.advance(stateActive); err != nil {
		return failHandshake("state", err)
	}
	return nil
}

func (s *session) readHandshakeFrame(deadline time.Time) (protocol.Message, error) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return nil, failHandshake("timeout", fmt.Errorf("handshake deadline passed"))
	}
	data, err := s.conn.ReadText(remaining)
	if err != nil {
		if protocol.IsNormalClose(err) {
			return nil, failHandshake("closed", err)
		}
		return nil, failHandshake("read", err)
	}
	msg, err := protocol.DecodeClient(data)
	if err != nil {
		return nil, failHandshake("decode", err)
	}
	return msg, nil
}
