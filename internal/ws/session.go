package ws

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/humanophone/humanophone/internal/logging"
	"github.com/humanophone/humanophone/internal/metrics"
	"github.com/humanophone/humanophone/internal/protocol"
	"github.com/humanophone/humanophone/internal/watchdog"
)

type state int

const (
	stateAwaitingVersion state = iota
	stateAwaitingIdentity
	stateActive
)

func (s state) String() string {
	switch s {
	case stateAwaitingVersion:
		return "awaiting_version"
	case stateAwaitingIdentity:
		return "awaiting_identity"
	case stateActive:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// session is one client connection. It is owned by a single goroutine.
type session struct {
	id       uuid.UUID
	clientID string
	role     protocol.Role
	state    state

	server *Server
	conn   *protocol.Conn
	logger *slog.Logger
}

func newSession(srv *Server, conn *protocol.Conn) *session {
	id := uuid.New()
	return &session{
		id:     id,
		server: srv,
		conn:   conn,
		logger: srv.logger.With("session", id.String(), "remote", conn.RemoteAddr()),
	}
}

// advance moves the session one step forward. Skipping or going back is a
// programming error.
func (s *session) advance(to state) error {
	if to != s.state+1 {
		return fmt.Errorf("invalid session transition %s -> %s", s.state, to)
	}
	s.state = to
	return nil
}

func (srv *Server) serveConn(ws *websocket.Conn) {
	conn := protocol.NewConn(ws, protocol.DefaultWriteTimeout)
	defer conn.Close()

	sess := newSession(srv, conn)
	if err := sess.handshake(srv.config.Server.HandshakeTimeout, srv.config.Server.ProtocolVersion); err != nil {
		reason := "error"
		var hsErr *handshakeError
		if errors.As(err, &hsErr) {
			reason = hsErr.reason
		}
		metrics.HandshakeFailures.WithLabelValues(reason).Inc()
		sess.logger.Info("handshake failed", "reason", reason, "error", err)
		return
	}

	sess.logger = logging.WithSession(srv.logger, sess.id.String(), sess.role.String(), conn.RemoteAddr())
	sess.logger.Info("client identified", "client_id", sess.clientID)

	role := sess.role.String()
	srv.active.Add(1)
	metrics.SessionsActive.WithLabelValues(role).Inc()
	defer func() {
		srv.active.Add(-1)
		metrics.SessionsActive.WithLabelValues(role).Dec()
	}()

	var wd *watchdog.Watchdog
	if hb := srv.config.Heartbeat; hb.Enabled {
		wd = watchdog.New(srv.clock, hb.PeerTimeout)
		defer wd.Close()
		wd.Reset()
	}

	var err error
	switch sess.role {
	case protocol.RolePublisher:
		err = sess.runPublisher(wd)
	case protocol.RoleConsumer:
		rx := srv.hub.Subscribe()
		defer rx.Close()
		err = sess.runConsumer(wd, rx)
	}
	sess.finish(err)
}

// finish logs and counts how the session ended.
func (s *session) finish(err error) {
	outcome := "closed"
	switch {
	case err == nil:
		s.logger.Info("session closed")
	case errors.Is(err, protocol.ErrLivenessTimeout):
		outcome = "timeout"
		s.logger.Warn("session timed out", "error", err)
	case errors.Is(err, protocol.ErrProtocolViolation):
		outcome = "violation"
		s.logger.Warn("session ended on protocol violation", "error", err)
	default:
		outcome = "error"
		s.logger.Warn("session failed", "error", err)
	}
	metrics.SessionsTotal.WithLabelValues(s.role.String(), outcome).Inc()
}

// replyProtocolError tells the client its last frame was rejected.
func (s *session) replyProtocolError(text string) error {
	metrics.ProtocolErrors.WithLabelValues(s.role.String()).Inc()
	s.logger.Warn("protocol error", "detail", text)
	return s.conn.Send(protocol.ProtocolError{Message: text})
}

// readFrame decodes an inbound frame, rejecting binary frames and messages
// the session's role may not send.
func (s *session) readFrame(f protocol.Frame) (protocol.Message, error) {
	if f.Binary {
		return nil, fmt.Errorf("%w: binary frames are not supported", protocol.ErrProtocolViolation)
	}
	msg, err := protocol.DecodeClient(f.Data)
	if err != nil {
		return nil, err
	}
	if !s.role.Accepts(msg.Type()) {
		return nil, fmt.Errorf("%w: %s is not allowed for a %s", protocol.ErrProtocolViolation, msg.Type(), s.role)
	}
	return msg, nil
}

// frameEnd maps the terminal read error to the session result.
func frameEnd(err error) error {
	if protocol.IsNormalClose(err) {
		return nil
	}
	return fmt.Errorf("read: %w", err)
}
