package client

import (
	"context"
	"errors"

	"github.com/gorilla/websocket"

	"github.com/humanophone/humanophone/internal/protocol"
)

// ErrSourceExhausted is returned when a publisher's event source closed.
// The Supervisor treats it as a clean end.
var ErrSourceExhausted = errors.New("event source exhausted")

// EventSource produces the publications a publisher sends. The channel is
// shared across reconnects; closing it ends the publisher.
type EventSource interface {
	Events() <-chan protocol.Message
}

// RunPublisher connects once as a publisher and sends events from src until
// the connection fails, src is exhausted or ctx is done.
func RunPublisher(ctx context.Context, dialer *websocket.Dialer, opts Options, src EventSource) error {
	opts = opts.withDefaults()
	conn, err := connect(ctx, dialer, opts, protocol.RolePublisher)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger := opts.Logger
	return runSession(ctx, conn, opts, func(msg protocol.Message) error {
		switch m := msg.(type) {
		case protocol.Pong:
			logger.Debug("pong")
		case protocol.AlreadyIdentified:
			logger.Warn("relay says publisher is already identified")
		case protocol.ProtocolError:
			logger.Warn("relay rejected a message", "detail", m.Message)
		default:
			logger.Debug("ignoring message", "type", msg.Type())
		}
		return nil
	}, src.Events())
}

// PublisherAttempt returns an Attempt running one publisher connection.
func PublisherAttempt(dialer *websocket.Dialer, opts Options, src EventSource) Attempt {
	return func(ctx context.Context) error {
		return RunPublisher(ctx, dialer, opts, src)
	}
}
