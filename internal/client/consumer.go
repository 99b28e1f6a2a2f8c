package client

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/humanophone/humanophone/internal/metrics"
	"github.com/humanophone/humanophone/internal/protocol"
)

// Renderer displays events received by a consumer.
type Renderer interface {
	Render(protocol.Message)
}

// RenderFunc adapts a function to Renderer.
type RenderFunc func(protocol.Message)

func (f RenderFunc) Render(m protocol.Message) { f(m) }

// RunConsumer connects once as a consumer and renders events until the
// connection fails or ctx is done. It always returns a non-nil error.
func RunConsumer(ctx context.Context, dialer *websocket.Dialer, opts Options, r Renderer) error {
	opts = opts.withDefaults()
	conn, err := connect(ctx, dialer, opts, protocol.RoleConsumer)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger := opts.Logger
	return runSession(ctx, conn, opts, func(msg protocol.Message) error {
		switch m := msg.(type) {
		case protocol.ChordEvent, protocol.PitchesEvent, protocol.Silence:
			metrics.ClientEventsReceived.WithLabelValues(string(msg.Type())).Inc()
			r.Render(msg)
		case protocol.Pong:
			logger.Debug("pong")
		case protocol.ProtocolError:
			logger.Warn("relay reported a protocol error", "detail", m.Message)
		default:
			logger.Debug("ignoring message", "type", msg.Type())
		}
		return nil
	}, nil)
}

// ConsumerAttempt returns an Attempt running one consumer connection.
func ConsumerAttempt(dialer *websocket.Dialer, opts Options, r Renderer) Attempt {
	return func(ctx context.Context) error {
		return RunConsumer(ctx, dialer, opts, r)
	}
}
