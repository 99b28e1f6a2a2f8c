package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/humanophone/humanophone/internal/config"
	"github.com/humanophone/humanophone/internal/protocol"
	"github.com/humanophone/humanophone/internal/watchdog"
)

// ErrConnectionClosed is returned when the relay closed the connection in an
// orderly way.
var ErrConnectionClosed = errors.New("connection closed by relay")

// heartbeat groups the client's liveness timers. With heartbeats disabled
// every field is nil and the select branches using them never fire.
type heartbeat struct {
	ticker clockwork.Ticker
	pong   *watchdog.Watchdog // armed by each Ping, stopped by any inbound frame
	peer   *watchdog.Watchdog // re-armed by any inbound frame
}

func newHeartbeat(cfg config.HeartbeatConfig, clock clockwork.Clock) *heartbeat {
	if !cfg.Enabled {
		return &heartbeat{}
	}
	return &heartbeat{
		ticker: clock.NewTicker(cfg.PingInterval),
		pong:   watchdog.New(clock, cfg.PongTimeout),
		peer:   watchdog.New(clock, cfg.PeerTimeout),
	}
}

func (h *heartbeat) ticks() <-chan time.Time {
	if h.ticker == nil {
		return nil
	}
	return h.ticker.Chan()
}

func (h *heartbeat) seen() {
	h.pong.Stop()
	h.peer.Reset()
}

func (h *heartbeat) close() {
	if h.ticker != nil {
		h.ticker.Stop()
	}
	h.pong.Close()
	h.peer.Close()
}

// handler processes one decoded server message.
type handler func(protocol.Message) error

// runSession drives an identified connection until it fails. Outbound events
// from source are sent as they arrive; a nil source is never selected.
func runSession(ctx context.Context, conn *protocol.Conn, opts Options, handle handler, source <-chan protocol.Message) error {
	logger := opts.Logger
	hb := newHeartbeat(opts.Heartbeat, opts.Clock)
	defer hb.close()
	hb.peer.Reset()

	frames := conn.Frames()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case f, ok := <-frames:
			if !ok {
				return ErrConnectionClosed
			}
			if f.Err != nil {
				if protocol.IsNormalClose(f.Err) {
					return ErrConnectionClosed
				}
				return fmt.Errorf("read: %w", f.Err)
			}
			hb.seen()
			if f.Binary {
				logger.Warn("ignoring binary frame from relay")
				continue
			}
			msg, err := protocol.DecodeServer(f.Data)
			if err != nil {
				logger.Warn("ignoring undecodable frame from relay", "error", err)
				continue
			}
			if err := handle(msg); err != nil {
				return err
			}

		case <-hb.ticks():
			if err := conn.Send(protocol.Ping{}); err != nil {
				return err
			}
			hb.pong.Reset()

		case <-hb.pong.Expired():
			return fmt.Errorf("%w: no pong within %s", protocol.ErrPeerUnresponsive, hb.pong.Timeout())

		case <-hb.peer.Expired():
			return fmt.Errorf("%w: relay silent for %s", protocol.ErrPeerUnresponsive, hb.peer.Timeout())

		case msg, ok := <-source:
			if !ok {
				// Leave consumers on silence rather than the last chord.
				if err := conn.Send(protocol.PublishSilence{}); err != nil {
					logger.Debug("final silence not sent", "error", err)
				}
				return ErrSourceExhausted
			}
			if !protocol.RolePublisher.Accepts(msg.Type()) {
				logger.Warn("source produced a non-publication, skipping", "type", msg.Type())
				continue
			}
			if err := conn.Send(msg); err != nil {
				return err
			}
			logger.Debug("event sent", "type", msg.Type())
		}
	}
}
