package ws

import (
	"errors"
	"fmt"

	"github.com/humanophone/humanophone/internal/hub"
	"github.com/humanophone/humanophone/internal/protocol"
	"github.com/humanophone/humanophone/internal/watchdog"
)

// runConsumer forwards hub events to a consumer. The only message a consumer
// may send once active is Ping; anything else ends the session.
func (s *session) runConsumer(wd *watchdog.Watchdog, rx *hub.Receiver) error {
	frames := s.conn.Frames()
	for {
		select {
		case <-s.server.ctx.Done():
			return nil
		case <-wd.Expired():
			return protocol.ErrLivenessTimeout
		case <-rx.Ready():
			if err := s.forward(rx); err != nil {
				if errors.Is(err, hub.ErrClosed) {
					return nil
				}
				return err
			}
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			if f.Err != nil {
				return frameEnd(f.Err)
			}
			wd.Reset()

			msg, err := s.readFrame(f)
			if err == nil {
				if _, ok := msg.(protocol.Ping); ok {
					if err := s.conn.Send(protocol.Pong{}); err != nil {
						return err
					}
					continue
				}
				err = fmt.Errorf("%w: consumers may only send %s, got %s",
					protocol.ErrProtocolViolation, protocol.TypePing, msg.Type())
			}
			// Best effort; the session ends either way.
			_ = s.replyProtocolError(err.Error())
			return err
		}
	}
}

// forward sends the next pending hub event, if any. It returns
// hub.ErrClosed once the hub is closed and drained.
func (s *session) forward(rx *hub.Receiver) error {
	msg, err := rx.TryRecv()
	var lagged *hub.LaggedError
	switch {
	case err == nil:
		if err := s.conn.Send(msg); err != nil {
			return err
		}
	case errors.As(err, &lagged):
		s.logger.Warn("consumer lagged, resuming from oldest event", "skipped", lagged.Skipped)
	case errors.Is(err, hub.ErrEmpty):
	default:
		return err
	}
	return nil
}
