package ws

import (
	"errors"
	"fmt"

	"github.com/humanophone/humanophone/internal/hub"
	"github.com/humanophone/humanophone/internal/protocol"
	"github.com/humanophone/humanophone/internal/watchdog"
)

// runPublisher relays a publisher's events into the hub until the connection
// closes, the watchdog fires or the server shuts down. Every inbound frame
// counts as liveness.
func (s *session) runPublisher(wd *watchdog.Watchdog) error {
	frames := s.conn.Frames()
	for {
		select {
		case <-s.server.ctx.Done():
			return nil
		case <-wd.Expired():
			return protocol.ErrLivenessTimeout
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			if f.Err != nil {
				return frameEnd(f.Err)
			}
			wd.Reset()
			if err := s.handlePublisherFrame(f); err != nil {
				return err
			}
		}
	}
}

func (s *session) handlePublisherFrame(f protocol.Frame) error {
	msg, err := s.readFrame(f)
	if err != nil {
		return s.replyProtocolError(err.Error())
	}

	switch msg.(type) {
	case protocol.Ping:
		return s.conn.Send(protocol.Pong{})
	case protocol.IAmPublisher:
		return s.conn.Send(protocol.AlreadyIdentified{})
	}

	event, ok := protocol.ToConsumerEvent(msg)
	if !ok {
		return s.replyProtocolError(fmt.Sprintf("unexpected %s after identification", msg.Type()))
	}

	err = s.server.hub.Publish(event)
	switch {
	case err == nil:
		s.logger.Debug("event published", "type", event.Type())
	case errors.Is(err, hub.ErrNoSubscribers):
		s.logger.Warn("event dropped, no consumers", "type", event.Type())
	case errors.Is(err, hub.ErrClosed):
		s.logger.Debug("hub closed, event dropped", "type", event.Type())
	default:
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}
