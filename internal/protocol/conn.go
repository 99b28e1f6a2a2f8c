package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 10 * time.Second

	maxFrameSize = 64 << 10
)

// Frame is one inbound websocket message, or the error that ended the read
// pump. Binary frames are reported rather than dropped so callers can answer
// them as protocol violations.
type Frame struct {
	Data   []byte
	Binary bool
	Err    error
}

// Conn wraps a websocket connection with message-level send and a read pump
// that turns inbound frames into a channel, so session loops can select over
// the network alongside timers and the hub.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex

	pumpOnce  sync.Once
	frames    chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn takes ownership of ws. A zero writeTimeout uses DefaultWriteTimeout.
func NewConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	ws.SetReadLimit(maxFrameSize)
	return &Conn{
		ws:           ws,
		writeTimeout: writeTimeout,
		frames:       make(chan Frame),
		done:         make(chan struct{}),
	}
}

// RemoteAddr returns the peer address as a string.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// Send encodes m and writes it as one text frame.
func (c *Conn) Send(m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", m.Type(), err)
	}
	return nil
}

// ReadText reads a single text frame, failing if none arrives within timeout.
// It must not be used once Frames has been called.
func (c *Conn) ReadText(timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(timeout))
		defer c.ws.SetReadDeadline(time.Time{})
	}
	kind, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	if kind != websocket.TextMessage {
		return nil, fmt.Errorf("%w: binary frame", ErrProtocolViolation)
	}
	return data, nil
}

// Frames starts the read pump on first use and returns its channel. The
// channel yields frames until a read fails; that error is delivered as the
// final Frame and the channel is then closed.
func (c *Conn) Frames() <-chan Frame {
	c.pumpOnce.Do(func() { go c.readPump() })
	return c.frames
}

func (c *Conn) readPump() {
	defer close(c.frames)
	for {
		kind, data, err := c.ws.ReadMessage()
		f := Frame{Data: data, Binary: kind == websocket.BinaryMessage, Err: err}
		select {
		case c.frames <- f:
		case <-c.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// Close sends a normal close frame and tears down the connection. It is safe
// to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// IsNormalClose reports whether err is an orderly end of the connection
// rather than a failure.
func IsNormalClose(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived)
}
