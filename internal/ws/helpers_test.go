package ws

import (
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/humanophone/humanophone/internal/config"
	"github.com/humanophone/humanophone/internal/hub"
	"github.com/humanophone/humanophone/internal/logging"
	"github.com/humanophone/humanophone/internal/protocol"
)

const ioTimeout = 2 * time.Second

type testRelay struct {
	server *Server
	hub    *hub.Hub
	http   *httptest.Server
	url    string
}

// startRelay runs a relay on an httptest server. mutate may adjust the
// configuration before the server is built; clock may be nil.
func startRelay(t *testing.T, clock clockwork.Clock, mutate func(*config.Config)) *testRelay {
	t.Helper()

	cfg := config.Default()
	cfg.Server.HubCapacity = 16
	if mutate != nil {
		mutate(cfg)
	}

	h := hub.New(cfg.Server.HubCapacity)
	srv := NewServer(cfg, h, logging.Discard(), clock)
	httpSrv := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		srv.Shutdown()
		httpSrv.Close()
		h.Close()
	})

	return &testRelay{
		server: srv,
		hub:    h,
		http:   httpSrv,
		url:    "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/",
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, m protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(m)
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, data))
}

func sendRaw(t *testing.T, c *websocket.Conn, kind int, data []byte) {
	t.Helper()
	require.NoError(t, c.WriteMessage(kind, data))
}

func recv(t *testing.T, c *websocket.Conn) protocol.Message {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(ioTimeout)))
	kind, data, err := c.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	msg, err := protocol.DecodeServer(data)
	require.NoError(t, err)
	return msg
}

// expectClosed asserts the server ends the connection without sending
// anything further.
func expectClosed(t *testing.T, c *websocket.Conn) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(ioTimeout)))
	_, data, err := c.ReadMessage()
	require.Error(t, err, "expected close, got frame %s", data)

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		t.Fatal("connection still open")
	}
}

// identify dials and completes the handshake in the given role.
func identify(t *testing.T, url string, role protocol.Role, id string) *websocket.Conn {
	t.Helper()
	c := dial(t, url)
	send(t, c, protocol.ProtocolVersion{Version: protocol.Version})
	switch role {
	case protocol.RolePublisher:
		send(t, c, protocol.IAmPublisher{ID: id})
	case protocol.RoleConsumer:
		send(t, c, protocol.IAmConsumer{ID: id})
	}
	return c
}

// waitActive waits until the relay has n identified sessions.
func waitActive(t *testing.T, r *testRelay, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.server.ActiveSessions() == n },
		ioTimeout, 5*time.Millisecond)
}

// waitSubscribers waits until n consumers are subscribed to the hub.
func waitSubscribers(t *testing.T, r *testRelay, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.hub.SubscriberCount() == n },
		ioTimeout, 5*time.Millisecond)
}
