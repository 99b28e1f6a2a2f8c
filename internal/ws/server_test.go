package ws

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanophone/humanophone/internal/config"
	"github.com/humanophone/humanophone/internal/health"
	"github.com/humanophone/humanophone/internal/metrics"
	"github.com/humanophone/humanophone/internal/protocol"
	"github.com/humanophone/humanophone/internal/theory"
)

func gm11(t *testing.T) theory.ChordDescriptor {
	t.Helper()
	chord, ok := theory.Detect(theory.NewNoteSet(55, 58, 62, 65, 69, 72))
	require.True(t, ok)
	require.Equal(t, "Gm11", chord.Name())
	return chord
}

func TestRelay_ChordReachesConsumer(t *testing.T) {
	r := startRelay(t, nil, nil)
	chord := gm11(t)

	con := identify(t, r.url, protocol.RoleConsumer, "screen")
	waitSubscribers(t, r, 1)
	pub := identify(t, r.url, protocol.RolePublisher, "keys")

	send(t, pub, protocol.PublishChord{Chord: chord})
	send(t, pub, protocol.PublishSilence{})
	send(t, pub, protocol.PublishPitches{Pitches: theory.NewNoteSet(60, 61)})

	assert.Equal(t, protocol.ChordEvent{Chord: chord}, recv(t, con))
	assert.Equal(t, protocol.Silence{}, recv(t, con))
	assert.Equal(t, protocol.PitchesEvent{Pitches: theory.NewNoteSet(60, 61)}, recv(t, con))
}

func TestRelay_FanOutToEveryConsumer(t *testing.T) {
	r := startRelay(t, nil, nil)

	a := identify(t, r.url, protocol.RoleConsumer, "a")
	b := identify(t, r.url, protocol.RoleConsumer, "b")
	waitSubscribers(t, r, 2)
	pub := identify(t, r.url, protocol.RolePublisher, "keys")

	for i := 0; i < 5; i++ {
		send(t, pub, protocol.PublishPitches{Pitches: theory.NewNoteSet(theory.Pitch(60 + i))})
	}
	for _, c := range []*websocket.Conn{a, b} {
		for i := 0; i < 5; i++ {
			assert.Equal(t, protocol.PitchesEvent{Pitches: theory.NewNoteSet(theory.Pitch(60 + i))}, recv(t, c))
		}
	}
}

func TestPublisher_NoConsumersStaysActive(t *testing.T) {
	r := startRelay(t, nil, nil)
	before := testutil.ToFloat64(metrics.HubEventsDropped)

	pub := identify(t, r.url, protocol.RolePublisher, "keys")
	send(t, pub, protocol.PublishSilence{})
	send(t, pub, protocol.Ping{})

	assert.Equal(t, protocol.Pong{}, recv(t, pub), "publish gets no reply")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.HubEventsDropped))
}

func TestPublisher_Replies(t *testing.T) {
	r := startRelay(t, nil, nil)
	pub := identify(t, r.url, protocol.RolePublisher, "keys")

	send(t, pub, protocol.IAmPublisher{ID: "again"})
	assert.Equal(t, protocol.AlreadyIdentified{}, recv(t, pub))

	send(t, pub, protocol.Ping{})
	assert.Equal(t, protocol.Pong{}, recv(t, pub))
}

func TestPublisher_ProtocolErrorKeepsSession(t *testing.T) {
	r := startRelay(t, nil, nil)
	pub := identify(t, r.url, protocol.RolePublisher, "keys")

	sendRaw(t, pub, websocket.TextMessage, []byte(`{"type":"fanfare"}`))
	sendRaw(t, pub, websocket.BinaryMessage, []byte{0x90, 60, 100})
	send(t, pub, protocol.IAmConsumer{ID: "confused"})
	send(t, pub, protocol.ProtocolVersion{Version: protocol.Version})

	for i := 0; i < 4; i++ {
		msg := recv(t, pub)
		require.IsType(t, protocol.ProtocolError{}, msg)
		assert.NotEmpty(t, msg.(protocol.ProtocolError).Message)
	}

	send(t, pub, protocol.Ping{})
	assert.Equal(t, protocol.Pong{}, recv(t, pub))
}

func TestConsumer_NonPingEndsSession(t *testing.T) {
	r := startRelay(t, nil, nil)
	con := identify(t, r.url, protocol.RoleConsumer, "screen")
	waitSubscribers(t, r, 1)

	send(t, con, protocol.PublishSilence{})

	msg := recv(t, con)
	assert.IsType(t, protocol.ProtocolError{}, msg)
	expectClosed(t, con)
	waitSubscribers(t, r, 0)
}

func TestConsumer_GarbageEndsSession(t *testing.T) {
	r := startRelay(t, nil, nil)
	con := identify(t, r.url, protocol.RoleConsumer, "screen")
	waitActive(t, r, 1)

	sendRaw(t, con, websocket.TextMessage, []byte("not json"))
	assert.IsType(t, protocol.ProtocolError{}, recv(t, con))
	expectClosed(t, con)
}

func TestConsumer_DisconnectUnsubscribes(t *testing.T) {
	r := startRelay(t, nil, nil)
	con := identify(t, r.url, protocol.RoleConsumer, "screen")
	waitSubscribers(t, r, 1)

	require.NoError(t, con.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	waitSubscribers(t, r, 0)
	waitActive(t, r, 0)
}

func heartbeat(peer time.Duration) func(*config.Config) {
	return func(cfg *config.Config) {
		cfg.Heartbeat.Enabled = true
		cfg.Heartbeat.PeerTimeout = peer
	}
}

// waitWatchdog blocks until the session's liveness timer is armed.
func waitWatchdog(t *testing.T, clock *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
}

func TestLiveness_SilentPublisherTimesOut(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := startRelay(t, clock, heartbeat(10*time.Second))
	before := testutil.ToFloat64(metrics.SessionsTotal.WithLabelValues("publisher", "timeout"))

	pub := identify(t, r.url, protocol.RolePublisher, "keys")
	waitActive(t, r, 1)
	waitWatchdog(t, clock)

	clock.Advance(10 * time.Second)
	expectClosed(t, pub)
	waitActive(t, r, 0)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SessionsTotal.WithLabelValues("publisher", "timeout")))
}

// Any inbound message counts as liveness, not only Ping.
func TestLiveness_AnyMessageResetsPublisher(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := startRelay(t, clock, heartbeat(10*time.Second))

	pub := identify(t, r.url, protocol.RolePublisher, "keys")
	waitActive(t, r, 1)
	waitWatchdog(t, clock)

	for i := 0; i < 3; i++ {
		clock.Advance(6 * time.Second)
		// A rejected frame is still traffic; the reply proves it was handled.
		sendRaw(t, pub, websocket.TextMessage, []byte(`{"type":"fanfare"}`))
		require.IsType(t, protocol.ProtocolError{}, recv(t, pub))
	}

	clock.Advance(10 * time.Second)
	expectClosed(t, pub)
}

func TestLiveness_ConsumerPingResets(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := startRelay(t, clock, heartbeat(10*time.Second))

	con := identify(t, r.url, protocol.RoleConsumer, "screen")
	waitActive(t, r, 1)
	waitWatchdog(t, clock)

	clock.Advance(9 * time.Second)
	send(t, con, protocol.Ping{})
	assert.Equal(t, protocol.Pong{}, recv(t, con))

	clock.Advance(9 * time.Second)
	send(t, con, protocol.Ping{})
	assert.Equal(t, protocol.Pong{}, recv(t, con))

	clock.Advance(10 * time.Second)
	expectClosed(t, con)
}

func TestLiveness_DisabledNeverTimesOut(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := startRelay(t, clock, nil)

	pub := identify(t, r.url, protocol.RolePublisher, "keys")
	waitActive(t, r, 1)

	clock.Advance(time.Hour)
	send(t, pub, protocol.Ping{})
	assert.Equal(t, protocol.Pong{}, recv(t, pub))
}

func TestConnectionLimit(t *testing.T) {
	r := startRelay(t, nil, func(cfg *config.Config) {
		cfg.Server.MaxConnections = 1
	})
	before := testutil.ToFloat64(metrics.ConnectionsRejected)

	first := identify(t, r.url, protocol.RoleConsumer, "first")
	waitActive(t, r, 1)

	_, resp, err := websocket.DefaultDialer.Dial(r.url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ConnectionsRejected))

	first.Close()
	waitActive(t, r, 0)
	require.Eventually(t, func() bool {
		c, _, err := websocket.DefaultDialer.Dial(r.url, nil)
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, ioTimeout, 10*time.Millisecond)
}

func TestCheckOrigin(t *testing.T) {
	r := startRelay(t, nil, func(cfg *config.Config) {
		cfg.Server.AllowedOrigins = []string{"https://stage.example.com"}
	})

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(r.url, header)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		resp.Body.Close()
	}

	header.Set("Origin", "https://stage.example.com")
	c, _, err := websocket.DefaultDialer.Dial(r.url, header)
	require.NoError(t, err)
	c.Close()
}

func TestShutdownEndsSessions(t *testing.T) {
	r := startRelay(t, nil, nil)

	con := identify(t, r.url, protocol.RoleConsumer, "screen")
	pub := identify(t, r.url, protocol.RolePublisher, "keys")
	waitActive(t, r, 2)

	done := make(chan struct{})
	go func() {
		r.server.Shutdown()
		close(done)
	}()

	expectClosed(t, con)
	expectClosed(t, pub)
	select {
	case <-done:
	case <-time.After(ioTimeout):
		t.Fatal("Shutdown did not return")
	}
	assert.Zero(t, r.server.ActiveSessions())

	_, resp, err := websocket.DefaultDialer.Dial(r.url, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	r := startRelay(t, nil, nil)
	identify(t, r.url, protocol.RoleConsumer, "screen")
	waitActive(t, r, 1)
	waitSubscribers(t, r, 1)

	resp, err := http.Get(r.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st health.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "ok", st.Status)
	assert.Equal(t, 1, st.Sessions)
	assert.Equal(t, 1, st.Subscribers)
	assert.Equal(t, 16, st.HubCapacity)

	mresp, err := http.Get(r.http.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	body, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "humanophone_sessions_active")
}
